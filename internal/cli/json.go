package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"

	"github.com/rileyhilliard/pyscope/internal/errors"
)

// JSONEnvelope wraps command output in a consistent structure for machine parsing.
type JSONEnvelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *JSONError  `json:"error,omitempty"`
}

// JSONError provides structured error information for machine parsing.
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Error codes for machine-readable output.
const (
	ErrCodeConfigInvalid   = "CONFIG_INVALID"
	ErrCodeSSHConnection   = "SSH_CONNECTION_FAILED"
	ErrCodeCommandFailed   = "COMMAND_FAILED"
	ErrCodeChannelFailed   = "CHANNEL_FAILED"
	ErrCodeSampleFailed    = "SAMPLE_FAILED"
	ErrCodeProcessNotFound = "PROCESS_NOT_FOUND"
	ErrCodeStageFailed     = "STAGE_FAILED"
	ErrCodeCancelled       = "CANCELLED"
	ErrCodeUnknown         = "UNKNOWN"
)

// WriteJSONSuccess writes a successful response with data to the writer.
func WriteJSONSuccess(w io.Writer, data interface{}) error {
	return writeJSONEnvelope(w, JSONEnvelope{Success: true, Data: data})
}

// WriteJSONFromError converts a Go error to a JSON error response. data,
// when non-nil, carries whatever partial result was collected.
func WriteJSONFromError(w io.Writer, err error, data interface{}) error {
	return writeJSONEnvelope(w, JSONEnvelope{
		Success: false,
		Data:    data,
		Error:   ErrorToJSON(err),
	})
}

func writeJSONEnvelope(w io.Writer, env JSONEnvelope) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(env)
}

// ErrorToJSON converts a Go error to a JSONError with appropriate code mapping.
func ErrorToJSON(err error) *JSONError {
	if err == nil {
		return nil
	}

	if stderrors.Is(err, context.Canceled) {
		return &JSONError{Code: ErrCodeCancelled, Message: "inspection cancelled"}
	}

	var pErr *errors.Error
	if stderrors.As(err, &pErr) {
		return &JSONError{
			Code:       mapErrorCode(pErr.Code),
			Message:    pErr.Message,
			Suggestion: pErr.Suggestion,
		}
	}

	return &JSONError{Code: ErrCodeUnknown, Message: err.Error()}
}

// mapErrorCode maps internal error codes to machine-readable codes.
func mapErrorCode(code string) string {
	switch code {
	case errors.ErrConfig:
		return ErrCodeConfigInvalid
	case errors.ErrSSH:
		return ErrCodeSSHConnection
	case errors.ErrExec:
		return ErrCodeCommandFailed
	case errors.ErrChannel:
		return ErrCodeChannelFailed
	case errors.ErrSample:
		return ErrCodeSampleFailed
	case errors.ErrProcess:
		return ErrCodeProcessNotFound
	case errors.ErrStage:
		return ErrCodeStageFailed
	}
	return ErrCodeUnknown
}
