package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShellQuote(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", "'simple'"},
		{"with space", "'with space'"},
		{"with'quote", `'with'\''quote'`},
		{"", "''"},
		{"/tmp/pyscope-42.dump", "'/tmp/pyscope-42.dump'"},
		{"$(command)", "'$(command)'"},
		{"`backtick`", "'`backtick`'"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShellQuote(tt.input))
		})
	}
}

func TestShellQuotePath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"~", "~"},
		{"~/.cache/pyscope", "~/'.cache/pyscope'"},
		{"~/dir with spaces", "~/'dir with spaces'"},
		{"/tmp/x", "'/tmp/x'"},
		{"~user/x", "'~user/x'"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShellQuotePath(tt.input))
		})
	}
}

func TestShellCommand(t *testing.T) {
	assert.Equal(t, `'python3' '-c' 'print("hi")'`, ShellCommand("python3", "-c", `print("hi")`))
	assert.Equal(t, "", ShellCommand())
}
