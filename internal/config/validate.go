package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rileyhilliard/pyscope/internal/errors"
	"github.com/rileyhilliard/pyscope/internal/remote"
)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New(errors.ErrConfig,
			"Config is nil",
			"This is unexpected - try reloading the configuration.")
	}

	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but pyscope only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Grab the latest pyscope release.")
	}

	if err := validateInterval("sampler.interval", cfg.Sampler.Interval); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'sampler' section in your "+ConfigFileName+".")
	}

	if err := validateChannel(cfg.Channel); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'channel' section in your "+ConfigFileName+".")
	}

	switch cfg.Inspector {
	case InspectorAuto, InspectorGopsutil, InspectorProcfs, "":
	default:
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("inspector '%s' isn't valid", cfg.Inspector),
			"Use 'auto', 'gopsutil', or 'procfs'.")
	}
	if cfg.Inspector == InspectorGopsutil && cfg.Channel.Mode == ModeSSH {
		return errors.New(errors.ErrConfig,
			"inspector 'gopsutil' only sees processes on this machine",
			"Use 'procfs' or 'auto' with channel.mode ssh.")
	}

	if err := validatePipeline(cfg.Pipeline); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'pipeline' section in your "+ConfigFileName+".")
	}

	return nil
}

func validateInterval(field string, d time.Duration) error {
	if d < MinInterval {
		return fmt.Errorf("%s is %v - it needs to be at least %v", field, d, MinInterval)
	}
	return nil
}

// validateChannel checks how scripts reach the target.
func validateChannel(ch ChannelConfig) error {
	switch ch.Mode {
	case ModeLocal:
	case ModeSSH:
		if strings.TrimSpace(ch.Host) == "" {
			return fmt.Errorf("channel.mode is 'ssh' but channel.host is empty - set it to an SSH alias or user@host")
		}
	default:
		return fmt.Errorf("channel.mode '%s' isn't valid - use 'local' or 'ssh'", ch.Mode)
	}

	if strings.TrimSpace(ch.Command) == "" {
		return fmt.Errorf("channel.command is empty - it should look like 'pyrasite-exec %s'", remote.PIDPlaceholder)
	}
	if !strings.Contains(ch.Command, remote.PIDPlaceholder) {
		return fmt.Errorf("channel.command '%s' has no %s placeholder for the target pid", ch.Command, remote.PIDPlaceholder)
	}

	if ch.Timeout <= 0 {
		return fmt.Errorf("channel.timeout needs to be positive (got %v)", ch.Timeout)
	}
	if ch.ConnectRetries < 0 {
		return fmt.Errorf("channel.connect_retries can't be negative (got %d)", ch.ConnectRetries)
	}
	return nil
}

// validatePipeline checks stage tuning.
func validatePipeline(p PipelineConfig) error {
	if p.CallGraphSample <= 0 {
		return fmt.Errorf("pipeline.callgraph_sample needs to be positive (got %v)", p.CallGraphSample)
	}
	if err := validateInterval("pipeline.heap_poll_interval", p.HeapPollInterval); err != nil {
		return err
	}
	if p.HeapTimeout < p.HeapPollInterval {
		return fmt.Errorf("pipeline.heap_timeout (%v) is shorter than pipeline.heap_poll_interval (%v) - the dump would never be checked twice", p.HeapTimeout, p.HeapPollInterval)
	}
	if strings.TrimSpace(p.GraphTool) == "" {
		return fmt.Errorf("pipeline.graph_tool is empty - use 'dot' unless graphviz lives elsewhere")
	}
	if strings.TrimSpace(p.Interpreter) == "" {
		return fmt.Errorf("pipeline.interpreter is empty - use 'python3' or a full path")
	}
	if strings.Contains(p.TempDir, "${") {
		return fmt.Errorf("pipeline.temp_dir has an unexpanded variable: %s", p.TempDir)
	}
	return nil
}
