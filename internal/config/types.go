package config

import (
	"time"

	"github.com/rileyhilliard/pyscope/internal/remote"
)

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Channel modes.
const (
	ModeLocal = "local"
	ModeSSH   = "ssh"
)

// Inspector backends.
const (
	InspectorAuto     = "auto"
	InspectorGopsutil = "gopsutil"
	InspectorProcfs   = "procfs"
)

// MinInterval is the shortest sampling or polling period accepted.
const MinInterval = 100 * time.Millisecond

// Config represents the complete .pyscope.yaml configuration file.
type Config struct {
	Version   int            `yaml:"version" mapstructure:"version"`
	Sampler   SamplerConfig  `yaml:"sampler" mapstructure:"sampler"`
	Channel   ChannelConfig  `yaml:"channel" mapstructure:"channel"`
	Inspector string         `yaml:"inspector" mapstructure:"inspector"`
	Pipeline  PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
}

// SamplerConfig controls live telemetry.
type SamplerConfig struct {
	// Interval is both the tick period and the cpu measurement window.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// ChannelConfig controls how scripts reach the target interpreter.
type ChannelConfig struct {
	// Mode is "local" or "ssh".
	Mode string `yaml:"mode" mapstructure:"mode"`

	// Host is the SSH alias or user@host used when Mode is "ssh".
	Host string `yaml:"host" mapstructure:"host"`

	// Command is the injector. It must contain {pid}, read a script on
	// stdin and print the target's output.
	Command string `yaml:"command" mapstructure:"command"`

	// Timeout bounds every round trip to the target.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// ConnectRetries is how many times attaching is retried.
	ConnectRetries int `yaml:"connect_retries" mapstructure:"connect_retries"`
}

// PipelineConfig tunes the inspection stages.
type PipelineConfig struct {
	CallGraphSample  time.Duration `yaml:"callgraph_sample" mapstructure:"callgraph_sample"`
	HeapPollInterval time.Duration `yaml:"heap_poll_interval" mapstructure:"heap_poll_interval"`
	HeapTimeout      time.Duration `yaml:"heap_timeout" mapstructure:"heap_timeout"`

	// GraphTool renders call graphs (graphviz dot by default).
	GraphTool string `yaml:"graph_tool" mapstructure:"graph_tool"`

	// Interpreter is used to discover site-packages to add to the target.
	Interpreter string `yaml:"interpreter" mapstructure:"interpreter"`

	// TempDir is where the target writes artifacts. Empty means the
	// system temp dir locally and /tmp over SSH.
	TempDir string `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Sampler: SamplerConfig{
			Interval: time.Second,
		},
		Channel: ChannelConfig{
			Mode:           ModeLocal,
			Command:        "pyrasite-exec " + remote.PIDPlaceholder,
			Timeout:        remote.DefaultTimeout,
			ConnectRetries: 3,
		},
		Inspector: InspectorAuto,
		Pipeline: PipelineConfig{
			CallGraphSample:  time.Second,
			HeapPollInterval: 3 * time.Second,
			HeapTimeout:      10 * time.Minute,
			GraphTool:        "dot",
			Interpreter:      "python3",
		},
	}
}
