package config

import (
	"testing"
	"time"

	"github.com/rileyhilliard/pyscope/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "future version",
			mutate:  func(c *Config) { c.Version = CurrentConfigVersion + 1 },
			wantErr: "from the future",
		},
		{
			name:    "sampler interval too short",
			mutate:  func(c *Config) { c.Sampler.Interval = 50 * time.Millisecond },
			wantErr: "sampler.interval",
		},
		{
			name:   "sampler interval at minimum",
			mutate: func(c *Config) { c.Sampler.Interval = MinInterval },
		},
		{
			name:    "unknown channel mode",
			mutate:  func(c *Config) { c.Channel.Mode = "telnet" },
			wantErr: "channel.mode 'telnet'",
		},
		{
			name:    "ssh without host",
			mutate:  func(c *Config) { c.Channel.Mode = ModeSSH },
			wantErr: "channel.host is empty",
		},
		{
			name: "ssh with host",
			mutate: func(c *Config) {
				c.Channel.Mode = ModeSSH
				c.Channel.Host = "deploy@web-1"
			},
		},
		{
			name:    "command without pid placeholder",
			mutate:  func(c *Config) { c.Channel.Command = "pyrasite-exec" },
			wantErr: "no {pid} placeholder",
		},
		{
			name:    "empty command",
			mutate:  func(c *Config) { c.Channel.Command = " " },
			wantErr: "channel.command is empty",
		},
		{
			name:    "zero channel timeout",
			mutate:  func(c *Config) { c.Channel.Timeout = 0 },
			wantErr: "channel.timeout",
		},
		{
			name:    "negative retries",
			mutate:  func(c *Config) { c.Channel.ConnectRetries = -1 },
			wantErr: "connect_retries",
		},
		{
			name:    "unknown inspector",
			mutate:  func(c *Config) { c.Inspector = "dtrace" },
			wantErr: "inspector 'dtrace'",
		},
		{
			name: "gopsutil over ssh",
			mutate: func(c *Config) {
				c.Channel.Mode = ModeSSH
				c.Channel.Host = "web-1"
				c.Inspector = InspectorGopsutil
			},
			wantErr: "only sees processes on this machine",
		},
		{
			name:    "heap poll too short",
			mutate:  func(c *Config) { c.Pipeline.HeapPollInterval = time.Millisecond },
			wantErr: "pipeline.heap_poll_interval",
		},
		{
			name:    "heap timeout below poll",
			mutate:  func(c *Config) { c.Pipeline.HeapTimeout = time.Second },
			wantErr: "pipeline.heap_timeout",
		},
		{
			name:    "zero call graph sample",
			mutate:  func(c *Config) { c.Pipeline.CallGraphSample = 0 },
			wantErr: "pipeline.callgraph_sample",
		},
		{
			name:    "empty graph tool",
			mutate:  func(c *Config) { c.Pipeline.GraphTool = "" },
			wantErr: "pipeline.graph_tool",
		},
		{
			name:    "empty interpreter",
			mutate:  func(c *Config) { c.Pipeline.Interpreter = "" },
			wantErr: "pipeline.interpreter",
		},
		{
			name:    "unexpanded temp dir",
			mutate:  func(c *Config) { c.Pipeline.TempDir = "${NOPE}/x" },
			wantErr: "unexpanded variable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.True(t, errors.IsCode(err, errors.ErrConfig))
		})
	}
}

func TestValidateNil(t *testing.T) {
	err := Validate(nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}
