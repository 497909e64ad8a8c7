package cli

import (
	"testing"
	"time"

	"github.com/rileyhilliard/pyscope/internal/config"
	"github.com/rileyhilliard/pyscope/internal/errors"
	"github.com/rileyhilliard/pyscope/internal/remote"
	"github.com/rileyhilliard/pyscope/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePID(t *testing.T) {
	pid, err := parsePID("4242")
	require.NoError(t, err)
	assert.Equal(t, int32(4242), pid)

	for _, bad := range []string{"", "abc", "0", "-3", "99999999999"} {
		t.Run(bad, func(t *testing.T) {
			_, err := parsePID(bad)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrConfig))
		})
	}
}

func TestSessionOptions_Local(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Sampler.Interval = 250 * time.Millisecond
	cfg.Channel.ConnectRetries = 5
	cfg.Pipeline.CallGraphSample = 2 * time.Second

	opts, pool := sessionOptions(cfg)
	assert.Nil(t, pool)

	assert.IsType(t, &remote.LocalRunner{}, opts.Runner)
	assert.IsType(t, remote.LocalFS{}, opts.FS)
	assert.IsType(t, &telemetry.GopsutilInspector{}, opts.Inspector)
	assert.Empty(t, opts.LocalDir)
	assert.Equal(t, cfg.TempDir(), opts.Artifacts.Dir)

	dialer, ok := opts.Dialer.(*remote.CommandDialer)
	require.True(t, ok)
	assert.Equal(t, cfg.Channel.Command, dialer.Template)
	assert.Equal(t, cfg.Channel.Timeout, dialer.Timeout)

	assert.Equal(t, 250*time.Millisecond, opts.Sampler.Interval)
	assert.Equal(t, uint64(5), opts.Pipeline.ConnectRetries)
	assert.Equal(t, 2*time.Second, opts.Pipeline.CallGraphSample)
	assert.Equal(t, "dot", opts.Pipeline.GraphTool)
}

func TestSessionOptions_SSH(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Channel.Mode = config.ModeSSH
	cfg.Channel.Host = "worker-1"

	opts, pool := sessionOptions(cfg)
	require.NotNil(t, pool)
	defer pool.Close()

	assert.IsType(t, &remote.SSHRunner{}, opts.Runner)
	assert.IsType(t, remote.RunnerFS{}, opts.FS)
	assert.IsType(t, &telemetry.ProcfsInspector{}, opts.Inspector)
	assert.NotEmpty(t, opts.LocalDir)
}

func TestNewInspector(t *testing.T) {
	local := remote.NewLocalRunner()
	tests := []struct {
		name      string
		mode      string
		inspector string
		want      telemetry.Inspector
	}{
		{"auto local", config.ModeLocal, config.InspectorAuto, &telemetry.GopsutilInspector{}},
		{"auto ssh", config.ModeSSH, config.InspectorAuto, &telemetry.ProcfsInspector{}},
		{"forced procfs", config.ModeLocal, config.InspectorProcfs, &telemetry.ProcfsInspector{}},
		{"forced gopsutil", config.ModeLocal, config.InspectorGopsutil, &telemetry.GopsutilInspector{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.Channel.Mode = tt.mode
			cfg.Inspector = tt.inspector
			assert.IsType(t, tt.want, newInspector(cfg, local))
		})
	}
}
