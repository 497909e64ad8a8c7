package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rileyhilliard/pyscope/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, CurrentConfigVersion, cfg.Version)
	assert.Equal(t, time.Second, cfg.Sampler.Interval)
	assert.Equal(t, ModeLocal, cfg.Channel.Mode)
	assert.Equal(t, "pyrasite-exec {pid}", cfg.Channel.Command)
	assert.Equal(t, 30*time.Second, cfg.Channel.Timeout)
	assert.Equal(t, 3, cfg.Channel.ConnectRetries)
	assert.Equal(t, InspectorAuto, cfg.Inspector)
	assert.Equal(t, time.Second, cfg.Pipeline.CallGraphSample)
	assert.Equal(t, 3*time.Second, cfg.Pipeline.HeapPollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.HeapTimeout)
	assert.Equal(t, "dot", cfg.Pipeline.GraphTool)
	assert.Equal(t, "python3", cfg.Pipeline.Interpreter)
	assert.Empty(t, cfg.Pipeline.TempDir)

	require.NoError(t, Validate(cfg))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ConfigFileName)

	content := `
version: 1
sampler:
  interval: 500ms
channel:
  mode: ssh
  host: gpu-box
  command: sudo pyrasite-exec {pid}
  timeout: 10s
  connect_retries: 5
inspector: procfs
pipeline:
  callgraph_sample: 3s
  heap_timeout: 2m
  temp_dir: ${HOME}/pyscope
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Sampler.Interval)
	assert.Equal(t, ModeSSH, cfg.Channel.Mode)
	assert.Equal(t, "gpu-box", cfg.Channel.Host)
	assert.Equal(t, "sudo pyrasite-exec {pid}", cfg.Channel.Command)
	assert.Equal(t, 10*time.Second, cfg.Channel.Timeout)
	assert.Equal(t, 5, cfg.Channel.ConnectRetries)
	assert.Equal(t, InspectorProcfs, cfg.Inspector)
	assert.Equal(t, 3*time.Second, cfg.Pipeline.CallGraphSample)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.HeapTimeout)
	// Unset keys keep their defaults.
	assert.Equal(t, 3*time.Second, cfg.Pipeline.HeapPollInterval)
	assert.Equal(t, "dot", cfg.Pipeline.GraphTool)
	// Remote paths keep ~ for the remote shell.
	assert.Equal(t, "~/pyscope", cfg.Pipeline.TempDir)

	require.NoError(t, Validate(cfg))
}

func TestLoad_LocalTempDirExpands(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(configPath, []byte("pipeline:\n  temp_dir: ~/scratch\n"), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "scratch"), cfg.Pipeline.TempDir)
	assert.Equal(t, cfg.Pipeline.TempDir, cfg.TempDir())
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(configPath, []byte("sampler:\n  interval: 2s\n"), 0644))
	t.Setenv("PYSCOPE_SAMPLER_INTERVAL", "250ms")
	t.Setenv("PYSCOPE_PIPELINE_GRAPH_TOOL", "/opt/graphviz/bin/dot")

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.Sampler.Interval)
	assert.Equal(t, "/opt/graphviz/bin/dot", cfg.Pipeline.GraphTool)
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/.pyscope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Config file not found")
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(configPath, []byte("sampler: [unclosed\n"), 0644))

	_, err := Load(configPath)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestFind(t *testing.T) {
	t.Run("explicit path exists", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "custom.yaml")
		require.NoError(t, os.WriteFile(path, []byte("version: 1"), 0644))

		got, err := Find(path)
		require.NoError(t, err)
		assert.Equal(t, path, got)
	})

	t.Run("explicit path not found", func(t *testing.T) {
		_, err := Find("/nonexistent/config.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Specified config file not found")
	})

	t.Run("current directory has config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, ConfigFileName)
		require.NoError(t, os.WriteFile(path, []byte("version: 1"), 0644))
		chdir(t, dir)

		got, err := Find("")
		require.NoError(t, err)
		assert.Equal(t, filepath.Base(path), filepath.Base(got))
	})

	t.Run("parent directory has config", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte("version: 1"), 0644))
		child := filepath.Join(root, "svc", "worker")
		require.NoError(t, os.MkdirAll(child, 0755))
		chdir(t, child)

		got, err := Find("")
		require.NoError(t, err)
		assert.Equal(t, ConfigFileName, filepath.Base(got))
	})

	t.Run("stops at git root", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, ConfigFileName), []byte("version: 1"), 0644))
		repo := filepath.Join(root, "repo")
		require.NoError(t, os.MkdirAll(filepath.Join(repo, ".git"), 0755))
		child := filepath.Join(repo, "pkg")
		require.NoError(t, os.MkdirAll(child, 0755))
		chdir(t, child)
		t.Setenv("HOME", t.TempDir())

		got, err := Find("")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestLoadOrDefault(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Channel, cfg.Channel)
	assert.Equal(t, os.TempDir(), cfg.TempDir())
}

func TestConfig_TempDir(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, os.TempDir(), cfg.TempDir())

	cfg.Channel.Mode = ModeSSH
	assert.Equal(t, "/tmp", cfg.TempDir())

	cfg.Pipeline.TempDir = "/var/tmp/pyscope"
	assert.Equal(t, "/var/tmp/pyscope", cfg.TempDir())
}
