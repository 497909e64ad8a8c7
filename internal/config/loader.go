package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/pyscope/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = ".pyscope.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/pyscope"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix scopes environment overrides, e.g. PYSCOPE_CHANNEL_MODE.
	EnvPrefix = "PYSCOPE"
)

// Load reads config from the specified path.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found",
				"Create "+ConfigFileName+" or point at one with --config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. .pyscope.yaml in current directory
// 3. .pyscope.yaml in parent directories (stops at git root or home)
// 4. ~/.config/pyscope/config.yaml (global defaults)
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	home, _ := os.UserHomeDir()
	dir := cwd
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		if home != "" && parent == home {
			// Don't go above home directory
			break
		}
		dir = parent

		configPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		if isGitRoot(dir) {
			break
		}
	}

	if home != "" {
		globalConfig := filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// LoadOrDefault loads the config found from explicit, or returns defaults
// (with environment overrides) when there is none.
func LoadOrDefault(explicit string) (*Config, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, err
	}

	if path == "" {
		return parseConfig(newViper(), "")
	}

	return Load(path)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		where := "your config"
		if path != "" {
			where = path
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+where)
	}

	if cfg.Channel.Mode == ModeSSH {
		cfg.Pipeline.TempDir = ExpandRemote(cfg.Pipeline.TempDir)
	} else {
		cfg.Pipeline.TempDir = ExpandTilde(Expand(cfg.Pipeline.TempDir))
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it even
// when the file doesn't mention it.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("version", d.Version)
	v.SetDefault("sampler.interval", d.Sampler.Interval)
	v.SetDefault("channel.mode", d.Channel.Mode)
	v.SetDefault("channel.host", d.Channel.Host)
	v.SetDefault("channel.command", d.Channel.Command)
	v.SetDefault("channel.timeout", d.Channel.Timeout)
	v.SetDefault("channel.connect_retries", d.Channel.ConnectRetries)
	v.SetDefault("inspector", d.Inspector)
	v.SetDefault("pipeline.callgraph_sample", d.Pipeline.CallGraphSample)
	v.SetDefault("pipeline.heap_poll_interval", d.Pipeline.HeapPollInterval)
	v.SetDefault("pipeline.heap_timeout", d.Pipeline.HeapTimeout)
	v.SetDefault("pipeline.graph_tool", d.Pipeline.GraphTool)
	v.SetDefault("pipeline.interpreter", d.Pipeline.Interpreter)
	v.SetDefault("pipeline.temp_dir", d.Pipeline.TempDir)
}

// isGitRoot checks if a directory is a git repository root.
func isGitRoot(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".git"))
	if err != nil {
		return false
	}
	return info.IsDir()
}

// TempDir resolves where the target writes artifacts for the configured
// channel mode.
func (c *Config) TempDir() string {
	if c.Pipeline.TempDir != "" {
		return c.Pipeline.TempDir
	}
	if c.Channel.Mode == ModeSSH {
		return "/tmp"
	}
	return os.TempDir()
}
