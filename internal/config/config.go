// Package config loads process settings from workflow.yaml, WORKFLOW_*
// environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"go-workflow/internal/scope"
)

const (
	// FileName is the config file looked up in the working directory.
	FileName = "workflow"
	// EnvPrefix prefixes every environment override, e.g. WORKFLOW_LOG_LEVEL.
	EnvPrefix = "WORKFLOW"
)

// Config is the full process configuration.
type Config struct {
	Paths struct {
		Conf   string `mapstructure:"conf"`
		Root   string `mapstructure:"root"`
		Output string `mapstructure:"output"`
	} `mapstructure:"paths"`

	Store struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`

	Executor struct {
		Parallel int `mapstructure:"parallel"`
	} `mapstructure:"executor"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Secrets struct {
		File      string `mapstructure:"file"`
		EnvPrefix string `mapstructure:"env_prefix"`
	} `mapstructure:"secrets"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	Agent struct {
		Addr string `mapstructure:"addr"`
		URL  string `mapstructure:"url"`
	} `mapstructure:"agent"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("paths.conf", "conf")
	v.SetDefault("paths.root", ".")
	v.SetDefault("paths.output", "output")
	v.SetDefault("store.path", "workflow.db")
	v.SetDefault("executor.parallel", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("secrets.file", "")
	v.SetDefault("secrets.env_prefix", "WORKFLOW_SECRET_")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("agent.addr", ":8090")
	v.SetDefault("agent.url", "")
}

// Load reads configuration. An explicit path must exist; without one,
// workflow.yaml (or .yml/.json) in the working directory is used when
// present. Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Executor.Parallel < 1 {
		cfg.Executor.Parallel = 1
	}
	if used := v.ConfigFileUsed(); used != "" {
		cfg.resolveRelative(filepath.Dir(used))
	}
	return &cfg, nil
}

// resolveRelative makes file paths from a config file relative to that
// file's directory.
func (c *Config) resolveRelative(dir string) {
	for _, p := range []*string{&c.Paths.Conf, &c.Paths.Root, &c.Paths.Output, &c.Store.Path, &c.Secrets.File} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// SecretSource chains environment secrets before the secrets file.
func (c *Config) SecretSource() scope.SecretSource {
	chain := scope.Chain{scope.EnvSecrets{Prefix: c.Secrets.EnvPrefix}}
	if c.Secrets.File != "" {
		chain = append(chain, scope.FileSecrets{Path: c.Secrets.File})
	}
	return chain
}
