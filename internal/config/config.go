// Package config loads the ordered list of target definitions this
// supervisor manages, plus its optional ambient sections (history sink
// DSN, metrics/status listen address, log directory), via Viper so any of
// YAML, TOML or JSON is accepted transparently.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// TargetConfig describes one supervised Minecraft server instance.
type TargetConfig struct {
	Nick        string `mapstructure:"nick"`
	Path        string `mapstructure:"path"`
	Jar         string `mapstructure:"jar"`
	StartScript string `mapstructure:"start_script"`

	EnableChatlog             bool `mapstructure:"enable_chatlog"`
	EnableResponsivenessCheck bool `mapstructure:"enable_responsiveness_check"`
	EnableAutomatedRestarts   bool `mapstructure:"enable_automated_restarts"`
	StartServer               bool `mapstructure:"start_server"`
	MultiuserEnabled          bool `mapstructure:"multiuser_enabled"`

	AuthorisedAccounts []string `mapstructure:"authorised_accounts"`

	Hostname string `mapstructure:"hostname"`
	Port     int    `mapstructure:"port"`

	StartupTimeSeconds int `mapstructure:"startup_time_seconds"`
	RestartPeriod      int `mapstructure:"restart_period_seconds"`
}

// HistoryConfig configures the optional lifecycle-event sink.
type HistoryConfig struct {
	DSN string `mapstructure:"dsn"`
}

// MetricsConfig configures the optional status/metrics HTTP surface.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// LogConfig configures the process-wide structured logger.
type LogConfig struct {
	Dir string `mapstructure:"dir"`
}

// Config is the top-level supervisor configuration document.
type Config struct {
	Targets []TargetConfig `mapstructure:"targets"`
	History HistoryConfig  `mapstructure:"history"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Log     LogConfig      `mapstructure:"log"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// RestartPeriodDuration converts the configured restart period to a
// time.Duration, defaulting to zero (no scheduled restarts) when unset.
func (t TargetConfig) RestartPeriodDuration() time.Duration {
	if t.RestartPeriod <= 0 {
		return 0
	}
	return time.Duration(t.RestartPeriod) * time.Second
}

func validate(cfg *Config) error {
	if len(cfg.Targets) == 0 {
		return fmt.Errorf("no targets configured")
	}

	nicks := make(map[string]struct{}, len(cfg.Targets))
	jars := make(map[string]struct{}, len(cfg.Targets))

	for i, t := range cfg.Targets {
		nick := strings.TrimSpace(t.Nick)
		if nick == "" {
			return fmt.Errorf("targets[%d]: nick is required", i)
		}
		if _, dup := nicks[nick]; dup {
			return fmt.Errorf("targets[%d]: duplicate nick %q", i, nick)
		}
		nicks[nick] = struct{}{}

		jar := strings.TrimSpace(t.Jar)
		if jar == "" {
			return fmt.Errorf("target %q: jar is required", nick)
		}
		if _, dup := jars[jar]; dup {
			return fmt.Errorf("target %q: duplicate jar %q", nick, jar)
		}
		jars[jar] = struct{}{}

		if strings.TrimSpace(t.Path) == "" {
			return fmt.Errorf("target %q: path is required", nick)
		}
		if t.EnableResponsivenessCheck {
			if strings.TrimSpace(t.Hostname) == "" {
				return fmt.Errorf("target %q: hostname is required when responsiveness checking is enabled", nick)
			}
			if t.Port <= 0 || t.Port > 65535 {
				return fmt.Errorf("target %q: port must be in 1..65535 when responsiveness checking is enabled", nick)
			}
		}
		if t.MultiuserEnabled && len(t.AuthorisedAccounts) == 0 {
			return fmt.Errorf("target %q: multiuser_enabled requires authorised_accounts", nick)
		}
	}

	return nil
}
