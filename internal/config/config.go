// Package config handles configuration loading for tutord. It supports XDG
// config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for tutord.
type Config struct {
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Server     ServerConfig     `mapstructure:"server"`
	Memory     MemoryConfig     `mapstructure:"memory"`
	Timeouts   TimeoutsConfig   `mapstructure:"timeouts"`
	Mastery    MasteryConfig    `mapstructure:"mastery"`
	Sessions   SessionsConfig   `mapstructure:"sessions"`
	Curriculum CurriculumConfig `mapstructure:"curriculum"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
}

// AnthropicConfig holds model API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	FastModel  string `mapstructure:"fast_model"`
	DeepModel  string `mapstructure:"deep_model"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// MemoryConfig holds dialogue memory settings.
type MemoryConfig struct {
	// WindowSize is the number of verbatim messages kept per session.
	WindowSize int `mapstructure:"window_size"`
}

// TimeoutsConfig holds per-stage deadlines.
type TimeoutsConfig struct {
	Decision   time.Duration `mapstructure:"decision"`
	Specialist time.Duration `mapstructure:"specialist"`
	Composer   time.Duration `mapstructure:"composer"`
	Summary    time.Duration `mapstructure:"summary"`
	// Turn bounds the whole pipeline for one message.
	Turn time.Duration `mapstructure:"turn"`
}

// MasteryConfig holds the mastery model tuning.
type MasteryConfig struct {
	LearningRate         float64 `mapstructure:"learning_rate"`
	PenaltyFactor        float64 `mapstructure:"penalty_factor"`
	RemediationThreshold float64 `mapstructure:"remediation_threshold"`
}

// SessionsConfig holds session lifecycle settings.
type SessionsConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// CurriculumConfig holds topic library settings.
type CurriculumConfig struct {
	Dir string `mapstructure:"dir"`
	// Watch enables hot reload of topic files.
	Watch bool `mapstructure:"watch"`
}

// TranscriptConfig holds turn-record persistence settings.
type TranscriptConfig struct {
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, TUTORD_*)
// 2. Project config (.tutord.yaml in current directory or parent)
// 3. User config (~/.config/tutord/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("TUTORD")
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("server.listen_addr", "TUTORD_LISTEN_ADDR")
	v.BindEnv("curriculum.dir", "TUTORD_CURRICULUM_DIR")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.fast_model", "")
	v.SetDefault("anthropic.deep_model", "")
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("server.listen_addr", ":8080")

	v.SetDefault("memory.window_size", 10)

	v.SetDefault("timeouts.decision", "15s")
	v.SetDefault("timeouts.specialist", "30s")
	v.SetDefault("timeouts.composer", "20s")
	v.SetDefault("timeouts.summary", "10s")
	v.SetDefault("timeouts.turn", "90s")

	v.SetDefault("mastery.learning_rate", 0.2)
	v.SetDefault("mastery.penalty_factor", 0.5)
	v.SetDefault("mastery.remediation_threshold", 0.4)

	v.SetDefault("sessions.ttl", "2h")
	v.SetDefault("sessions.sweep_interval", "30m")

	v.SetDefault("curriculum.dir", "curriculum")
	v.SetDefault("curriculum.watch", true)

	v.SetDefault("transcript.path", "tutord.db")
}

// getUserConfigDir returns the XDG config directory for tutord.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "tutord")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "tutord")
	}
	return filepath.Join(home, ".config", "tutord")
}

// findProjectConfig searches for .tutord.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		configPath := filepath.Join(cwd, ".tutord.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}
	return ""
}

// expandEnv expands ${VAR} references in a config value.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}
