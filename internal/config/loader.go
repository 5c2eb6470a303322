package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and defaults.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("HABERGO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search default locations
		v.SetConfigName("habergo")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".habergo"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// An outlets section in the file replaces the default set wholesale;
	// merging partial outlet definitions is more confusing than helpful.
	if v.IsSet("outlets") {
		cfg.Outlets = nil
		if err := v.UnmarshalKey("outlets", &cfg.Outlets); err != nil {
			return nil, fmt.Errorf("failed to unmarshal outlets: %w", err)
		}
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)

	v.SetDefault("compliance.user_agent", cfg.Compliance.UserAgent)
	v.SetDefault("compliance.min_interval", cfg.Compliance.MinInterval)
	v.SetDefault("compliance.policy_ttl", cfg.Compliance.PolicyTTL)

	v.SetDefault("dedup.similarity_threshold", cfg.Dedup.SimilarityThreshold)
	v.SetDefault("dedup.window_size", cfg.Dedup.WindowSize)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.uri", cfg.Storage.URI)
	v.SetDefault("storage.database", cfg.Storage.Database)
	v.SetDefault("storage.article_collection", cfg.Storage.ArticleCollection)
	v.SetDefault("storage.group_collection", cfg.Storage.GroupCollection)
	v.SetDefault("storage.run_collection", cfg.Storage.RunCollection)

	v.SetDefault("schedule.spec", cfg.Schedule.Spec)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)
}
