package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.Compliance.UserAgent == "" {
		return fmt.Errorf("compliance.user_agent must not be empty")
	}
	if cfg.Compliance.MinInterval < 0 {
		return fmt.Errorf("compliance.min_interval must be >= 0")
	}
	if cfg.Compliance.PolicyTTL <= 0 {
		return fmt.Errorf("compliance.policy_ttl must be > 0")
	}

	if cfg.Dedup.SimilarityThreshold <= 0 || cfg.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("dedup.similarity_threshold must be in (0, 1], got %v", cfg.Dedup.SimilarityThreshold)
	}
	if cfg.Dedup.WindowSize < 1 {
		return fmt.Errorf("dedup.window_size must be >= 1, got %d", cfg.Dedup.WindowSize)
	}

	if cfg.Storage.Type != "mongo" && cfg.Storage.Type != "memory" {
		return fmt.Errorf("storage.type must be 'mongo' or 'memory', got %q", cfg.Storage.Type)
	}
	if cfg.Storage.Type == "mongo" && cfg.Storage.URI == "" {
		return fmt.Errorf("storage.uri must be set for mongo storage")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if len(cfg.Outlets) == 0 {
		return fmt.Errorf("at least one outlet must be configured")
	}
	seen := make(map[string]bool, len(cfg.Outlets))
	for _, o := range cfg.Outlets {
		if err := validateOutlet(o); err != nil {
			return err
		}
		if seen[o.Name] {
			return fmt.Errorf("duplicate outlet name %q", o.Name)
		}
		seen[o.Name] = true
	}

	return nil
}

func validateOutlet(o OutletConfig) error {
	if o.Name == "" {
		return fmt.Errorf("outlet name must not be empty")
	}
	switch o.Kind {
	case "feed":
		if len(o.Feeds) == 0 {
			return fmt.Errorf("outlet %q: feed outlets need at least one feed URL", o.Name)
		}
		for _, f := range o.Feeds {
			if err := ValidateURL(f); err != nil {
				return fmt.Errorf("outlet %q: %w", o.Name, err)
			}
		}
	case "listing":
		if err := ValidateURL(o.Listing.URL); err != nil {
			return fmt.Errorf("outlet %q: %w", o.Name, err)
		}
		if o.Listing.LinkSelector == "" {
			return fmt.Errorf("outlet %q: listing.link_selector must not be empty", o.Name)
		}
		if o.Listing.SelectorType != "css" && o.Listing.SelectorType != "xpath" {
			return fmt.Errorf("outlet %q: listing.selector_type must be 'css' or 'xpath', got %q", o.Name, o.Listing.SelectorType)
		}
	default:
		return fmt.Errorf("outlet %q: kind must be 'feed' or 'listing', got %q", o.Name, o.Kind)
	}
	if o.MinInterval < 0 {
		return fmt.Errorf("outlet %q: min_interval must be >= 0", o.Name)
	}
	return nil
}

// ValidateURL checks if a URL string is valid for fetching.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
