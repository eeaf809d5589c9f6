package featuregate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the gate configuration: per-feature daily free allowances
// and the rewarded-ad view timeout.
type Config struct {
	Limits           map[string]int `yaml:"limits"`
	AdTimeoutSeconds int            `yaml:"ad_timeout_seconds"`
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("featuregate: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("featuregate: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for unknown feature keys and bad values.
func (c Config) Validate() error {
	for key, limit := range c.Limits {
		if _, ok := ParseFeatureKey(key); !ok {
			return fmt.Errorf("featuregate: config: unknown feature %q", key)
		}
		if limit < 0 {
			return fmt.Errorf("featuregate: config: feature %s: negative limit %d", key, limit)
		}
	}

	if c.AdTimeoutSeconds < 0 {
		return fmt.Errorf("featuregate: config: negative ad_timeout_seconds %d", c.AdTimeoutSeconds)
	}

	return nil
}

// FeatureLimits returns the configured limits merged over DefaultLimits.
// Keys that fail ParseFeatureKey were already rejected by Validate.
func (c Config) FeatureLimits() map[FeatureKey]int {
	limits := make(map[FeatureKey]int, len(DefaultLimits))
	for f, n := range DefaultLimits {
		limits[f] = n
	}
	for key, n := range c.Limits {
		if f, ok := ParseFeatureKey(key); ok {
			limits[f] = n
		}
	}
	return limits
}

// AdTimeout returns the configured ad view timeout, or zero when unset.
func (c Config) AdTimeout() time.Duration {
	return time.Duration(c.AdTimeoutSeconds) * time.Second
}
