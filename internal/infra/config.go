package infra

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application settings. Sensitive or deployment-specific
// values can be overridden through environment variables after loading.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	RPC struct {
		HTTPURL string `yaml:"http_url"`
		WSURL   string `yaml:"ws_url"`
	} `yaml:"rpc"`

	Market struct {
		DefaultName     string `yaml:"default_name"`     // e.g. "RAY/USDT"
		FallbackAddress string `yaml:"fallback_address"` // redirect target for deprecated selections
	} `yaml:"market"`

	// Refresh tiers for the keyed cache, in milliseconds.
	// very_slow covers data that essentially never changes (market catalog,
	// market handles); slow covers orderbook/fills; fast covers open orders
	// while an order is pending.
	Refresh struct {
		VerySlowMS int `yaml:"very_slow_ms"`
		SlowMS     int `yaml:"slow_ms"`
		FastMS     int `yaml:"fast_ms"`
	} `yaml:"refresh"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies env overrides
// and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.RPC.HTTPURL, "http://") && !strings.HasPrefix(c.RPC.HTTPURL, "https://") {
		return fmt.Errorf("invalid RPC HTTP URL: %s", c.RPC.HTTPURL)
	}
	if !strings.HasPrefix(c.RPC.WSURL, "ws://") && !strings.HasPrefix(c.RPC.WSURL, "wss://") {
		return fmt.Errorf("invalid RPC WS URL: %s", c.RPC.WSURL)
	}
	if c.Refresh.SlowMS <= 0 || c.Refresh.FastMS <= 0 || c.Refresh.VerySlowMS <= 0 {
		return fmt.Errorf("refresh intervals must be positive")
	}
	if c.Refresh.FastMS > c.Refresh.SlowMS || c.Refresh.SlowMS > c.Refresh.VerySlowMS {
		return fmt.Errorf("refresh tiers must be ordered fast <= slow <= very_slow")
	}
	return nil
}

// VerySlowRefresh returns the near-static tier as a duration.
func (c *Config) VerySlowRefresh() time.Duration {
	return time.Duration(c.Refresh.VerySlowMS) * time.Millisecond
}

// SlowRefresh returns the slow tier as a duration.
func (c *Config) SlowRefresh() time.Duration {
	return time.Duration(c.Refresh.SlowMS) * time.Millisecond
}

// FastRefresh returns the fast tier as a duration.
func (c *Config) FastRefresh() time.Duration {
	return time.Duration(c.Refresh.FastMS) * time.Millisecond
}

// overrideWithEnv overwrites settings when environment variables exist.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("DEX_RPC_URL"); url != "" {
		cfg.RPC.HTTPURL = url
	}
	if url := os.Getenv("DEX_WS_URL"); url != "" {
		cfg.RPC.WSURL = url
	}
	if level := os.Getenv("DEX_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
