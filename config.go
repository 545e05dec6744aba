package nocloud

import (
	"strings"
	"time"

	"github.com/gobeaver/beaver-kit/config"
)

type Config struct {
	// Worker pool size per scope
	Concurrency int `env:"NOCLOUD_CONCURRENCY,default:4"`

	// Retries of transient backend errors, and the first backoff delay in ms
	MaxRetries     int `env:"NOCLOUD_MAX_RETRIES,default:3"`
	RetryBaseDelay int `env:"NOCLOUD_RETRY_BASE_DELAY,default:200"`

	// panic, fatal, error, warn, info, debug, trace
	LogLevel string `env:"NOCLOUD_LOG_LEVEL,default:warn"`

	// Extra ignore patterns (comma-separated globs)
	Ignore string `env:"NOCLOUD_IGNORE"`
}

// GetConfig returns config loaded from environment
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BaseDelay returns the first retry backoff.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// IgnorePatterns splits the Ignore list.
func (c *Config) IgnorePatterns() []string {
	var patterns []string
	for _, p := range strings.Split(c.Ignore, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}
