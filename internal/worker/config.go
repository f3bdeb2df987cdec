package worker

import (
	"fmt"
	"time"
)

// Config holds the configuration for the session janitor.
type Config struct {
	// SessionTTL is how long a session may sit untouched before it is
	// deleted along with its stored files. Zero disables expiry.
	// Default: 1 hour
	SessionTTL time.Duration

	// PollInterval is how often the janitor looks for idle sessions.
	// Default: 1 minute
	PollInterval time.Duration

	// ShutdownTimeout is how long Stop waits for a running sweep to finish.
	// Default: 30 seconds
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		SessionTTL:      time.Hour,
		PollInterval:    time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Enabled reports whether sessions expire at all.
func (c Config) Enabled() bool {
	return c.SessionTTL > 0
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.SessionTTL < 0 {
		return fmt.Errorf("session TTL must not be negative, got %v", c.SessionTTL)
	}
	if c.Enabled() && c.SessionTTL < time.Minute {
		return fmt.Errorf("session TTL must be at least 1 minute, got %v", c.SessionTTL)
	}
	if c.PollInterval < 1*time.Second {
		return fmt.Errorf("poll interval must be at least 1 second, got %v", c.PollInterval)
	}
	if c.ShutdownTimeout < 1*time.Second {
		return fmt.Errorf("shutdown timeout must be at least 1 second, got %v", c.ShutdownTimeout)
	}
	return nil
}
