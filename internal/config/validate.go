package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	if c.Gemini.APIKey == "" {
		errs = append(errs, "GEMINI_API_KEY is required")
	}

	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Quota policy
	if c.Quota.MaxOperations < 1 {
		errs = append(errs, fmt.Sprintf("QUOTA_MAX_OPERATIONS must be at least 1, got %d", c.Quota.MaxOperations))
	}
	if c.Quota.Period <= 0 {
		errs = append(errs, fmt.Sprintf("QUOTA_PERIOD must be positive, got %s", c.Quota.Period))
	}
	if c.Quota.PendingTTL < 0 {
		errs = append(errs, fmt.Sprintf("QUOTA_PENDING_TTL must not be negative, got %s", c.Quota.PendingTTL))
	}
	if c.Quota.PendingTTL > 0 && c.Quota.SweepInterval <= 0 {
		errs = append(errs, fmt.Sprintf("QUOTA_SWEEP_INTERVAL must be positive when QUOTA_PENDING_TTL is set, got %s", c.Quota.SweepInterval))
	}

	if c.RateLimit.MaxRequests < 1 {
		errs = append(errs, fmt.Sprintf("RATELIMIT_MAX_REQUESTS must be at least 1, got %d", c.RateLimit.MaxRequests))
	}
	if c.RateLimit.WindowSec < 1 {
		errs = append(errs, fmt.Sprintf("RATELIMIT_WINDOW_SEC must be at least 1, got %d", c.RateLimit.WindowSec))
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
