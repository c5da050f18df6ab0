package config

import (
	"fmt"
	"net/url"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

const maxPort = 65535

// Validate checks the whole configuration. SetDefaults must run first.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return &ValidationError{Field: "logging.level", Message: "must be one of: debug, info, warn, error, fatal"}
	}

	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return &ValidationError{Field: "server.port", Message: "must be between 1 and 65535"}
	}

	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return &ValidationError{Field: "database.driver", Message: "must be sqlite3 or postgres"}
	}
	if c.Database.DSN == "" {
		return &ValidationError{Field: "database.dsn", Message: "is required"}
	}

	switch c.Dedup.Backend {
	case "database":
	case "redis":
		if c.Redis.Address == "" {
			return &ValidationError{Field: "redis.address", Message: "is required for the redis dedup backend"}
		}
	default:
		return &ValidationError{Field: "dedup.backend", Message: "must be database or redis"}
	}
	if c.Dedup.SimilarityThreshold <= 0 || c.Dedup.SimilarityThreshold > 1 {
		return &ValidationError{Field: "dedup.similarity_threshold", Message: "must be in (0, 1]"}
	}

	if c.Ingest.RedisChannel != "" && c.Redis.Address == "" {
		return &ValidationError{Field: "redis.address", Message: "is required when ingest.redis_channel is set"}
	}

	if err := c.Alerts.validate(); err != nil {
		return err
	}

	switch c.Defaults.Mode {
	case "manual", "auto":
	default:
		return &ValidationError{Field: "defaults.mode", Message: "must be manual or auto"}
	}
	if c.Defaults.DedupWindowMinutes < 1 {
		return &ValidationError{Field: "defaults.dedup_window_minutes", Message: "must be positive"}
	}

	seen := make(map[int]bool, len(c.Zones))
	for _, z := range c.Zones {
		if z.ID < 0 || z.Name == "" {
			return &ValidationError{Field: "zones", Message: fmt.Sprintf("zone %d needs a non-negative id and a name", z.ID)}
		}
		if seen[z.ID] {
			return &ValidationError{Field: "zones", Message: fmt.Sprintf("duplicate zone id %d", z.ID)}
		}
		seen[z.ID] = true
	}

	return nil
}

func (c *AlertsConfig) validate() error {
	if c.URL != "" {
		if u, err := url.Parse(c.URL); err != nil || u.Scheme == "" || u.Host == "" {
			return &ValidationError{Field: "alerts.url", Message: "must be an absolute URL"}
		}
	}
	if c.ConfirmCount < 1 {
		return &ValidationError{Field: "alerts.confirm_count", Message: "must be at least 1"}
	}
	if c.PollSeconds < 1 {
		return &ValidationError{Field: "alerts.poll_seconds", Message: "must be at least 1"}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return &ValidationError{Field: "alerts.timezone", Message: err.Error()}
	}
	return nil
}

// RequireTelegram is checked by commands that talk to the Bot API.
func (c *Config) RequireTelegram() error {
	if c.Telegram.BotToken == "" {
		return &ValidationError{Field: "telegram.bot_token", Message: "is required"}
	}
	return nil
}
