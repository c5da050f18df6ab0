package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/yari4ek89/siverbotv2/internal/logger"
)

// Config is the complete siverbot configuration.
type Config struct {
	Debug    bool           `env:"APP_DEBUG" yaml:"debug"`
	Logging  logger.Config  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	API      APIConfig      `yaml:"api"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Telegram TelegramConfig `yaml:"telegram"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Defaults DefaultsConfig `yaml:"defaults"`
	Zones    []ZoneConfig   `yaml:"zones"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST"     yaml:"host"`
	Port            int           `env:"SERVER_PORT"     yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" yaml:"cors_origins"`
}

// Address returns the listen address in host:port form.
func (c *ServerConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// APIConfig configures the operator API.
type APIConfig struct {
	// JWTSecret enables HS256 bearer auth on /api/v1 when set.
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// DatabaseConfig selects the SQL store. sqlite3 is the default.
type DatabaseConfig struct {
	Driver          string        `env:"DB_DRIVER"   yaml:"driver"`
	DSN             string        `env:"DB_DSN"      yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_connections"`
	MaxIdleConns    int           `yaml:"max_idle_connections"`
	ConnMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
}

// DedupConfig configures the dedup engine.
type DedupConfig struct {
	// Backend is "database" or "redis".
	Backend             string  `env:"DEDUP_BACKEND"              yaml:"backend"`
	SimilarityThreshold float64 `env:"DEDUP_SIMILARITY_THRESHOLD" yaml:"similarity_threshold"`
	// CleanupSchedule is a cron spec for expiring records and fingerprints.
	CleanupSchedule string `env:"DEDUP_CLEANUP_SCHEDULE" yaml:"cleanup_schedule"`
	RedisKey        string `yaml:"redis_key"`
}

// TelegramConfig configures the Bot API client.
type TelegramConfig struct {
	BotToken           string        `env:"BOT_TOKEN"     yaml:"bot_token"`
	AdminID            int64         `env:"ADMIN_ID"      yaml:"admin_id"`
	APIURL             string        `env:"TELEGRAM_API_URL" yaml:"api_url"`
	PollTimeout        time.Duration `yaml:"poll_timeout"`
	RateLimitPerSecond int           `env:"TELEGRAM_RATE_LIMIT" yaml:"rate_limit_per_second"`
	// Updates disables the getUpdates loop when false (webhook-less deployments that only publish).
	Updates *bool `env:"TELEGRAM_UPDATES" yaml:"updates"`
}

// UpdatesEnabled reports whether the getUpdates loop should run.
func (c *TelegramConfig) UpdatesEnabled() bool {
	return c.Updates == nil || *c.Updates
}

// IngestConfig configures the Redis pub/sub report source.
type IngestConfig struct {
	RedisChannel string `env:"INGEST_REDIS_CHANNEL" yaml:"redis_channel"`
}

// AlertsConfig configures the zone status poller. Env names follow the
// historical deployment variables.
type AlertsConfig struct {
	URL             string `env:"ALERTS_URL"         yaml:"url"`
	Token           string `env:"ALERTS_TOKEN"       yaml:"token"`
	AuthHeader      string `env:"ALERTS_AUTH_HEADER" yaml:"auth_header"`
	AuthPrefix      string `env:"ALERTS_AUTH_PREFIX" yaml:"auth_prefix"`
	PollSeconds     int    `env:"POLL_SECONDS"       yaml:"poll_seconds"`
	ConfirmCount    int    `env:"CONFIRM_COUNT"      yaml:"confirm_count"`
	CooldownSeconds int    `env:"COOLDOWN_SECONDS"   yaml:"cooldown_seconds"`
	UIDOffset       int    `env:"UID_OFFSET"         yaml:"uid_offset"`
	ActiveSymbols   string `env:"ACTIVE_SYMBOLS"     yaml:"active_symbols"`
	Timezone        string `env:"ALERTS_TIMEZONE"    yaml:"timezone"`
	// ZonesFile is a JSON file of [{"uid":N,"name":"..."}] appended to Zones.
	ZonesFile string `env:"ALERTS_ZONES_FILE" yaml:"zones_file"`
}

// PollInterval returns the tick period.
func (c *AlertsConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// Cooldown returns the notification cooldown. A negative setting disables it.
func (c *AlertsConfig) Cooldown() time.Duration {
	if c.CooldownSeconds < 0 {
		return 0
	}
	return time.Duration(c.CooldownSeconds) * time.Second
}

// ZoneConfig is one monitored zone.
type ZoneConfig struct {
	ID   int    `json:"uid"  yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// DefaultsConfig seeds Settings the first time the store is opened.
type DefaultsConfig struct {
	Mode               string   `env:"DEFAULT_MODE"           yaml:"mode"`
	TargetChannel      string   `env:"TARGET_CHANNEL"         yaml:"target_channel"`
	AllowedRegions     []string `env:"ALLOWED_REGIONS"        yaml:"allowed_regions"`
	DedupWindowMinutes int      `env:"DEDUP_WINDOW_MIN"       yaml:"dedup_window_minutes"`
	AlertsEnabled      *bool    `env:"ALERTS_ENABLED"         yaml:"alerts_enabled"`
	AlertsChannel      string   `env:"ALERTS_CHANNEL"         yaml:"alerts_channel"`
	AlertsIncludeTime  bool     `env:"ALERTS_INCLUDE_TIME"    yaml:"alerts_include_time"`
	Sources            []string `env:"SOURCES"                yaml:"sources"`
}

// Default values.
const (
	defaultPort                = 8090
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 60 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
	defaultDriver              = "sqlite3"
	defaultDSN                 = "file:siverbot.db?_busy_timeout=5000&_foreign_keys=on"
	defaultMaxOpenConns        = 1
	defaultMaxIdleConns        = 1
	defaultConnMaxLifetime     = 30 * time.Minute
	defaultDedupBackend        = "database"
	defaultSimilarityThreshold = 0.85
	defaultCleanupSchedule     = "@every 5m"
	defaultDedupRedisKey       = "siverbot:dedup"
	defaultTelegramAPIURL      = "https://api.telegram.org"
	defaultPollTimeout         = 30 * time.Second
	defaultRateLimit           = 20
	defaultAuthHeader          = "Authorization"
	defaultAuthPrefix          = "Bearer"
	defaultPollSeconds         = 30
	defaultConfirmCount        = 2
	defaultCooldownSeconds     = 60
	defaultActiveSymbols       = "A"
	defaultTimezone            = "Europe/Kyiv"
	defaultMode                = "manual"
	defaultDedupWindowMinutes  = 60
)

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	c.Logging.SetDefaults()
	if c.Debug {
		c.Logging.Level = "debug"
		c.Logging.Development = true
	}

	s := &c.Server
	s.Port = orInt(s.Port, defaultPort)
	s.ReadTimeout = orDuration(s.ReadTimeout, defaultReadTimeout)
	s.WriteTimeout = orDuration(s.WriteTimeout, defaultWriteTimeout)
	s.IdleTimeout = orDuration(s.IdleTimeout, defaultIdleTimeout)
	s.ShutdownTimeout = orDuration(s.ShutdownTimeout, defaultShutdownTimeout)

	d := &c.Database
	d.Driver = orString(d.Driver, defaultDriver)
	if d.DSN == "" && d.Driver == defaultDriver {
		d.DSN = defaultDSN
	}
	if d.Driver == defaultDriver {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY.
		d.MaxOpenConns = orInt(d.MaxOpenConns, defaultMaxOpenConns)
		d.MaxIdleConns = orInt(d.MaxIdleConns, defaultMaxIdleConns)
	}
	d.ConnMaxLifetime = orDuration(d.ConnMaxLifetime, defaultConnMaxLifetime)

	dd := &c.Dedup
	dd.Backend = orString(dd.Backend, defaultDedupBackend)
	if dd.SimilarityThreshold == 0 {
		dd.SimilarityThreshold = defaultSimilarityThreshold
	}
	dd.CleanupSchedule = orString(dd.CleanupSchedule, defaultCleanupSchedule)
	dd.RedisKey = orString(dd.RedisKey, defaultDedupRedisKey)

	tg := &c.Telegram
	tg.APIURL = orString(tg.APIURL, defaultTelegramAPIURL)
	tg.PollTimeout = orDuration(tg.PollTimeout, defaultPollTimeout)
	tg.RateLimitPerSecond = orInt(tg.RateLimitPerSecond, defaultRateLimit)

	a := &c.Alerts
	a.AuthHeader = orString(a.AuthHeader, defaultAuthHeader)
	a.AuthPrefix = orString(a.AuthPrefix, defaultAuthPrefix)
	a.PollSeconds = orInt(a.PollSeconds, defaultPollSeconds)
	a.ConfirmCount = orInt(a.ConfirmCount, defaultConfirmCount)
	if a.CooldownSeconds == 0 {
		a.CooldownSeconds = defaultCooldownSeconds
	}
	a.ActiveSymbols = orString(a.ActiveSymbols, defaultActiveSymbols)
	a.Timezone = orString(a.Timezone, defaultTimezone)

	df := &c.Defaults
	df.Mode = orString(df.Mode, defaultMode)
	if len(df.AllowedRegions) == 0 {
		df.AllowedRegions = []string{"chernihiv", "sumy"}
	}
	df.DedupWindowMinutes = orInt(df.DedupWindowMinutes, defaultDedupWindowMinutes)
	if df.AlertsEnabled == nil {
		enabled := true
		df.AlertsEnabled = &enabled
	}
}

// LoadZonesFile appends the zones listed in Alerts.ZonesFile.
func (c *Config) LoadZonesFile() error {
	if c.Alerts.ZonesFile == "" {
		return nil
	}

	data, err := os.ReadFile(c.Alerts.ZonesFile)
	if err != nil {
		return fmt.Errorf("read zones file: %w", err)
	}

	var zones []ZoneConfig
	if err := json.Unmarshal(data, &zones); err != nil {
		return fmt.Errorf("parse zones file: %w", err)
	}

	c.Zones = append(c.Zones, zones...)
	return nil
}

// LoadService loads, defaults and validates the service configuration.
func LoadService(path string) (*Config, error) {
	cfg, err := Load[Config](path)
	if err != nil {
		return nil, err
	}

	if err := cfg.LoadZonesFile(); err != nil {
		return nil, err
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}
