package config

import (
	"errors"
	"fmt"
	"time"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the service configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server" json:"server"`
	Storage StorageConfig `koanf:"storage" json:"storage"`
	Auth    AuthConfig    `koanf:"auth" json:"auth"`
	Track   TrackConfig   `koanf:"track" json:"track"`
	Stats   StatsConfig   `koanf:"stats" json:"stats"`
	Cache   CacheConfig   `koanf:"cache" json:"cache"`
	Log     LogConfig     `koanf:"log" json:"log"`
	Metrics MetricsConfig `koanf:"metrics" json:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host" json:"host"`
	Port            int           `koanf:"port" json:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout" json:"read_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" json:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout"`
	AllowedOrigins  []string      `koanf:"allowed_origins" json:"allowed_origins"`
	// TrustProxy honours X-Forwarded-For / X-Real-IP for client addresses.
	TrustProxy bool `koanf:"trust_proxy" json:"trust_proxy"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects and locates the page view store.
type StorageConfig struct {
	Driver  string `koanf:"driver" json:"driver"`
	DataDir string `koanf:"data_dir" json:"data_dir"`
	// Path is the SQLite file; empty means <data dir>/eliksir.sqlite.
	Path string `koanf:"path" json:"path"`
	DSN  Secret `koanf:"dsn" json:"dsn"`
}

// AuthConfig configures dashboard authentication.
type AuthConfig struct {
	JWTSecret     Secret        `koanf:"jwt_secret" json:"jwt_secret"`
	TokenTTL      time.Duration `koanf:"token_ttl" json:"token_ttl"`
	AdminEmail    string        `koanf:"admin_email" json:"admin_email"`
	AdminPassword Secret        `koanf:"admin_password" json:"admin_password"`
}

// TrackConfig configures the public ingestion endpoint.
type TrackConfig struct {
	// Rate is the sustained number of beacons per second allowed per client IP.
	Rate                float64 `koanf:"rate" json:"rate"`
	Burst               int     `koanf:"burst" json:"burst"`
	UserAgentFromHeader bool    `koanf:"user_agent_from_header" json:"user_agent_from_header"`
	MaxBodyBytes        int64   `koanf:"max_body_bytes" json:"max_body_bytes"`
}

// StatsConfig configures the dashboard summary.
type StatsConfig struct {
	WindowDays int           `koanf:"window_days" json:"window_days"`
	CacheTTL   time.Duration `koanf:"cache_ttl" json:"cache_ttl"`
}

// CacheConfig selects the stats cache. Empty RedisAddr means in-process.
type CacheConfig struct {
	RedisAddr     string `koanf:"redis_addr" json:"redis_addr"`
	RedisPassword Secret `koanf:"redis_password" json:"redis_password"`
	RedisDB       int    `koanf:"redis_db" json:"redis_db"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level" json:"level"`
	Format string `koanf:"format" json:"format"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{},
		},
		Storage: StorageConfig{
			Driver: DriverSQLite,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Track: TrackConfig{
			Rate:                2,
			Burst:               20,
			UserAgentFromHeader: true,
			MaxBodyBytes:        16 << 10,
		},
		Stats: StatsConfig{
			WindowDays: 30,
			CacheTTL:   time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Storage.DSN.IsEmpty() {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Track.Rate <= 0 || c.Track.Burst <= 0 {
		return errors.New("track.rate and track.burst must be positive")
	}
	if c.Track.MaxBodyBytes <= 0 {
		return errors.New("track.max_body_bytes must be positive")
	}
	if c.Stats.WindowDays <= 0 {
		return errors.New("stats.window_days must be positive")
	}
	if c.Stats.CacheTTL < 0 {
		return errors.New("stats.cache_ttl must not be negative")
	}
	return nil
}
