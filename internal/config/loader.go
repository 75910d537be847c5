package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables read outside the ELIKSIR_ section mapping.
const (
	EnvPrefix     = "ELIKSIR_"
	EnvConfigFile = "ELIKSIR_CONFIG"

	// Variables of the legacy deployment, used when the namespaced ones are unset.
	EnvLegacyDatabaseURL = "DATABASE_URL"
	EnvLegacyJWTSecret   = "JWT_SECRET"
)

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// File is a YAML config file. Empty means $ELIKSIR_CONFIG, and no file if that is unset too.
	File string
	// DotEnv is loaded into the process environment before env vars are read.
	// A missing file is ignored. Empty means ".env".
	DotEnv string
}

// Load builds a Config by layering defaults, an optional YAML file and env vars.
// Order of precedence (low -> high):
//  1. Default()
//  2. YAML file (opts.File or ELIKSIR_CONFIG)
//  3. env (prefix ELIKSIR_, after .env is loaded)
//  4. DATABASE_URL / JWT_SECRET, only for keys still unset
func Load(opts LoadOptions) (*Config, error) {
	dotenv := opts.DotEnv
	if dotenv == "" {
		dotenv = ".env"
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dotenv, err)
	}

	k := koanf.New(".")

	path := opts.File
	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := applyLegacyEnv(k, &cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps ELIKSIR_SERVER_ALLOWED_ORIGINS to server.allowed_origins:
// the first underscore after the prefix separates section from key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

func applyLegacyEnv(k *koanf.Koanf, cfg *Config) error {
	if url := os.Getenv(EnvLegacyDatabaseURL); url != "" &&
		!k.Exists("storage.driver") && !k.Exists("storage.path") && !k.Exists("storage.dsn") {
		switch {
		case strings.HasPrefix(url, "file:"):
			cfg.Storage.Driver = DriverSQLite
			cfg.Storage.Path = strings.TrimPrefix(url, "file:")
		case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
			cfg.Storage.Driver = DriverPostgres
			cfg.Storage.DSN = Secret(url)
		default:
			return fmt.Errorf("%s: unsupported scheme", EnvLegacyDatabaseURL)
		}
	}

	if secret := os.Getenv(EnvLegacyJWTSecret); secret != "" && !k.Exists("auth.jwt_secret") {
		cfg.Auth.JWTSecret = Secret(secret)
	}
	return nil
}
