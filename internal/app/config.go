package app

import (
	"context"

	"github.com/eliksir-bar/eliksir-analytics/internal/config"
)

// ConfigUsecase defines the configuration view use case.
type ConfigUsecase interface {
	// GetConfig returns the effective configuration with secrets masked.
	GetConfig(ctx context.Context) ConfigResponse
}

// ConfigResponse is the effective configuration. Secret fields serialise as
// "[REDACTED]" when set.
type ConfigResponse struct {
	config.Config
	Version             string `json:"version"`
	JWTSecretConfigured bool   `json:"jwt_secret_configured"`
	RedisConfigured     bool   `json:"redis_configured"`
}

// ConfigService implements ConfigUsecase.
type ConfigService struct {
	Config  *config.Config
	Version string
}

// GetConfig returns the current configuration.
func (s ConfigService) GetConfig(ctx context.Context) ConfigResponse {
	cfg := *s.Config
	cfg.Server.AllowedOrigins = append([]string(nil), s.Config.Server.AllowedOrigins...)
	return ConfigResponse{
		Config:              cfg,
		Version:             s.Version,
		JWTSecretConfigured: !cfg.Auth.JWTSecret.IsEmpty(),
		RedisConfigured:     cfg.Cache.RedisAddr != "",
	}
}
