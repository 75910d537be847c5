// Package main provides the entry point for the Eliksir analytics service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eliksir-bar/eliksir-analytics/internal/api"
	"github.com/eliksir-bar/eliksir-analytics/internal/app"
	"github.com/eliksir-bar/eliksir-analytics/internal/appinfo"
	"github.com/eliksir-bar/eliksir-analytics/internal/auth"
	"github.com/eliksir-bar/eliksir-analytics/internal/cache"
	"github.com/eliksir-bar/eliksir-analytics/internal/config"
	"github.com/eliksir-bar/eliksir-analytics/internal/ingest"
	"github.com/eliksir-bar/eliksir-analytics/internal/logging"
	"github.com/eliksir-bar/eliksir-analytics/internal/metrics"
	"github.com/eliksir-bar/eliksir-analytics/internal/singleinstance"
	"github.com/eliksir-bar/eliksir-analytics/internal/version"
)

const usage = `usage: eliksir [-config file] [-env file] <command> [flags]

commands:
  serve        run the HTTP API (default)
  migrate      create or upgrade the database schema
  useradd      create an account (-email, -name, -role)
  fix-polish   repair mis-decoded Polish text from stdin
  version      print the version
`

const metricsPath = "/metrics"

// environment carries what every command needs.
type environment struct {
	cfg    *config.Config
	logger zerolog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet(appinfo.DirName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configFile := fs.String("config", "", "YAML config file (default $"+config.EnvConfigFile+")")
	dotEnv := fs.String("env", "", "dotenv file loaded before environment variables (default .env)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cmd, rest := "serve", fs.Args()
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}

	switch cmd {
	case "version":
		fmt.Fprintln(stdout, version.String())
		return 0
	case "fix-polish":
		// Runs without configuration so it works on any machine.
		env := &environment{logger: zerolog.Nop(), stdin: stdin, stdout: stdout, stderr: stderr}
		if err := runFixPolish(env, rest); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}

	cfg, err := config.Load(config.LoadOptions{File: *configFile, DotEnv: *dotEnv})
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	logger, err := logging.New(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(stderr, "logging: %v\n", err)
		return 1
	}
	env := &environment{cfg: cfg, logger: logger, stdin: stdin, stdout: stdout, stderr: stderr}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		err = runServe(ctx, env)
	case "migrate":
		err = runMigrate(ctx, env, rest)
	case "useradd":
		err = runUserAdd(ctx, env, rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	if err != nil {
		logger.Error().Err(err).Str("command", cmd).Msg("command failed")
		return 1
	}
	return 0
}

// runServe runs the API until ctx is cancelled.
func runServe(ctx context.Context, env *environment) error {
	cfg, logger := env.cfg, env.logger

	// 1. Data directory and single instance lock
	dataDir, err := cfg.Storage.EnsureDir()
	if err != nil {
		return err
	}
	lockPath, err := cfg.Storage.LockFilePath()
	if err != nil {
		return err
	}
	release, ok, err := singleinstance.AcquireLock(lockPath)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another instance is already running on this data directory")
	}
	defer release()

	// 2. Signing key (persisted in the data directory when not configured)
	generated, err := cfg.EnsureJWTSecret(dataDir)
	if err != nil {
		return err
	}
	if generated {
		logger.Info().Str("dir", dataDir).Msg("generated new JWT signing key")
	}
	issuer, err := auth.NewIssuer([]byte(cfg.Auth.JWTSecret.Value()), appinfo.TokenIssuer, auth.WithTTL(cfg.Auth.TokenTTL))
	if err != nil {
		return err
	}

	// 3. Storage: opened once here, closed on shutdown
	db, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn().Err(err).Msg("close storage")
		}
	}()
	maintain(ctx, db, logger)

	// 4. First administrator
	authSvc := &app.AuthService{Users: db, Issuer: issuer}
	boot, err := app.EnsureAdmin(ctx, authSvc, app.AdminBootstrap{
		Email:    cfg.Auth.AdminEmail,
		Password: cfg.Auth.AdminPassword.Value(),
		DataDir:  dataDir,
	})
	if err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	if boot.Created {
		ev := logger.Info().Str("email", boot.User.Email)
		if boot.PasswordFile != "" {
			ev = ev.Str("password_file", boot.PasswordFile)
		}
		ev.Msg("administrator account created; delete the password file after saving it")
	}

	// 5. Metrics, stats cache, live feed hub
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	var statsCache cache.Cache = cache.NewMemory()
	if cfg.Cache.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword.Value(),
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using in-memory stats cache")
		} else {
			defer rc.Close()
			statsCache = rc
			logger.Info().Str("addr", cfg.Cache.RedisAddr).Msg("redis stats cache enabled")
		}
	}

	hub := api.NewHub(
		api.WithHubLogger(logger.With().Str("component", "hub").Logger()),
		api.WithHubSubscriberGauge(m.StreamSubscribers),
	)
	go hub.Run()

	// 6. Ingestion
	ingester := ingest.New(db,
		ingest.WithLogger(logger.With().Str("component", "ingest").Logger()),
		ingest.WithRecorder(m),
		ingest.WithOnInsert(hub.Publish),
	)

	trackLimiter := api.NewRateLimiter(api.RateLimiterConfig{
		Rate:            cfg.Track.Rate,
		Burst:           cfg.Track.Burst,
		CleanupInterval: 5 * time.Minute,
	})
	defer trackLimiter.Stop()

	// 7. HTTP server
	serverOpts := []api.ServerOption{
		api.WithLogger(logger),
		api.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.IdleTimeout),
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		api.WithTrustProxy(cfg.Server.TrustProxy),
		api.WithTracker(ingester),
		api.WithTrackLimiter(trackLimiter),
		api.WithTrackOptions(api.TrackOptions{
			UserAgentFromHeader: cfg.Track.UserAgentFromHeader,
			MaxBodyBytes:        cfg.Track.MaxBodyBytes,
		}),
		api.WithPageViewsUsecase(&app.PageViewsService{Store: db}),
		api.WithStatsUsecase(app.NewStatsService(db,
			app.WithStatsWindow(cfg.Stats.WindowDays),
			app.WithStatsCache(statsCache, cfg.Stats.CacheTTL),
			app.WithStatsLogger(logger),
		)),
		api.WithAuth(authSvc, issuer),
		api.WithConfigUsecase(app.ConfigService{Config: cfg, Version: version.String()}),
		api.WithHub(hub),
	}
	if m != nil {
		serverOpts = append(serverOpts, api.WithMetrics(metricsPath, m.Handler(), m))
	}

	health := app.HealthService{Version: version.String(), Store: db}
	server := api.NewServer(cfg.Server.Addr(), health, serverOpts...)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("version", version.String()).
			Msg("starting " + appinfo.AppName)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		hub.Stop()
		return fmt.Errorf("server: %w", err)
	}

	// Stop the hub first so open event streams return and Shutdown can finish.
	hub.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("server shutdown")
	}

	logger.Info().Msg("server stopped")
	return nil
}
