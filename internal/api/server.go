// Package api provides HTTP API server functionality.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/eliksir-bar/eliksir-analytics/internal/app"
	"github.com/eliksir-bar/eliksir-analytics/internal/auth"
	"github.com/eliksir-bar/eliksir-analytics/internal/ingest"
)

// Tracker records tracking payloads. Implemented by *ingest.Ingester.
type Tracker interface {
	Track(ctx context.Context, p ingest.Payload) (ingest.Ack, error)
}

// TokenValidator verifies bearer and stream tokens. Implemented by *auth.Issuer.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
	ValidateStreamToken(token string) (*auth.Claims, error)
}

// AuthFailureObserver counts rejected credentials. Implemented by internal/metrics.
type AuthFailureObserver interface {
	AuthFailure()
}

// TrackOptions tune the tracking endpoint.
type TrackOptions struct {
	// UserAgentFromHeader fills a missing userAgent from the request header.
	UserAgentFromHeader bool
	// MaxBodyBytes caps the request body; larger bodies get 413.
	MaxBodyBytes int64
}

const defaultMaxBodyBytes = 16 << 10

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	router     chi.Router

	// Use case dependencies
	health    app.HealthUsecase
	tracker   Tracker
	pageViews app.PageViewsUsecase
	stats     app.StatsUsecase
	auth      app.AuthUsecase
	config    app.ConfigUsecase
	seo       app.SEOUsecase
	tokens    TokenValidator

	// Live feed
	hub *Hub

	trackLimiter *RateLimiter
	authLimiter  *AuthFailureLimiter
	trackOpts    TrackOptions
	cors         CORSConfig
	trustProxy   bool

	logger      zerolog.Logger
	httpObs     HTTPObserver
	authObs     AuthFailureObserver
	metricsPath string
	metrics     http.Handler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithTracker enables the tracking endpoints.
func WithTracker(t Tracker) ServerOption {
	return func(s *Server) { s.tracker = t }
}

// WithTrackOptions sets tracking endpoint options.
func WithTrackOptions(o TrackOptions) ServerOption {
	return func(s *Server) { s.trackOpts = o }
}

// WithTrackLimiter rate limits the tracking endpoints per client IP.
func WithTrackLimiter(rl *RateLimiter) ServerOption {
	return func(s *Server) { s.trackLimiter = rl }
}

// WithPageViewsUsecase sets the page view query use case.
func WithPageViewsUsecase(uc app.PageViewsUsecase) ServerOption {
	return func(s *Server) { s.pageViews = uc }
}

// WithStatsUsecase sets the stats use case.
func WithStatsUsecase(uc app.StatsUsecase) ServerOption {
	return func(s *Server) { s.stats = uc }
}

// WithConfigUsecase sets the config use case.
func WithConfigUsecase(uc app.ConfigUsecase) ServerOption {
	return func(s *Server) { s.config = uc }
}

// WithSEOUsecase overrides the page metadata lookup.
func WithSEOUsecase(uc app.SEOUsecase) ServerOption {
	return func(s *Server) { s.seo = uc }
}

// WithAuth enables login and bearer-token protected routes.
func WithAuth(uc app.AuthUsecase, tokens TokenValidator) ServerOption {
	return func(s *Server) {
		s.auth = uc
		s.tokens = tokens
	}
}

// WithAuthFailureLimiter overrides the login lockout policy.
func WithAuthFailureLimiter(afl *AuthFailureLimiter) ServerOption {
	return func(s *Server) { s.authLimiter = afl }
}

// WithHub sets the live feed hub.
func WithHub(hub *Hub) ServerOption {
	return func(s *Server) { s.hub = hub }
}

// WithAllowedOrigins sets the CORS allowlist.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.cors.AllowedOrigins = origins }
}

// WithTrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
func WithTrustProxy(trust bool) ServerOption {
	return func(s *Server) { s.trustProxy = trust }
}

// WithLogger sets the logger for access logs and failures.
func WithLogger(logger zerolog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics exposes h at path and reports request metrics to obs.
// obs may also implement AuthFailureObserver.
func WithMetrics(path string, h http.Handler, obs HTTPObserver) ServerOption {
	return func(s *Server) {
		s.metricsPath = path
		s.metrics = h
		s.httpObs = obs
		if a, ok := obs.(AuthFailureObserver); ok {
			s.authObs = a
		}
	}
}

// WithTimeouts overrides the read and idle timeouts.
func WithTimeouts(read, idle time.Duration) ServerOption {
	return func(s *Server) {
		if read > 0 {
			s.httpServer.ReadTimeout = read
		}
		if idle > 0 {
			s.httpServer.IdleTimeout = idle
		}
	}
}

// NewServer creates a new API server with the given dependencies.
func NewServer(addr string, health app.HealthUsecase, opts ...ServerOption) *Server {
	s := &Server{
		httpServer: &http.Server{
			Addr:              addr,
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      0, // Disable for SSE (long-lived connections)
			IdleTimeout:       60 * time.Second,
		},
		health:    health,
		trackOpts: TrackOptions{UserAgentFromHeader: true, MaxBodyBytes: defaultMaxBodyBytes},
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.authLimiter == nil {
		s.authLimiter = NewAuthFailureLimiter(DefaultAuthFailureLimiterConfig())
	}
	if s.seo == nil {
		s.seo = app.SEOService{}
	}
	if s.trackOpts.MaxBodyBytes <= 0 {
		s.trackOpts.MaxBodyBytes = defaultMaxBodyBytes
	}
	s.router = s.routes()
	s.httpServer.Handler = s.router
	return s
}

// routes builds the router.
func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(accessLogMiddleware(s.logger, s.httpObs))
	r.Use(middleware.Recoverer)
	r.Use(securityHeadersMiddleware)
	r.Use(corsMiddleware(s.cors))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	if s.metrics != nil && s.metricsPath != "" {
		r.Method(http.MethodGet, s.metricsPath, s.metrics)
	}

	// Paths the site's existing front-end calls.
	r.Route("/api/seo", func(r chi.Router) {
		if s.tracker != nil {
			r.With(s.trackMiddleware()...).Post("/track", s.handleTrack)
		}
		r.Get("/meta/{page}", s.handleSEOMeta)
		if s.stats != nil && s.auth != nil && s.tokens != nil {
			r.With(s.requireAuth, requireRole(auth.RoleAdmin, auth.RoleEditor)).
				Get("/stats", s.handleStats)
		}
	})
	if s.auth != nil && s.tokens != nil {
		r.Route("/api/auth", s.authRoutes)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		if s.tracker != nil {
			r.With(s.trackMiddleware()...).Post("/track", s.handleTrack)
		}

		if s.auth == nil || s.tokens == nil {
			return
		}

		r.Route("/auth", s.authRoutes)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(auth.RoleAdmin, auth.RoleEditor))
				if s.pageViews != nil {
					r.Get("/pageviews", s.handlePageViews)
					r.Get("/pageviews/count", s.handlePageViewsCount)
					r.Get("/pageviews/{id}", s.handlePageView)
				}
				if s.stats != nil {
					r.Get("/stats", s.handleStats)
				}
				r.Post("/tools/fix-polish", s.handleFixPolish)
			})

			if s.config != nil {
				r.With(requireRole(auth.RoleAdmin)).Get("/config", s.handleConfig)
			}
		})

		if s.hub != nil && s.pageViews != nil {
			r.With(s.requireStreamAuth, requireRole(auth.RoleAdmin, auth.RoleEditor)).
				Get("/stream", s.handleStream)
		}
	})

	return r
}

// authRoutes registers the session endpoints under /api/v1/auth and /api/auth.
func (s *Server) authRoutes(r chi.Router) {
	r.With(s.authLimiter.Middleware).Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Get("/me", s.handleMe)
		r.Post("/stream-token", s.handleStreamToken)
	})
}

func (s *Server) trackMiddleware() []func(http.Handler) http.Handler {
	if s.trackLimiter == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{s.trackLimiter.Middleware}
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	result, err := s.health.Handle(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error", err)
		return
	}
	status := http.StatusOK
	if result.Status != app.StatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, result)
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	return s.httpServer.Serve(l)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
