package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/eliksir-bar/eliksir-analytics/internal/app"
	"github.com/eliksir-bar/eliksir-analytics/internal/auth"
)

const maxLoginBodyBytes = 4 << 10

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	if s.authObs != nil {
		s.authObs.AuthFailure()
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="eliksir"`)
	writeError(w, r, http.StatusUnauthorized, msg, nil)
}

func tokenMessage(err error) string {
	if errors.Is(err, auth.ErrTokenExpired) {
		return "token expired"
	}
	return "invalid token"
}

// requireAuth validates the bearer access token and stores its claims in the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.unauthorized(w, r, "missing bearer token")
			return
		}
		claims, err := s.tokens.Validate(token)
		if err != nil {
			s.unauthorized(w, r, tokenMessage(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

// requireStreamAuth accepts either a bearer access token or a stream token
// in the ?token= query parameter, since EventSource cannot set headers.
func (s *Server) requireStreamAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			claims *auth.Claims
			err    error
		)
		if token, ok := bearerToken(r); ok {
			claims, err = s.tokens.Validate(token)
		} else if token := r.URL.Query().Get("token"); token != "" {
			claims, err = s.tokens.ValidateStreamToken(token)
		} else {
			s.unauthorized(w, r, "missing token")
			return
		}
		if err != nil {
			s.unauthorized(w, r, tokenMessage(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	})
}

// requireRole rejects authenticated callers whose role is not listed.
// It must run after requireAuth or requireStreamAuth.
func requireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.ClaimsFromContext(r.Context())
			if !ok {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", nil)
				return
			}
			if !claims.Role.In(roles...) {
				writeError(w, r, http.StatusForbidden, "forbidden", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// handleLogin handles POST /api/v1/auth/login.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBodyBytes)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required", nil)
		return
	}

	ip := extractIP(r)
	res, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if errors.Is(err, app.ErrInvalidCredentials) {
		remaining := s.authLimiter.RecordFailure(ip)
		if s.authObs != nil {
			s.authObs.AuthFailure()
		}
		if remaining < 0 {
			w.Header().Set("Retry-After", strconv.Itoa(s.authLimiter.LockoutSecondsRemaining(ip)))
			writeError(w, r, http.StatusTooManyRequests, "too many failed login attempts", nil)
			return
		}
		writeError(w, r, http.StatusUnauthorized, "invalid email or password", nil)
		return
	}
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error", err)
		return
	}

	s.authLimiter.RecordSuccess(ip)
	writeJSON(w, r, http.StatusOK, res)
}

// handleMe handles GET /api/v1/auth/me.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	u, err := s.auth.Me(r.Context(), claims.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, u)
}

// handleStreamToken handles POST /api/v1/auth/stream-token.
func (s *Server) handleStreamToken(w http.ResponseWriter, r *http.Request) {
	claims, _ := auth.ClaimsFromContext(r.Context())
	if !claims.Role.In(auth.RoleAdmin, auth.RoleEditor) {
		writeError(w, r, http.StatusForbidden, "forbidden", nil)
		return
	}
	res, err := s.auth.StreamToken(r.Context(), claims.UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, res)
}

// handleLogout handles POST /api/v1/auth/logout. Tokens are stateless, so
// the client discards its token and there is nothing to revoke.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
