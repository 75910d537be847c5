package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eliksir-bar/eliksir-analytics/internal/auth"
	"github.com/eliksir-bar/eliksir-analytics/internal/store"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid email or password")

// AuthUsecase defines login and account operations.
type AuthUsecase interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Me(ctx context.Context, userID int64) (*auth.User, error)
	StreamToken(ctx context.Context, userID int64) (*TokenResult, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (*auth.User, error)
}

// UserStore defines store operations needed by AuthService.
type UserStore interface {
	CreateUser(ctx context.Context, u *auth.User) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*auth.User, error)
	GetUserByID(ctx context.Context, id int64) (*auth.User, error)
	CountUsers(ctx context.Context) (int64, error)
	TouchLogin(ctx context.Context, id int64) error
}

// TokenResult is a signed token and its expiry.
type TokenResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	TokenResult
	User *auth.User `json:"user"`
}

// CreateUserRequest describes a new account.
type CreateUserRequest struct {
	Email    string
	Name     string
	Role     auth.Role
	Password string
}

// AuthService implements AuthUsecase.
type AuthService struct {
	Users  UserStore
	Issuer *auth.Issuer
}

// Login verifies credentials and issues an access token.
// Unknown emails cost the same bcrypt work as wrong passwords.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.Users.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrUserNotFound) {
		auth.CheckPassword("", password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.Issuer.Issue(u)
	if err != nil {
		return nil, err
	}
	if err := s.Users.TouchLogin(ctx, u.ID); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	return &LoginResult{
		TokenResult: TokenResult{Token: token, ExpiresAt: exp},
		User:        u,
	}, nil
}

// Me returns the account behind an authenticated request.
func (s *AuthService) Me(ctx context.Context, userID int64) (*auth.User, error) {
	return s.Users.GetUserByID(ctx, userID)
}

// StreamToken issues a short-lived token for the live feed.
func (s *AuthService) StreamToken(ctx context.Context, userID int64) (*TokenResult, error) {
	u, err := s.Users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	token, exp, err := s.Issuer.IssueStreamToken(u)
	if err != nil {
		return nil, err
	}
	return &TokenResult{Token: token, ExpiresAt: exp}, nil
}

// CreateUser hashes the password and stores a new account.
func (s *AuthService) CreateUser(ctx context.Context, req CreateUserRequest) (*auth.User, error) {
	email := store.NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email %q", req.Email)
	}
	role := req.Role
	if role == "" {
		role = auth.RoleCustomer
	}
	if !role.Valid() {
		return nil, fmt.Errorf("unknown role %q", req.Role)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u := &auth.User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		Role:         role,
		PasswordHash: hash,
	}
	if _, err := s.Users.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
