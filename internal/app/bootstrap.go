package app

import (
	"context"
	"fmt"

	"github.com/eliksir-bar/eliksir-analytics/internal/auth"
	"github.com/eliksir-bar/eliksir-analytics/internal/config"
)

const generatedPasswordLength = 24

// AdminBootstrap describes the first administrator account.
type AdminBootstrap struct {
	Email string
	// Password is used as-is when set; otherwise one is generated and
	// written to DataDir for one-time pickup.
	Password string
	DataDir  string
}

// BootstrapResult reports what EnsureAdmin did.
type BootstrapResult struct {
	Created      bool
	User         *auth.User
	PasswordFile string
}

// EnsureAdmin creates an admin account when none exists yet.
// It does nothing when b.Email is empty or any user already exists.
func EnsureAdmin(ctx context.Context, svc *AuthService, b AdminBootstrap) (BootstrapResult, error) {
	if b.Email == "" {
		return BootstrapResult{}, nil
	}

	n, err := svc.Users.CountUsers(ctx)
	if err != nil {
		return BootstrapResult{}, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return BootstrapResult{}, nil
	}

	password := b.Password
	generated := password == ""
	if generated {
		if password, err = auth.GeneratePassword(generatedPasswordLength); err != nil {
			return BootstrapResult{}, err
		}
	}

	u, err := svc.CreateUser(ctx, CreateUserRequest{
		Email:    b.Email,
		Name:     "Administrator",
		Role:     auth.RoleAdmin,
		Password: password,
	})
	if err != nil {
		return BootstrapResult{}, fmt.Errorf("create admin: %w", err)
	}

	res := BootstrapResult{Created: true, User: u}
	if generated {
		path, err := config.WritePasswordFile(b.DataDir, u.Email, password)
		if err != nil {
			return res, err
		}
		res.PasswordFile = path
	}
	return res, nil
}
