package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/eliksir-bar/eliksir-analytics/internal/app"
	"github.com/eliksir-bar/eliksir-analytics/internal/auth"
	"github.com/eliksir-bar/eliksir-analytics/internal/textfix"
)

// EnvNewPassword supplies the password for useradd instead of generating one.
const EnvNewPassword = "ELIKSIR_NEW_PASSWORD"

// runMigrate opens the configured store, which creates or upgrades the schema.
func runMigrate(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := env.cfg.Storage.EnsureDir(); err != nil {
		return err
	}
	b, err := openBackend(ctx, env.cfg, env.logger)
	if err != nil {
		return err
	}
	defer b.Close()

	env.logger.Info().Msg("schema is up to date")
	return nil
}

// runUserAdd creates an account. The password comes from ELIKSIR_NEW_PASSWORD
// or is generated and printed once.
func runUserAdd(ctx context.Context, env *environment, args []string) error {
	fs := flag.NewFlagSet("useradd", flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	email := fs.String("email", "", "account email (required)")
	name := fs.String("name", "", "display name")
	role := fs.String("role", string(auth.RoleEditor), "role: admin, editor or customer")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		fs.Usage()
		return errors.New("useradd: -email is required")
	}

	password := os.Getenv(EnvNewPassword)
	generated := password == ""
	if generated {
		var err error
		if password, err = auth.GeneratePassword(20); err != nil {
			return err
		}
	}

	if _, err := env.cfg.Storage.EnsureDir(); err != nil {
		return err
	}
	b, err := openBackend(ctx, env.cfg, env.logger)
	if err != nil {
		return err
	}
	defer b.Close()

	svc := &app.AuthService{Users: b}
	u, err := svc.CreateUser(ctx, app.CreateUserRequest{
		Email:    *email,
		Name:     *name,
		Role:     auth.Role(*role),
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("useradd: %w", err)
	}

	fmt.Fprintf(env.stdout, "created user %d <%s> with role %s\n", u.ID, u.Email, u.Role)
	if generated {
		fmt.Fprintf(env.stdout, "password: %s\n", password)
	}
	return nil
}

// runFixPolish repairs mis-decoded Polish text from stdin to stdout.
func runFixPolish(env *environment, args []string) error {
	fs := flag.NewFlagSet("fix-polish", flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	in, err := io.ReadAll(env.stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	_, err = io.WriteString(env.stdout, textfix.FixPolish(string(in)))
	return err
}
