package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eliksir-bar/eliksir-analytics/internal/appinfo"
)

// minSecretBytes matches the minimum HMAC key length accepted by auth.NewIssuer.
const minSecretBytes = 32

// EnsureJWTSecret fills c.Auth.JWTSecret when it is not configured, reusing a
// key persisted in dataDir or generating and persisting a new one.
// Returns true if a new key was generated.
func (c *Config) EnsureJWTSecret(dataDir string) (generated bool, err error) {
	if !c.Auth.JWTSecret.IsEmpty() {
		if len(c.Auth.JWTSecret) < minSecretBytes {
			return false, fmt.Errorf("auth.jwt_secret must be at least %d bytes", minSecretBytes)
		}
		return false, nil
	}

	path := filepath.Join(dataDir, appinfo.JWTSecretFileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		s := strings.TrimSpace(string(data))
		if len(s) >= minSecretBytes {
			c.Auth.JWTSecret = Secret(s)
			return false, nil
		}
		// Too short to trust; replace it.
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("read jwt secret: %w", err)
	}

	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		return false, fmt.Errorf("generate jwt secret: %w", err)
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	if err := writeFileAtomic(path, []byte(s+"\n")); err != nil {
		return false, fmt.Errorf("write jwt secret: %w", err)
	}
	c.Auth.JWTSecret = Secret(s)
	return true, nil
}

// WritePasswordFile writes a generated password to a file in dataDir for
// one-time pickup. Returns the file path. File is created with 0600 permissions.
func WritePasswordFile(dataDir, email, password string) (string, error) {
	path := filepath.Join(dataDir, appinfo.PasswordFileName)
	content := fmt.Sprintf("Email: %s\nPassword: %s\n\nDelete this file after saving the credentials.\n", email, password)
	if err := writeFileAtomic(path, []byte(content)); err != nil {
		return "", fmt.Errorf("write password file: %w", err)
	}
	return path, nil
}
