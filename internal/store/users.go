package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/eliksir-bar/eliksir-analytics/internal/auth"
)

type userRow struct {
	ID           int64
	Email        string
	Name         string
	Role         string
	PasswordHash string
	CreatedAt    string
	LastLoginAt  sql.NullString
}

const userColumns = `id, email, name, role, password_hash, created_at, last_login_at`

func (r *userRow) scan(sc scanner) error {
	return sc.Scan(&r.ID, &r.Email, &r.Name, &r.Role, &r.PasswordHash, &r.CreatedAt, &r.LastLoginAt)
}

func (r *userRow) toUser() (*auth.User, error) {
	createdAt, err := time.Parse(TimeFormat, r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at %q: %w", r.CreatedAt, err)
	}
	u := &auth.User{
		ID:           r.ID,
		Email:        r.Email,
		Name:         r.Name,
		Role:         auth.Role(r.Role),
		PasswordHash: r.PasswordHash,
		CreatedAt:    createdAt,
	}
	if r.LastLoginAt.Valid {
		t, err := time.Parse(TimeFormat, r.LastLoginAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_login_at %q: %w", r.LastLoginAt.String, err)
		}
		u.LastLoginAt = &t
	}
	return u, nil
}

// NormalizeEmail lowercases and trims an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts a user. Email is normalized; an empty role becomes customer.
// On success, u.ID and u.CreatedAt are set.
func (s *Store) CreateUser(ctx context.Context, u *auth.User) (int64, error) {
	u.Email = NormalizeEmail(u.Email)
	if u.Email == "" {
		return 0, errors.New("create user: email is required")
	}
	if u.Role == "" {
		u.Role = auth.RoleCustomer
	}
	if !u.Role.Valid() {
		return 0, fmt.Errorf("create user: unknown role %q", u.Role)
	}
	if u.PasswordHash == "" {
		return 0, errors.New("create user: password hash is required")
	}

	now := s.now().UTC()
	ts := now.Format(TimeFormat)
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, name, role, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, u.Email, u.Name, string(u.Role), u.PasswordHash, ts, ts)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateEmail
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	u.ID = id
	u.CreatedAt = now
	return id, nil
}

// GetUserByEmail looks up a user by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.getUser(ctx, "email = ?", NormalizeEmail(email))
}

// GetUserByID looks up a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*auth.User, error) {
	return s.getUser(ctx, "id = ?", id)
}

func (s *Store) getUser(ctx context.Context, cond string, arg any) (*auth.User, error) {
	var r userRow
	err := r.scan(s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return r.toUser()
}

// CountUsers returns the number of registered users.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// TouchLogin records a successful login.
func (s *Store) TouchLogin(ctx context.Context, id int64) error {
	ts := s.now().UTC().Format(TimeFormat)
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?`, ts, ts, id)
	if err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
