package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// DefaultTokenTTL is the lifetime of access tokens.
	DefaultTokenTTL = 24 * time.Hour

	// StreamTokenTTL is the lifetime of tokens passed in the stream URL.
	StreamTokenTTL = 5 * time.Minute

	// MinSecretLength is the shortest accepted HMAC signing key.
	MinSecretLength = 32

	audienceAPI    = "api"
	audienceStream = "stream"
)

// Errors returned by token validation.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrShortSecret  = fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
)

// Claims is the payload of every token this service signs.
type Claims struct {
	UserID int64  `json:"uid"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and validates HS256 tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithTTL sets the access token lifetime.
func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithNow sets the time source (for testing).
func WithNow(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer that stamps tokens with the given iss claim.
func NewIssuer(secret []byte, issuer string, opts ...IssuerOption) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrShortSecret
	}
	i := &Issuer{
		secret: append([]byte(nil), secret...),
		issuer: issuer,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL returns the access token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs an access token for u.
func (i *Issuer) Issue(u *User) (token string, expiresAt time.Time, err error) {
	return i.sign(u, audienceAPI, i.ttl)
}

// IssueStreamToken signs a short-lived token accepted only by the stream endpoint.
func (i *Issuer) IssueStreamToken(u *User) (token string, expiresAt time.Time, err error) {
	return i.sign(u, audienceStream, StreamTokenTTL)
}

// Validate verifies an access token and returns its claims.
func (i *Issuer) Validate(token string) (*Claims, error) {
	return i.parse(token, audienceAPI)
}

// ValidateStreamToken verifies a stream token and returns its claims.
func (i *Issuer) ValidateStreamToken(token string) (*Claims, error) {
	return i.parse(token, audienceStream)
}

func (i *Issuer) sign(u *User, audience string, ttl time.Duration) (string, time.Time, error) {
	if u == nil {
		return "", time.Time{}, errors.New("sign token: nil user")
	}
	now := i.now()
	exp := now.Add(ttl)
	claims := &Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   strconv.FormatInt(u.ID, 10),
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func (i *Issuer) parse(token, audience string) (*Claims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (interface{}, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
