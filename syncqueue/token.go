package syncqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenSource supplies the bearer token for each request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("syncqueue: empty static token")
	}
	return string(t), nil
}

// SessionClaims are the claims minted for sync sessions.
type SessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTSource mints HS256 session tokens and reuses each one until it is close
// to expiry.
type JWTSource struct {
	secret  []byte
	subject string
	role    string
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// tokens are refreshed this long before they expire
const refreshMargin = 30 * time.Second

const tokenIssuer = "barangay-registry"

// NewJWTSource returns a source signing with secret. now may be nil.
func NewJWTSource(secret, subject, role string, ttl time.Duration, now func() time.Time) (*JWTSource, error) {
	if secret == "" {
		return nil, errors.New("syncqueue: jwt secret is required")
	}
	if ttl <= refreshMargin {
		return nil, errors.New("syncqueue: token ttl must exceed 30s")
	}
	if now == nil {
		now = time.Now
	}
	return &JWTSource{secret: []byte(secret), subject: subject, role: role, ttl: ttl, now: now}, nil
}

func (s *JWTSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Add(refreshMargin).Before(s.expires) {
		return s.token, nil
	}

	expires := now.Add(s.ttl)
	claims := SessionClaims{
		Role: s.role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   s.subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", err
	}
	s.token, s.expires = signed, expires
	return signed, nil
}

// ParseSessionToken verifies a token minted by JWTSource.
func ParseSessionToken(token, secret string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}
	return claims, nil
}
