package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	SessionIssuer   = "dynamic-pages-app"
	SessionAudience = "dynamic-pages-users"
)

// ErrInvalidSession covers every verification failure. Callers cannot tell a
// missing token from an expired or tampered one.
var ErrInvalidSession = errors.New("invalid session")

type Session struct {
	UserID    int64     `json:"userId"`
	Email     string    `json:"email"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type sessionClaims struct {
	UserID    int64  `json:"userId"`
	Email     string `json:"email"`
	ExpiresMs int64  `json:"expiresAt"`
	jwt.RegisteredClaims
}

// SessionManager issues and verifies stateless HS256 session tokens.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

func NewSessionManager(secret string, ttl time.Duration, clock clockwork.Clock) *SessionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SessionManager{secret: []byte(secret), ttl: ttl, clock: clock}
}

func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for the user valid for the configured lifetime.
func (m *SessionManager) Issue(userID int64, email string) (string, *Session, error) {
	now := m.clock.Now().Truncate(time.Second)
	expires := now.Add(m.ttl)

	claims := sessionClaims{
		UserID:    userID,
		Email:     email,
		ExpiresMs: expires.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    SessionIssuer,
			Audience:  jwt.ClaimStrings{SessionAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign session: %w", err)
	}
	return signed, &Session{UserID: userID, Email: email, IssuedAt: now, ExpiresAt: expires}, nil
}

// Verify checks signature, algorithm, issuer, audience and expiry.
func (m *SessionManager) Verify(token string) (*Session, error) {
	if token == "" {
		return nil, ErrInvalidSession
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(SessionIssuer),
		jwt.WithAudience(SessionAudience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.clock.Now),
	)

	var claims sessionClaims
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}); err != nil {
		return nil, ErrInvalidSession
	}
	if claims.UserID <= 0 || claims.IssuedAt == nil {
		return nil, ErrInvalidSession
	}

	return &Session{
		UserID:    claims.UserID,
		Email:     claims.Email,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// NeedsRefresh reports whether more than half of the session lifetime has passed.
func (m *SessionManager) NeedsRefresh(s *Session) bool {
	lifetime := s.ExpiresAt.Sub(s.IssuedAt)
	return m.clock.Now().Sub(s.IssuedAt) > lifetime/2
}
