package identity

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/ghmassaro/presenca-treino/internal/application"
)

const (
	issuer          = "presenca-treino"
	minSecretLength = 16
)

var (
	ErrTokenInvalid = errors.New("identity: invalid token")
	ErrTokenExpired = errors.New("identity: token expired")
	ErrTokenRevoked = errors.New("identity: token revoked")
)

// Claims are the JWT claims issued at login. Subject holds the email.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

var _ application.TokenIssuer = (*TokenManager)(nil)

// TokenManager issues and verifies HS256 tokens and keeps a revocation list
// of signed-out token ids until they expire.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	leeway time.Duration
	newID  func() string

	mu      sync.Mutex
	revoked map[string]time.Time
}

// TokenOption customises a TokenManager.
type TokenOption func(*TokenManager)

// WithLeeway tolerates clock skew when checking expiry.
func WithLeeway(leeway time.Duration) TokenOption {
	return func(m *TokenManager) {
		if leeway >= 0 {
			m.leeway = leeway
		}
	}
}

// WithTokenIDGenerator overrides the token id generator.
func WithTokenIDGenerator(fn func() string) TokenOption {
	return func(m *TokenManager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewTokenManager returns a manager signing with secret. Tokens live for ttl.
func NewTokenManager(secret []byte, ttl time.Duration, opts ...TokenOption) (*TokenManager, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("identity: token secret must have at least %d bytes", minSecretLength)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("identity: token ttl must be positive")
	}
	m := &TokenManager{
		secret:  append([]byte(nil), secret...),
		ttl:     ttl,
		newID:   uuid.NewString,
		revoked: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue signs a token for identity valid from now for the configured ttl.
func (m *TokenManager) Issue(identity application.Identity, now time.Time) (string, time.Time, error) {
	email := strings.ToLower(strings.TrimSpace(identity.Email))
	if email == "" {
		return "", time.Time{}, fmt.Errorf("%w: empty subject", ErrTokenInvalid)
	}

	expiresAt := now.Add(m.ttl).Truncate(time.Second)
	claims := Claims{
		Name: strings.TrimSpace(identity.DisplayName),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        m.newID(),
			Issuer:    issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature, expiry and revocation state of token.
func (m *TokenManager) Verify(token string, now time.Time) (application.Identity, error) {
	claims, err := m.parse(token)
	if err != nil {
		return application.Identity{}, err
	}
	if err := m.checkExpiry(claims, now); err != nil {
		return application.Identity{}, err
	}

	m.mu.Lock()
	_, revoked := m.revoked[claims.ID]
	m.mu.Unlock()
	if revoked {
		return application.Identity{}, ErrTokenRevoked
	}

	return application.Identity{Email: claims.Subject, DisplayName: claims.Name}, nil
}

// Revoke adds the token id to the revocation list until the token expires.
// Revoking an already expired token is a no-op.
func (m *TokenManager) Revoke(token string, now time.Time) error {
	claims, err := m.parse(token)
	if err != nil {
		return err
	}
	if errors.Is(m.checkExpiry(claims, now), ErrTokenExpired) {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, expiresAt := range m.revoked {
		if !now.Before(expiresAt.Add(m.leeway)) {
			delete(m.revoked, id)
		}
	}
	m.revoked[claims.ID] = claims.ExpiresAt.Time
	return nil
}

// Revoked returns the number of token ids currently on the revocation list.
func (m *TokenManager) Revoked() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.revoked)
}

// parse verifies the signature only. Time based claims are checked against
// the injected clock by checkExpiry.
func (m *TokenManager) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.Parser{SkipClaimsValidation: true}
	_, err := parser.ParseWithClaims(strings.TrimSpace(token), claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Subject == "" || claims.ID == "" || claims.Issuer != issuer {
		return nil, fmt.Errorf("%w: missing claims", ErrTokenInvalid)
	}
	return claims, nil
}

func (m *TokenManager) checkExpiry(claims *Claims, now time.Time) error {
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: no expiry", ErrTokenInvalid)
	}
	if !now.Before(claims.ExpiresAt.Time.Add(m.leeway)) {
		return ErrTokenExpired
	}
	return nil
}
