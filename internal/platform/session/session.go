package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/fillesume/storefront/internal/platform/requestctx"
)

const (
	issuer           = "fillesume-storefront"
	defaultCookie    = "fillesume_session"
	defaultTTL       = 30 * 24 * time.Hour
	minSecretLength  = 16
	generatedKeySize = 32
)

var (
	// ErrInvalidToken is returned when a session cookie fails signature or claim checks.
	ErrInvalidToken = errors.New("session: invalid token")
	// ErrExpiredToken is returned when a session cookie is past its expiry.
	ErrExpiredToken = errors.New("session: token expired")
)

// Claims stored in the session cookie.
type Claims struct {
	jwt.RegisteredClaims
}

// Manager issues and verifies visitor session cookies.
type Manager struct {
	secret []byte
	cookie string
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

// Option customises the Manager.
type Option func(*Manager)

// WithCookieName overrides the cookie name.
func WithCookieName(name string) Option {
	return func(m *Manager) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			m.cookie = trimmed
		}
	}
}

// WithTTL overrides the cookie lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithSecure marks cookies Secure.
func WithSecure(secure bool) Option {
	return func(m *Manager) {
		m.secure = secure
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a manager. An empty secret produces a random per-process key,
// which is acceptable for local development only; config validation rejects it elsewhere.
func NewManager(secret string, opts ...Option) (*Manager, error) {
	key := []byte(strings.TrimSpace(secret))
	if len(key) == 0 {
		key = make([]byte, generatedKeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("session: generate secret: %w", err)
		}
	}
	if len(key) < minSecretLength {
		return nil, fmt.Errorf("session: secret must be at least %d bytes", minSecretLength)
	}
	m := &Manager{
		secret: key,
		cookie: defaultCookie,
		ttl:    defaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// CookieName returns the configured cookie name.
func (m *Manager) CookieName() string { return m.cookie }

// Issue signs a token for the session id, generating a new id when empty.
func (m *Manager) Issue(id string) (string, string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = ulid.Make().String()
	}
	now := m.now().UTC()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", fmt.Errorf("session: sign token: %w", err)
	}
	return id, token, nil
}

// Parse verifies the token and returns the session id.
func (m *Manager) Parse(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidToken
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	var claims Claims
	if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Issuer != issuer || strings.TrimSpace(claims.Subject) == "" {
		return "", ErrInvalidToken
	}
	if claims.ExpiresAt == nil || !m.now().Before(claims.ExpiresAt.Time) {
		return "", ErrExpiredToken
	}
	return claims.Subject, nil
}

// Middleware resolves the session cookie, issuing a fresh one when absent or invalid,
// and stores the session id on the request context.
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if cookie, err := r.Cookie(m.cookie); err == nil {
				parsed, parseErr := m.Parse(cookie.Value)
				if parseErr == nil {
					id = parsed
				} else {
					requestctx.Logger(r.Context()).Debug("session cookie rejected", zap.Error(parseErr))
				}
			}
			if id == "" {
				newID, token, err := m.Issue("")
				if err != nil {
					requestctx.Logger(r.Context()).Error("session issue failed", zap.Error(err))
					next.ServeHTTP(w, r)
					return
				}
				id = newID
				http.SetCookie(w, m.cookieFor(token))
			}
			ctx := requestctx.WithSessionID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (m *Manager) cookieFor(token string) *http.Cookie {
	return &http.Cookie{
		Name:     m.cookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(m.ttl / time.Second),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// FromContext returns the session id resolved by Middleware.
func FromContext(ctx context.Context) string {
	return requestctx.SessionID(ctx)
}
