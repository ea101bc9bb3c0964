// Package identity maps requests to the opaque identifier that owns documents.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/pdfmark/internal/config"
)

// ErrUnauthorized is returned when a request carries no usable identity.
var ErrUnauthorized = errors.New("unauthorized")

// Resolver extracts the caller's identity from a request.
type Resolver interface {
	Resolve(r *http.Request) (string, error)
}

// NewResolver returns the resolver selected by cfg.Mode.
func NewResolver(cfg config.AuthConfig) (Resolver, error) {
	switch cfg.Mode {
	case "", "local":
		return NewLocalResolver(cfg.LocalHeader), nil
	case "jwt":
		if cfg.JWTSecret == "" {
			return nil, fmt.Errorf("jwt auth requires a secret (set %s)", config.EnvJWTSecret)
		}
		return NewJWTResolver([]byte(cfg.JWTSecret)), nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

// JWTResolver accepts HMAC-signed tokens and uses their subject as the identity.
// Tokens are read from the Authorization header or, for websockets, the token query parameter.
type JWTResolver struct {
	secret []byte
}

// NewJWTResolver creates a resolver verifying tokens with secret.
func NewJWTResolver(secret []byte) *JWTResolver {
	return &JWTResolver{secret: secret}
}

// Resolve implements Resolver.
func (j *JWTResolver) Resolve(r *http.Request) (string, error) {
	tokenString := r.URL.Query().Get("token")
	if tokenString == "" {
		tokenString = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	if tokenString == "" {
		return "", fmt.Errorf("%w: no token provided", ErrUnauthorized)
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("%w: invalid or expired token", ErrUnauthorized)
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: subject claim is missing", ErrUnauthorized)
	}
	return sub, nil
}

// IssueToken signs a token for subject valid for ttl.
func (j *JWTResolver) IssueToken(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
}

// LocalResolver trusts a self-assigned identifier sent in a header or the identity query parameter.
// Identifiers must be UUIDs.
type LocalResolver struct {
	header string
}

// NewLocalResolver creates a resolver reading header.
func NewLocalResolver(header string) *LocalResolver {
	if header == "" {
		header = "X-Pdfmark-Identity"
	}
	return &LocalResolver{header: header}
}

// Header returns the request header the resolver reads.
func (l *LocalResolver) Header() string {
	return l.header
}

// Resolve implements Resolver.
func (l *LocalResolver) Resolve(r *http.Request) (string, error) {
	id := r.Header.Get(l.header)
	if id == "" {
		id = r.URL.Query().Get("identity")
	}
	if id == "" {
		return "", fmt.Errorf("%w: missing %s", ErrUnauthorized, l.header)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: malformed identity", ErrUnauthorized)
	}
	return parsed.String(), nil
}

// LoadOrCreateLocalID returns the identifier stored at path, generating and saving one if absent.
func LoadOrCreateLocalID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id, perr := uuid.Parse(strings.TrimSpace(string(data)))
		if perr != nil {
			return "", fmt.Errorf("invalid identity in %s: %w", path, perr)
		}
		return id.String(), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read identity: %w", err)
	}
	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("failed to create identity directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("failed to write identity: %w", err)
	}
	return id, nil
}

type contextKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the identity stored by Middleware.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// Middleware resolves the identity of every request and rejects those without one.
func Middleware(resolver Resolver, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolver.Resolve(r)
			if err != nil {
				logger.Debug("Rejected request", zap.String("path", r.URL.Path), zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
