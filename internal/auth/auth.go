// Package auth verifies bearer tokens and carries the caller identity through request contexts.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tartampluch/go-hebrew-birthday/internal/config"
	"github.com/zalando/go-keyring"
)

type contextKey struct{}

// WithCaller returns a context carrying the authenticated caller id.
func WithCaller(ctx context.Context, callerID string) context.Context {
	return context.WithValue(ctx, contextKey{}, callerID)
}

// CallerFrom returns the caller id stored in ctx, or "" when the request is anonymous.
func CallerFrom(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Authenticator validates HS256 bearer tokens. The caller id is the "sub" claim.
type Authenticator struct {
	Secret []byte
	// Leeway tolerates clock skew on exp/nbf.
	Leeway time.Duration
}

// NewAuthenticator creates an authenticator for the given shared secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{Secret: []byte(secret), Leeway: 30 * time.Second}
}

// Middleware attaches the caller of a valid token to the request context.
// Requests without a valid token pass through anonymously; handlers decide whether that is allowed.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := extractBearerToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		caller, err := a.Validate(token)
		if err != nil {
			slog.Warn(config.MsgAuthFailed,
				config.LogKeyComponent, config.CompAuth,
				config.LogKeyPath, r.URL.Path,
				config.LogKeyError, err,
			)
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// Validate parses token and returns its subject.
func (a *Authenticator) Validate(token string) (string, error) {
	if len(a.Secret) == 0 {
		return "", errors.New(config.ErrSecretMissing)
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return a.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.Leeway),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	if !parsed.Valid {
		return "", errInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing subject", errInvalidToken)
	}
	return sub, nil
}

var errInvalidToken = errors.New("invalid bearer token")

// Sign issues a token for subject, valid for ttl. Used by the CLI and tests.
func (a *Authenticator) Sign(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
}

func extractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get(config.HeaderAuthorization)
	if !strings.HasPrefix(header, config.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, config.BearerPrefix))
	return token, token != ""
}

// ResolveSecret returns the signing secret from settings, then the environment, then the OS keyring.
func ResolveSecret(s config.AuthSettings) (string, error) {
	if s.Secret != "" {
		return s.Secret, nil
	}
	if v := os.Getenv(config.EnvAuthSecret); v != "" {
		return v, nil
	}
	if s.KeyringUser != "" {
		secret, err := keyring.Get(config.KeyringService, s.KeyringUser)
		if err == nil && secret != "" {
			return secret, nil
		}
		slog.Warn(config.MsgSecretKeyring,
			config.LogKeyComponent, config.CompAuth,
			config.LogKeyError, err,
		)
	}
	return "", errors.New(config.ErrSecretMissing)
}
