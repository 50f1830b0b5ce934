package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ledgerai/ledgerai/internal/models"
	"github.com/rs/zerolog/log"
)

type ownerKey struct{}

// OwnerHeader carries the owner id when auth is disabled in development.
const OwnerHeader = "X-Owner-ID"

var publicPaths = map[string]bool{
	"/":        true,
	"/health":  true,
	"/metrics": true,
}

// AuthConfig configures owner resolution.
type AuthConfig struct {
	Enabled bool
	// Secret verifies HS256 bearer tokens. The token subject is the owner.
	Secret string
	// AllowOwnerHeader trusts X-Owner-ID when Enabled is false.
	AllowOwnerHeader bool
}

// WithOwner stores the authenticated owner id.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// OwnerFromContext returns the authenticated owner id.
func OwnerFromContext(ctx context.Context) (string, bool) {
	owner, ok := ctx.Value(ownerKey{}).(string)
	return owner, ok && owner != ""
}

// Auth resolves the owner for every non-public request. With auth enabled a
// valid bearer token is required; without it the request continues and the
// handler decides whether an owner is needed.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	key := []byte(cfg.Secret)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			if !cfg.Enabled {
				if owner := strings.TrimSpace(r.Header.Get(OwnerHeader)); owner != "" && cfg.AllowOwnerHeader {
					r = r.WithContext(WithOwner(r.Context(), owner))
				}
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				models.WriteError(w, http.StatusUnauthorized, "bearer token required")
				return
			}

			owner, err := ownerFromToken(strings.TrimSpace(raw), key)
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("token rejected")
				models.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOwner(r.Context(), owner)))
		})
	}
}

func ownerFromToken(raw string, key []byte) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
