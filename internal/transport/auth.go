package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized indicates invalid or missing credentials.
var ErrUnauthorized = errors.New("unauthorized")

type tenantKey struct{}

// TenantResolver maps a terminal's bearer token to the tenant it syncs for.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, token string) (string, error)
}

// StaticResolver maps fixed tokens to tenants. It backs the dev remote and
// the auth.tokens config section.
type StaticResolver map[string]string

// ResolveTenant implements TenantResolver.
func (s StaticResolver) ResolveTenant(_ context.Context, token string) (string, error) {
	tenantID, ok := s[token]
	if !ok || tenantID == "" {
		return "", ErrUnauthorized
	}
	return tenantID, nil
}

// TenantFromContext returns the tenant scoping the request, if any.
func TenantFromContext(ctx context.Context) (string, bool) {
	tenantID, ok := ctx.Value(tenantKey{}).(string)
	return tenantID, ok && tenantID != ""
}

func withTenant(r *http.Request, tenantID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), tenantKey{}, tenantID))
}

// AuthMiddleware scopes every request to the tenant behind its bearer
// token. Terminals treat any 401 as an auth failure and stop syncing until
// a manual retry.
func AuthMiddleware(resolver TenantResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, "missing bearer token")
				return
			}
			tenantID, err := resolver.ResolveTenant(r.Context(), token)
			if err != nil || tenantID == "" {
				unauthorized(w, "invalid bearer token")
				return
			}
			next.ServeHTTP(w, withTenant(r, tenantID))
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="possync"`)
	http.Error(w, msg, http.StatusUnauthorized)
}
