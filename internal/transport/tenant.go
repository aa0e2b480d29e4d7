package transport

import "net/http"

// TenantHeader optionally names the tenant a client believes it acts for.
const TenantHeader = "X-Tenant-ID"

// TenantHeaderMiddleware rejects requests whose tenant header disagrees
// with the tenant resolved from the bearer token. Without authentication
// the header alone scopes the request.
func TenantHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claimed := r.Header.Get(TenantHeader)
		if claimed == "" {
			next.ServeHTTP(w, r)
			return
		}
		tenantID, ok := TenantFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, withTenant(r, claimed))
			return
		}
		if tenantID != claimed {
			http.Error(w, "tenant mismatch", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
