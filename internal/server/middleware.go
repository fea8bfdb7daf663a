package server

import (
	"context"
	"net/http"
	"strings"
)

// tenantHeader carries the verified tenant identity. Authentication itself
// happens upstream (gateway or reverse proxy); this layer trusts the header
// but refuses to serve without it.
const tenantHeader = "X-Tenant-ID"

type contextKey string

const tenantKey contextKey = "tenant"

// tenantOnly rejects any request that arrives without a tenant identity.
// There is no anonymous fallback: a request that cannot be attributed to a
// tenant cannot touch tenant data.
func (s *Server) tenantOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(tenantHeader))
		if tenantID == "" {
			s.respondError(w, http.StatusUnauthorized, "missing tenant identity")
			return
		}
		ctx := context.WithValue(r.Context(), tenantKey, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// tenantFrom returns the tenant set by tenantOnly. Handlers below the
// middleware can rely on it being present.
func tenantFrom(ctx context.Context) string {
	tenantID, _ := ctx.Value(tenantKey).(string)
	return tenantID
}
