package permission

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storewatch/storewatch/internal/platform/httpx"
	"github.com/storewatch/storewatch/internal/shared"
	"github.com/storewatch/storewatch/internal/tenant"
)

// Middleware wires permission checks into the HTTP stack. It must be mounted
// after the tenant middleware so the resolved contexts are available.
type Middleware struct {
	Engine *Engine
}

// Require checks the action against the engine before the handler runs. The
// resource id is taken from the named route parameter when one is given.
func (m Middleware) Require(action, resourceType, resourceParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := shared.PrincipalFromContext(r.Context())
			if p == nil {
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			req := CheckRequest{
				ActorID:      p.UserID,
				Action:       action,
				ResourceType: resourceType,
				ClientIP:     r.RemoteAddr,
				SessionID:    p.SessionID,
			}
			if resourceParam != "" {
				req.ResourceID = chi.URLParam(r, resourceParam)
			}
			if tc := tenant.FromContext(r.Context()); tc != nil {
				req.TenantID = tc.ID
			}
			if sc := tenant.StoreFromContext(r.Context()); sc != nil {
				req.StoreID = sc.ID
			}
			decision := m.Engine.Check(r.Context(), req)
			if !decision.Granted {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", decision.Reason)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
