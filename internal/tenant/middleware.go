package tenant

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/storewatch/storewatch/internal/platform/httpx"
	"github.com/storewatch/storewatch/internal/shared"
)

type tenantContextKey struct{}

type storeContextKey struct{}

// ContextWith stores the resolved tenant context in the request context.
func ContextWith(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tc)
}

// FromContext extracts the resolved tenant context, if any.
func FromContext(ctx context.Context) *Context {
	tc, _ := ctx.Value(tenantContextKey{}).(*Context)
	return tc
}

// ContextWithStore stores the resolved store context in the request context.
func ContextWithStore(ctx context.Context, sc *StoreContext) context.Context {
	return context.WithValue(ctx, storeContextKey{}, sc)
}

// StoreFromContext extracts the resolved store context, if any.
func StoreFromContext(ctx context.Context) *StoreContext {
	sc, _ := ctx.Value(storeContextKey{}).(*StoreContext)
	return sc
}

// Middleware wires tenant and store resolution into the HTTP stack.
type Middleware struct {
	Resolver *Resolver
}

// ResolveTenant resolves the request tenant and rejects the request with the
// typed code when resolution fails.
func (m Middleware) ResolveTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, rerr := m.Resolver.ResolveTenant(r.Context(), m.Resolver.CandidatesFromRequest(r))
		if rerr != nil {
			httpx.Problem(w, rerr.Status, rerr.Code, rerr.Reason)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWith(r.Context(), tc)))
	})
}

// ResolveStore resolves the request store under the already-resolved tenant.
// Must be mounted after ResolveTenant.
func (m Middleware) ResolveStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := FromContext(r.Context())
		if tc == nil {
			httpx.Problem(w, http.StatusInternalServerError, "TENANT_RESOLUTION_ERROR", "store resolution before tenant resolution")
			return
		}
		sc, rerr := m.Resolver.ResolveStore(r.Context(), tc, storeCandidatesFromRequest(r))
		if rerr != nil {
			httpx.Problem(w, rerr.Status, rerr.Code, rerr.Reason)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithStore(r.Context(), sc)))
	})
}

func storeCandidatesFromRequest(r *http.Request) StoreCandidates {
	// The body candidate is only available to handlers that decode their own
	// payload; those call Resolver.ResolveStore directly.
	cand := StoreCandidates{
		Route: chi.URLParam(r, "storeID"),
		Query: strings.TrimSpace(r.URL.Query().Get("store")),
	}
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		cand.PrincipalDefault = p.DefaultStoreID
	}
	return cand
}
