package gate

import (
	"net/http"
	"strconv"

	"github.com/storewatch/storewatch/internal/platform/httpx"
	"github.com/storewatch/storewatch/internal/tenant"
)

// Middleware wires feature and quota gates into the HTTP stack. Mount after
// the tenant middleware and before the permission middleware.
type Middleware struct {
	Features *FeatureGate
	Quotas   *QuotaEnforcer
}

// RequireFeature rejects requests whose tenant plan lacks the feature.
func (m Middleware) RequireFeature(feature Feature) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc := tenant.FromContext(r.Context())
			if tc == nil {
				httpx.Problem(w, http.StatusInternalServerError, "TENANT_RESOLUTION_ERROR", "feature gate before tenant resolution")
				return
			}
			decision := m.Features.RequireFeature(tc, feature)
			if !decision.Allowed {
				w.Header().Set("X-Required-Plan", decision.RequiredTier.String())
				httpx.Problem(w, http.StatusForbidden, "Feature Not Available",
					"feature "+string(feature)+" requires the "+decision.RequiredTier.String()+" plan")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CheckQuota rejects creation requests that would exceed the plan limit for
// the resource kind.
func (m Middleware) CheckQuota(kind ResourceKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc := tenant.FromContext(r.Context())
			if tc == nil {
				httpx.Problem(w, http.StatusInternalServerError, "TENANT_RESOLUTION_ERROR", "quota gate before tenant resolution")
				return
			}
			decision := m.Quotas.CheckResourceLimit(r.Context(), tc, kind)
			if !decision.Allowed {
				w.Header().Set("X-Quota-Usage", strconv.Itoa(decision.Usage))
				w.Header().Set("X-Quota-Limit", strconv.Itoa(decision.Limit))
				httpx.Problem(w, http.StatusForbidden, "Quota Exceeded",
					"limit reached for "+string(kind)+"; plan upgrade required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
