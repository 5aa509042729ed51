package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/storewatch/storewatch/internal/broadcast"
	"github.com/storewatch/storewatch/internal/gate"
	"github.com/storewatch/storewatch/internal/observability"
	"github.com/storewatch/storewatch/internal/permission"
	"github.com/storewatch/storewatch/internal/roles"
	"github.com/storewatch/storewatch/internal/shared"
	"github.com/storewatch/storewatch/internal/tenant"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager

	TenantMiddleware     tenant.Middleware
	GateMiddleware       gate.Middleware
	PermissionMiddleware permission.Middleware

	PermissionHandler *permission.Handler
	RolesHandler      *roles.Handler
	StreamHandler     *broadcast.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Storewatch defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	timeout := 30 * time.Second
	if params.Config != nil && params.Config.AppRequestTimeout > 0 {
		timeout = params.Config.AppRequestTimeout
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(params.TenantMiddleware.ResolveTenant)

		api.Route("/permissions", func(pr chi.Router) {
			// The event stream holds its response open for the life of
			// the session, so it stays outside the request timeout.
			params.StreamHandler.MountRoutes(pr)
			pr.Group(func(g chi.Router) {
				g.Use(chimw.Timeout(timeout))
				params.PermissionHandler.MountRoutes(g)
			})
		})

		api.Route("/roles", func(rr chi.Router) {
			rr.Use(chimw.Timeout(timeout))
			rr.Use(params.GateMiddleware.RequireFeature(gate.FeatureCustomRoles))
			rr.Use(params.PermissionMiddleware.Require("roles:edit", "role", "roleID"))
			params.RolesHandler.MountRoutes(rr)
		})

		api.Route("/stores/{storeID}", func(sr chi.Router) {
			sr.Use(chimw.Timeout(timeout))
			sr.Use(params.TenantMiddleware.ResolveStore)

			// Store-scoped resource creation runs the quota gate before the
			// permission check so over-quota requests never reach the
			// audit-heavy path.
			sr.With(
				params.GateMiddleware.CheckQuota(gate.ResourceCameras),
				params.PermissionMiddleware.Require("cameras:create", "camera", ""),
			).Post("/cameras", notImplemented)

			sr.With(
				params.GateMiddleware.RequireFeature(gate.FeatureAIDetection),
				params.PermissionMiddleware.Require("security:behavior:read", "store", "storeID"),
			).Get("/analysis", notImplemented)
		})
	})

	return r
}

// notImplemented stands in for the business handlers that consume the
// engine's decisions; those live outside this core.
func notImplemented(w http.ResponseWriter, r *http.Request) {
	http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
}
