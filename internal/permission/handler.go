package permission

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/storewatch/storewatch/internal/platform/httpx"
	"github.com/storewatch/storewatch/internal/shared"
	"github.com/storewatch/storewatch/internal/tenant"
)

// Handler exposes permission checks over HTTP.
type Handler struct {
	logger *slog.Logger
	engine *Engine
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, engine *Engine) *Handler {
	return &Handler{logger: logger, engine: engine}
}

// MountRoutes registers permission routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/check", h.check)
}

type checkResponse struct {
	Granted          bool     `json:"granted"`
	Reason           string   `json:"reason"`
	RequiresApproval bool     `json:"requires_approval"`
	RequiresWitness  bool     `json:"requires_witness"`
	RestrictedBy     []string `json:"restricted_by,omitempty"`
	MatchedRoles     []string `json:"matched_roles,omitempty"`
}

// check evaluates ?action=...&resource_type=...&resource_id=... for the
// calling principal. Used by clients to pre-flight UI affordances; the
// authoritative check still runs on the guarded route itself.
func (h *Handler) check(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	action := r.URL.Query().Get("action")
	if action == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "action query parameter is required")
		return
	}
	req := CheckRequest{
		ActorID:      p.UserID,
		Action:       action,
		ResourceType: r.URL.Query().Get("resource_type"),
		ResourceID:   r.URL.Query().Get("resource_id"),
		ClientIP:     r.RemoteAddr,
		SessionID:    p.SessionID,
	}
	if tc := tenant.FromContext(r.Context()); tc != nil {
		req.TenantID = tc.ID
	}
	if sc := tenant.StoreFromContext(r.Context()); sc != nil {
		req.StoreID = sc.ID
	}
	decision := h.engine.Check(r.Context(), req)
	httpx.JSON(w, http.StatusOK, checkResponse{
		Granted:          decision.Granted,
		Reason:           decision.Reason,
		RequiresApproval: decision.RequiresApproval,
		RequiresWitness:  decision.RequiresWitness,
		RestrictedBy:     decision.RestrictedBy,
		MatchedRoles:     decision.MatchedRoles,
	})
}
