package roles

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/storewatch/storewatch/internal/permission"
	"github.com/storewatch/storewatch/internal/platform/httpx"
	"github.com/storewatch/storewatch/internal/tenant"
)

// Handler wires HTTP endpoints for role administration.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
	}
}

// MountRoutes registers role administration routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{roleID}", h.get)
	r.Patch("/{roleID}", h.update)
	r.Delete("/{roleID}", h.delete)
	r.Put("/{roleID}/permissions", h.setPermissions)
	r.Post("/{roleID}/assignments", h.assign)
	r.Delete("/{roleID}/assignments/{userID}", h.unassign)
	r.Put("/overrides", h.setOverride)
	r.Delete("/overrides", h.deleteOverride)
}

type roleResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Level       int    `json:"level"`
	Clearance   int    `json:"clearance"`
	Scope       string `json:"scope"`
	Active      bool   `json:"active"`
	ParentID    string `json:"parent_id,omitempty"`
}

func toResponse(role Role) roleResponse {
	return roleResponse{
		ID:          role.ID,
		Name:        role.Name,
		DisplayName: role.DisplayName,
		Category:    role.Category,
		Level:       role.Level,
		Clearance:   role.Clearance,
		Scope:       string(role.Scope),
		Active:      role.Active,
		ParentID:    role.ParentID,
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.respondError(w, "list roles", err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.GetRole(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		h.respondError(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

type createRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	DisplayName string `json:"display_name" validate:"omitempty,max=128"`
	Category    string `json:"category" validate:"omitempty,max=64"`
	Level       int    `json:"level" validate:"gte=0,lte=1000"`
	Clearance   int    `json:"clearance" validate:"gte=0,lte=10"`
	Scope       string `json:"scope" validate:"omitempty,oneof=global store limited"`
	ParentID    string `json:"parent_id" validate:"omitempty,uuid"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), CreateParams{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Category:    req.Category,
		Level:       req.Level,
		Clearance:   req.Clearance,
		Scope:       permission.RoleScope(req.Scope),
		ParentID:    req.ParentID,
	})
	if err != nil {
		h.respondError(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toResponse(role))
}

type updateRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=128"`
	Category    *string `json:"category" validate:"omitempty,max=64"`
	Level       *int    `json:"level" validate:"omitempty,gte=0,lte=1000"`
	Clearance   *int    `json:"clearance" validate:"omitempty,gte=0,lte=10"`
	Active      *bool   `json:"active"`
	ParentID    *string `json:"parent_id"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.UpdateRole(r.Context(), chi.URLParam(r, "roleID"), UpdateParams{
		DisplayName: req.DisplayName,
		Category:    req.Category,
		Level:       req.Level,
		Clearance:   req.Clearance,
		Active:      req.Active,
		ParentID:    req.ParentID,
	})
	if err != nil {
		h.respondError(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(role))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRole(r.Context(), chi.URLParam(r, "roleID")); err != nil {
		h.respondError(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type setPermissionsRequest struct {
	StoreID      string          `json:"store_id" validate:"omitempty"`
	Capabilities permission.Tree `json:"capabilities" validate:"required"`
}

func (h *Handler) setPermissions(w http.ResponseWriter, r *http.Request) {
	var req setPermissionsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	tenantID := ""
	if tc := tenant.FromContext(r.Context()); tc != nil {
		tenantID = tc.ID
	}
	err := h.service.SetRolePermissions(r.Context(), chi.URLParam(r, "roleID"), tenantID, req.StoreID, req.Capabilities)
	if err != nil {
		h.respondError(w, "set role permissions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.AssignRole(r.Context(), req.UserID, chi.URLParam(r, "roleID")); err != nil {
		h.respondError(w, "assign role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unassign(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveRole(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "roleID")); err != nil {
		h.respondError(w, "remove role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type overrideRequest struct {
	ResourceType string `json:"resource_type" validate:"required,max=64"`
	ResourceID   string `json:"resource_id" validate:"required,max=128"`
	Action       string `json:"action" validate:"required,max=128"`
	Allow        bool   `json:"allow"`
	GrantedTo    string `json:"granted_to" validate:"required"`
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	err := h.service.SetResourceOverride(r.Context(), OverrideParams{
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Action:       req.Action,
		Allow:        req.Allow,
		GrantedTo:    req.GrantedTo,
	})
	if err != nil {
		h.respondError(w, "set override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteOverride(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	err := h.service.DeleteResourceOverride(r.Context(),
		q.Get("resource_type"), q.Get("resource_id"), q.Get("granted_to"), q.Get("action"))
	if err != nil {
		h.respondError(w, "delete override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrNameTaken):
		httpx.RespondError(w, httpx.ErrDuplicate)
	case errors.Is(err, ErrInheritanceCycle):
		httpx.Problem(w, http.StatusConflict, "Inheritance Cycle", err.Error())
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
