package permission

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/storewatch/storewatch/internal/audit"
)

// Actions that always require a second approving actor before the caller's
// workflow may proceed. Resource overrides can never force-grant these.
var approvalRequired = map[string]struct{}{
	"system:configure": {},
	"users:delete":     {},
	"evidence:manage":  {},
	"incidents:close":  {},
}

// Actions that require a witness to be present.
var witnessRequired = map[string]struct{}{
	"evidence:download": {},
	"system:backup":     {},
	"roles:assign":      {},
}

const maxInheritanceDepth = 32

// Recorder receives one entry per permission check, granted or denied.
type Recorder interface {
	Record(entry audit.Entry)
}

// Engine aggregates an actor's roles into a merged capability tree and
// evaluates requested actions against it. Every check produces exactly one
// audit entry, and every internal failure resolves to a denial: nothing
// escapes the public boundary.
type Engine struct {
	repo    RoleRepository
	auditor Recorder
	logger  *slog.Logger

	checks   *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewEngine constructs an Engine.
func NewEngine(repo RoleRepository, auditor Recorder, logger *slog.Logger) *Engine {
	return &Engine{repo: repo, auditor: auditor, logger: logger}
}

// Instrument attaches check outcome collectors.
func (e *Engine) Instrument(checks *prometheus.CounterVec, duration prometheus.Histogram) {
	e.checks = checks
	e.duration = duration
}

// Check decides whether the actor may perform the requested action. It never
// returns an error; dependency failures and malformed data all resolve to a
// denial with the cause in the reason.
func (e *Engine) Check(ctx context.Context, req CheckRequest) Decision {
	start := time.Now()
	if req.At.IsZero() {
		req.At = start.UTC()
	}
	action := NormalizeAction(req.Action)

	decision, roleNames := e.evaluate(ctx, req, action)
	decision.RequiresApproval = requiresApproval(action)
	decision.RequiresWitness = requiresWitness(action)

	e.auditor.Record(audit.Entry{
		ActorID:      req.ActorID,
		Roles:        roleNames,
		Action:       action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		TenantID:     req.TenantID,
		StoreID:      req.StoreID,
		Granted:      decision.Granted,
		Reason:       decision.Reason,
		Latency:      time.Since(start),
		ClientIP:     req.ClientIP,
		SessionID:    req.SessionID,
		At:           req.At,
	})
	if e.checks != nil {
		e.checks.WithLabelValues(strconv.FormatBool(decision.Granted)).Inc()
	}
	if e.duration != nil {
		e.duration.Observe(time.Since(start).Seconds())
	}
	return decision
}

func (e *Engine) evaluate(ctx context.Context, req CheckRequest, action string) (Decision, []string) {
	if action == "" {
		return Decision{Reason: "empty action path"}, nil
	}

	roles, err := e.expandRoles(ctx, req.ActorID)
	if err != nil {
		e.logger.Error("permission check failed",
			slog.String("actor_id", req.ActorID),
			slog.String("action", action),
			slog.Any("error", err),
		)
		return Decision{Reason: fmt.Sprintf("internal error: %v", err)}, nil
	}

	roleNames := make([]string, 0, len(roles))
	roleIDs := make([]string, 0, len(roles))
	merged := NewDefaultTree()
	for _, role := range roles {
		roleNames = append(roleNames, role.Name)
		roleIDs = append(roleIDs, role.ID)
		storeID := ""
		if role.Scope == ScopeStore {
			storeID = req.StoreID
		}
		frag, err := e.repo.RolePermissions(ctx, role.ID, req.TenantID, storeID)
		if err != nil {
			e.logger.Error("load role permissions",
				slog.String("role_id", role.ID),
				slog.Any("error", err),
			)
			return Decision{Reason: fmt.Sprintf("internal error: %v", err)}, roleNames
		}
		merged = Merge(merged, frag)
	}

	decision := Decision{MatchedRoles: roleNames}
	decision.Granted = merged.Evaluate(action)
	if decision.Granted {
		decision.Reason = "granted by role permissions"
	} else {
		decision.Reason = "insufficient role permissions"
	}

	if req.ResourceID != "" {
		override, err := e.repo.ResourceOverride(ctx, req.ResourceType, req.ResourceID, req.ActorID, roleIDs)
		if err != nil {
			e.logger.Error("load resource override",
				slog.String("resource_type", req.ResourceType),
				slog.String("resource_id", req.ResourceID),
				slog.Any("error", err),
			)
			return Decision{MatchedRoles: roleNames, Reason: fmt.Sprintf("internal error: %v", err)}, roleNames
		}
		if override != nil && NormalizeAction(override.Action) == action {
			if !override.Allow {
				decision.Granted = false
				decision.Reason = "denied by resource override"
				decision.RestrictedBy = append(decision.RestrictedBy, overrideLabel(override))
			} else if !requiresApproval(action) {
				decision.Granted = true
				decision.Reason = "granted by resource override"
			}
			// An allowing override on an approval-flagged action changes
			// nothing: those stay role-gated.
		}
	}

	return decision, roleNames
}

// expandRoles loads the actor's direct roles and walks each parent chain.
// Chains are linear (a role has at most one parent); a chain that revisits a
// role or exceeds the depth bound is treated as a cycle and fails the whole
// check closed.
func (e *Engine) expandRoles(ctx context.Context, actorID string) ([]SecurityRole, error) {
	direct, err := e.repo.RolesForActor(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("roles for actor: %w", err)
	}

	seen := make(map[string]struct{}, len(direct))
	out := make([]SecurityRole, 0, len(direct))
	for _, role := range direct {
		if !role.Active {
			continue
		}
		if _, ok := seen[role.ID]; !ok {
			seen[role.ID] = struct{}{}
			out = append(out, role)
		}

		chain := map[string]struct{}{role.ID: {}}
		parentID := role.ParentID
		for depth := 0; parentID != ""; depth++ {
			if depth >= maxInheritanceDepth {
				return nil, fmt.Errorf("role inheritance depth exceeded at role %s", role.ID)
			}
			if _, ok := chain[parentID]; ok {
				return nil, fmt.Errorf("role inheritance cycle at role %s", parentID)
			}
			chain[parentID] = struct{}{}

			parent, err := e.repo.RoleByID(ctx, parentID)
			if err != nil {
				return nil, fmt.Errorf("role %s: %w", parentID, err)
			}
			if parent.Active {
				if _, ok := seen[parent.ID]; !ok {
					seen[parent.ID] = struct{}{}
					out = append(out, parent)
				}
			}
			parentID = parent.ParentID
		}
	}
	return out, nil
}

func requiresApproval(action string) bool {
	_, ok := approvalRequired[action]
	return ok
}

func requiresWitness(action string) bool {
	_, ok := witnessRequired[action]
	return ok
}

func overrideLabel(o *ResourceOverride) string {
	return fmt.Sprintf("override:%s/%s", o.ResourceType, o.ResourceID)
}
