package gate

import (
	"context"
	"log/slog"

	"github.com/storewatch/storewatch/internal/tenant"
)

// ResourceKind names the quota-limited resources.
type ResourceKind string

const (
	ResourceStores         ResourceKind = "stores"
	ResourceUsersPerStore  ResourceKind = "users_per_store"
	ResourceCameras        ResourceKind = "cameras_per_store"
	ResourceStorageGB      ResourceKind = "storage_gb"
	ResourceAlertsPerMonth ResourceKind = "alerts_per_month"
)

// QuotaDecision is the outcome of a resource limit check.
type QuotaDecision struct {
	Allowed         bool
	Kind            ResourceKind
	Usage           int
	Limit           int
	UpgradeRequired bool
}

// UsageCounter reports live resource usage. The Redis implementation lives
// in usage.go.
type UsageCounter interface {
	CurrentUsage(ctx context.Context, tenantID string, kind ResourceKind) (int, error)
}

// QuotaEnforcer compares live usage against plan limits.
type QuotaEnforcer struct {
	usage  UsageCounter
	logger *slog.Logger
}

// NewQuotaEnforcer constructs a QuotaEnforcer.
func NewQuotaEnforcer(usage UsageCounter, logger *slog.Logger) *QuotaEnforcer {
	return &QuotaEnforcer{usage: usage, logger: logger}
}

// CheckResourceLimit reports whether creating one more resource of the kind
// stays within the tenant's plan. A usage lookup failure denies the request:
// over-admitting on missing data is the one mistake a quota gate cannot
// recover from.
func (q *QuotaEnforcer) CheckResourceLimit(ctx context.Context, tc *tenant.Context, kind ResourceKind) QuotaDecision {
	decision := QuotaDecision{Kind: kind, Limit: limitFor(tc.Limits, kind)}
	usage, err := q.usage.CurrentUsage(ctx, tc.ID, kind)
	if err != nil {
		q.logger.Error("usage lookup",
			slog.String("tenant_id", tc.ID),
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
		return decision
	}
	decision.Usage = usage
	decision.Allowed = usage < decision.Limit
	if !decision.Allowed {
		decision.UpgradeRequired = true
		q.logger.Info("quota exceeded",
			slog.String("tenant_id", tc.ID),
			slog.String("kind", string(kind)),
			slog.Int("usage", usage),
			slog.Int("limit", decision.Limit),
		)
	}
	return decision
}

func limitFor(l tenant.Limits, kind ResourceKind) int {
	switch kind {
	case ResourceStores:
		return l.MaxStores
	case ResourceUsersPerStore:
		return l.MaxUsersPerStore
	case ResourceCameras:
		return l.MaxCamerasPerStore
	case ResourceStorageGB:
		return l.MaxStorageGB
	case ResourceAlertsPerMonth:
		return l.MaxAlertsPerMonth
	default:
		return 0
	}
}
