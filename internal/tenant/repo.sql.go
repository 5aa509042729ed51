package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed access to the tenant directory.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const tenantQuery = `
SELECT id, slug, plan, active,
       max_stores, max_users_per_store, max_cameras_per_store, max_storage_gb, max_alerts_per_month,
       feature_ai_detection, feature_facial_recognition, feature_behavior_analysis, feature_advanced_analytics,
       feature_multi_store_view, feature_api_access, feature_custom_roles, feature_audit_export,
       retention_days, auto_archive, guest_access, require_two_factor
FROM tenants
WHERE id = $1 OR slug = $1
LIMIT 1`

// ResolveTenant fetches a tenant by id or slug.
func (r *Repository) ResolveTenant(ctx context.Context, identifier string) (*Context, error) {
	var (
		tc   Context
		plan string
	)
	err := r.pool.QueryRow(ctx, tenantQuery, identifier).Scan(
		&tc.ID, &tc.Slug, &plan, &tc.Active,
		&tc.Limits.MaxStores, &tc.Limits.MaxUsersPerStore, &tc.Limits.MaxCamerasPerStore,
		&tc.Limits.MaxStorageGB, &tc.Limits.MaxAlertsPerMonth,
		&tc.Features.AIDetection, &tc.Features.FacialRecognition, &tc.Features.BehaviorAnalysis,
		&tc.Features.AdvancedAnalytics, &tc.Features.MultiStoreView, &tc.Features.APIAccess,
		&tc.Features.CustomRoles, &tc.Features.AuditExport,
		&tc.Settings.RetentionDays, &tc.Settings.AutoArchive, &tc.Settings.GuestAccess,
		&tc.Settings.RequireTwoFactor,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	tc.Plan = ParsePlanTier(plan)
	tc.ResolvedAt = time.Now().UTC()
	return &tc, nil
}

const storeQuery = `
SELECT s.id, s.tenant_id, s.name, s.active,
       COALESCE(array_agg(m.user_id) FILTER (WHERE m.user_id IS NOT NULL), '{}'),
       s.user_count, s.camera_count
FROM stores s
LEFT JOIN store_managers m ON m.store_id = s.id
WHERE s.id = $1
GROUP BY s.id`

// ResolveStore fetches a store by id.
func (r *Repository) ResolveStore(ctx context.Context, storeID string) (*StoreContext, error) {
	var sc StoreContext
	err := r.pool.QueryRow(ctx, storeQuery, storeID).Scan(
		&sc.ID, &sc.TenantID, &sc.Name, &sc.Active, &sc.Managers, &sc.UserCount, &sc.CameraCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &sc, nil
}
