package audit

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository writes entries into permission_audit_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertQuery = `
INSERT INTO permission_audit_logs
  (id, actor_id, roles, action, resource_type, resource_id, tenant_id, store_id,
   granted, reason, latency_ms, client_ip, session_id, occurred_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

// Insert persists one entry. Entries are append-only; there is no update or
// delete statement in this package.
func (r *Repository) Insert(ctx context.Context, entry Entry) error {
	_, err := r.pool.Exec(ctx, insertQuery,
		entry.ID, entry.ActorID, entry.Roles, entry.Action,
		entry.ResourceType, entry.ResourceID, entry.TenantID, entry.StoreID,
		entry.Granted, entry.Reason, entry.Latency.Milliseconds(),
		entry.ClientIP, entry.SessionID, entry.At,
	)
	return err
}
