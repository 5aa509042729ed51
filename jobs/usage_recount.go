package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storewatch/storewatch/internal/gate"
)

// usageQueries maps each counted resource kind to the query producing
// per-tenant totals. Storage and alert counters are maintained by their own
// pipelines and are not rebuilt here.
var usageQueries = map[gate.ResourceKind]string{
	gate.ResourceStores:  `SELECT tenant_id, COUNT(*) FROM stores WHERE active GROUP BY tenant_id`,
	gate.ResourceCameras: `SELECT s.tenant_id, COUNT(c.id) FROM cameras c JOIN stores s ON s.id = c.store_id GROUP BY s.tenant_id`,
	gate.ResourceUsersPerStore: `
SELECT s.tenant_id, COUNT(su.user_id)
FROM store_users su JOIN stores s ON s.id = su.store_id
GROUP BY s.tenant_id`,
}

// UsageRecounter rebuilds the Redis usage counters from the store of record.
// Counters drift when handlers crash between a write and its increment; the
// nightly recount bounds that drift.
type UsageRecounter struct {
	pool    *pgxpool.Pool
	counter *gate.RedisUsageCounter
	logger  *slog.Logger
}

// NewUsageRecounter constructs a UsageRecounter.
func NewUsageRecounter(pool *pgxpool.Pool, counter *gate.RedisUsageCounter, logger *slog.Logger) *UsageRecounter {
	return &UsageRecounter{pool: pool, counter: counter, logger: logger}
}

// Handle processes TaskUsageRecount tasks.
func (u *UsageRecounter) Handle(ctx context.Context, t *asynq.Task) error {
	var payload UsageRecountPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	for kind, query := range usageQueries {
		if err := u.recount(ctx, kind, query, payload.TenantID); err != nil {
			return fmt.Errorf("recount %s: %w", kind, err)
		}
	}
	u.logger.Info("usage recount complete", slog.String("tenant_id", payload.TenantID))
	return nil
}

func (u *UsageRecounter) recount(ctx context.Context, kind gate.ResourceKind, query, tenantID string) error {
	rows, err := u.pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			tenant string
			count  int
		)
		if err := rows.Scan(&tenant, &count); err != nil {
			return err
		}
		if tenantID != "" && tenant != tenantID {
			continue
		}
		if err := u.counter.Set(ctx, tenant, kind, count); err != nil {
			return err
		}
	}
	return rows.Err()
}
