package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/storewatch/storewatch/internal/tenant"
)

// TenantInvalidator evicts mutated tenants from the context cache so the
// next request re-reads the directory instead of waiting out the TTL.
type TenantInvalidator struct {
	cache  *tenant.ContextCache
	logger *slog.Logger
}

// NewTenantInvalidator constructs a TenantInvalidator.
func NewTenantInvalidator(cache *tenant.ContextCache, logger *slog.Logger) *TenantInvalidator {
	return &TenantInvalidator{cache: cache, logger: logger}
}

// Handle processes TaskTenantInvalidate tasks.
func (t *TenantInvalidator) Handle(ctx context.Context, task *asynq.Task) error {
	var payload TenantInvalidatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.TenantID == "" {
		t.cache.InvalidateAll()
	} else {
		t.cache.InvalidateTenant(payload.TenantID)
	}
	t.logger.Info("tenant cache invalidated", slog.String("tenant_id", payload.TenantID))
	return nil
}
