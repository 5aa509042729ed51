package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskUsageRecount rebuilds the live usage counters for one tenant.
	TaskUsageRecount = "usage:recount"
	// TaskTenantInvalidate drops a tenant from the context cache.
	TaskTenantInvalidate = "tenant:invalidate"
)

// UsageRecountPayload identifies the tenant whose counters to rebuild. An
// empty TenantID recounts every tenant.
type UsageRecountPayload struct {
	TenantID string `json:"tenant_id"`
}

// NewUsageRecountTask constructs an Asynq task.
func NewUsageRecountTask(payload UsageRecountPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskUsageRecount, data), nil
}

// TenantInvalidatePayload identifies the tenant to evict from the cache.
type TenantInvalidatePayload struct {
	TenantID string `json:"tenant_id"`
}

// NewTenantInvalidateTask constructs an Asynq task.
func NewTenantInvalidateTask(payload TenantInvalidatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTenantInvalidate, data), nil
}
