package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one immutable permission-decision record. Entries are write-once;
// nothing in this package updates or deletes them. Retention is an external
// data-lifecycle concern.
type Entry struct {
	ID           uuid.UUID
	ActorID      string
	Roles        []string
	Action       string
	ResourceType string
	ResourceID   string
	TenantID     string
	StoreID      string
	Granted      bool
	Reason       string
	Latency      time.Duration
	ClientIP     string
	SessionID    string
	At           time.Time
}
