package tenant

import (
	"context"
	"errors"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = errors.New("tenant: not found")

// Directory provides read access to tenant and store records. Implemented by
// the PostgreSQL repository in production and by stubs in tests.
type Directory interface {
	// ResolveTenant looks a tenant up by id or slug.
	ResolveTenant(ctx context.Context, identifier string) (*Context, error)
	// ResolveStore looks a store up by id, regardless of owning tenant.
	ResolveStore(ctx context.Context, storeID string) (*StoreContext, error)
}
