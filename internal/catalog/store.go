package catalog

import (
	"context"
	"time"
)

// Query is the store-level form of a list request.
type Query struct {
	Search     string
	ActiveOnly bool
	Offset     int
	Limit      int
}

// Store persists entries. Implementations must enforce title uniqueness
// themselves and report collisions as ErrConflict; the service's pre-check
// only exists for a friendlier error.
type Store interface {
	Ping(ctx context.Context) error

	// List returns one page ordered by created_at DESC, id ASC, plus the total
	// number of matches.
	List(ctx context.Context, q Query) ([]Entry, int, error)
	Get(ctx context.Context, id string) (Entry, error)
	TitleTaken(ctx context.Context, title, excludeID string) (bool, error)

	// Create assigns the id.
	Create(ctx context.Context, e Entry) (Entry, error)
	// Replace overwrites every mutable field of e.ID.
	Replace(ctx context.Context, e Entry) (Entry, error)
	// Apply sets the non-nil fields of p and updated_at = at.
	Apply(ctx context.Context, id string, p Patch, at time.Time) (Entry, error)
	Delete(ctx context.Context, id string) error

	BulkSetActive(ctx context.Context, ids []string, active bool, at time.Time) (int64, error)
	BulkDelete(ctx context.Context, ids []string) (int64, error)
}
