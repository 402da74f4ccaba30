package calendar

import (
	"context"

	"github.com/planboard/project/internal/platform/auth"
)

// Store executes table-scoped statements against the events table. It is
// the storage half of the backend client; implementations report zero
// matches as empty results, never as errors.
type Store interface {
	Select(ctx context.Context, q Query) ([]Record, error)
	// Insert assigns the id when rec has none and returns the stored row.
	Insert(ctx context.Context, rec Record) (Record, error)
	// Update applies changes to every row matching q and returns those rows.
	Update(ctx context.Context, q Query, changes Record) ([]Record, error)
	// Delete removes every row matching q and returns the removed rows.
	Delete(ctx context.Context, q Query) ([]Record, error)
}

// Authenticator resolves the principal a call runs as. A lookup error and
// an absent principal are both treated as "not authenticated".
type Authenticator interface {
	CurrentPrincipal(ctx context.Context) (auth.Principal, error)
}
