package redirects

import (
	"context"
	"time"

	"github.com/ignite/promo-gateway/internal/domain"
)

// Repository defines the data access contract for managed redirects.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single redirect. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.ManagedRedirect, error)

	// GetByPath returns the redirect claiming a normalized path on a site,
	// or ErrNotFound.
	GetByPath(ctx context.Context, site, path string) (*domain.ManagedRedirect, error)

	// List returns redirects matching the filter, ordered by created_at DESC.
	List(ctx context.Context, f ListFilter) ([]domain.ManagedRedirect, int, error)

	// ListActive returns every active redirect for the given sites, for
	// the table builder. Rows for sites no longer configured are skipped.
	ListActive(ctx context.Context, sites []string) ([]domain.ManagedRedirect, error)

	// Create inserts a new redirect and returns its ID.
	Create(ctx context.Context, r *domain.ManagedRedirect) (string, error)

	// Update modifies a redirect. Only non-nil fields in the update are applied.
	Update(ctx context.Context, id string, u UpdateFields) error

	// Delete removes a redirect.
	Delete(ctx context.Context, id string) error
}

// ListFilter controls pagination and filtering for redirect lists.
type ListFilter struct {
	Site   string
	Active *bool
	Search string
	Limit  int
	Offset int
}

// UpdateFields holds the mutable fields for a redirect update.
// Nil fields are not applied. ClearWindow nulls both window bounds and
// takes precedence over StartsAt/EndsAt.
type UpdateFields struct {
	Destination *string
	Permanent   *bool
	Active      *bool
	StartsAt    *time.Time
	EndsAt      *time.Time
	ClearWindow bool
	UTM         *domain.UTMParams
	Notes       *string
}
