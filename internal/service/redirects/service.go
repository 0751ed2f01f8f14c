package redirects

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/promo-gateway/internal/domain"
	"github.com/ignite/promo-gateway/internal/redirect"
)

// Service implements managed redirect business logic. All public
// methods are safe for concurrent use if the underlying repository is
// concurrency-safe.
type Service struct {
	repo  Repository
	sites map[string]bool
}

// NewService creates a redirect service backed by the given repository.
// siteKeys is the set of sites redirects may be created for.
func NewService(repo Repository, siteKeys []string) *Service {
	sites := make(map[string]bool, len(siteKeys))
	for _, k := range siteKeys {
		sites[k] = true
	}
	return &Service{repo: repo, sites: sites}
}

// CreateInput holds the fields for creating a new managed redirect.
type CreateInput struct {
	Site        string           `json:"site"`
	Path        string           `json:"path"`
	Destination string           `json:"destination"`
	Permanent   bool             `json:"permanent"`
	StartsAt    *time.Time       `json:"starts_at"`
	EndsAt      *time.Time       `json:"ends_at"`
	UTM         domain.UTMParams `json:"utm"`
	Notes       string           `json:"notes"`
	CreatedBy   string           `json:"-"`
}

// Create validates and persists a new managed redirect. The path is
// normalized before storage so lookups and duplicate checks are
// case-insensitive.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.ManagedRedirect, error) {
	if !s.sites[input.Site] {
		return nil, ErrUnknownSite
	}

	path, err := redirect.NormalizePath(input.Path)
	if err != nil {
		return nil, fmt.Errorf("path: %w", err)
	}
	if redirect.Reserved(path) {
		return nil, ErrPathReserved
	}
	if err := redirect.ValidDestination(input.Destination); err != nil {
		return nil, err
	}
	if input.StartsAt != nil && input.EndsAt != nil && !input.EndsAt.After(*input.StartsAt) {
		return nil, ErrInvalidWindow
	}

	if _, err := s.repo.GetByPath(ctx, input.Site, path); err == nil {
		return nil, ErrDuplicatePath
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	r := &domain.ManagedRedirect{
		ID:          uuid.New().String(),
		Site:        input.Site,
		Path:        path,
		Destination: input.Destination,
		Permanent:   input.Permanent,
		Active:      true,
		StartsAt:    input.StartsAt,
		EndsAt:      input.EndsAt,
		UTM:         input.UTM,
		Notes:       input.Notes,
		CreatedBy:   input.CreatedBy,
	}

	id, err := s.repo.Create(ctx, r)
	if err != nil {
		return nil, err
	}
	r.ID = id

	log.Printf("[redirects.Service] Created %s%s -> %s", r.Site, r.Path, r.Destination)
	return r, nil
}

// Get returns a single managed redirect.
func (s *Service) Get(ctx context.Context, id string) (*domain.ManagedRedirect, error) {
	return s.repo.Get(ctx, id)
}

// List returns redirects matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) ([]domain.ManagedRedirect, int, error) {
	return s.repo.List(ctx, f)
}

// ListActive returns every active redirect for the configured sites,
// for the table builder.
func (s *Service) ListActive(ctx context.Context) ([]domain.ManagedRedirect, error) {
	keys := make([]string, 0, len(s.sites))
	for k := range s.sites {
		keys = append(keys, k)
	}
	return s.repo.ListActive(ctx, keys)
}

// Update modifies mutable redirect fields. Window ordering is only
// checked when the update carries both bounds; partial window edits are
// left to the operator.
func (s *Service) Update(ctx context.Context, id string, u UpdateFields) error {
	if u.Destination != nil {
		if err := redirect.ValidDestination(*u.Destination); err != nil {
			return err
		}
	}
	if !u.ClearWindow && u.StartsAt != nil && u.EndsAt != nil && !u.EndsAt.After(*u.StartsAt) {
		return ErrInvalidWindow
	}
	return s.repo.Update(ctx, id, u)
}

// Delete removes a managed redirect.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}
