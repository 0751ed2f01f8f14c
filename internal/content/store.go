package content

import (
	"sort"
	"sync"
	"time"

	"github.com/ignite/promo-gateway/internal/domain"
)

// Store holds the current content snapshot plus episodes ingested from
// remote podcast feeds. Snapshot swaps are atomic: every accessor reads
// one consistent snapshot. Drafts never leave the store.
type Store struct {
	mu       sync.RWMutex
	snap     *Snapshot
	ingested map[string][]domain.Episode // by site key
}

// NewStore creates an empty store. Accessors are safe to call before the
// first Swap; they return empty slices.
func NewStore() *Store {
	return &Store{
		snap: &Snapshot{
			Sites:    map[string]*SiteContent{},
			LoadedAt: time.Time{},
		},
		ingested: make(map[string][]domain.Episode),
	}
}

// Swap replaces the current snapshot.
func (s *Store) Swap(snap *Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Snapshot returns the current snapshot.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// SetIngested replaces the remotely ingested episodes of a site. Ingested
// episodes survive content resyncs; they live beside the snapshot.
func (s *Store) SetIngested(site string, episodes []domain.Episode) {
	s.mu.Lock()
	s.ingested[site] = episodes
	s.mu.Unlock()
}

func (s *Store) site(key string) (*SiteContent, []domain.Episode) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc := s.snap.Sites[key]
	if sc == nil {
		sc = &SiteContent{}
	}
	return sc, s.ingested[key]
}

// Posts returns the published posts of a site, newest first. Drafts and
// future-dated posts are excluded.
func (s *Store) Posts(site string, now time.Time) []domain.Post {
	sc, _ := s.site(site)
	out := make([]domain.Post, 0, len(sc.Posts))
	for _, p := range sc.Posts {
		if p.Draft || p.PublishedAt.After(now) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Post returns one published post by slug.
func (s *Store) Post(site, slug string, now time.Time) (domain.Post, bool) {
	for _, p := range s.Posts(site, now) {
		if p.Slug == slug {
			return p, true
		}
	}
	return domain.Post{}, false
}

// Episodes returns the published episodes of a site, local and ingested
// merged, newest first. When a local record and an ingested one share a
// GUID or slug, the local record wins.
func (s *Store) Episodes(site string, now time.Time) []domain.Episode {
	sc, ingested := s.site(site)

	seen := make(map[string]bool, len(sc.Episodes))
	out := make([]domain.Episode, 0, len(sc.Episodes)+len(ingested))
	for _, e := range sc.Episodes {
		if e.Draft || e.PublishedAt.After(now) {
			continue
		}
		out = append(out, e)
		seen[e.Slug] = true
		if e.GUID != "" {
			seen[e.GUID] = true
		}
	}
	for _, e := range ingested {
		if e.PublishedAt.After(now) {
			continue
		}
		if seen[e.Slug] || (e.GUID != "" && seen[e.GUID]) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.After(out[j].PublishedAt)
	})
	return out
}

// Episode returns one published episode by slug.
func (s *Store) Episode(site, slug string, now time.Time) (domain.Episode, bool) {
	for _, e := range s.Episodes(site, now) {
		if e.Slug == slug {
			return e, true
		}
	}
	return domain.Episode{}, false
}

// Campaigns returns the non-draft campaigns of a site in priority order,
// regardless of window. Use ActiveCampaigns for the live subset.
func (s *Store) Campaigns(site string) []domain.Campaign {
	sc, _ := s.site(site)
	out := make([]domain.Campaign, 0, len(sc.Campaigns))
	for _, c := range sc.Campaigns {
		if c.Draft {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ActiveCampaigns returns the campaigns whose window contains now.
func (s *Store) ActiveCampaigns(site string, now time.Time) []domain.Campaign {
	all := s.Campaigns(site)
	out := make([]domain.Campaign, 0, len(all))
	for _, c := range all {
		if c.ActiveAt(now) {
			out = append(out, c)
		}
	}
	return out
}

// Coupons returns the non-draft coupons of a site, featured first.
func (s *Store) Coupons(site string) []domain.Coupon {
	sc, _ := s.site(site)
	out := make([]domain.Coupon, 0, len(sc.Coupons))
	for _, c := range sc.Coupons {
		if c.Draft {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ActiveCoupons returns the coupons whose window contains now.
func (s *Store) ActiveCoupons(site string, now time.Time) []domain.Coupon {
	all := s.Coupons(site)
	out := make([]domain.Coupon, 0, len(all))
	for _, c := range all {
		if c.ActiveAt(now) {
			out = append(out, c)
		}
	}
	return out
}

// StaticRedirects returns the file-defined redirects of a site.
func (s *Store) StaticRedirects(site string) []domain.Redirect {
	sc, _ := s.site(site)
	return sc.Static
}
