package redirect

import (
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ignite/promo-gateway/internal/domain"
)

// Paths the gateway serves itself; redirect entries may never claim them.
var reservedExact = map[string]bool{
	"/":            true,
	"/sitemap.xml": true,
	"/feed.xml":    true,
	"/podcast.xml": true,
	"/robots.txt":  true,
}

var reservedPrefixes = []string{"/api", "/auth", "/health", "/go"}

// Reserved reports whether a normalized path belongs to the gateway's
// own surface and therefore cannot be used as a redirect path.
func Reserved(path string) bool {
	if reservedExact[path] {
		return true
	}
	for _, prefix := range reservedPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// NormalizePath canonicalizes a redirect path for lookup: lowercase,
// leading slash enforced, duplicate slashes collapsed, trailing slash
// stripped. Matching is case-insensitive so /SUMMER and /summer are the
// same entry.
func NormalizePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	p = strings.ToLower(p)
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			p = "/"
		}
	}
	if p == "/" {
		return "", fmt.Errorf("root path cannot redirect")
	}
	return p, nil
}

// Resolution is the answer for one request: where to send the visitor
// and with what status. CacheControl is set for windowed entries so
// intermediaries never cache an answer that expires.
type Resolution struct {
	Redirect     domain.Redirect
	Location     string
	Status       int
	CacheControl string
}

// Resolver holds the current table and answers lookups. Swap installs a
// freshly built table atomically; in-flight resolves finish against the
// table they started with.
type Resolver struct {
	mu    sync.RWMutex
	table *Table
}

// NewResolver returns a resolver with an empty table, safe to query
// before the first Swap.
func NewResolver() *Resolver {
	return &Resolver{table: Build(nil)}
}

// Swap installs a new table.
func (r *Resolver) Swap(t *Table) {
	if t == nil {
		return
	}
	r.mu.Lock()
	r.table = t
	r.mu.Unlock()
}

// Stats reports the current table's summary.
func (r *Resolver) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table.Stats()
}

// Resolve answers a request against the current table. The window check
// happens here, at request time, so an entry whose window opened or
// closed since the last table build still answers correctly.
func (r *Resolver) Resolve(site, rawPath string, query url.Values, now time.Time) (*Resolution, bool) {
	r.mu.RLock()
	t := r.table
	r.mu.RUnlock()
	return t.Resolve(site, rawPath, query, now)
}

// Resolve looks up a path in this table. See Resolver.Resolve.
func (t *Table) Resolve(site, rawPath string, query url.Values, now time.Time) (*Resolution, bool) {
	path, err := NormalizePath(rawPath)
	if err != nil || Reserved(path) {
		return nil, false
	}
	bucket, ok := t.sites[site]
	if !ok {
		return nil, false
	}
	candidates, ok := bucket[path]
	if !ok {
		return nil, false
	}
	for _, entry := range candidates {
		if !entry.ActiveAt(now) {
			continue
		}
		location, err := MergeDestination(entry.Destination, entry.UTM, query)
		if err != nil {
			continue
		}
		res := &Resolution{
			Redirect: entry,
			Location: location,
			Status:   http.StatusFound,
		}
		if entry.Permanent && !entry.Windowed() && entry.Source != domain.SourcePromo {
			res.Status = http.StatusMovedPermanently
		}
		if entry.Windowed() || entry.Source == domain.SourcePromo {
			res.CacheControl = "no-store"
		}
		return res, true
	}
	return nil, false
}

// ResolveRef answers a /go/{slug} short link against the current table.
func (r *Resolver) ResolveRef(site, ref string, query url.Values, now time.Time) (*Resolution, bool) {
	r.mu.RLock()
	t := r.table
	r.mu.RUnlock()
	return t.ResolveRef(site, ref, query, now)
}

// ResolveRef looks up a promo by slug. Short links serve promo entries
// only, so the answer is always a temporary redirect marked no-store.
func (t *Table) ResolveRef(site, ref string, query url.Values, now time.Time) (*Resolution, bool) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return nil, false
	}
	bucket, ok := t.refs[site]
	if !ok {
		return nil, false
	}
	for _, entry := range bucket[ref] {
		if !entry.ActiveAt(now) {
			continue
		}
		location, err := MergeDestination(entry.Destination, entry.UTM, query)
		if err != nil {
			continue
		}
		return &Resolution{
			Redirect:     entry,
			Location:     location,
			Status:       http.StatusFound,
			CacheControl: "no-store",
		}, true
	}
	return nil, false
}

// ExportEntry is one row of a site's redirect map as served to edge
// workers and the admin API. Destinations carry the entry's default UTM
// parameters already merged.
type ExportEntry struct {
	Path        string                `json:"path"`
	Destination string                `json:"destination"`
	Status      int                   `json:"status"`
	Source      domain.RedirectSource `json:"source"`
	Ref         string                `json:"ref,omitempty"`
	ExpiresAt   *time.Time            `json:"expires_at,omitempty"`
}

// Export lists the entries currently active for a site, one per path,
// in path order. Entries whose windows are closed at now are omitted;
// edges that consume the export are expected to re-fetch after a
// republish rather than evaluate windows themselves.
func (r *Resolver) Export(site string, now time.Time) []ExportEntry {
	r.mu.RLock()
	t := r.table
	r.mu.RUnlock()

	bucket, ok := t.sites[site]
	if !ok {
		return nil
	}
	out := make([]ExportEntry, 0, len(bucket))
	for path, candidates := range bucket {
		for _, entry := range candidates {
			if !entry.ActiveAt(now) {
				continue
			}
			dest, err := MergeDestination(entry.Destination, entry.UTM, nil)
			if err != nil {
				continue
			}
			status := http.StatusFound
			if entry.Permanent && !entry.Windowed() && entry.Source != domain.SourcePromo {
				status = http.StatusMovedPermanently
			}
			out = append(out, ExportEntry{
				Path:        path,
				Destination: dest,
				Status:      status,
				Source:      entry.Source,
				Ref:         entry.Ref,
				ExpiresAt:   entry.Window.End,
			})
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
