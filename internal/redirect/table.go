package redirect

import (
	"fmt"
	"log"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/osteele/liquid"

	"github.com/ignite/promo-gateway/internal/domain"
)

// SiteInput is everything the builder needs for one site: the
// file-defined static entries, the promo records that declare redirects,
// and the admin-managed rows from Postgres.
type SiteInput struct {
	Key       string
	BaseURL   string
	Title     string
	Static    []domain.Redirect
	Campaigns []domain.Campaign
	Coupons   []domain.Coupon
	Managed   []domain.ManagedRedirect
}

// Table is an immutable, fully-resolved redirect table. A path maps to a
// list of candidates in precedence order; the first candidate whose
// window contains the request time wins. Promo entries are additionally
// indexed by slug for /go/{slug} short links, which stay stable when a
// promo's path changes. Tables are built whole and swapped into the
// resolver, never mutated.
type Table struct {
	sites   map[string]map[string][]domain.Redirect
	refs    map[string]map[string][]domain.Redirect
	builtAt time.Time
	entries int
}

// Stats summarizes a built table for logging and health checks.
type Stats struct {
	Sites   int       `json:"sites"`
	Entries int       `json:"entries"`
	BuiltAt time.Time `json:"built_at"`
}

// Stats returns the table's summary.
func (t *Table) Stats() Stats {
	return Stats{Sites: len(t.sites), Entries: t.entries, BuiltAt: t.builtAt}
}

// BuiltAt returns when the table was assembled.
func (t *Table) BuiltAt() time.Time { return t.builtAt }

// Build assembles a table from per-site inputs. Invalid entries (bad
// path, reserved path, destination that fails to render or parse) are
// dropped with a warning; they never fail the build. Destination URLs
// may use Liquid templating with the site and record in scope:
//
//	destination: "{{ site.base_url }}/coupons/{{ slug }}"
//	destination: "https://partner.example/track?code={{ code | urlencode }}"
func Build(inputs []SiteInput) *Table {
	t := &Table{
		sites:   make(map[string]map[string][]domain.Redirect, len(inputs)),
		refs:    make(map[string]map[string][]domain.Redirect, len(inputs)),
		builtAt: time.Now(),
	}
	tpl := newDestTemplater()

	for _, in := range inputs {
		bucket := make(map[string][]domain.Redirect)
		refBucket := make(map[string][]domain.Redirect)
		siteCtx := map[string]interface{}{
			"key":      in.Key,
			"base_url": in.BaseURL,
			"title":    in.Title,
		}

		for _, r := range in.Managed {
			if !r.Active {
				continue
			}
			entry := domain.Redirect{
				Site:        in.Key,
				Path:        r.Path,
				Destination: r.Destination,
				Source:      domain.SourceManaged,
				Ref:         r.ID,
				Permanent:   r.Permanent,
				Window:      domain.Window{Start: r.StartsAt, End: r.EndsAt},
				UTM:         r.UTM,
			}
			addEntry(bucket, tpl, entry, map[string]interface{}{"site": siteCtx})
		}

		for _, r := range in.Static {
			entry := r
			entry.Site = in.Key
			entry.Source = domain.SourceStatic
			addEntry(bucket, tpl, entry, map[string]interface{}{"site": siteCtx})
		}

		for _, c := range in.Campaigns {
			if c.Redirect == nil || c.Draft {
				continue
			}
			entry := domain.Redirect{
				Site:        in.Key,
				Path:        c.Redirect.Path,
				Destination: c.Redirect.Destination,
				Source:      domain.SourcePromo,
				Kind:        domain.PromoCampaign,
				Ref:         c.Slug,
				Priority:    c.Priority,
				Window:      c.Window,
				UTM:         c.Redirect.UTM,
			}
			ctx := map[string]interface{}{
				"site":  siteCtx,
				"slug":  c.Slug,
				"title": c.Title,
			}
			if e, ok := addEntry(bucket, tpl, entry, ctx); ok {
				ref := strings.ToLower(e.Ref)
				refBucket[ref] = append(refBucket[ref], e)
			}
		}

		for _, c := range in.Coupons {
			if c.Redirect == nil || c.Draft {
				continue
			}
			entry := domain.Redirect{
				Site:        in.Key,
				Path:        c.Redirect.Path,
				Destination: c.Redirect.Destination,
				Source:      domain.SourcePromo,
				Kind:        domain.PromoCoupon,
				Ref:         c.Slug,
				Priority:    c.Priority,
				Window:      c.Window,
				UTM:         c.Redirect.UTM,
			}
			ctx := map[string]interface{}{
				"site":     siteCtx,
				"slug":     c.Slug,
				"title":    c.Title,
				"merchant": c.Merchant,
				"code":     c.Code,
			}
			if e, ok := addEntry(bucket, tpl, entry, ctx); ok {
				ref := strings.ToLower(e.Ref)
				refBucket[ref] = append(refBucket[ref], e)
			}
		}

		for path, candidates := range bucket {
			sortCandidates(candidates)
			if len(candidates) > 1 {
				log.Printf("[Redirects] %s: %d entries share %s; serving by precedence (%s first)",
					in.Key, len(candidates), path, candidates[0].Source)
			}
			t.entries += len(candidates)
		}
		for _, candidates := range refBucket {
			sortCandidates(candidates)
		}
		t.sites[in.Key] = bucket
		t.refs[in.Key] = refBucket
	}

	return t
}

func addEntry(bucket map[string][]domain.Redirect, tpl *destTemplater, entry domain.Redirect, ctx map[string]interface{}) (domain.Redirect, bool) {
	path, err := NormalizePath(entry.Path)
	if err != nil {
		log.Printf("[Redirects] Dropping %s entry %q for %s: %v", entry.Source, entry.Path, entry.Site, err)
		return domain.Redirect{}, false
	}
	if Reserved(path) {
		log.Printf("[Redirects] Dropping %s entry %s for %s: path is reserved", entry.Source, path, entry.Site)
		return domain.Redirect{}, false
	}

	dest, err := tpl.render(entry.Destination, ctx)
	if err != nil {
		log.Printf("[Redirects] Dropping %s entry %s for %s: destination template: %v", entry.Source, path, entry.Site, err)
		return domain.Redirect{}, false
	}
	if err := ValidDestination(dest); err != nil {
		log.Printf("[Redirects] Dropping %s entry %s for %s: %v", entry.Source, path, entry.Site, err)
		return domain.Redirect{}, false
	}

	entry.Path = path
	entry.Destination = dest
	bucket[path] = append(bucket[path], entry)
	return entry, true
}

// sourceRank orders candidates sharing a path: managed wins over static,
// static over promo; among promo entries campaigns beat coupons, then
// higher priority, then the later start date, then slug order.
func sourceRank(s domain.RedirectSource) int {
	switch s {
	case domain.SourceManaged:
		return 0
	case domain.SourceStatic:
		return 1
	default:
		return 2
	}
}

func kindRank(k domain.PromoKind) int {
	if k == domain.PromoCampaign {
		return 0
	}
	return 1
}

func sortCandidates(candidates []domain.Redirect) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if ra, rb := sourceRank(a.Source), sourceRank(b.Source); ra != rb {
			return ra < rb
		}
		if a.Source == domain.SourcePromo {
			if ka, kb := kindRank(a.Kind), kindRank(b.Kind); ka != kb {
				return ka < kb
			}
			if a.Priority != b.Priority {
				return a.Priority > b.Priority
			}
			as, bs := windowStart(a), windowStart(b)
			if !as.Equal(bs) {
				return as.After(bs)
			}
		}
		return a.Ref < b.Ref
	})
}

func windowStart(r domain.Redirect) time.Time {
	if r.Window.Start == nil {
		return time.Time{}
	}
	return *r.Window.Start
}

// ValidDestination accepts absolute http(s) URLs and site-relative paths.
// Anything else (other schemes, protocol-relative URLs) is rejected.
func ValidDestination(dest string) error {
	if dest == "" {
		return fmt.Errorf("empty destination")
	}
	if strings.HasPrefix(dest, "/") {
		if strings.HasPrefix(dest, "//") {
			return fmt.Errorf("protocol-relative destination %q not allowed", dest)
		}
		return nil
	}
	u, err := url.Parse(dest)
	if err != nil {
		return fmt.Errorf("destination %q: %w", dest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("destination %q: scheme must be http or https", dest)
	}
	if u.Host == "" {
		return fmt.Errorf("destination %q: missing host", dest)
	}
	return nil
}

// destTemplater renders destination URL templates once at build time.
// Plain destinations skip the engine entirely.
type destTemplater struct {
	engine *liquid.Engine
}

func newDestTemplater() *destTemplater {
	engine := liquid.NewEngine()

	// URL encode: {{ code | urlencode }}
	engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	// Default value filter: {{ merchant | default: "partner" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	return &destTemplater{engine: engine}
}

func (dt *destTemplater) render(dest string, ctx map[string]interface{}) (string, error) {
	if !strings.Contains(dest, "{{") && !strings.Contains(dest, "{%") {
		return dest, nil
	}
	out, err := dt.engine.ParseAndRenderString(dest, ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
