package content

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ignite/promo-gateway/internal/config"
	"github.com/ignite/promo-gateway/internal/domain"
)

// SiteContent holds every collection of one site, plus its file-defined
// static redirects.
type SiteContent struct {
	Posts     []domain.Post
	Episodes  []domain.Episode
	Campaigns []domain.Campaign
	Coupons   []domain.Coupon
	Static    []domain.Redirect
}

// Snapshot is one complete load of the content tree. Snapshots are
// immutable once built; the store swaps whole snapshots so readers never
// see a half-loaded tree.
type Snapshot struct {
	Sites    map[string]*SiteContent
	LoadedAt time.Time
	Records  int
	Skipped  int
}

// Loader reads the per-site content tree:
//
//	<root>/<site>/posts/*.md
//	<root>/<site>/episodes/*.md
//	<root>/<site>/campaigns/*.md
//	<root>/<site>/coupons/*.md
//	<root>/<site>/redirects.yaml
//
// A record that fails to parse is skipped with a warning; a missing
// collection directory is an empty collection. Neither fails the load.
type Loader struct {
	root       string
	staticFile string
	sites      []config.SiteConfig
}

// NewLoader creates a loader for the configured content root and sites.
func NewLoader(cfg config.ContentConfig, sites []config.SiteConfig) *Loader {
	return &Loader{
		root:       cfg.Root,
		staticFile: cfg.StaticRedirectsFile,
		sites:      sites,
	}
}

// Load walks the content tree and builds a fresh snapshot.
func (l *Loader) Load() (*Snapshot, error) {
	snap := &Snapshot{
		Sites:    make(map[string]*SiteContent, len(l.sites)),
		LoadedAt: time.Now(),
	}

	if _, err := os.Stat(l.root); err != nil {
		log.Printf("[Content] Warning: content root %s not readable: %v (serving empty collections)", l.root, err)
		for _, site := range l.sites {
			snap.Sites[site.Key] = &SiteContent{}
		}
		return snap, nil
	}

	for _, site := range l.sites {
		sc := l.loadSite(site, snap)
		snap.Sites[site.Key] = sc
	}

	log.Printf("[Content] Loaded %d records across %d sites (%d skipped) in %s",
		snap.Records, len(snap.Sites), snap.Skipped, time.Since(snap.LoadedAt).Round(time.Millisecond))
	return snap, nil
}

func (l *Loader) loadSite(site config.SiteConfig, snap *Snapshot) *SiteContent {
	sc := &SiteContent{}
	siteDir := filepath.Join(l.root, site.Key)
	if _, err := os.Stat(siteDir); err != nil {
		log.Printf("[Content] Warning: no content directory for site %s (looked in %s)", site.Key, siteDir)
		return sc
	}

	loc := site.Location()
	for _, coll := range domain.AllCollections {
		files, err := collectRecordFiles(filepath.Join(siteDir, string(coll)))
		if err != nil {
			log.Printf("[Content] Warning: site %s has no %s collection: %v", site.Key, coll, err)
			continue
		}
		for _, f := range files {
			if err := l.loadRecord(sc, site.Key, coll, f, loc); err != nil {
				log.Printf("[Content] Skipping %s/%s/%s: %v", site.Key, coll, f.slug, err)
				snap.Skipped++
				continue
			}
			snap.Records++
		}
	}

	sc.Static = l.loadStaticRedirects(site.Key, siteDir)
	sortSiteContent(sc)
	return sc
}

type recordFile struct {
	path string
	slug string
}

// collectRecordFiles gathers the .md/.mdx files of one collection
// directory. Nested directories contribute to the slug, so
// coupons/solera/10-off.md becomes slug "solera/10-off". Names starting
// with "_" or "." are editor scratch files and are ignored.
func collectRecordFiles(dir string) ([]recordFile, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, err
	}
	var files []recordFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".md" && ext != ".mdx" {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		slug := strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
		files = append(files, recordFile{path: path, slug: strings.ToLower(slug)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].slug < files[j].slug })
	return files, nil
}

func (l *Loader) loadRecord(sc *SiteContent, siteKey string, coll domain.Collection, f recordFile, loc *time.Location) error {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	fm, body, err := parseFrontmatter(raw)
	if err != nil {
		return err
	}

	switch coll {
	case domain.CollectionPosts:
		p, err := buildPost(siteKey, f.slug, fm, body, loc)
		if err != nil {
			return err
		}
		sc.Posts = append(sc.Posts, p)
	case domain.CollectionEpisodes:
		e, err := buildEpisode(siteKey, f.slug, fm, body, loc)
		if err != nil {
			return err
		}
		sc.Episodes = append(sc.Episodes, e)
	case domain.CollectionCampaigns:
		c, err := buildCampaign(siteKey, f.slug, fm, body, loc)
		if err != nil {
			return err
		}
		sc.Campaigns = append(sc.Campaigns, c)
	case domain.CollectionCoupons:
		c, err := buildCoupon(siteKey, f.slug, fm, body, loc)
		if err != nil {
			return err
		}
		sc.Coupons = append(sc.Coupons, c)
	default:
		return fmt.Errorf("unknown collection %q", coll)
	}
	return nil
}

type staticRedirectsFile struct {
	Redirects []struct {
		Path        string           `yaml:"path"`
		Destination string           `yaml:"destination"`
		Permanent   bool             `yaml:"permanent"`
		UTM         domain.UTMParams `yaml:"utm"`
	} `yaml:"redirects"`
}

// loadStaticRedirects reads the site's redirects.yaml. A missing file is
// normal; malformed entries are skipped with a warning.
func (l *Loader) loadStaticRedirects(siteKey, siteDir string) []domain.Redirect {
	path := filepath.Join(siteDir, l.staticFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Content] Warning: site %s: reading %s: %v", siteKey, l.staticFile, err)
		}
		return nil
	}

	var file staticRedirectsFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		log.Printf("[Content] Warning: site %s: parsing %s: %v (static redirects disabled)", siteKey, l.staticFile, err)
		return nil
	}

	out := make([]domain.Redirect, 0, len(file.Redirects))
	for i, entry := range file.Redirects {
		if !strings.HasPrefix(entry.Path, "/") || strings.TrimSpace(entry.Destination) == "" {
			log.Printf("[Content] Warning: site %s: %s entry %d needs a /path and a destination, skipped", siteKey, l.staticFile, i)
			continue
		}
		out = append(out, domain.Redirect{
			Site:        siteKey,
			Path:        entry.Path,
			Destination: strings.TrimSpace(entry.Destination),
			Source:      domain.SourceStatic,
			Permanent:   entry.Permanent,
			UTM:         entry.UTM,
		})
	}
	return out
}

func sortSiteContent(sc *SiteContent) {
	sort.SliceStable(sc.Posts, func(i, j int) bool {
		return sc.Posts[i].PublishedAt.After(sc.Posts[j].PublishedAt)
	})
	sort.SliceStable(sc.Episodes, func(i, j int) bool {
		return sc.Episodes[i].PublishedAt.After(sc.Episodes[j].PublishedAt)
	})
	sort.SliceStable(sc.Campaigns, func(i, j int) bool {
		a, b := sc.Campaigns[i], sc.Campaigns[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.Slug < b.Slug
	})
	sort.SliceStable(sc.Coupons, func(i, j int) bool {
		a, b := sc.Coupons[i], sc.Coupons[j]
		if a.Featured != b.Featured {
			return a.Featured
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Merchant != b.Merchant {
			return a.Merchant < b.Merchant
		}
		return a.Slug < b.Slug
	})
}
