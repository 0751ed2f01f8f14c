// Package sitemap renders per-site sitemap.xml documents from the loaded
// content collections. Only pages a visitor can actually reach make it in:
// drafts, unpublished posts, and promos outside their activity window are
// excluded at generation time.
package sitemap

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/ignite/promo-gateway/internal/config"
	"github.com/ignite/promo-gateway/internal/domain"
)

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

type urlset struct {
	XMLName xml.Name   `xml:"urlset"`
	NS      string     `xml:"xmlns,attr"`
	URLs    []urlEntry `xml:"url"`
}

type urlEntry struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq,omitempty"`
	Priority   string `xml:"priority,omitempty"`
}

// Input carries one site's collections. Callers may pass unfiltered
// slices; Generate applies visibility rules itself.
type Input struct {
	Posts     []domain.Post
	Episodes  []domain.Episode
	Campaigns []domain.Campaign
	Coupons   []domain.Coupon
}

// Generate renders the sitemap for one site.
func Generate(site config.SiteConfig, in Input, now time.Time) ([]byte, error) {
	set := urlset{NS: sitemapNS}

	set.URLs = append(set.URLs, urlEntry{
		Loc:        site.BaseURL + "/",
		ChangeFreq: "daily",
		Priority:   "1.0",
	})
	for _, p := range site.StaticPages {
		set.URLs = append(set.URLs, urlEntry{
			Loc:        site.BaseURL + p,
			ChangeFreq: "monthly",
			Priority:   "0.5",
		})
	}

	for _, p := range in.Posts {
		if p.Draft || p.PublishedAt.IsZero() || p.PublishedAt.After(now) {
			continue
		}
		set.URLs = append(set.URLs, urlEntry{
			Loc:        site.BaseURL + "/blog/" + p.Slug,
			LastMod:    lastMod(p.UpdatedAt, p.PublishedAt),
			ChangeFreq: "weekly",
			Priority:   "0.7",
		})
	}

	for _, e := range in.Episodes {
		if e.Draft {
			continue
		}
		set.URLs = append(set.URLs, urlEntry{
			Loc:        site.BaseURL + "/podcast/" + e.Slug,
			LastMod:    lastMod(nil, e.PublishedAt),
			ChangeFreq: "monthly",
			Priority:   "0.6",
		})
	}

	for _, c := range in.Campaigns {
		if !c.ActiveAt(now) {
			continue
		}
		set.URLs = append(set.URLs, urlEntry{
			Loc:        site.BaseURL + "/campaigns/" + c.Slug,
			ChangeFreq: "daily",
			Priority:   "0.8",
		})
	}

	for _, c := range in.Coupons {
		if !c.ActiveAt(now) {
			continue
		}
		set.URLs = append(set.URLs, urlEntry{
			Loc:        site.BaseURL + "/coupons/" + c.Slug,
			ChangeFreq: "daily",
			Priority:   "0.8",
		})
	}

	body, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render sitemap: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

func lastMod(updated *time.Time, published time.Time) string {
	if updated != nil {
		return updated.UTC().Format("2006-01-02")
	}
	if !published.IsZero() {
		return published.UTC().Format("2006-01-02")
	}
	return ""
}
