package content

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ignite/promo-gateway/internal/domain"
)

// Frontmatter is the YAML block between the leading "---" fences of a
// markdown/MDX record. One struct covers all four collections; collection
// builders pick the fields they require and reject records missing them.
type Frontmatter struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Author      string   `yaml:"author"`
	Tags        []string `yaml:"tags"`
	Image       string   `yaml:"image"`
	Canonical   string   `yaml:"canonical"`
	Draft       bool     `yaml:"draft"`
	Date        string   `yaml:"date"`
	Updated     string   `yaml:"updated"`

	// Episodes
	AudioURL   string `yaml:"audio_url"`
	AudioType  string `yaml:"audio_type"`
	AudioBytes int64  `yaml:"audio_bytes"`
	Duration   int    `yaml:"duration"`
	Season     int    `yaml:"season"`
	Number     int    `yaml:"number"`
	Explicit   bool   `yaml:"explicit"`

	// Campaigns / coupons
	StartDate string   `yaml:"start_date"`
	EndDate   string   `yaml:"end_date"`
	Priority  int      `yaml:"priority"`
	Merchant  string   `yaml:"merchant"`
	Code      string   `yaml:"code"`
	Discount  string   `yaml:"discount_type"`
	Value     float64  `yaml:"discount_value"`
	MinOrder  *float64 `yaml:"min_order"`
	Featured  bool     `yaml:"featured"`

	Redirect *redirectSpec `yaml:"redirect"`
}

type redirectSpec struct {
	Path        string           `yaml:"path"`
	Destination string           `yaml:"destination"`
	UTM         domain.UTMParams `yaml:"utm"`
}

var fmFence = []byte("---")

// splitFrontmatter separates the YAML frontmatter from the markdown body.
// The file must open with a "---" fence on its own line; the body is
// everything after the closing fence.
func splitFrontmatter(raw []byte) (meta []byte, body string, err error) {
	trimmed := bytes.TrimLeft(raw, "\ufeff") // tolerate a BOM
	if !bytes.HasPrefix(trimmed, fmFence) {
		return nil, "", fmt.Errorf("missing frontmatter fence")
	}
	rest := trimmed[len(fmFence):]
	if len(rest) > 0 && rest[0] == '\r' {
		rest = rest[1:]
	}
	if len(rest) == 0 || rest[0] != '\n' {
		return nil, "", fmt.Errorf("missing frontmatter fence")
	}
	rest = rest[1:]

	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, "", fmt.Errorf("unterminated frontmatter")
	}
	meta = rest[:end]
	after := rest[end+len("\n---"):]
	// Skip the remainder of the closing fence line
	if i := bytes.IndexByte(after, '\n'); i >= 0 {
		after = after[i+1:]
	} else {
		after = nil
	}
	return meta, strings.TrimSpace(string(after)), nil
}

// parseFrontmatter decodes the YAML block of a record.
func parseFrontmatter(raw []byte) (*Frontmatter, string, error) {
	meta, body, err := splitFrontmatter(raw)
	if err != nil {
		return nil, "", err
	}
	var fm Frontmatter
	if err := yaml.Unmarshal(meta, &fm); err != nil {
		return nil, "", fmt.Errorf("frontmatter: %w", err)
	}
	return &fm, body, nil
}

const dayFormat = "2006-01-02"

// parseWhen accepts either a date-only value or a full RFC3339 timestamp.
// Date-only values are anchored at midnight in the site's zone.
func parseWhen(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(dayFormat, s, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD or RFC3339)", s)
}

// parseWindow resolves the optional start_date/end_date pair into absolute
// instants. A date-only end is inclusive through the whole day: the bound
// is midnight of the following day in the site's zone.
func parseWindow(start, end string, loc *time.Location) (domain.Window, error) {
	var w domain.Window
	if start != "" {
		t, err := parseWhen(start, loc)
		if err != nil {
			return w, fmt.Errorf("start_date: %w", err)
		}
		w.Start = &t
	}
	if end != "" {
		e := strings.TrimSpace(end)
		var t time.Time
		if d, err := time.ParseInLocation(dayFormat, e, loc); err == nil {
			t = d.AddDate(0, 0, 1)
		} else if ts, err := time.Parse(time.RFC3339, e); err == nil {
			t = ts
		} else {
			return w, fmt.Errorf("end_date: invalid date %q (want YYYY-MM-DD or RFC3339)", e)
		}
		w.End = &t
	}
	if w.Start != nil && w.End != nil && !w.Start.Before(*w.End) {
		return w, fmt.Errorf("window is empty: start %s is not before end %s", start, end)
	}
	return w, nil
}

func (fm *Frontmatter) redirect() (*domain.RedirectSpec, error) {
	if fm.Redirect == nil {
		return nil, nil
	}
	path := strings.TrimSpace(fm.Redirect.Path)
	if path == "" || !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("redirect.path must start with /")
	}
	if strings.TrimSpace(fm.Redirect.Destination) == "" {
		return nil, fmt.Errorf("redirect.destination is required")
	}
	return &domain.RedirectSpec{
		Path:        path,
		Destination: strings.TrimSpace(fm.Redirect.Destination),
		UTM:         fm.Redirect.UTM,
	}, nil
}

// buildPost turns a parsed record into a domain.Post.
func buildPost(site, slug string, fm *Frontmatter, body string, loc *time.Location) (domain.Post, error) {
	var p domain.Post
	if fm.Title == "" {
		return p, fmt.Errorf("title is required")
	}
	if fm.Date == "" {
		return p, fmt.Errorf("date is required")
	}
	published, err := parseWhen(fm.Date, loc)
	if err != nil {
		return p, fmt.Errorf("date: %w", err)
	}
	p = domain.Post{
		Site:        site,
		Slug:        slug,
		Title:       fm.Title,
		Description: fm.Description,
		Author:      fm.Author,
		Tags:        fm.Tags,
		Image:       fm.Image,
		Canonical:   fm.Canonical,
		Draft:       fm.Draft,
		PublishedAt: published,
		Body:        body,
	}
	if fm.Updated != "" {
		u, err := parseWhen(fm.Updated, loc)
		if err != nil {
			return p, fmt.Errorf("updated: %w", err)
		}
		p.UpdatedAt = &u
	}
	return p, nil
}

// buildEpisode turns a parsed record into a domain.Episode.
func buildEpisode(site, slug string, fm *Frontmatter, body string, loc *time.Location) (domain.Episode, error) {
	var e domain.Episode
	if fm.Title == "" {
		return e, fmt.Errorf("title is required")
	}
	if fm.AudioURL == "" {
		return e, fmt.Errorf("audio_url is required")
	}
	if fm.Date == "" {
		return e, fmt.Errorf("date is required")
	}
	published, err := parseWhen(fm.Date, loc)
	if err != nil {
		return e, fmt.Errorf("date: %w", err)
	}
	return domain.Episode{
		Site:        site,
		Slug:        slug,
		Title:       fm.Title,
		Description: fm.Description,
		AudioURL:    fm.AudioURL,
		AudioType:   fm.AudioType,
		AudioBytes:  fm.AudioBytes,
		Duration:    fm.Duration,
		Season:      fm.Season,
		Number:      fm.Number,
		Image:       fm.Image,
		Explicit:    fm.Explicit,
		Draft:       fm.Draft,
		PublishedAt: published,
		Body:        body,
	}, nil
}

// buildCampaign turns a parsed record into a domain.Campaign.
func buildCampaign(site, slug string, fm *Frontmatter, body string, loc *time.Location) (domain.Campaign, error) {
	var c domain.Campaign
	if fm.Title == "" {
		return c, fmt.Errorf("title is required")
	}
	window, err := parseWindow(fm.StartDate, fm.EndDate, loc)
	if err != nil {
		return c, err
	}
	redirect, err := fm.redirect()
	if err != nil {
		return c, err
	}
	return domain.Campaign{
		Site:        site,
		Slug:        slug,
		Title:       fm.Title,
		Description: fm.Description,
		Image:       fm.Image,
		Priority:    fm.Priority,
		Draft:       fm.Draft,
		Window:      window,
		Redirect:    redirect,
		Body:        body,
	}, nil
}

// buildCoupon turns a parsed record into a domain.Coupon.
func buildCoupon(site, slug string, fm *Frontmatter, body string, loc *time.Location) (domain.Coupon, error) {
	var c domain.Coupon
	if fm.Title == "" {
		return c, fmt.Errorf("title is required")
	}
	if fm.Merchant == "" {
		return c, fmt.Errorf("merchant is required")
	}
	window, err := parseWindow(fm.StartDate, fm.EndDate, loc)
	if err != nil {
		return c, err
	}
	redirect, err := fm.redirect()
	if err != nil {
		return c, err
	}
	return domain.Coupon{
		Site:          site,
		Slug:          slug,
		Title:         fm.Title,
		Merchant:      fm.Merchant,
		Code:          fm.Code,
		Description:   fm.Description,
		DiscountType:  fm.Discount,
		DiscountValue: fm.Value,
		MinOrder:      fm.MinOrder,
		Featured:      fm.Featured,
		Priority:      fm.Priority,
		Draft:         fm.Draft,
		Window:        window,
		Redirect:      redirect,
		Body:          body,
	}, nil
}
