package domain

import "time"

// Collection enumerates the content collections a site can carry.
type Collection string

const (
	CollectionPosts     Collection = "posts"
	CollectionEpisodes  Collection = "episodes"
	CollectionCampaigns Collection = "campaigns"
	CollectionCoupons   Collection = "coupons"
)

// AllCollections lists every collection in load order.
var AllCollections = []Collection{
	CollectionPosts,
	CollectionEpisodes,
	CollectionCampaigns,
	CollectionCoupons,
}

// Window is a half-open activity interval [Start, End). Both bounds are
// absolute instants; date-only frontmatter values are resolved to instants
// in the site's timezone before they get here. A nil Start means "already
// started", a nil End means "never expires".
type Window struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.Start != nil && t.Before(*w.Start) {
		return false
	}
	if w.End != nil && !t.Before(*w.End) {
		return false
	}
	return true
}

// Upcoming reports whether the window has not opened yet at t.
func (w Window) Upcoming(t time.Time) bool {
	return w.Start != nil && t.Before(*w.Start)
}

// Expired reports whether the window has closed at t.
func (w Window) Expired(t time.Time) bool {
	return w.End != nil && !t.Before(*w.End)
}

// Post is a blog entry loaded from the posts collection.
type Post struct {
	Site        string     `json:"site"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Author      string     `json:"author,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Image       string     `json:"image,omitempty"`
	Canonical   string     `json:"canonical,omitempty"`
	Draft       bool       `json:"draft,omitempty"`
	PublishedAt time.Time  `json:"published_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	Body        string     `json:"body,omitempty"`
}

// Episode is a podcast entry, either authored locally or ingested from the
// show's hosted RSS feed.
type Episode struct {
	Site        string    `json:"site"`
	Slug        string    `json:"slug"`
	GUID        string    `json:"guid,omitempty"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	AudioURL    string    `json:"audio_url"`
	AudioType   string    `json:"audio_type,omitempty"`
	AudioBytes  int64     `json:"audio_bytes,omitempty"`
	Duration    int       `json:"duration_seconds,omitempty"`
	Season      int       `json:"season,omitempty"`
	Number      int       `json:"number,omitempty"`
	Image       string    `json:"image,omitempty"`
	Explicit    bool      `json:"explicit,omitempty"`
	Draft       bool      `json:"draft,omitempty"`
	Ingested    bool      `json:"ingested,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Body        string    `json:"body,omitempty"`
}

// RedirectSpec is the optional frontmatter block on a campaign or coupon
// that derives a promo redirect from the record.
type RedirectSpec struct {
	Path        string    `json:"path" yaml:"path"`
	Destination string    `json:"destination" yaml:"destination"`
	UTM         UTMParams `json:"utm,omitempty" yaml:"utm"`
}

// Campaign is a time-windowed marketing push loaded from the campaigns
// collection. Its landing page lives on the site; its optional RedirectSpec
// derives a promo redirect that is only served while the window is open.
type Campaign struct {
	Site        string        `json:"site"`
	Slug        string        `json:"slug"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Image       string        `json:"image,omitempty"`
	Priority    int           `json:"priority,omitempty"`
	Draft       bool          `json:"draft,omitempty"`
	Window      Window        `json:"window"`
	Redirect    *RedirectSpec `json:"redirect,omitempty"`
	Body        string        `json:"body,omitempty"`
}

// ActiveAt reports whether the campaign is live at t.
func (c *Campaign) ActiveAt(t time.Time) bool {
	return !c.Draft && c.Window.Contains(t)
}

// Coupon is a merchant offer loaded from the coupons collection.
type Coupon struct {
	Site          string        `json:"site"`
	Slug          string        `json:"slug"`
	Title         string        `json:"title"`
	Merchant      string        `json:"merchant"`
	Code          string        `json:"code,omitempty"`
	Description   string        `json:"description,omitempty"`
	DiscountType  string        `json:"discount_type,omitempty"` // "percent", "fixed", "free_shipping"
	DiscountValue float64       `json:"discount_value,omitempty"`
	MinOrder      *float64      `json:"min_order,omitempty"`
	Featured      bool          `json:"featured,omitempty"`
	Priority      int           `json:"priority,omitempty"`
	Draft         bool          `json:"draft,omitempty"`
	Window        Window        `json:"window"`
	Redirect      *RedirectSpec `json:"redirect,omitempty"`
	Body          string        `json:"body,omitempty"`
}

// ActiveAt reports whether the coupon is live at t.
func (c *Coupon) ActiveAt(t time.Time) bool {
	return !c.Draft && c.Window.Contains(t)
}
