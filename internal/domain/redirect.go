package domain

import (
	"net/url"
	"time"
)

// RedirectSource enumerates where a resolved redirect entry came from.
// Precedence on path collision is managed > static > promo.
type RedirectSource string

const (
	SourceManaged RedirectSource = "managed"
	SourceStatic  RedirectSource = "static"
	SourcePromo   RedirectSource = "promo"
)

// PromoKind distinguishes the record type behind a promo redirect.
// Campaigns outrank coupons when both claim the same path.
type PromoKind string

const (
	PromoCampaign PromoKind = "campaign"
	PromoCoupon   PromoKind = "coupon"
)

// UTMParams are the five standard UTM query parameters a redirect can carry
// as defaults. Empty fields contribute nothing to the merge.
type UTMParams struct {
	Source   string `json:"utm_source,omitempty" yaml:"source"`
	Medium   string `json:"utm_medium,omitempty" yaml:"medium"`
	Campaign string `json:"utm_campaign,omitempty" yaml:"campaign"`
	Term     string `json:"utm_term,omitempty" yaml:"term"`
	Content  string `json:"utm_content,omitempty" yaml:"content"`
}

// IsZero reports whether no UTM field is set.
func (u UTMParams) IsZero() bool {
	return u == UTMParams{}
}

// Values returns the non-empty fields as url.Values keyed by the standard
// utm_* parameter names.
func (u UTMParams) Values() url.Values {
	v := url.Values{}
	if u.Source != "" {
		v.Set("utm_source", u.Source)
	}
	if u.Medium != "" {
		v.Set("utm_medium", u.Medium)
	}
	if u.Campaign != "" {
		v.Set("utm_campaign", u.Campaign)
	}
	if u.Term != "" {
		v.Set("utm_term", u.Term)
	}
	if u.Content != "" {
		v.Set("utm_content", u.Content)
	}
	return v
}

// IsUTMKey reports whether key is one of the five standard UTM parameters.
func IsUTMKey(key string) bool {
	switch key {
	case "utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content":
		return true
	}
	return false
}

// Redirect is one entry in a site's resolved redirect table. Entries from
// all three sources normalize into this shape; the resolver re-checks
// Window at request time so a stale table never serves an expired promo.
type Redirect struct {
	Site        string         `json:"site"`
	Path        string         `json:"path"`
	Destination string         `json:"destination"`
	Source      RedirectSource `json:"source"`
	Kind        PromoKind      `json:"kind,omitempty"`
	Ref         string         `json:"ref,omitempty"` // record slug or managed row ID
	Permanent   bool           `json:"permanent,omitempty"`
	Priority    int            `json:"priority,omitempty"`
	Window      Window         `json:"window"`
	UTM         UTMParams      `json:"utm,omitempty"`
}

// ActiveAt reports whether the entry may be served at t.
func (r *Redirect) ActiveAt(t time.Time) bool {
	return r.Window.Contains(t)
}

// Windowed reports whether the entry's answer depends on the clock, which
// forces a 302 + no-store response regardless of the Permanent flag.
func (r *Redirect) Windowed() bool {
	return r.Window.Start != nil || r.Window.End != nil
}

// ManagedRedirect is an admin-created redirect row stored in Postgres.
type ManagedRedirect struct {
	ID          string     `json:"id" db:"id"`
	Site        string     `json:"site" db:"site_key"`
	Path        string     `json:"path" db:"path"`
	Destination string     `json:"destination" db:"destination"`
	Permanent   bool       `json:"permanent" db:"permanent"`
	Active      bool       `json:"active" db:"active"`
	StartsAt    *time.Time `json:"starts_at" db:"starts_at"`
	EndsAt      *time.Time `json:"ends_at" db:"ends_at"`
	UTM         UTMParams  `json:"utm" db:"-"`
	Notes       string     `json:"notes" db:"notes"`
	CreatedBy   string     `json:"created_by" db:"created_by"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// ActiveAt reports whether the row is enabled and inside its window at t.
func (m *ManagedRedirect) ActiveAt(t time.Time) bool {
	if !m.Active {
		return false
	}
	return Window{Start: m.StartsAt, End: m.EndsAt}.Contains(t)
}
