package domain

import "time"

// Hit records one served redirect. Hits flow through the event pipeline
// and land in gateway_hits; they never block the redirect response.
type Hit struct {
	ID          string         `json:"id"`
	Site        string         `json:"site"`
	Path        string         `json:"path"`
	Destination string         `json:"destination"`
	Source      RedirectSource `json:"source"`
	Ref         string         `json:"ref,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	Referer     string         `json:"referer,omitempty"`
	UTM         UTMParams      `json:"utm,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// SiteEventType enumerates the client-side events the beacon endpoints accept.
type SiteEventType string

const (
	SiteEventPageview SiteEventType = "pageview"
	SiteEventClick    SiteEventType = "click"
	SiteEventCopy     SiteEventType = "copy" // coupon code copied
	SiteEventPlay     SiteEventType = "play" // episode playback started
)

// ValidSiteEvent reports whether t is an accepted beacon event type.
func ValidSiteEvent(t SiteEventType) bool {
	switch t {
	case SiteEventPageview, SiteEventClick, SiteEventCopy, SiteEventPlay:
		return true
	}
	return false
}

// SiteEvent is a first-party analytics event posted by a site's frontend.
type SiteEvent struct {
	ID        string        `json:"id"`
	Site      string        `json:"site"`
	Event     SiteEventType `json:"event"`
	Path      string        `json:"path"`
	Ref       string        `json:"ref,omitempty"` // slug/code the event is about
	Referer   string        `json:"referer,omitempty"`
	UserAgent string        `json:"user_agent,omitempty"`
	IPAddress string        `json:"ip_address,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// DailyHits is one row of the per-day rollup for a path.
type DailyHits struct {
	Day  string `json:"day" db:"day"` // YYYY-MM-DD
	Hits int    `json:"hits" db:"hits"`
}

// TopPath is one row of the top-redirects stats query.
type TopPath struct {
	Path        string `json:"path" db:"path"`
	Destination string `json:"destination" db:"destination"`
	Hits        int    `json:"hits" db:"hits"`
}

// EventCount is one row of the site event breakdown.
type EventCount struct {
	Event SiteEventType `json:"event" db:"event_type"`
	Count int           `json:"count" db:"count"`
}
