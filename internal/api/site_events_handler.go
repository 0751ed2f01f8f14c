package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/promo-gateway/internal/config"
	"github.com/ignite/promo-gateway/internal/domain"
	"github.com/ignite/promo-gateway/internal/hits"
	"github.com/ignite/promo-gateway/internal/pkg/httputil"
)

// SiteEventsHandler accepts engagement events posted from the sites'
// client-side scripts.
type SiteEventsHandler struct {
	cfg       *config.Config
	publisher hits.Publisher
	deduper   *hits.Deduper
	referers  []string
}

// NewSiteEventsHandler builds the handler with a referer allowlist drawn
// from every configured site hostname.
func NewSiteEventsHandler(cfg *config.Config, publisher hits.Publisher, deduper *hits.Deduper) *SiteEventsHandler {
	var referers []string
	for i := range cfg.Sites {
		for _, h := range cfg.Sites[i].Hostnames {
			referers = append(referers, strings.TrimPrefix(strings.ToLower(h), "www."))
		}
	}
	referers = append(referers, "localhost")
	return &SiteEventsHandler{
		cfg:       cfg,
		publisher: publisher,
		deduper:   deduper,
		referers:  referers,
	}
}

type siteEventPayload struct {
	Event domain.SiteEventType `json:"event"`
	Path  string               `json:"path"`
	Ref   string               `json:"ref"`
}

// HandleSiteEvent handles POST /api/v1/events.
func (h *SiteEventsHandler) HandleSiteEvent(w http.ResponseWriter, r *http.Request) {
	// Browsers always send a referer from the embedded script; a foreign
	// one means the endpoint is being called from someone else's page.
	referer := r.Header.Get("Referer")
	if referer != "" && !h.allowedReferer(referer) {
		httputil.Forbidden(w, "forbidden")
		return
	}

	if hits.IsBot(r.UserAgent()) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var payload siteEventPayload
	if !httputil.Decode(w, r, &payload) {
		return
	}
	if payload.Path == "" || !domain.ValidSiteEvent(payload.Event) {
		httputil.BadRequest(w, "missing or invalid event fields")
		return
	}

	site := h.cfg.SiteByHost(r.Host)
	if site == nil {
		httputil.Forbidden(w, "unknown site")
		return
	}

	ip := httputil.ClientIP(r)
	if h.deduper.Seen(r.Context(), site.Key, string(payload.Event), payload.Path, ip) {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.publisher.PublishEvent(r.Context(), domain.SiteEvent{
		ID:        uuid.New().String(),
		Site:      site.Key,
		Event:     payload.Event,
		Path:      payload.Path,
		Ref:       payload.Ref,
		Referer:   referer,
		UserAgent: r.UserAgent(),
		IPAddress: ip,
		CreatedAt: time.Now().UTC(),
	})

	w.WriteHeader(http.StatusNoContent)
}

// HandleBeacon handles GET /api/v1/events/beacon, the img-pixel fallback
// for clients without fetch or sendBeacon. The response is always the
// pixel; invalid events are silently dropped.
func (h *SiteEventsHandler) HandleBeacon(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	event := domain.SiteEventType(q.Get("event"))
	path := q.Get("path")

	site := h.cfg.SiteByHost(r.Host)
	if site != nil && path != "" && domain.ValidSiteEvent(event) && !hits.IsBot(r.UserAgent()) {
		ip := httputil.ClientIP(r)
		if !h.deduper.Seen(r.Context(), site.Key, string(event), path, ip) {
			h.publisher.PublishEvent(r.Context(), domain.SiteEvent{
				ID:        uuid.New().String(),
				Site:      site.Key,
				Event:     event,
				Path:      path,
				Ref:       q.Get("ref"),
				Referer:   r.Header.Get("Referer"),
				UserAgent: r.UserAgent(),
				IPAddress: ip,
				CreatedAt: time.Now().UTC(),
			})
		}
	}

	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(transparentGIF)
}

// allowedReferer matches the referer's hostname against the allowlist.
// Hostnames compare exactly with any www prefix stripped; substring
// matching would let evil-getmecoupons.net through.
func (h *SiteEventsHandler) allowedReferer(referer string) bool {
	u, err := url.Parse(referer)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, d := range h.referers {
		if host == d {
			return true
		}
	}
	return false
}

// 1x1 transparent GIF served by the beacon endpoint.
var transparentGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21,
	0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00,
	0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
	0x01, 0x00, 0x3b,
}
