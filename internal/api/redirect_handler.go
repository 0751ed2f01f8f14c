package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/promo-gateway/internal/domain"
	"github.com/ignite/promo-gateway/internal/pkg/httputil"
	"github.com/ignite/promo-gateway/internal/redirect"
)

// handleRedirect is the catch-all. Anything not claimed by a named route
// is answered from the redirect table for the requesting host's site.
func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	site := s.cfg.SiteByHost(r.Host)
	if site == nil {
		http.NotFound(w, r)
		return
	}

	res, ok := s.resolver.Resolve(site.Key, r.URL.Path, r.URL.Query(), time.Now())
	if !ok {
		http.NotFound(w, r)
		return
	}

	s.serveRedirect(w, r, site.Key, res)
}

// handleShortLink answers /go/{slug} promo short links.
func (s *Server) handleShortLink(w http.ResponseWriter, r *http.Request) {
	site := s.cfg.SiteByHost(r.Host)
	if site == nil {
		http.NotFound(w, r)
		return
	}

	res, ok := s.resolver.ResolveRef(site.Key, chi.URLParam(r, "slug"), r.URL.Query(), time.Now())
	if !ok {
		http.NotFound(w, r)
		return
	}

	s.serveRedirect(w, r, site.Key, res)
}

func (s *Server) serveRedirect(w http.ResponseWriter, r *http.Request, siteKey string, res *redirect.Resolution) {
	if res.CacheControl != "" {
		w.Header().Set("Cache-Control", res.CacheControl)
	}

	s.publisher.PublishHit(r.Context(), hitFromResolution(siteKey, r, res))

	http.Redirect(w, r, res.Location, res.Status)
}

// hitFromResolution records the canonical entry path rather than the raw
// request path, so alias and short-link hits aggregate together.
func hitFromResolution(siteKey string, r *http.Request, res *redirect.Resolution) domain.Hit {
	hit := domain.Hit{
		ID:          uuid.New().String(),
		Site:        siteKey,
		Path:        res.Redirect.Path,
		Destination: res.Location,
		Source:      res.Redirect.Source,
		Ref:         res.Redirect.Ref,
		Referer:     r.Header.Get("Referer"),
		UserAgent:   r.UserAgent(),
		IPAddress:   httputil.ClientIP(r),
		OccurredAt:  time.Now().UTC(),
	}

	// UTM fields come from the final merged destination, which is what
	// the affiliate network will attribute.
	if u, err := url.Parse(res.Location); err == nil {
		q := u.Query()
		hit.UTM = domain.UTMParams{
			Source:   q.Get("utm_source"),
			Medium:   q.Get("utm_medium"),
			Campaign: q.Get("utm_campaign"),
			Term:     q.Get("utm_term"),
			Content:  q.Get("utm_content"),
		}
	}

	return hit
}
