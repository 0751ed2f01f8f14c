package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/promo-gateway/internal/domain"
	"github.com/ignite/promo-gateway/internal/pkg/httputil"
	"github.com/ignite/promo-gateway/internal/service/redirects"
)

// listResponse is the standard paginated admin list envelope.
type listResponse struct {
	Data    interface{} `json:"data"`
	Page    int         `json:"page"`
	Limit   int         `json:"limit"`
	Total   int         `json:"total"`
	HasMore bool        `json:"has_more"`
}

// requireRedirectSvc writes a 503 when managed redirects are not wired
// (no database configured).
func (s *Server) requireRedirectSvc(w http.ResponseWriter) bool {
	if s.redirectSvc == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "managed redirects require a database")
		return false
	}
	return true
}

// handleListRedirects returns managed redirects, newest first.
//
//	GET /api/v1/admin/redirects?site=&active=&q=&page=&limit=
func (s *Server) handleListRedirects(w http.ResponseWriter, r *http.Request) {
	if !s.requireRedirectSvc(w) {
		return
	}

	q := r.URL.Query()
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}
	limit := queryInt(r, "limit", 50)
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	filter := redirects.ListFilter{
		Site:   q.Get("site"),
		Search: q.Get("q"),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if raw := q.Get("active"); raw != "" {
		active := raw == "true"
		filter.Active = &active
	}

	items, total, err := s.redirectSvc.List(r.Context(), filter)
	if err != nil {
		writeRedirectError(w, err)
		return
	}

	httputil.OK(w, listResponse{
		Data:    items,
		Page:    page,
		Limit:   limit,
		Total:   total,
		HasMore: page*limit < total,
	})
}

// handleCreateRedirect creates a managed redirect.
//
//	POST /api/v1/admin/redirects
func (s *Server) handleCreateRedirect(w http.ResponseWriter, r *http.Request) {
	if !s.requireRedirectSvc(w) {
		return
	}

	var input redirects.CreateInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	if s.authManager != nil {
		if sess := s.authManager.GetSession(r); sess != nil {
			input.CreatedBy = sess.Email
		}
	}

	created, err := s.redirectSvc.Create(r.Context(), input)
	if err != nil {
		writeRedirectError(w, err)
		return
	}
	httputil.Created(w, created)
}

// handleGetRedirect returns one managed redirect by ID.
func (s *Server) handleGetRedirect(w http.ResponseWriter, r *http.Request) {
	if !s.requireRedirectSvc(w) {
		return
	}

	item, err := s.redirectSvc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRedirectError(w, err)
		return
	}
	httputil.OK(w, item)
}

type updateRedirectPayload struct {
	Destination *string           `json:"destination"`
	Permanent   *bool             `json:"permanent"`
	Active      *bool             `json:"active"`
	StartsAt    *time.Time        `json:"starts_at"`
	EndsAt      *time.Time        `json:"ends_at"`
	ClearWindow bool              `json:"clear_window"`
	UTM         *domain.UTMParams `json:"utm"`
	Notes       *string           `json:"notes"`
}

// handleUpdateRedirect applies a partial update and returns the
// refreshed record.
//
//	PUT /api/v1/admin/redirects/{id}
func (s *Server) handleUpdateRedirect(w http.ResponseWriter, r *http.Request) {
	if !s.requireRedirectSvc(w) {
		return
	}

	var payload updateRedirectPayload
	if !httputil.Decode(w, r, &payload) {
		return
	}

	id := chi.URLParam(r, "id")
	err := s.redirectSvc.Update(r.Context(), id, redirects.UpdateFields{
		Destination: payload.Destination,
		Permanent:   payload.Permanent,
		Active:      payload.Active,
		StartsAt:    payload.StartsAt,
		EndsAt:      payload.EndsAt,
		ClearWindow: payload.ClearWindow,
		UTM:         payload.UTM,
		Notes:       payload.Notes,
	})
	if err != nil {
		writeRedirectError(w, err)
		return
	}

	item, err := s.redirectSvc.Get(r.Context(), id)
	if err != nil {
		writeRedirectError(w, err)
		return
	}
	httputil.OK(w, item)
}

// handleDeleteRedirect removes a managed redirect.
//
//	DELETE /api/v1/admin/redirects/{id}
func (s *Server) handleDeleteRedirect(w http.ResponseWriter, r *http.Request) {
	if !s.requireRedirectSvc(w) {
		return
	}

	if err := s.redirectSvc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeRedirectError(w, err)
		return
	}
	httputil.NoContent(w)
}

// ---------------------------------------------------------------------------
// Redirect table and stats
// ---------------------------------------------------------------------------

// handleTableStats reports the live table summary; ?site= additionally
// exports that site's active entries.
//
//	GET /api/v1/admin/table?site=
func (s *Server) handleTableStats(w http.ResponseWriter, r *http.Request) {
	stats := s.resolver.Stats()

	out := map[string]interface{}{
		"sites":    stats.Sites,
		"entries":  stats.Entries,
		"built_at": stats.BuiltAt,
	}

	if key := r.URL.Query().Get("site"); key != "" {
		if s.cfg.Site(key) == nil {
			httputil.NotFound(w, "unknown site")
			return
		}
		out["site"] = key
		out["redirects"] = s.resolver.Export(key, time.Now())
	}

	httputil.OK(w, out)
}

// statsSite validates the {site} parameter and the stats backend.
func (s *Server) statsSite(w http.ResponseWriter, r *http.Request) (string, bool) {
	if s.stats == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "stats require a database")
		return "", false
	}
	key := chi.URLParam(r, "site")
	if s.cfg.Site(key) == nil {
		httputil.NotFound(w, "unknown site")
		return "", false
	}
	return key, true
}

// handleDailyStats returns the per-day hit rollup.
//
//	GET /api/v1/admin/stats/{site}/daily?days=30
func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	site, ok := s.statsSite(w, r)
	if !ok {
		return
	}

	days := queryInt(r, "days", 30)
	rows, err := s.stats.DailyHits(r.Context(), site, days)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"site":  site,
		"days":  days,
		"daily": rows,
	})
}

// handleTopPaths returns the most-hit redirect paths.
//
//	GET /api/v1/admin/stats/{site}/top?days=30&limit=20
func (s *Server) handleTopPaths(w http.ResponseWriter, r *http.Request) {
	site, ok := s.statsSite(w, r)
	if !ok {
		return
	}

	days := queryInt(r, "days", 30)
	limit := queryInt(r, "limit", 20)
	rows, err := s.stats.TopPaths(r.Context(), site, days, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"site": site,
		"days": days,
		"top":  rows,
	})
}

// handleEventStats returns site event counts grouped by type.
//
//	GET /api/v1/admin/stats/{site}/events?days=30
func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	site, ok := s.statsSite(w, r)
	if !ok {
		return
	}

	days := queryInt(r, "days", 30)
	rows, err := s.stats.EventCounts(r.Context(), site, days)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"site":   site,
		"days":   days,
		"events": rows,
	})
}

// handleTriggerSync asks the content worker for an immediate resync.
//
//	POST /api/v1/admin/sync
func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	if s.triggerSync == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "content sync worker not running")
		return
	}
	s.triggerSync()
	httputil.JSON(w, http.StatusAccepted, map[string]string{"status": "sync scheduled"})
}
