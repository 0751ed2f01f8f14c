package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/promo-gateway/internal/domain"
)

// HitRepo persists redirect hits and site events. It implements
// hits.Writer for the ingest pipeline plus the stats and retention
// queries used by the admin API and the maintenance workers.
type HitRepo struct{ db *sql.DB }

// NewHitRepo creates a Postgres-backed hit repository.
func NewHitRepo(db *sql.DB) *HitRepo { return &HitRepo{db: db} }

// InsertHit stores one redirect hit. Inserts are idempotent on the hit
// id so SQS redeliveries never double-count.
func (r *HitRepo) InsertHit(ctx context.Context, h domain.Hit) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.OccurredAt.IsZero() {
		h.OccurredAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO gateway_hits
			(id, site_key, path, destination, source, ref,
			 ip_address, user_agent, referer,
			 utm_source, utm_medium, utm_campaign, utm_term, utm_content, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`, h.ID, h.Site, h.Path, h.Destination, h.Source, h.Ref,
		h.IPAddress, h.UserAgent, h.Referer,
		h.UTM.Source, h.UTM.Medium, h.UTM.Campaign, h.UTM.Term, h.UTM.Content, h.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert hit: %w", err)
	}
	return nil
}

// InsertSiteEvent stores one first-party engagement event.
func (r *HitRepo) InsertSiteEvent(ctx context.Context, e domain.SiteEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO gateway_site_events
			(id, site_key, event_type, path, ref, referer, user_agent, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, e.ID, e.Site, e.Event, e.Path, e.Ref, e.Referer, e.UserAgent, e.IPAddress, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert site event: %w", err)
	}
	return nil
}

// RollupDaily recomputes the per-day hit counts for every hit recorded
// at or after since. Days are bucketed in the given timezone. Safe to
// run repeatedly; the upsert overwrites with the recount.
func (r *HitRepo) RollupDaily(ctx context.Context, since time.Time, tz string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO gateway_hit_daily (site_key, day, path, hits)
		SELECT site_key, (occurred_at AT TIME ZONE $2)::date, path, COUNT(*)
		FROM gateway_hits
		WHERE occurred_at >= $1
		GROUP BY 1, 2, 3
		ON CONFLICT (site_key, day, path)
		DO UPDATE SET hits = EXCLUDED.hits
	`, since, tz)
	if err != nil {
		return 0, fmt.Errorf("rollup daily: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DailyHits returns total hits per day for a site over the last N days.
func (r *HitRepo) DailyHits(ctx context.Context, site string, days int) ([]domain.DailyHits, error) {
	if days <= 0 {
		days = 30
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT day::text, SUM(hits)
		FROM gateway_hit_daily
		WHERE site_key = $1 AND day >= CURRENT_DATE - $2::int
		GROUP BY day
		ORDER BY day
	`, site, days)
	if err != nil {
		return nil, fmt.Errorf("daily hits: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyHits
	for rows.Next() {
		var d domain.DailyHits
		if err := rows.Scan(&d.Day, &d.Hits); err != nil {
			return nil, fmt.Errorf("scan daily hits: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// TopPaths returns the most-hit redirect paths for a site over the last
// N days, with the destination they most recently sent visitors to.
func (r *HitRepo) TopPaths(ctx context.Context, site string, days, limit int) ([]domain.TopPath, error) {
	if days <= 0 {
		days = 30
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT path, (array_agg(destination ORDER BY occurred_at DESC))[1], COUNT(*)
		FROM gateway_hits
		WHERE site_key = $1 AND occurred_at >= NOW() - ($2 * INTERVAL '1 day')
		GROUP BY path
		ORDER BY COUNT(*) DESC, path
		LIMIT $3
	`, site, days, limit)
	if err != nil {
		return nil, fmt.Errorf("top paths: %w", err)
	}
	defer rows.Close()

	var out []domain.TopPath
	for rows.Next() {
		var p domain.TopPath
		if err := rows.Scan(&p.Path, &p.Destination, &p.Hits); err != nil {
			return nil, fmt.Errorf("scan top path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// EventCounts returns the site event breakdown for a site over the last
// N days.
func (r *HitRepo) EventCounts(ctx context.Context, site string, days int) ([]domain.EventCount, error) {
	if days <= 0 {
		days = 30
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_type, COUNT(*)
		FROM gateway_site_events
		WHERE site_key = $1 AND created_at >= NOW() - ($2 * INTERVAL '1 day')
		GROUP BY event_type
		ORDER BY COUNT(*) DESC
	`, site, days)
	if err != nil {
		return nil, fmt.Errorf("event counts: %w", err)
	}
	defer rows.Close()

	var out []domain.EventCount
	for rows.Next() {
		var c domain.EventCount
		if err := rows.Scan(&c.Event, &c.Count); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteHitsBefore removes up to batchSize hits older than cutoff and
// returns how many went. The cleanup worker loops until this returns 0.
func (r *HitRepo) DeleteHitsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM gateway_hits
		WHERE id IN (
			SELECT id FROM gateway_hits
			WHERE occurred_at < $1
			LIMIT $2
		)
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete hits: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteEventsBefore removes up to batchSize site events older than cutoff.
func (r *HitRepo) DeleteEventsBefore(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM gateway_site_events
		WHERE id IN (
			SELECT id FROM gateway_site_events
			WHERE created_at < $1
			LIMIT $2
		)
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete site events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
