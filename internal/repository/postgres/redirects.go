package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/promo-gateway/internal/domain"
	"github.com/ignite/promo-gateway/internal/service/redirects"
)

// RedirectRepo implements redirects.Repository against PostgreSQL.
type RedirectRepo struct{ db *sql.DB }

// NewRedirectRepo creates a Postgres-backed managed redirect repository.
func NewRedirectRepo(db *sql.DB) *RedirectRepo { return &RedirectRepo{db: db} }

const redirectColumns = `id, site_key, path, destination, permanent, active,
		starts_at, ends_at,
		COALESCE(utm_source,''), COALESCE(utm_medium,''), COALESCE(utm_campaign,''),
		COALESCE(utm_term,''), COALESCE(utm_content,''),
		COALESCE(notes,''), COALESCE(created_by,''), created_at, updated_at`

func scanRedirect(row interface{ Scan(...interface{}) error }) (*domain.ManagedRedirect, error) {
	r := &domain.ManagedRedirect{}
	err := row.Scan(
		&r.ID, &r.Site, &r.Path, &r.Destination, &r.Permanent, &r.Active,
		&r.StartsAt, &r.EndsAt,
		&r.UTM.Source, &r.UTM.Medium, &r.UTM.Campaign, &r.UTM.Term, &r.UTM.Content,
		&r.Notes, &r.CreatedBy, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *RedirectRepo) Get(ctx context.Context, id string) (*domain.ManagedRedirect, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+redirectColumns+`
		FROM gateway_redirects
		WHERE id = $1
	`, id)
	out, err := scanRedirect(row)
	if err == sql.ErrNoRows {
		return nil, redirects.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get redirect: %w", err)
	}
	return out, nil
}

func (r *RedirectRepo) GetByPath(ctx context.Context, site, path string) (*domain.ManagedRedirect, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+redirectColumns+`
		FROM gateway_redirects
		WHERE site_key = $1 AND path = $2
	`, site, path)
	out, err := scanRedirect(row)
	if err == sql.ErrNoRows {
		return nil, redirects.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get redirect by path: %w", err)
	}
	return out, nil
}

func (r *RedirectRepo) List(ctx context.Context, f redirects.ListFilter) ([]domain.ManagedRedirect, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	where := "WHERE 1=1"
	args := []interface{}{}
	idx := 1
	add := func(clause string, val interface{}) {
		where += fmt.Sprintf(" AND "+clause, idx)
		args = append(args, val)
		idx++
	}

	if f.Site != "" {
		add("site_key = $%d", f.Site)
	}
	if f.Active != nil {
		add("active = $%d", *f.Active)
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (path ILIKE $%d OR destination ILIKE $%d)", idx, idx)
		args = append(args, "%"+f.Search+"%")
		idx++
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM gateway_redirects `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count redirects: %w", err)
	}

	q := fmt.Sprintf(`
		SELECT `+redirectColumns+`
		FROM gateway_redirects
		`+where+`
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list redirects: %w", err)
	}
	defer rows.Close()

	var out []domain.ManagedRedirect
	for rows.Next() {
		rec, err := scanRedirect(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan redirect: %w", err)
		}
		out = append(out, *rec)
	}
	return out, total, rows.Err()
}

func (r *RedirectRepo) ListActive(ctx context.Context, sites []string) ([]domain.ManagedRedirect, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+redirectColumns+`
		FROM gateway_redirects
		WHERE active = true AND site_key = ANY($1)
		ORDER BY site_key, path
	`, pq.Array(sites))
	if err != nil {
		return nil, fmt.Errorf("list active redirects: %w", err)
	}
	defer rows.Close()

	var out []domain.ManagedRedirect
	for rows.Next() {
		rec, err := scanRedirect(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redirect: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *RedirectRepo) Create(ctx context.Context, m *domain.ManagedRedirect) (string, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO gateway_redirects
			(id, site_key, path, destination, permanent, active,
			 starts_at, ends_at,
			 utm_source, utm_medium, utm_campaign, utm_term, utm_content,
			 notes, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW(), NOW())
	`, m.ID, m.Site, m.Path, m.Destination, m.Permanent, m.Active,
		m.StartsAt, m.EndsAt,
		m.UTM.Source, m.UTM.Medium, m.UTM.Campaign, m.UTM.Term, m.UTM.Content,
		m.Notes, m.CreatedBy)
	if err != nil {
		return "", fmt.Errorf("create redirect: %w", err)
	}
	return m.ID, nil
}

func (r *RedirectRepo) Update(ctx context.Context, id string, u redirects.UpdateFields) error {
	sets := []string{}
	args := []interface{}{}
	idx := 1
	add := func(col string, val interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, idx))
		args = append(args, val)
		idx++
	}

	if u.Destination != nil {
		add("destination", *u.Destination)
	}
	if u.Permanent != nil {
		add("permanent", *u.Permanent)
	}
	if u.Active != nil {
		add("active", *u.Active)
	}
	if u.ClearWindow {
		sets = append(sets, "starts_at = NULL", "ends_at = NULL")
	} else {
		if u.StartsAt != nil {
			add("starts_at", *u.StartsAt)
		}
		if u.EndsAt != nil {
			add("ends_at", *u.EndsAt)
		}
	}
	if u.UTM != nil {
		add("utm_source", u.UTM.Source)
		add("utm_medium", u.UTM.Medium)
		add("utm_campaign", u.UTM.Campaign)
		add("utm_term", u.UTM.Term)
		add("utm_content", u.UTM.Content)
	}
	if u.Notes != nil {
		add("notes", *u.Notes)
	}

	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = NOW()")

	q := fmt.Sprintf("UPDATE gateway_redirects SET %s WHERE id = $%d", joinComma(sets), idx)
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update redirect: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return redirects.ErrNotFound
	}
	return nil
}

func (r *RedirectRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM gateway_redirects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete redirect: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return redirects.ErrNotFound
	}
	return nil
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
