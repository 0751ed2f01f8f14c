package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/ignite/promo-gateway/internal/domain"
	"github.com/ignite/promo-gateway/internal/service/redirects"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

func redirectRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "site_key", "path", "destination", "permanent", "active",
		"starts_at", "ends_at",
		"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
		"notes", "created_by", "created_at", "updated_at",
	})
}

func TestRedirectRepoGet(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM gateway_redirects").
		WithArgs("r1").
		WillReturnRows(redirectRows().AddRow(
			"r1", "getmecoupons", "/deal", "https://example.com", false, true,
			nil, nil,
			"gateway", "", "", "", "",
			"", "ops@ignite.com", now, now,
		))

	repo := NewRedirectRepo(db)
	r, err := repo.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if r.Path != "/deal" || r.Site != "getmecoupons" {
		t.Fatalf("unexpected row: %+v", r)
	}
	if r.UTM.Source != "gateway" {
		t.Fatalf("expected utm_source scanned, got %q", r.UTM.Source)
	}
}

func TestRedirectRepoGetNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM gateway_redirects").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	repo := NewRedirectRepo(db)
	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, redirects.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedirectRepoListWithFilters(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectQuery("SELECT COUNT").
		WithArgs("getmecoupons", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM gateway_redirects").
		WithArgs("getmecoupons", true, 50, 0).
		WillReturnRows(redirectRows().AddRow(
			"r1", "getmecoupons", "/deal", "https://example.com", false, true,
			nil, nil, "", "", "", "", "", "", "", now, now,
		))

	active := true
	repo := NewRedirectRepo(db)
	rows, total, err := repo.List(context.Background(), redirects.ListFilter{
		Site:   "getmecoupons",
		Active: &active,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d (total %d)", len(rows), total)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestRedirectRepoUpdateBuildsSets(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	dest := "https://example.com/new"
	active := false
	mock.ExpectExec("UPDATE gateway_redirects SET destination = \\$1, active = \\$2, updated_at = NOW\\(\\) WHERE id = \\$3").
		WithArgs(dest, active, "r1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRedirectRepo(db)
	err := repo.Update(context.Background(), "r1", redirects.UpdateFields{
		Destination: &dest,
		Active:      &active,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestRedirectRepoUpdateClearWindow(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE gateway_redirects SET starts_at = NULL, ends_at = NULL, updated_at = NOW\\(\\)").
		WithArgs("r1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewRedirectRepo(db)
	err := repo.Update(context.Background(), "r1", redirects.UpdateFields{ClearWindow: true})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
}

func TestRedirectRepoUpdateNoFields(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	// No SQL expected; an empty update is a no-op.
	repo := NewRedirectRepo(db)
	if err := repo.Update(context.Background(), "r1", redirects.UpdateFields{}); err != nil {
		t.Fatalf("empty update: %v", err)
	}
}

func TestRedirectRepoUpdateNotFound(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	notes := "x"
	mock.ExpectExec("UPDATE gateway_redirects").
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewRedirectRepo(db)
	err := repo.Update(context.Background(), "missing", redirects.UpdateFields{Notes: &notes})
	if !errors.Is(err, redirects.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedirectRepoCreateGeneratesID(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO gateway_redirects").
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewRedirectRepo(db)
	m := &domain.ManagedRedirect{
		Site:        "getmecoupons",
		Path:        "/deal",
		Destination: "https://example.com",
		Active:      true,
	}
	id, err := repo.Create(context.Background(), m)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}
}
