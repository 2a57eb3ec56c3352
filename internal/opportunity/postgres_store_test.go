package opportunity

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var opportunityRowColumns = []string{
	"id", "group_id", "remote_group_id", "cargo_type", "origin", "destination", "tons", "offered_price",
	"urgency", "contact", "priority", "status", "message_text", "created_at", "expires_at",
}

func opportunityRow(rows *pgxmock.Rows, id, status string, created time.Time) *pgxmock.Rows {
	tons, price := 37.0, 150.0
	return rows.AddRow(id, "grp-1", groupJID, "Soja", "Uberlandia", "Santos", &tons, &price,
		"hoje", "5534999990000", "HIGH", status, "soja 37t", created, created.Add(DefaultTTL))
}

func newPostgresStoreMock(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPostgresStoreCreateOpportunity(t *testing.T) {
	store, mock := newPostgresStoreMock(t)
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tons := 37.0
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO opportunities")).
		WithArgs("grp-1", groupJID, "Soja", "Uberlandia", "Santos", &tons, (*float64)(nil),
			"", "5534999990000", "HIGH", "NEW", "soja 37t", created, created.Add(DefaultTTL)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("opp-1"))

	o, err := store.CreateOpportunity(context.Background(), Opportunity{
		GroupID:       "grp-1",
		RemoteGroupID: groupJID,
		CargoType:     "Soja",
		Origin:        "Uberlandia",
		Destination:   "Santos",
		Tons:          &tons,
		Contact:       "5534999990000",
		Priority:      PriorityHigh,
		Status:        StatusNew,
		MessageText:   "soja 37t",
		CreatedAt:     created,
		ExpiresAt:     created.Add(DefaultTTL),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.ID != "opp-1" {
		t.Fatalf("expected id from RETURNING, got %q", o.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStoreListOpen(t *testing.T) {
	store, mock := newPostgresStoreMock(t)
	now := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows(opportunityRowColumns)
	opportunityRow(rows, "opp-1", "NEW", now.Add(-time.Hour))
	opportunityRow(rows, "opp-2", "IN_REVIEW", now.Add(-2*time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status IN ('NEW', 'IN_REVIEW') AND expires_at > $1")).
		WithArgs(now).
		WillReturnRows(rows)

	items, err := store.ListOpen(context.Background(), now)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(items) != 2 || items[1].Status != StatusInReview || items[0].Priority != PriorityHigh {
		t.Fatalf("unexpected items %+v", items)
	}
	if items[0].Tons == nil || *items[0].Tons != 37 {
		t.Fatalf("expected tons to scan, got %v", items[0].Tons)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStoreUpdateStatus(t *testing.T) {
	store, mock := newPostgresStoreMock(t)
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM opportunities WHERE id = $1")).
		WithArgs("opp-1").
		WillReturnRows(opportunityRow(pgxmock.NewRows(opportunityRowColumns), "opp-1", "NEW", created))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE opportunities SET status = $2")).
		WithArgs("opp-1", "IN_REVIEW", "NEW").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	o, err := store.UpdateStatus(context.Background(), "opp-1", StatusInReview)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if o.Status != StatusInReview {
		t.Fatalf("expected IN_REVIEW, got %s", o.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStoreUpdateStatusRejectsSkip(t *testing.T) {
	store, mock := newPostgresStoreMock(t)
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM opportunities WHERE id = $1")).
		WithArgs("opp-1").
		WillReturnRows(opportunityRow(pgxmock.NewRows(opportunityRowColumns), "opp-1", "NEW", created))

	if _, err := store.UpdateStatus(context.Background(), "opp-1", StatusAccepted); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPostgresStoreUpdateStatusLostRace(t *testing.T) {
	store, mock := newPostgresStoreMock(t)
	created := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM opportunities WHERE id = $1")).
		WithArgs("opp-1").
		WillReturnRows(opportunityRow(pgxmock.NewRows(opportunityRowColumns), "opp-1", "IN_REVIEW", created))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE opportunities SET status = $2")).
		WithArgs("opp-1", "DISCARDED", "IN_REVIEW").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if _, err := store.UpdateStatus(context.Background(), "opp-1", StatusDiscarded); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestPostgresStoreGetMissing(t *testing.T) {
	store, mock := newPostgresStoreMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM opportunities WHERE id = $1")).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	if _, err := store.GetOpportunity(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
