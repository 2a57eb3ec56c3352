package opportunity

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func newGroupStoreMock(t *testing.T) (*SQLGroupStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSQLGroupStore(db), mock
}

func TestSQLGroupStoreGroupByRemoteID(t *testing.T) {
	store, mock := newGroupStoreMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM monitored_groups WHERE remote_id = $1")).
		WithArgs(groupJID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "remote_id", "name", "active", "keywords"}).
			AddRow("grp-1", groupJID, "Fretes Triangulo", true, "{soja,milho}"))

	g, err := store.GroupByRemoteID(context.Background(), groupJID)
	if err != nil {
		t.Fatalf("load group: %v", err)
	}
	if !g.Active || g.Name != "Fretes Triangulo" {
		t.Fatalf("unexpected group %+v", g)
	}
	if len(g.Keywords) != 2 || g.Keywords[0] != "soja" || g.Keywords[1] != "milho" {
		t.Fatalf("unexpected keywords %v", g.Keywords)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLGroupStoreUnknownGroup(t *testing.T) {
	store, mock := newGroupStoreMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM monitored_groups WHERE remote_id = $1")).
		WithArgs("nope@g.us").
		WillReturnRows(sqlmock.NewRows([]string{"id", "remote_id", "name", "active", "keywords"}))

	if _, err := store.GroupByRemoteID(context.Background(), "nope@g.us"); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
}

func TestSQLGroupStoreSyncGroup(t *testing.T) {
	store, mock := newGroupStoreMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO monitored_groups (remote_id, name, active, keywords)")).
		WithArgs(groupJID, "Fretes Triangulo").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO monitored_groups (remote_id, name, active, keywords)")).
		WithArgs(groupJID, "Fretes Triangulo").
		WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := store.SyncGroup(context.Background(), groupJID, " Fretes Triangulo ")
	if err != nil || !changed {
		t.Fatalf("first sync: changed=%v err=%v", changed, err)
	}
	changed, err = store.SyncGroup(context.Background(), groupJID, "Fretes Triangulo")
	if err != nil || changed {
		t.Fatalf("second sync: changed=%v err=%v", changed, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSQLGroupStoreConfigure(t *testing.T) {
	store, mock := newGroupStoreMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE monitored_groups SET active = $2, keywords = $3")).
		WithArgs(groupJID, true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE monitored_groups SET active = $2, keywords = $3")).
		WithArgs("missing@g.us", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Configure(context.Background(), groupJID, true, []string{"soja", " ", "milho"}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := store.Configure(context.Background(), "missing@g.us", false, nil); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("expected ErrGroupNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
