package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/agentrun/core/pkg/models"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &PostgresStore{sqlStore: &sqlStore{db: db, ph: dollarPlaceholder}}, mock
}

func TestPostgresSessionsCreateSendsExpectedArgs(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	session := &models.Session{ID: "sess-1", ProjectID: "proj-1", Agent: "default"}

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("sess-1", "proj-1", "default", "", "", "", "", 0, 0, 0, 0.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.Sessions().Create(context.Background(), session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresSessionsGetNotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery("SELECT .* FROM sessions WHERE id = ").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.Sessions().Get(context.Background(), "missing"); err == nil {
		t.Errorf("Get(missing) error = nil, want SessionNotFound")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresSessionsGetScansRow(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "project_id", "agent", "vendor", "model", "parent_session_id", "title",
		"message_count", "tokens_input", "tokens_output", "cost", "created_at", "updated_at",
	}).AddRow("sess-1", "proj-1", "default", "anthropic", "claude-sonnet-4-20250514", "", "", 3, 100, 200, 0.5, now, now)

	mock.ExpectQuery("SELECT .* FROM sessions WHERE id = ").
		WithArgs("sess-1").
		WillReturnRows(rows)

	got, err := store.Sessions().Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Vendor != "anthropic" || got.MessageCount != 3 {
		t.Errorf("Get() = %+v, want vendor=anthropic message_count=3", got)
	}
}
