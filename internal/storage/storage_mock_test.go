package storage_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/yari4ek89/siverbotv2/internal/domain"
	"github.com/yari4ek89/siverbotv2/internal/storage"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, setupErr := sqlmock.New()
	if setupErr != nil {
		t.Fatalf("failed to create sqlmock: %v", setupErr)
	}
	t.Cleanup(func() { db.Close() })

	return sqlx.NewDb(db, storage.DriverSQLite), mock
}

func TestQueueRepository_GetErrors(t *testing.T) {
	t.Helper()

	testCases := []struct {
		name         string
		err          error
		wantNotFound bool
	}{
		{name: "missing row maps to not found", err: sql.ErrNoRows, wantNotFound: true},
		{name: "database failure is wrapped", err: sql.ErrConnDone, wantNotFound: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := storage.NewQueueRepository(db)

			mock.ExpectQuery("SELECT (.+) FROM queue_items WHERE id = ").
				WithArgs(int64(7)).
				WillReturnError(tc.err)

			_, callErr := repo.Get(context.Background(), 7)
			if callErr == nil {
				t.Fatal("expected error")
			}
			if errors.Is(callErr, domain.ErrNotFound) != tc.wantNotFound {
				t.Errorf("Get() error = %v, wantNotFound %v", callErr, tc.wantNotFound)
			}
			if !tc.wantNotFound && !errors.Is(callErr, sql.ErrConnDone) {
				t.Errorf("Get() error = %v, want wrapped %v", callErr, sql.ErrConnDone)
			}

			if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
				t.Errorf("unfulfilled expectations: %v", expectErr)
			}
		})
	}
}

func TestQueueRepository_InsertRollsBackOnFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := storage.NewQueueRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectExec("INSERT INTO queue_items").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	_, callErr := repo.Insert(context.Background(), domain.QueueItem{Status: domain.StatusPending, CreatedAt: time.Now()})
	if !errors.Is(callErr, sql.ErrConnDone) {
		t.Errorf("Insert() error = %v, want %v", callErr, sql.ErrConnDone)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestZoneStateRepository_SaveAllRollsBackOnFailure(t *testing.T) {
	db, mock := newMockDB(t)
	repo := storage.NewZoneStateRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO zone_states").
		WithArgs(int64(1), sqlmock.AnyArg(), sqlmock.AnyArg(), 0, int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO zone_states").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	callErr := repo.SaveAll(context.Background(), []domain.ZoneState{{ZoneID: 1}, {ZoneID: 2}})
	if !errors.Is(callErr, sql.ErrConnDone) {
		t.Errorf("SaveAll() error = %v, want %v", callErr, sql.ErrConnDone)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}

func TestSourceRepository_ListError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := storage.NewSourceRepository(db)

	mock.ExpectQuery("SELECT name FROM sources").WillReturnError(sql.ErrConnDone)

	if _, callErr := repo.List(context.Background()); !errors.Is(callErr, sql.ErrConnDone) {
		t.Errorf("List() error = %v, want %v", callErr, sql.ErrConnDone)
	}

	if expectErr := mock.ExpectationsWereMet(); expectErr != nil {
		t.Errorf("unfulfilled expectations: %v", expectErr)
	}
}
