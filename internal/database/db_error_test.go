package database

import (
	"context"
	"errors"
	"testing"

	"agendei/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	logger := zerolog.Nop()
	return NewFromDB(sqlDB, &logger), mock
}

func TestDB_ErrorPaths(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	t.Run("RecordInsertError", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("INSERT INTO submissions").WillReturnError(boom)

		err := db.Record(ctx, submission("s1", models.SubmissionFailed))
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RecordLastInsertIDError", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("INSERT INTO submissions").WillReturnResult(sqlmock.NewErrorResult(boom))

		err := db.Record(ctx, submission("s1", models.SubmissionFailed))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("RecordSetsID", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("INSERT INTO submissions").
			WithArgs("s1", "co-1", "svc-1", "c1", "e1", "b1", "2024-06-01T09:00:00-03:00",
				models.SubmissionSucceeded, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(42, 1))

		s := submission("s1", models.SubmissionSucceeded)
		require.NoError(t, db.Record(ctx, s))
		assert.Equal(t, int64(42), s.ID)
	})

	t.Run("ListQueryError", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("SELECT (.+) FROM submissions").WithArgs("s1").WillReturnError(boom)

		_, err := db.ListBySession(ctx, "s1")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("ListScanError", func(t *testing.T) {
		db, mock := newMockDB(t)
		rows := sqlmock.NewRows([]string{"id"}).AddRow(1)
		mock.ExpectQuery("SELECT (.+) FROM submissions").WithArgs("s1").WillReturnRows(rows)

		_, err := db.ListBySession(ctx, "s1")
		assert.ErrorContains(t, err, "scan submission")
	})

	t.Run("ListRowError", func(t *testing.T) {
		db, mock := newMockDB(t)
		rows := sqlmock.NewRows([]string{
			"id", "session_id", "company_id", "service_id", "client_id", "employee_id", "branch_id",
			"start_time", "status", "error", "appointment_id", "created_at",
		}).AddRow(1, "s1", "co-1", "svc-1", "c1", "e1", "b1", "2024-06-01T09:00:00-03:00", "failed", nil, nil, nil).
			RowError(0, boom)
		mock.ExpectQuery("SELECT (.+) FROM submissions").WithArgs("s1").WillReturnRows(rows)

		_, err := db.ListBySession(ctx, "s1")
		assert.ErrorIs(t, err, boom)
	})

	t.Run("CountError", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery("SELECT status, COUNT").WillReturnError(boom)

		_, err := db.CountByStatus(ctx)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("MigrationError", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS submissions").WillReturnError(boom)

		assert.ErrorIs(t, db.migrate(ctx), boom)
	})
}
