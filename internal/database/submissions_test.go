package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"agendei/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "nested", "journal.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func submission(sessionID, status string) *models.Submission {
	return &models.Submission{
		SessionID:  sessionID,
		CompanyID:  "co-1",
		ServiceID:  "svc-1",
		ClientID:   "c1",
		EmployeeID: "e1",
		BranchID:   "b1",
		StartTime:  "2024-06-01T09:00:00-03:00",
		Status:     status,
	}
}

func TestRecordAndList(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	failed := submission("s1", models.SubmissionFailed)
	failed.Error = "Horário indisponível"
	require.NoError(t, db.Record(ctx, failed))
	assert.NotZero(t, failed.ID)
	assert.False(t, failed.CreatedAt.IsZero())

	ok := submission("s1", models.SubmissionSucceeded)
	ok.AppointmentID = "appt-1"
	require.NoError(t, db.Record(ctx, ok))
	require.NoError(t, db.Record(ctx, submission("s2", models.SubmissionSucceeded)))

	got, err := db.ListBySession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.SubmissionFailed, got[0].Status)
	assert.Equal(t, "Horário indisponível", got[0].Error)
	assert.Empty(t, got[0].AppointmentID)
	assert.Equal(t, "appt-1", got[1].AppointmentID)
	assert.Equal(t, "2024-06-01T09:00:00-03:00", got[1].StartTime)
	assert.WithinDuration(t, time.Now(), got[1].CreatedAt, time.Minute)

	none, err := db.ListBySession(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)

	counts, err := db.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{models.SubmissionFailed: 1, models.SubmissionSucceeded: 2}, counts)

	assert.NoError(t, db.Ping(ctx))
}

func TestInMemoryDB(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Record(context.Background(), submission("s1", models.SubmissionSucceeded)))
	got, err := db.ListBySession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
