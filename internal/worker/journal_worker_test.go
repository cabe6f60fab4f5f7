package worker

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"agendei/internal/database"
	"agendei/internal/models"
	"agendei/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type fakeStore struct {
	mu       sync.Mutex
	failures int
	records  []*models.Submission
	calls    int
}

func (f *fakeStore) Record(_ context.Context, s *models.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("database is locked")
	}
	f.records = append(f.records, s)
	return nil
}

func (f *fakeStore) ListBySession(_ context.Context, sessionID string) ([]*models.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Submission
	for _, r := range f.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) recorded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

var fastRetry = repository.RetryPolicy{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}

func submission(session string) *models.Submission {
	return &models.Submission{SessionID: session, CompanyID: "co1", ServiceID: "s1", Status: models.SubmissionSucceeded}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestRecordUsesMemoryQueueWithoutRedis(t *testing.T) {
	store := &fakeStore{}
	w := NewJournalWorker(store, nil, fastRetry, 3, nil)

	if err := w.Record(context.Background(), submission("sess-1")); err != nil {
		t.Fatalf("record: %v", err)
	}
	task, ok := w.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	if task.Submission.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be stamped at enqueue time")
	}

	w.process(context.Background(), task)
	if store.recorded() != 1 {
		t.Fatalf("expected 1 record, got %d", store.recorded())
	}
}

func TestProcessRetriesUntilWritten(t *testing.T) {
	store := &fakeStore{failures: 2}
	w := NewJournalWorker(store, nil, fastRetry, 5, nil)

	w.process(context.Background(), journalTask{Submission: submission("sess-1")})

	if store.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", store.calls)
	}
	if store.recorded() != 1 {
		t.Fatalf("expected entry to be written")
	}
}

func TestProcessDeadLettersAfterMaxAttempts(t *testing.T) {
	mr, client := newRedis(t)
	store := &fakeStore{failures: 10}
	w := NewJournalWorker(store, client, fastRetry, 3, nil)

	w.process(context.Background(), journalTask{Submission: submission("sess-1")})

	if store.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", store.calls)
	}
	items, err := mr.List(defaultDeadLetterKey)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected one dead letter, got %v (%v)", items, err)
	}
	var task journalTask
	if err := json.Unmarshal([]byte(items[0]), &task); err != nil {
		t.Fatalf("decode dead letter: %v", err)
	}
	if task.Attempts != 3 || task.LastError != "database is locked" {
		t.Fatalf("unexpected dead letter %+v", task)
	}
}

func TestStartDrainsRedisQueue(t *testing.T) {
	mr, client := newRedis(t)
	store := &fakeStore{}
	w := NewJournalWorker(store, client, fastRetry, 3, nil)

	ctx := context.Background()
	for _, id := range []string{"sess-1", "sess-2"} {
		if err := w.Record(ctx, submission(id)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if n, _ := mr.List(defaultQueueKey); len(n) != 2 {
		t.Fatalf("expected both entries queued in redis, got %d", len(n))
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		w.Start(runCtx)
		close(done)
	}()

	waitFor(t, func() bool { return store.recorded() == 2 })
	cancel()
	<-done

	got, err := w.ListBySession(ctx, "sess-1")
	if err != nil || len(got) != 1 {
		t.Fatalf("expected sess-1 entry, got %v (%v)", got, err)
	}
	// LPUSH + BRPOP keeps arrival order.
	if store.records[0].SessionID != "sess-1" {
		t.Fatalf("expected FIFO order, got %s first", store.records[0].SessionID)
	}
}

func TestRecordFallsBackToMemoryWhenRedisDown(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()

	store := &fakeStore{}
	w := NewJournalWorker(store, client, fastRetry, 3, nil)
	if err := w.Record(context.Background(), submission("sess-1")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, ok := w.tryLocalQueue(); !ok {
		t.Fatalf("expected memory queue fallback")
	}
}

func TestStartFlushesMemoryQueueOnShutdown(t *testing.T) {
	store := &fakeStore{}
	w := NewJournalWorker(store, nil, fastRetry, 3, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.Record(context.Background(), submission("sess-1")); err != nil {
		t.Fatalf("record: %v", err)
	}
	w.Start(ctx)

	if store.recorded() != 1 {
		t.Fatalf("expected queued entry to be flushed, got %d", store.recorded())
	}
}

func TestJournalWorkerWithSQLite(t *testing.T) {
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "journal.db"), &logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	w := NewJournalWorker(db, nil, fastRetry, 3, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	failed := submission("sess-9")
	failed.Status = models.SubmissionFailed
	failed.Error = "Horário indisponível"
	if err := w.Record(ctx, failed); err != nil {
		t.Fatalf("record: %v", err)
	}

	waitFor(t, func() bool {
		got, err := db.ListBySession(context.Background(), "sess-9")
		return err == nil && len(got) == 1
	})
	cancel()
	<-done

	counts, err := db.CountByStatus(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[models.SubmissionFailed] != 1 {
		t.Fatalf("expected one failed submission, got %v", counts)
	}
}
