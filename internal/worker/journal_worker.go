// Package worker moves submission journal writes off the request path.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"agendei/internal/models"
	"agendei/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultQueueKey      = "journal:queue"
	defaultDeadLetterKey = "journal:deadletter"
	defaultMaxAttempts   = 5
)

// DefaultRetryPolicy spaces journal write retries from two seconds to a minute.
var DefaultRetryPolicy = repository.RetryPolicy{
	InitialDelay:  2 * time.Second,
	MaxDelay:      time.Minute,
	BackoffFactor: 2,
}

// Store is the durable journal.
type Store interface {
	Record(ctx context.Context, s *models.Submission) error
	ListBySession(ctx context.Context, sessionID string) ([]*models.Submission, error)
}

type journalTask struct {
	Submission *models.Submission `json:"submission"`
	Attempts   int                `json:"attempts"`
	LastError  string             `json:"last_error,omitempty"`
}

// JournalWorker queues submission records and writes them to the store,
// retrying with backoff. Redis holds the queue when available so pending
// entries survive a restart; otherwise an in-memory queue is used. Entries
// that keep failing go to a Redis dead-letter list.
type JournalWorker struct {
	store         Store
	redis         *redis.Client
	retryPolicy   repository.RetryPolicy
	maxAttempts   int
	queue         chan journalTask
	redisQueueKey string
	deadLetterKey string
	popTimeout    time.Duration
	logger        *zerolog.Logger
}

func NewJournalWorker(store Store, redisClient *redis.Client, retry repository.RetryPolicy, maxAttempts int, logger *zerolog.Logger) *JournalWorker {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &JournalWorker{
		store:         store,
		redis:         redisClient,
		retryPolicy:   retry,
		maxAttempts:   maxAttempts,
		queue:         make(chan journalTask, 128),
		redisQueueKey: defaultQueueKey,
		deadLetterKey: defaultDeadLetterKey,
		popTimeout:    time.Second,
		logger:        logger,
	}
}

// Record enqueues s. When both queues are unavailable the entry is written
// synchronously.
func (w *JournalWorker) Record(ctx context.Context, s *models.Submission) error {
	if s == nil {
		return errors.New("submission is nil")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	task := journalTask{Submission: s}

	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err != nil {
			w.logger.Warn().Err(err).Msg("journal_worker: redis push failed, using memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
		return nil
	default:
		w.logger.Warn().Str("session_id", s.SessionID).Msg("journal_worker: memory queue full, writing inline")
		return w.store.Record(ctx, s)
	}
}

// ListBySession reads from the store. Entries still queued are not included.
func (w *JournalWorker) ListBySession(ctx context.Context, sessionID string) ([]*models.Submission, error) {
	return w.store.ListBySession(ctx, sessionID)
}

// Start consumes the queues until ctx is done, then flushes the memory queue.
func (w *JournalWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("journal_worker: started")
	defer w.logger.Info().Msg("journal_worker: stopped")

	for {
		if t, ok := w.tryLocalQueue(); ok {
			w.process(ctx, t)
			continue
		}

		if w.redis != nil {
			if t, ok := w.tryRedis(ctx); ok {
				w.process(ctx, t)
				continue
			}
			if ctx.Err() != nil {
				w.flush(context.WithoutCancel(ctx))
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			w.flush(context.WithoutCancel(ctx))
			return
		case t := <-w.queue:
			w.process(ctx, t)
		}
	}
}

func (w *JournalWorker) tryLocalQueue() (journalTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return journalTask{}, false
	}
}

func (w *JournalWorker) tryRedis(ctx context.Context) (journalTask, bool) {
	res, err := w.redis.BRPop(ctx, w.popTimeout, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Warn().Err(err).Msg("journal_worker: redis BRPOP error")
			sleep(ctx, w.popTimeout)
		}
		return journalTask{}, false
	}
	if len(res) != 2 {
		return journalTask{}, false
	}
	var task journalTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil || task.Submission == nil {
		w.logger.Error().Err(err).Str("raw", res[1]).Msg("journal_worker: dropping undecodable task")
		return journalTask{}, false
	}
	return task, true
}

// process writes one entry, retrying in place so entries stay in order.
func (w *JournalWorker) process(ctx context.Context, task journalTask) {
	for {
		err := w.store.Record(ctx, task.Submission)
		if err == nil {
			return
		}

		task.Attempts++
		task.LastError = err.Error()
		if task.Attempts >= w.maxAttempts {
			w.logger.Error().Err(err).
				Str("session_id", task.Submission.SessionID).
				Int("attempts", task.Attempts).
				Msg("journal_worker: giving up on entry")
			w.pushDeadLetter(context.WithoutCancel(ctx), task)
			return
		}

		delay := w.retryPolicy.NextDelay(task.Attempts)
		w.logger.Warn().Err(err).Int("attempt", task.Attempts).Dur("retry_in", delay).Msg("journal_worker: write failed")
		if !sleep(ctx, delay) {
			w.requeue(context.WithoutCancel(ctx), task)
			return
		}
	}
}

// requeue puts back an entry interrupted by shutdown.
func (w *JournalWorker) requeue(ctx context.Context, task journalTask) {
	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, task); err == nil {
			return
		}
	}
	select {
	case w.queue <- task:
	default:
		w.pushDeadLetter(ctx, task)
	}
}

// flush makes one write attempt for every entry left in the memory queue.
func (w *JournalWorker) flush(ctx context.Context) {
	for {
		t, ok := w.tryLocalQueue()
		if !ok {
			return
		}
		if err := w.store.Record(ctx, t.Submission); err != nil {
			t.Attempts++
			t.LastError = err.Error()
			w.pushDeadLetter(ctx, t)
		}
	}
}

func (w *JournalWorker) pushRedis(ctx context.Context, key string, task journalTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode journal task: %w", err)
	}
	return w.redis.LPush(ctx, key, data).Err()
}

func (w *JournalWorker) pushDeadLetter(ctx context.Context, task journalTask) {
	if w.redis == nil {
		w.logger.Error().Str("session_id", task.Submission.SessionID).Str("error", task.LastError).Msg("journal_worker: entry lost")
		return
	}
	if err := w.pushRedis(ctx, w.deadLetterKey, task); err != nil {
		w.logger.Error().Err(err).Str("session_id", task.Submission.SessionID).Msg("journal_worker: deadletter push failed")
	}
}

// sleep waits for d and reports false when ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
