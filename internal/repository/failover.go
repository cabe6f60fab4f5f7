package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"agendei/internal/domain"
	"agendei/internal/models"

	"github.com/rs/zerolog"
)

// FailoverSessionRepository serves from primary and switches to fallback when
// primary errors. While down, primary is probed again after a backoff that grows
// with each failed probe. Sessions saved to fallback during an outage are read
// from whichever side holds the newer copy until primary accepts a write again.
type FailoverSessionRepository struct {
	primary  domain.SessionRepository
	fallback domain.SessionRepository
	logger   *zerolog.Logger
	policy   RetryPolicy
	isDown   atomic.Bool
	stranded sync.Map // session id -> struct{}, saved to fallback only

	mu        sync.Mutex
	lastCheck time.Time
	failures  int
	now       func() time.Time
}

func NewFailoverSessionRepository(primary, fallback domain.SessionRepository, logger *zerolog.Logger) *FailoverSessionRepository {
	return &FailoverSessionRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		policy:   DefaultRecoveryPolicy,
		now:      time.Now,
	}
}

func (r *FailoverSessionRepository) markDown(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isDown.Load() {
		r.logger.Error().Err(err).Msg("Primary session repository failed, falling back to memory")
	}
	r.isDown.Store(true)
	r.failures++
	r.lastCheck = r.now()
}

func (r *FailoverSessionRepository) markUp() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isDown.Load() {
		r.logger.Info().Msg("Primary session repository recovered")
	}
	r.isDown.Store(false)
	r.failures = 0
}

// usePrimary reports whether the next call should go to primary.
func (r *FailoverSessionRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now().Sub(r.lastCheck) > r.policy.NextDelay(r.failures)
}

func (r *FailoverSessionRepository) GetSession(ctx context.Context, id string) (*models.BookingSession, error) {
	if r.usePrimary() {
		session, err := r.primary.GetSession(ctx, id)
		if err == nil {
			r.markUp()
			if session == nil {
				// Written to fallback during an outage.
				return r.fallback.GetSession(ctx, id)
			}
			if _, ok := r.stranded.Load(id); !ok {
				return session, nil
			}
			local, ferr := r.fallback.GetSession(ctx, id)
			if ferr == nil && local != nil && local.UpdatedAt.After(session.UpdatedAt) {
				return local, nil
			}
			return session, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetSession(ctx, id)
}

func (r *FailoverSessionRepository) SaveSession(ctx context.Context, session *models.BookingSession) error {
	if r.usePrimary() {
		err := r.primary.SaveSession(ctx, session)
		if err == nil {
			r.markUp()
			if _, ok := r.stranded.LoadAndDelete(session.ID); ok {
				_ = r.fallback.DeleteSession(ctx, session.ID)
			}
			return nil
		}
		r.markDown(err)
	}
	if err := r.fallback.SaveSession(ctx, session); err != nil {
		return err
	}
	r.stranded.Store(session.ID, struct{}{})
	return nil
}

func (r *FailoverSessionRepository) DeleteSession(ctx context.Context, id string) error {
	// Sessions written during an outage live in fallback only.
	_ = r.fallback.DeleteSession(ctx, id)
	r.stranded.Delete(id)
	if r.usePrimary() {
		err := r.primary.DeleteSession(ctx, id)
		if err == nil {
			r.markUp()
			return nil
		}
		r.markDown(err)
	}
	return nil
}

func (r *FailoverSessionRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.markUp()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
