package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/mkazakov/sessiond/internal/storage"
)

// Sweeper hard-deletes expired session records on a fixed interval. It owns
// no state beyond the ticker; all mutation goes through the store's atomic
// DeleteExpiredSessions, so request traffic is never blocked. A failed pass
// is logged and the next tick retries naturally.
type Sweeper struct {
	sessions storage.SessionRepository
	interval time.Duration
	now      Clock
	log      *zap.SugaredLogger
	done     chan struct{}
}

func NewSweeper(sessions storage.SessionRepository, interval time.Duration, now Clock, log *zap.SugaredLogger) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{
		sessions: sessions,
		interval: interval,
		now:      now,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled. Call once at service
// init; the returned goroutine signals completion through Wait.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

// Wait blocks until the sweep loop has exited after cancellation.
func (s *Sweeper) Wait() {
	<-s.done
}

func (s *Sweeper) sweep(ctx context.Context) {
	count, err := s.sessions.DeleteExpiredSessions(ctx, s.now().UTC())
	if err != nil {
		s.log.Errorw("session sweep failed", "error", err)
		return
	}
	s.log.Infow("session sweep completed", "deleted", count)
}
