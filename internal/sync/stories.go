package sync

import (
	"context"
	"time"

	"github.com/chatterbox-im/chatterbox/internal/bus"
	"github.com/chatterbox-im/chatterbox/internal/store"
	"go.uber.org/zap"
)

// StoryExpired reports whether the story has passed its expiry.
func StoryExpired(s *store.Story, now time.Time) bool {
	return s.ExpiresAt <= now.UnixMilli()
}

const sweepInterval = 10 * time.Minute

// Sweeper periodically purges expired stories from the cache. Purging is
// local-only: the backend expires its own rows, the sweeper just keeps the
// cache from accumulating dead ones between restarts.
type Sweeper struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
	cancel context.CancelFunc
}

// NewSweeper creates a story sweeper.
func NewSweeper(db *store.DB, b *bus.Bus, logger *zap.Logger) *Sweeper {
	return &Sweeper{db: db, bus: b, logger: logger}
}

// Start launches the sweep loop.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the sweep loop.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Sweep purges expired stories once.
func (s *Sweeper) Sweep() {
	n, err := s.db.PurgeExpiredStories(time.Now().UnixMilli())
	if err != nil {
		s.logger.Error("purge expired stories", zap.Error(err))
		return
	}
	if n > 0 {
		s.logger.Info("expired stories purged", zap.Int("count", n))
		s.bus.Publish(bus.Event{Kind: "story.updated", Timestamp: time.Now()})
	}
}
