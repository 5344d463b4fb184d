package store

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hlsgate/hlsgate/pkg/logger"
)

const defaultSweepSpec = "@every 1m"

// Sweeper periodically purges expired resource entries. Lazy expiry on read
// already upholds the TTL contract; sweeping keeps memory bounded for entries
// the player never requests.
type Sweeper struct {
	store    *Store
	cron     *cron.Cron
	schedule string
	log      *zap.Logger
}

// SweeperOption customises the Sweeper.
type SweeperOption func(*Sweeper)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) SweeperOption {
	return func(s *Sweeper) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithSchedule overrides the cron specification for the purge job.
func WithSchedule(spec string) SweeperOption {
	return func(s *Sweeper) {
		if spec != "" {
			s.schedule = spec
		}
	}
}

// NewSweeper constructs a Sweeper for the supplied store.
func NewSweeper(store *Store, opts ...SweeperOption) *Sweeper {
	sweeper := &Sweeper{
		store:    store,
		schedule: defaultSweepSpec,
		log:      logger.WithModule("store"),
	}

	for _, opt := range opts {
		opt(sweeper)
	}

	if sweeper.cron == nil {
		sweeper.cron = cron.New()
	}

	return sweeper
}

// Start registers the purge job and begins the schedule.
func (s *Sweeper) Start() error {
	if s.store == nil {
		return fmt.Errorf("store: sweeper requires a store")
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		_ = s.RunOnce(context.Background())
	}); err != nil {
		return fmt.Errorf("store: schedule sweep: %w", err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the schedule and returns a context that is done once any running
// job completes.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce purges expired entries immediately.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("store: sweeper requires a store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if removed := s.store.Purge(); removed > 0 {
		s.log.Debug("purged expired resource entries", zap.Int("removed", removed))
	}
	return nil
}
