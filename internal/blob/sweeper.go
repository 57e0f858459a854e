package blob

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Expirer is implemented by stores that can drop objects past their retention.
type Expirer interface {
	Expire(ctx context.Context, now time.Time, retention Retention) (int, error)
}

// RetentionSource supplies the current lifecycle policy. Operators may change it at runtime.
type RetentionSource interface {
	Retention(ctx context.Context) Retention
}

// DefaultSweepInterval is how often a Sweeper runs when no interval is configured.
const DefaultSweepInterval = time.Hour

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	Store    Expirer
	Policy   RetentionSource
	Interval time.Duration
	Logger   zerolog.Logger
}

// Sweeper periodically applies the retention policy to a store.
type Sweeper struct {
	store    Expirer
	policy   RetentionSource
	interval time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(cfg SweeperConfig) *Sweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    cfg.Store,
		policy:   cfg.Policy,
		interval: interval,
		logger:   cfg.Logger,
		now:      time.Now,
	}
}

// SweepOnce applies the current policy and returns how many objects were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	return s.store.Expire(ctx, s.now(), s.policy.Retention(ctx))
}

// Run sweeps immediately and then on every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		removed, err := s.SweepOnce(ctx)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Msg("Blob retention sweep failed")
		case removed > 0:
			s.logger.Info().Int("removed", removed).Msg("Expired blobs removed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
