package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically sweeps expired entries out of a tiered cache.
// The cache itself owns no goroutines; callers that want background
// expiry start a Sweeper and stop it on shutdown.
type Sweeper struct {
	cache    *TieredCache
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

// NewSweeper creates a sweeper for the given cache and interval.
func NewSweeper(cache *TieredCache, interval time.Duration, logger zerolog.Logger) (*Sweeper, error) {
	if cache == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", interval)
	}
	return &Sweeper{
		cache:    cache,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger.With().Str("component", "cache-sweeper").Logger(),
	}, nil
}

// Start launches the background sweep loop.
func (s *Sweeper) Start() {
	go s.run()
	s.logger.Debug().
		Dur("interval", s.interval).
		Msg("Cache sweeper started")
}

// Stop signals the sweep loop to exit and waits for it to finish. It is
// safe to call more than once; later calls are no-ops.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
		s.logger.Debug().Msg("Cache sweeper stopped")
	})
}

func (s *Sweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	removed := s.cache.Sweep(ctx)
	if removed > 0 {
		s.logger.Debug().
			Int("removed", removed).
			Msg("Swept expired cache entries")
	}
}
