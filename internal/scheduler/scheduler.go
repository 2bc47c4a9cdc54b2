// Package scheduler implements the Scheduler (C9): four independent
// ticker-driven cadences (scan, open-trade-check, watchlist, optimiser),
// each taking its own Parameter Store snapshot at iteration start (spec §5),
// generalized from the teacher's orchestrator.go ticker+stopCh+ctx.Done()
// loop idiom from three loops to four.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/smc-scanner/internal/params"
)

// Config sets each loop's cadence.
type Config struct {
	ScanInterval           time.Duration
	OpenTradeCheckInterval time.Duration
	WatchlistInterval      time.Duration
	OptimiserInterval      time.Duration
}

// DefaultConfig mirrors the cadences named in spec §4/§9: scan ~180s,
// open-trade-check ~5s, watchlist ~60s, optimiser ~30min.
func DefaultConfig() Config {
	return Config{
		ScanInterval:           180 * time.Second,
		OpenTradeCheckInterval: 5 * time.Second,
		WatchlistInterval:      60 * time.Second,
		OptimiserInterval:      30 * time.Minute,
	}
}

// Scheduler drives the four cadences. Callbacks are injected by the caller
// (cmd/scanner/main.go) rather than imported directly, keeping this package
// free of a dependency on detection/lifecycle/watchlist/optimiser.
type Scheduler struct {
	logger     *zap.Logger
	paramStore *params.Store
	cfg        Config

	onScan           func(ctx context.Context, snap params.Snapshot)
	onOpenTradeCheck func(ctx context.Context, snap params.Snapshot)
	onWatchlist      func(ctx context.Context, snap params.Snapshot)
	onOptimise       func(ctx context.Context, snap params.Snapshot)

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New builds a Scheduler. Any callback left nil is simply never invoked,
// which lets tests exercise a subset of loops.
func New(logger *zap.Logger, paramStore *params.Store, cfg Config,
	onScan, onOpenTradeCheck, onWatchlist, onOptimise func(ctx context.Context, snap params.Snapshot)) *Scheduler {
	return &Scheduler{
		logger:           logger.Named("scheduler"),
		paramStore:       paramStore,
		cfg:              cfg,
		onScan:           onScan,
		onOpenTradeCheck: onOpenTradeCheck,
		onWatchlist:      onWatchlist,
		onOptimise:       onOptimise,
	}
}

// Start launches all four loops as background goroutines.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("starting scheduler",
		zap.Duration("scan_interval", s.cfg.ScanInterval),
		zap.Duration("open_trade_check_interval", s.cfg.OpenTradeCheckInterval),
		zap.Duration("watchlist_interval", s.cfg.WatchlistInterval),
		zap.Duration("optimiser_interval", s.cfg.OptimiserInterval))

	s.spawn(ctx, s.cfg.ScanInterval, s.onScan, "scan")
	s.spawn(ctx, s.cfg.OpenTradeCheckInterval, s.onOpenTradeCheck, "open_trade_check")
	s.spawn(ctx, s.cfg.WatchlistInterval, s.onWatchlist, "watchlist")
	s.spawn(ctx, s.cfg.OptimiserInterval, s.onOptimise, "optimiser")

	return nil
}

// Stop signals all loops to exit and waits for them to drain.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) spawn(ctx context.Context, interval time.Duration, fn func(ctx context.Context, snap params.Snapshot), name string) {
	if fn == nil || interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.runTick(ctx, name, fn)
			}
		}
	}()
}

func (s *Scheduler) runTick(ctx context.Context, name string, fn func(ctx context.Context, snap params.Snapshot)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler loop panicked", zap.String("loop", name), zap.Any("panic", r))
		}
	}()
	fn(ctx, s.paramStore.Snapshot())
}
