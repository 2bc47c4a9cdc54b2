// Package watchlist implements the Watchlist Loop (C7): the bounded-duration
// observation buffer for a POI that formed but has not yet triggered,
// re-checked on each 5m candle close until it promotes to a signal, expires,
// or times out (spec §4.4/§9).
package watchlist

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/smc-scanner/internal/detection"
	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/internal/params"
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

// Outcome is what the caller should do with a watchlist entry after Tick.
type Outcome string

const (
	OutcomeContinue Outcome = "CONTINUE"
	OutcomePromote  Outcome = "PROMOTE"
	OutcomeExpire   Outcome = "EXPIRE"
)

// Manager re-evaluates watchlist entries on each scheduler cycle.
type Manager struct {
	logger *zap.Logger
}

// NewManager builds a Watchlist Loop manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger.Named("watchlist")}
}

// Tick re-checks one watchlist entry. latest5m is the most recently closed 5m
// candle; if it is not newer than entry.Last5mCandleTS this is a no-op cycle
// (the loop runs more often than candles close). activeSignalExists enforces
// the symbol+direction dedup invariant against ACTIVE signals.
func (m *Manager) Tick(entry domain.WatchlistEntry, latest5m types.OHLCV, frame15m, frame5m []types.OHLCV, currentPrice decimal.Decimal, snap params.Snapshot, activeSignalExists bool) (domain.WatchlistEntry, Outcome, *domain.Trigger) {
	if activeSignalExists {
		entry.Status = domain.WatchlistExpired
		entry.ExpireReason = "duplicate_active_signal"
		m.logger.Info("watchlist entry expired", zap.String("id", entry.ID), zap.String("reason", entry.ExpireReason))
		return entry, OutcomeExpire, nil
	}

	if !latest5m.Timestamp.After(entry.Last5mCandleTS) {
		return entry, OutcomeContinue, nil
	}
	entry.CandlesWatched++
	entry.Last5mCandleTS = latest5m.Timestamp

	if entry.CandlesWatched >= entry.MaxWatchCandles {
		entry.Status = domain.WatchlistExpired
		entry.ExpireReason = "timeout"
		m.logger.Info("watchlist entry expired", zap.String("id", entry.ID), zap.String("reason", entry.ExpireReason))
		return entry, OutcomeExpire, nil
	}

	if slInvalidated(entry, currentPrice) {
		entry.Status = domain.WatchlistExpired
		entry.ExpireReason = "sl_invalidated"
		m.logger.Info("watchlist entry expired", zap.String("id", entry.ID), zap.String("reason", entry.ExpireReason))
		return entry, OutcomeExpire, nil
	}

	result := detection.CheckTriggerForWatch(entry, frame15m, frame5m, currentPrice, snap)
	if result.Expire {
		entry.Status = domain.WatchlistExpired
		entry.ExpireReason = result.ExpireReason
		m.logger.Info("watchlist entry expired", zap.String("id", entry.ID), zap.String("reason", entry.ExpireReason))
		return entry, OutcomeExpire, nil
	}
	if result.Promote {
		entry.Status = domain.WatchlistPromoted
		m.logger.Info("watchlist entry promoted", zap.String("id", entry.ID), zap.String("trigger", string(result.Trigger.Type)))
		return entry, OutcomePromote, result.Trigger
	}

	return entry, OutcomeContinue, nil
}

func slInvalidated(entry domain.WatchlistEntry, currentPrice decimal.Decimal) bool {
	if entry.Direction == domain.BiasLong {
		return currentPrice.LessThanOrEqual(entry.PotentialSL)
	}
	return currentPrice.GreaterThanOrEqual(entry.PotentialSL)
}
