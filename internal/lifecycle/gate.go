// Package lifecycle implements the Trade Lifecycle Manager (C6): the entry
// gate cascade that decides whether a Trigger becomes a persisted Signal, and
// the per-trade state machine that carries an ACTIVE signal to WON, LOST, or
// CANCELLED (spec §4.4), grounded on the teacher's risk_manager.go cascading
// check idiom.
package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/internal/params"
)

// Store is the slice of Persistence the entry gate needs to evaluate
// concurrency, direction, and cooldown limits.
type Store interface {
	CountActiveSignals() (int, error)
	CountActiveSignalsByDirection(direction domain.Bias) (int, error)
	LastSignalCloseTime(symbol string) (*time.Time, error)
}

// GateResult is the outcome of the entry gate cascade: the first failing
// check wins and supplies a named reason (spec §4.4, "first-failure-rejects").
type GateResult struct {
	Approved bool
	Reason   string
}

func approved() GateResult { return GateResult{Approved: true} }
func rejected(reason string) GateResult { return GateResult{Approved: false, Reason: reason} }

// CheckEntry runs the cascading entry gate against a would-be signal.
func CheckEntry(logger *zap.Logger, store Store, snap params.Snapshot, symbol string, direction domain.Bias, entry, sl, tp decimal.Decimal, now time.Time) (GateResult, error) {
	maxConcurrent := snap.Int("max_concurrent_trades")
	activeCount, err := store.CountActiveSignals()
	if err != nil {
		return GateResult{}, err
	}
	if activeCount >= maxConcurrent {
		return logReject(logger, symbol, "max_concurrent_trades"), nil
	}

	maxSameDirection := snap.Int("max_same_direction_trades")
	dirCount, err := store.CountActiveSignalsByDirection(direction)
	if err != nil {
		return GateResult{}, err
	}
	if dirCount >= maxSameDirection {
		return logReject(logger, symbol, "max_same_direction_trades"), nil
	}

	cooldownMinutes := snap.Int("signal_cooldown_minutes")
	if cooldownMinutes > 0 {
		lastClose, err := store.LastSignalCloseTime(symbol)
		if err != nil {
			return GateResult{}, err
		}
		if lastClose != nil && now.Sub(*lastClose) < time.Duration(cooldownMinutes)*time.Minute {
			return logReject(logger, symbol, "cooldown_active"), nil
		}
	}

	if !slTPOrdered(direction, entry, sl, tp) {
		return logReject(logger, symbol, "invalid_sl_tp_ordering"), nil
	}

	minSLPct := snap.Float("min_sl_distance_pct")
	maxSLPct := snap.Float("max_sl_distance_pct")
	if !entry.IsZero() {
		slDistPct := entry.Sub(sl).Abs().Div(entry)
		if slDistPct.LessThan(minSLPct) || slDistPct.GreaterThan(maxSLPct) {
			return logReject(logger, symbol, "sl_distance_out_of_bounds"), nil
		}
	}

	return approved(), nil
}

func slTPOrdered(direction domain.Bias, entry, sl, tp decimal.Decimal) bool {
	if direction == domain.BiasLong {
		return sl.LessThan(entry) && entry.LessThan(tp)
	}
	return sl.GreaterThan(entry) && entry.GreaterThan(tp)
}

func logReject(logger *zap.Logger, symbol, reason string) GateResult {
	logger.Info("entry gate rejected signal", zap.String("symbol", symbol), zap.String("reason", reason))
	return rejected(reason)
}
