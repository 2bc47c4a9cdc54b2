package lifecycle

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/internal/params"
)

var (
	breakevenProgressTrigger = decimal.NewFromFloat(0.60)
	trailingProgressTrigger  = decimal.NewFromFloat(0.75)
	breakevenLongMultiplier  = decimal.NewFromFloat(1.002)
	breakevenShortMultiplier = decimal.NewFromFloat(0.998)
	trailingFraction         = decimal.NewFromFloat(0.50)
	slippageClampPoints      = decimal.NewFromFloat(0.5) // percentage points
)

// Manager carries an ACTIVE signal to WON/LOST/CANCELLED and ratchets its
// stop-loss through a two-stage breakeven/trailing schedule. All transitions
// are derived purely from persisted fields (EntryPrice, current StopLoss,
// TakeProfit, EntryTime), so restart recovery just replays
// this same function against the stored row (spec §4.3).
type Manager struct {
	logger *zap.Logger
}

// NewManager builds a Trade Lifecycle Manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger.Named("lifecycle")}
}

// Evaluate inspects one ACTIVE signal against the latest price/candle and
// returns the signal as it should be persisted, plus whether anything
// changed. Terminal transitions (WON/LOST/CANCELLED) stamp CloseTime,
// ClosePrice, and PnLPct. Steps follow spec §4.3's per-trade state machine
// in order: age check, structural sanity, pre-breakeven orientation, SL
// management, terminal checks, slippage clamp.
func (m *Manager) Evaluate(sig domain.Signal, currentPrice decimal.Decimal, now time.Time, snap params.Snapshot) (domain.Signal, bool) {
	if sig.Status != domain.SignalActive {
		return sig, false
	}

	// Step 1: age check. Closes at the raw current price regardless of SL/TP.
	maxDurationHours := snap.Int("max_trade_duration_hours")
	if maxDurationHours > 0 && now.Sub(sig.EntryTime) > time.Duration(maxDurationHours)*time.Hour {
		updated := sig
		pnl := pnlPct(sig.Direction, sig.EntryPrice, currentPrice)
		updated.Status = domain.SignalLost
		if pnl.IsPositive() {
			updated.Status = domain.SignalWon
		}
		updated.CloseTime = &now
		updated.ClosePrice = currentPrice
		updated.PnLPct = pnl
		updated.Notes = "max_trade_duration_exceeded"
		m.logger.Info("signal closed on age", zap.String("id", sig.ID), zap.String("status", string(updated.Status)))
		return updated, true
	}

	// Step 2: structural sanity — tp/sl must be on the correct sides of each
	// other for the direction, independent of where entry sits.
	if structurallyInverted(sig) {
		return cancel(sig, now, currentPrice, "structural_sanity_failed"), true
	}

	// Step 3: pre-breakeven orientation — before the stop has moved to/past
	// entry, sl/tp must still bracket entry correctly.
	if !breakevenMoved(sig) && !preBreakevenOriented(sig) {
		return cancel(sig, now, currentPrice, "pre_breakeven_orientation_failed"), true
	}

	// Step 4: SL management — recompute effective_sl from progress-to-TP.
	updated := sig
	effectiveSL, moved := m.ratchetStop(sig, currentPrice)
	if moved {
		updated.StopLoss = effectiveSL
		m.logger.Info("stop ratcheted", zap.String("id", sig.ID), zap.String("effective_sl", effectiveSL.String()))
	}

	// Step 5: terminal checks against effective_sl and tp.
	hit, won, exitPrice := checkTerminal(updated, currentPrice)
	if !hit {
		return updated, moved
	}

	pnl := pnlPct(updated.Direction, updated.EntryPrice, exitPrice)
	if exitPrice.Equal(updated.StopLoss) {
		// Step 6: slippage clamp — a stop fills at effective_sl, giving the
		// sl-implied pnl%; when the raw tick gapped past it to a pnl% worse
		// than sl-implied − 0.5 points, pnl% is set to that floor and the
		// raw tick is recorded as the exit price.
		realized := pnlPct(updated.Direction, updated.EntryPrice, currentPrice)
		floor := pnl.Sub(slippageClampPoints)
		if realized.LessThan(floor) {
			pnl = floor
			exitPrice = currentPrice
		}
	}

	updated.Status = domain.SignalLost
	if won {
		updated.Status = domain.SignalWon
	}
	updated.CloseTime = &now
	updated.ClosePrice = exitPrice
	updated.PnLPct = pnl
	m.logger.Info("signal closed", zap.String("id", sig.ID), zap.String("status", string(updated.Status)))
	return updated, true
}

func cancel(sig domain.Signal, now time.Time, currentPrice decimal.Decimal, reason string) domain.Signal {
	updated := sig
	updated.Status = domain.SignalCancelled
	updated.CloseTime = &now
	updated.ClosePrice = currentPrice
	updated.PnLPct = pnlPct(sig.Direction, sig.EntryPrice, currentPrice)
	updated.Notes = reason
	return updated
}

// structurallyInverted reports whether tp and sl are on the wrong sides of
// each other for the direction (spec §4.3 step 2), independent of entry.
func structurallyInverted(sig domain.Signal) bool {
	if sig.Direction == domain.BiasLong {
		return !sig.TakeProfit.GreaterThan(sig.StopLoss)
	}
	return !sig.TakeProfit.LessThan(sig.StopLoss)
}

// breakevenMoved reports whether the current stop has already crossed to or
// past entry, per the restart-recovery derivation in spec §4.3.
func breakevenMoved(sig domain.Signal) bool {
	if sig.Direction == domain.BiasLong {
		return sig.StopLoss.GreaterThanOrEqual(sig.EntryPrice)
	}
	return sig.StopLoss.LessThanOrEqual(sig.EntryPrice)
}

// preBreakevenOriented reports whether sl/tp still bracket entry correctly,
// required before the stop has moved to breakeven (spec §4.3 step 3).
func preBreakevenOriented(sig domain.Signal) bool {
	if sig.Direction == domain.BiasLong {
		return sig.StopLoss.LessThan(sig.EntryPrice) && sig.TakeProfit.GreaterThan(sig.EntryPrice)
	}
	return sig.StopLoss.GreaterThan(sig.EntryPrice) && sig.TakeProfit.LessThan(sig.EntryPrice)
}

// checkTerminal reports whether tp or effective_sl has been reached and the
// price at which the trade closes: tp itself on a take-profit hit, the
// current stop level on a stop hit (spec §4.3 step 5).
func checkTerminal(sig domain.Signal, currentPrice decimal.Decimal) (hit, won bool, exitPrice decimal.Decimal) {
	if sig.Direction == domain.BiasLong {
		if currentPrice.GreaterThanOrEqual(sig.TakeProfit) {
			return true, true, sig.TakeProfit
		}
		if currentPrice.LessThanOrEqual(sig.StopLoss) {
			return true, sig.StopLoss.GreaterThan(sig.EntryPrice), sig.StopLoss
		}
		return false, false, decimal.Zero
	}
	if currentPrice.LessThanOrEqual(sig.TakeProfit) {
		return true, true, sig.TakeProfit
	}
	if currentPrice.GreaterThanOrEqual(sig.StopLoss) {
		return true, sig.StopLoss.LessThan(sig.EntryPrice), sig.StopLoss
	}
	return false, false, decimal.Zero
}

func pnlPct(direction domain.Bias, entry, closePrice decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	if direction == domain.BiasLong {
		return closePrice.Sub(entry).Div(entry).Mul(decimal.NewFromInt(100))
	}
	return entry.Sub(closePrice).Div(entry).Mul(decimal.NewFromInt(100))
}

// ratchetStop implements the two-stage, progress-to-TP breakeven/trailing
// schedule of spec §4.3: progress = (current−entry)/(tp−entry) for LONG
// (mirror for SHORT). At progress ≥ 0.60 the stop moves to entry×1.002
// (LONG) / entry×0.998 (SHORT). At progress ≥ 0.75 it additionally trails to
// entry + 0.50×(current−entry). effective_sl is the max (LONG) / min
// (SHORT) of the current stop and whichever stages have triggered, so the
// stop only ever moves in the trade's favor.
func (m *Manager) ratchetStop(sig domain.Signal, currentPrice decimal.Decimal) (decimal.Decimal, bool) {
	span := sig.TakeProfit.Sub(sig.EntryPrice)
	if sig.Direction == domain.BiasShort {
		span = sig.EntryPrice.Sub(sig.TakeProfit)
	}
	if span.IsZero() {
		return sig.StopLoss, false
	}

	move := currentPrice.Sub(sig.EntryPrice)
	if sig.Direction == domain.BiasShort {
		move = sig.EntryPrice.Sub(currentPrice)
	}
	progress := move.Div(span)

	candidate := sig.StopLoss
	if progress.GreaterThanOrEqual(breakevenProgressTrigger) {
		be := sig.EntryPrice.Mul(breakevenLongMultiplier)
		if sig.Direction == domain.BiasShort {
			be = sig.EntryPrice.Mul(breakevenShortMultiplier)
		}
		candidate = ratchetBetter(sig.Direction, candidate, be)
	}
	if progress.GreaterThanOrEqual(trailingProgressTrigger) {
		trail := sig.EntryPrice.Add(move.Mul(trailingFraction))
		if sig.Direction == domain.BiasShort {
			trail = sig.EntryPrice.Sub(move.Mul(trailingFraction))
		}
		candidate = ratchetBetter(sig.Direction, candidate, trail)
	}

	if !improvesStop(sig.Direction, sig.StopLoss, candidate) {
		return sig.StopLoss, false
	}
	return candidate, true
}

func ratchetBetter(direction domain.Bias, current, candidate decimal.Decimal) decimal.Decimal {
	if direction == domain.BiasLong {
		if candidate.GreaterThan(current) {
			return candidate
		}
		return current
	}
	if candidate.LessThan(current) {
		return candidate
	}
	return current
}

func improvesStop(direction domain.Bias, oldSL, candidate decimal.Decimal) bool {
	if direction == domain.BiasLong {
		return candidate.GreaterThan(oldSL)
	}
	return candidate.LessThan(oldSL)
}
