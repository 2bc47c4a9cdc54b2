package persistence

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
)

// AddSignal persists a new signal and returns its generated ID. The v4
// engine only ever enters at MARKET (domain.EntryModeMarket), so the signal
// is ACTIVE from the moment it is durable; there is no pending/limit state.
func (s *Store) AddSignal(sig domain.Signal) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig.ID = newID("sig")
	if sig.Status == "" {
		sig.Status = domain.SignalActive
	}
	if sig.EntryTime.IsZero() {
		sig.EntryTime = time.Now()
	}
	s.signals[sig.ID] = &sig
	return sig.ID, s.saveJSON("signals.json", s.signals)
}

// ActivateSignal marks a signal ACTIVE, stamping EntryTime if it has not
// already been set. Idempotent: calling it on an already-ACTIVE signal is a
// no-op beyond the save.
func (s *Store) ActivateSignal(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signals[id]
	if !ok {
		return nil
	}
	if sig.EntryTime.IsZero() {
		sig.EntryTime = time.Now()
	}
	sig.Status = domain.SignalActive
	return s.saveJSON("signals.json", s.signals)
}

// UpdateSignalStatus transitions a signal to a terminal status, stamping
// close time, close price, and realized PnL.
func (s *Store) UpdateSignalStatus(id string, status domain.SignalStatus, closePrice, pnlPct decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signals[id]
	if !ok {
		return nil
	}
	now := time.Now()
	sig.Status = status
	sig.CloseTime = &now
	sig.ClosePrice = closePrice
	sig.PnLPct = pnlPct
	return s.saveJSON("signals.json", s.signals)
}

// UpdateSignalSL persists a breakeven/trailing stop adjustment so a restart
// recovers the ratcheted stop rather than the original one.
func (s *Store) UpdateSignalSL(id string, newSL decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sig, ok := s.signals[id]
	if !ok {
		return nil
	}
	sig.StopLoss = newSL
	return s.saveJSON("signals.json", s.signals)
}

// GetActiveSignals returns every signal currently in the ACTIVE state.
func (s *Store) GetActiveSignals() ([]domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Signal, 0)
	for _, sig := range s.signals {
		if sig.Status == domain.SignalActive {
			out = append(out, *sig)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntryTime.Before(out[j].EntryTime) })
	return out, nil
}

// GetActiveTradeCount is a cheap count-only view of GetActiveSignals.
func (s *Store) GetActiveTradeCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sig := range s.signals {
		if sig.Status == domain.SignalActive {
			n++
		}
	}
	return n, nil
}

// CountActiveSignals satisfies lifecycle.Store.
func (s *Store) CountActiveSignals() (int, error) { return s.GetActiveTradeCount() }

// CountActiveSignalsByDirection satisfies lifecycle.Store.
func (s *Store) CountActiveSignalsByDirection(direction domain.Bias) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, sig := range s.signals {
		if sig.Status == domain.SignalActive && sig.Direction == direction {
			n++
		}
	}
	return n, nil
}

// LastSignalCloseTime satisfies lifecycle.Store: the most recent close time
// across any signal on the symbol, for the cooldown check.
func (s *Store) LastSignalCloseTime(symbol string) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *time.Time
	for _, sig := range s.signals {
		if sig.Symbol != symbol || sig.CloseTime == nil {
			continue
		}
		if last == nil || sig.CloseTime.After(*last) {
			t := *sig.CloseTime
			last = &t
		}
	}
	return last, nil
}

// GetSignalHistory returns the n most recently opened signals, newest first.
func (s *Store) GetSignalHistory(n int) ([]domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.Signal, 0, len(s.signals))
	for _, sig := range s.signals {
		all = append(all, *sig)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].EntryTime.After(all[j].EntryTime) })
	if n > 0 && n < len(all) {
		all = all[:n]
	}
	return all, nil
}

// GetCompletedSignalsN returns the n most recently closed (WON/LOST/CANCELLED)
// signals, newest first. Named distinctly from GetCompletedSignals (below)
// because that method already has the time-windowed signature optimiser.Store
// requires; spec.md §6 names both the count view and the optimiser's
// lookback-window view "get_completed_signals" under the original dynamically
// typed contract, which Go can't overload.
func (s *Store) GetCompletedSignalsN(n int) ([]domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := completedSignals(s.signals)
	sort.Slice(out, func(i, j int) bool {
		return closeOf(out[i]).After(closeOf(out[j]))
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out, nil
}

// GetCompletedSignals returns every closed signal since the given time.
// Satisfies optimiser.Store: the Self-Optimiser's trade-pool build reads a
// lookback window rather than a fixed count (spec §4.5 step 2).
func (s *Store) GetCompletedSignals(since time.Time) ([]domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Signal, 0)
	for _, sig := range completedSignals(s.signals) {
		if closeOf(sig).After(since) {
			out = append(out, sig)
		}
	}
	return out, nil
}

func completedSignals(signals map[string]*domain.Signal) []domain.Signal {
	out := make([]domain.Signal, 0, len(signals))
	for _, sig := range signals {
		switch sig.Status {
		case domain.SignalWon, domain.SignalLost, domain.SignalCancelled:
			out = append(out, *sig)
		}
	}
	return out
}

func closeOf(sig domain.Signal) time.Time {
	if sig.CloseTime != nil {
		return *sig.CloseTime
	}
	return sig.EntryTime
}

// GetLossAnalysis returns the n most recent LOST signals, newest first,
// mirroring original_source/analyze_perf.py's losing-trades detail query.
func (s *Store) GetLossAnalysis(n int) ([]domain.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Signal, 0)
	for _, sig := range s.signals {
		if sig.Status == domain.SignalLost {
			out = append(out, *sig)
		}
	}
	sort.Slice(out, func(i, j int) bool { return closeOf(out[i]).After(closeOf(out[j])) })
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out, nil
}
