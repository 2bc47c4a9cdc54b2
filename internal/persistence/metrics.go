package persistence

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
)

// PerformanceSummary is the shape get_performance_summary returns: aggregate
// stats over every closed signal.
type PerformanceSummary struct {
	TotalTrades int
	Wins        int
	Losses      int
	Cancelled   int
	WinRate     decimal.Decimal
	AvgPnLPct   decimal.Decimal
}

// GetPerformanceSummary aggregates every closed signal into a single report.
func (s *Store) GetPerformanceSummary() (PerformanceSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var summary PerformanceSummary
	sumPnL := decimal.Zero
	for _, sig := range s.signals {
		switch sig.Status {
		case domain.SignalWon:
			summary.Wins++
		case domain.SignalLost:
			summary.Losses++
		case domain.SignalCancelled:
			summary.Cancelled++
		default:
			continue
		}
		summary.TotalTrades++
		sumPnL = sumPnL.Add(sig.PnLPct)
	}
	if summary.TotalTrades > 0 {
		summary.AvgPnLPct = sumPnL.Div(decimal.NewFromInt(int64(summary.TotalTrades)))
	}
	decided := summary.Wins + summary.Losses
	if decided > 0 {
		summary.WinRate = decimal.NewFromInt(int64(summary.Wins)).Div(decimal.NewFromInt(int64(decided)))
	}
	return summary, nil
}

// ComponentStats is the per-trigger-component win rate and sample size the
// Self-Optimiser's component-priority mapping table reads (spec §4.5 step 5).
type ComponentStats struct {
	WinRate    decimal.Decimal
	TradeCount int
}

// GetComponentPerformance buckets every closed signal's win/loss outcome by
// each trigger component tag it carried (SWEEP_REJECTION/MSS/DISPLACEMENT/
// HTF_BIAS/POI_ZONE).
func (s *Store) GetComponentPerformance() (map[string]ComponentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wins := make(map[string]int)
	total := make(map[string]int)
	for _, sig := range s.signals {
		if sig.Status != domain.SignalWon && sig.Status != domain.SignalLost {
			continue
		}
		for _, component := range sig.Components {
			total[component]++
			if sig.Status == domain.SignalWon {
				wins[component]++
			}
		}
	}

	out := make(map[string]ComponentStats, len(total))
	for component, count := range total {
		wr := decimal.Zero
		if count > 0 {
			wr = decimal.NewFromInt(int64(wins[component])).Div(decimal.NewFromInt(int64(count)))
		}
		out[component] = ComponentStats{WinRate: wr, TradeCount: count}
	}
	return out, nil
}

// GetHTFBiasAccuracy reports the win rate of closed signals grouped by the
// HTF narrative bias that produced them (LONG/SHORT), a cheap proxy for
// whether the Layer-1 narrative call is actually predictive.
func (s *Store) GetHTFBiasAccuracy() (map[string]decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wins := make(map[string]int)
	total := make(map[string]int)
	for _, sig := range s.signals {
		if sig.Status != domain.SignalWon && sig.Status != domain.SignalLost {
			continue
		}
		key := string(sig.HTFBias)
		total[key]++
		if sig.Status == domain.SignalWon {
			wins[key]++
		}
	}

	out := make(map[string]decimal.Decimal, len(total))
	for bias, count := range total {
		if count == 0 {
			continue
		}
		out[bias] = decimal.NewFromInt(int64(wins[bias])).Div(decimal.NewFromInt(int64(count)))
	}
	return out, nil
}

// AppendOptimisationLog satisfies optimiser.Store: append-only record of a
// parameter change made by the Self-Optimiser (spec §6).
func (s *Store) AppendOptimisationLog(entry domain.OptimisationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.optimisationLog = append(s.optimisationLog, entry)
	return s.saveJSON("optimisation_log.json", s.optimisationLog)
}

// GetOptimisationLogs returns the n most recent optimisation log entries,
// newest first.
func (s *Store) GetOptimisationLogs(n int) ([]domain.OptimisationLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.OptimisationLogEntry, len(s.optimisationLog))
	copy(out, s.optimisationLog)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out, nil
}
