// Package optimiser implements the Self-Optimiser (C8): the sole writer of
// the Parameter Store, nudging optimiser-tunable parameters on a slow cadence
// based on recently closed trades' component performance, with a rollback
// guard and an emergency mode for a losing streak (spec §4.5), grounded on
// the teacher's optimization.Optimizer config/logger/rng construction idiom.
package optimiser

import (
	"math/rand"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/internal/params"
	"github.com/atlas-desktop/smc-scanner/pkg/utils"
)

// Store is the Persistence slice the Self-Optimiser reads trade history from
// and appends its audit trail to.
type Store interface {
	GetCompletedSignals(since time.Time) ([]domain.Signal, error)
	AppendOptimisationLog(entry domain.OptimisationLogEntry) error
}

// Config tunes the optimiser's own cadence-independent thresholds. These are
// ambient (not optimiser-tunable parameters themselves, per spec §6's table).
type Config struct {
	LookbackWindow time.Duration
	MinTradesToAct int

	// TargetWinRate is the healthy win rate the component-priority mapping
	// measures every component's gap against (spec §4.5 step 5).
	TargetWinRate decimal.Decimal
	// RollbackMargin is the win-rate-point drop (as a 0-1 fraction, e.g.
	// 0.03 for 3.0 points) that triggers the rollback guard (spec §4.5
	// step 3).
	RollbackMargin decimal.Decimal
	// MinNewTerminalTradesForRollback is the "≥2 new terminal trades
	// since" precondition on the rollback guard.
	MinNewTerminalTradesForRollback int
	// LearningRate and MaxParamChangePct are not named with defaults in
	// the spec, only by name (step 6's "learning_rate", step 7's
	// "max_param_change_pct"); chosen conservatively and recorded in
	// DESIGN.md.
	LearningRate      decimal.Decimal
	MaxParamChangePct decimal.Decimal
	NoiseFloorPct     decimal.Decimal
	MaxProposals      int
	MaxPerGroup       int
}

// DefaultConfig mirrors the cadence/thresholds named in spec §4.5.
func DefaultConfig() Config {
	return Config{
		LookbackWindow:                   14 * 24 * time.Hour,
		MinTradesToAct:                   20,
		TargetWinRate:                    decimal.NewFromFloat(0.5),
		RollbackMargin:                   decimal.NewFromFloat(0.03),
		MinNewTerminalTradesForRollback:  2,
		LearningRate:                     decimal.NewFromFloat(0.1),
		MaxParamChangePct:                decimal.NewFromFloat(0.15),
		NoiseFloorPct:                    decimal.NewFromFloat(0.01),
		MaxProposals:                     4,
		MaxPerGroup:                      2,
	}
}

// componentGroup maps a trigger-component tag (spec §4.5 step 5's table) to
// the optimiser-tunable parameters it blames when that component is
// underperforming its win-rate target.
var componentGroup = map[string][]string{
	"SWEEP_REJECTION": {"liquidity_equal_tolerance", "swing_lookback", "displacement_min_body_ratio"},
	"MSS":             {"bos_min_displacement", "ob_body_ratio_min", "swing_lookback"},
	"DISPLACEMENT":    {"displacement_min_body_ratio", "displacement_atr_multiplier", "displacement_min_size_pct"},
	"HTF_BIAS":        {"bos_min_displacement", "swing_lookback"},
	"POI_ZONE":        {"poi_max_distance_pct", "ob_max_age_candles", "fvg_max_age_candles", "fvg_min_size_pct"},
}

// alwaysScored is the "(always)" row of spec §4.5 step 5's table: risk
// parameters that receive a baseline priority score every cycle regardless
// of which components are underperforming.
var alwaysScored = []string{"default_sl_pct", "min_rr_ratio"}

// tightenSign records, per optimiser-tunable parameter, whether increasing
// the value tightens detection (+1) or loosening means increasing it (-1).
// default_sl_pct follows spec §4.5 step 4's own emergency-mode framing,
// where "+6%" is explicitly labeled a tightening.
var tightenSign = map[string]decimal.Decimal{
	"swing_lookback":               decimal.NewFromInt(1),
	"bos_min_displacement":         decimal.NewFromInt(1),
	"ob_body_ratio_min":            decimal.NewFromInt(1),
	"ob_max_age_candles":           decimal.NewFromInt(-1),
	"fvg_min_size_pct":             decimal.NewFromInt(1),
	"fvg_max_age_candles":          decimal.NewFromInt(-1),
	"liquidity_equal_tolerance":    decimal.NewFromInt(-1),
	"displacement_min_body_ratio":  decimal.NewFromInt(1),
	"displacement_min_size_pct":    decimal.NewFromInt(1),
	"displacement_atr_multiplier":  decimal.NewFromInt(1),
	"poi_max_distance_pct":         decimal.NewFromInt(-1),
	"min_rr_ratio":                 decimal.NewFromInt(1),
	"default_sl_pct":               decimal.NewFromInt(1),
}

// Optimiser is the single writer of the Parameter Store.
type Optimiser struct {
	logger *zap.Logger
	store  Store
	params *params.Store
	cfg    Config
	rng    *rand.Rand

	lastWinRate  decimal.Decimal
	lastSnapshot map[string]decimal.Decimal
	lastRunAt    time.Time
}

// New builds a Self-Optimiser. seed must be supplied by the caller (e.g. from
// a Unix timestamp at wiring time) since package scripts may not call
// time.Now() themselves.
func New(logger *zap.Logger, store Store, paramStore *params.Store, cfg Config, seed int64) *Optimiser {
	return &Optimiser{
		logger: logger.Named("optimiser"),
		store:  store,
		params: paramStore,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Proposal is a single candidate parameter nudge awaiting constraint checks.
type Proposal struct {
	Name     string
	NewValue decimal.Decimal
	Group    string
	Priority decimal.Decimal
	Reason   string
}

// Run executes one optimisation cycle at the scheduler's ~30min cadence,
// following spec §4.5's numbered steps in order.
func (o *Optimiser) Run(now time.Time) {
	// Step 1: enough terminal trades to act on.
	trades, err := o.store.GetCompletedSignals(now.Add(-o.cfg.LookbackWindow))
	if err != nil {
		o.logger.Error("failed to load completed signals", zap.Error(err))
		return
	}
	if len(trades) < o.cfg.MinTradesToAct {
		o.logger.Debug("not enough closed trades to optimise", zap.Int("count", len(trades)))
		return
	}

	// Step 2: trade pool stats.
	winRate := computeWinRate(trades)
	losses := countLosses(trades)
	o.logger.Info("optimiser cycle", zap.Int("trades", len(trades)), zap.String("win_rate", winRate.String()))

	// Step 3: rollback guard.
	if o.lastSnapshot != nil {
		drop := o.lastWinRate.Sub(winRate)
		newTerminal := countTerminalSince(trades, o.lastRunAt)
		if drop.GreaterThanOrEqual(o.cfg.RollbackMargin) && newTerminal >= o.cfg.MinNewTerminalTradesForRollback {
			o.rollback(now, o.lastWinRate, winRate)
			o.lastWinRate = winRate
			o.lastRunAt = now
			return
		}
	}

	// Step 4: emergency mode.
	if winRate.IsZero() && losses >= 3 {
		o.emergencyMode(now, winRate)
		o.lastWinRate = winRate
		o.lastRunAt = now
		return
	}

	// Steps 5-8: component-priority scoring, candidate generation, and
	// selection.
	componentWR := componentWinRates(trades)
	proposals := o.generateProposals(componentWR, winRate)
	selected := selectProposals(proposals, o.cfg.MaxProposals, o.cfg.MaxPerGroup)

	// Step 9: commit.
	snapshotBefore := o.snapshotTunables()
	for _, p := range selected {
		current, ok := o.params.Get(p.Name)
		if !ok {
			continue
		}
		applied, err := o.params.Set(p.Name, p.NewValue)
		if err != nil {
			o.logger.Warn("failed to apply optimiser proposal", zap.String("param", p.Name), zap.Error(err))
			continue
		}
		_ = o.store.AppendOptimisationLog(domain.OptimisationLogEntry{
			ParamName: p.Name, OldValue: current, NewValue: applied, Reason: p.Reason,
			WRBefore: o.lastWinRate, WRAfter: winRate, TradesAnalyzed: len(trades), Timestamp: now,
		})
	}
	o.lastSnapshot = snapshotBefore
	o.lastWinRate = winRate
	o.lastRunAt = now
}

// emergencyMode is the death-spiral escape hatch (spec §4.5 step 4): when WR
// has collapsed to zero over at least 3 losses, aggressively tighten three
// named risk parameters instead of the normal proportional nudge. There is
// no bypass for SNIPER-quality triggers here; the guard applies uniformly.
func (o *Optimiser) emergencyMode(now time.Time, winRate decimal.Decimal) {
	o.logger.Warn("emergency mode triggered: win rate zero with losing streak", zap.String("win_rate", winRate.String()))
	tightenings := []struct {
		name string
		pct  decimal.Decimal
	}{
		{"displacement_min_body_ratio", decimal.NewFromFloat(0.08)},
		{"fvg_min_size_pct", decimal.NewFromFloat(0.10)},
		{"default_sl_pct", decimal.NewFromFloat(0.06)},
	}
	for _, t := range tightenings {
		current, ok := o.params.Get(t.name)
		if !ok {
			continue
		}
		target := current.Mul(decimal.NewFromInt(1).Add(t.pct))
		applied, err := o.params.Set(t.name, target) // Set clamps to bounds: the spec's "capped".
		if err != nil {
			continue
		}
		_ = o.store.AppendOptimisationLog(domain.OptimisationLogEntry{
			ParamName: t.name, OldValue: current, NewValue: applied, Reason: "emergency_mode_tightening",
			WRBefore: winRate, WRAfter: winRate, Timestamp: now,
		})
	}
	o.lastSnapshot = nil
}

// rollback reverts every parameter changed in the prior cycle to its
// pre-cycle value (spec §4.5 step 3).
func (o *Optimiser) rollback(now time.Time, before, after decimal.Decimal) {
	o.logger.Warn("rollback guard triggered, reverting last optimisation cycle",
		zap.String("wr_before", before.String()), zap.String("wr_after", after.String()))
	for name, value := range o.lastSnapshot {
		current, _ := o.params.Get(name)
		applied, err := o.params.Set(name, value)
		if err != nil {
			continue
		}
		_ = o.store.AppendOptimisationLog(domain.OptimisationLogEntry{
			ParamName: name, OldValue: current, NewValue: applied,
			Reason: "ROLLBACK: win rate regressed beyond margin since previous cycle",
			WRBefore: before, WRAfter: after, Timestamp: now,
		})
	}
	o.lastSnapshot = nil
}

func (o *Optimiser) snapshotTunables() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(params.OptimiserTunable))
	for _, def := range params.OptimiserTunable {
		if v, ok := o.params.Get(def.Name); ok {
			out[def.Name] = v
		}
	}
	return out
}

func computeWinRate(trades []domain.Signal) decimal.Decimal {
	if len(trades) == 0 {
		return decimal.Zero
	}
	wins := 0
	for _, t := range trades {
		if t.Status == domain.SignalWon {
			wins++
		}
	}
	return decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(len(trades))))
}

func countLosses(trades []domain.Signal) int {
	n := 0
	for _, t := range trades {
		if t.Status == domain.SignalLost {
			n++
		}
	}
	return n
}

// countTerminalSince counts trades that closed after the given time, used
// by the rollback guard's "≥2 new terminal trades since" precondition.
func countTerminalSince(trades []domain.Signal, since time.Time) int {
	if since.IsZero() {
		return len(trades)
	}
	count := 0
	for _, t := range trades {
		if t.CloseTime != nil && t.CloseTime.After(since) {
			count++
		}
	}
	return count
}

// componentWinRates computes each trigger-component tag's win rate over the
// lookback window (spec §4.5 step 5: "per-trigger-component WR stats").
func componentWinRates(trades []domain.Signal) map[string]decimal.Decimal {
	wins := make(map[string]int)
	totals := make(map[string]int)
	for _, t := range trades {
		if t.Status != domain.SignalWon && t.Status != domain.SignalLost {
			continue
		}
		for _, c := range t.Components {
			totals[c]++
			if t.Status == domain.SignalWon {
				wins[c]++
			}
		}
	}
	out := make(map[string]decimal.Decimal, len(totals))
	for c, total := range totals {
		out[c] = decimal.NewFromInt(int64(wins[c])).Div(decimal.NewFromInt(int64(total)))
	}
	return out
}

// generateProposals implements spec §4.5 steps 5-7: a priority score per
// parameter group from each underperforming component's gap G plus the
// always-scored risk-parameter baseline, a step sized by learning rate and
// an intensity tier, and the per-proposal constraint checks (clamp to
// max_param_change_pct, clamp to bounds, coerce int, drop sub-1% noise).
func (o *Optimiser) generateProposals(componentWR map[string]decimal.Decimal, winRate decimal.Decimal) []Proposal {
	priority := make(map[string]decimal.Decimal)
	reason := make(map[string]string)

	for component, wr := range componentWR {
		group, ok := componentGroup[component]
		if !ok {
			continue
		}
		gap := o.cfg.TargetWinRate.Sub(wr)
		if gap.LessThanOrEqual(decimal.Zero) {
			continue
		}
		for _, name := range group {
			priority[name] = priority[name].Add(gap)
			reason[name] = "elevated loss rate on " + component
		}
	}

	baseline := decimal.NewFromFloat(0.5).Mul(o.cfg.TargetWinRate.Sub(winRate))
	for _, name := range alwaysScored {
		priority[name] = priority[name].Add(baseline)
		if reason[name] == "" {
			reason[name] = "baseline risk-parameter adjustment"
		}
	}

	intensity, direction := intensityFor(o.cfg.TargetWinRate, winRate)

	var proposals []Proposal
	for name, score := range priority {
		if score.LessThanOrEqual(decimal.Zero) {
			continue
		}
		def, ok := o.params.Definition(name)
		if !ok {
			continue
		}
		current, ok := o.params.Get(name)
		if !ok {
			continue
		}
		sign, ok := tightenSign[name]
		if !ok {
			sign = decimal.NewFromInt(1)
		}

		// Step 6: step = current × learning_rate × intensity, directed by
		// tighten/loosen sign.
		step := current.Mul(o.cfg.LearningRate).Mul(intensity).Mul(sign).Mul(direction)

		// Step 7: clamp |Δ| to ≤ max_param_change_pct × current, clamp to
		// bounds, coerce int.
		maxDelta := current.Mul(o.cfg.MaxParamChangePct).Abs()
		if step.Abs().GreaterThan(maxDelta) {
			if step.IsNegative() {
				step = maxDelta.Neg()
			} else {
				step = maxDelta
			}
		}
		target := current.Add(step)
		target = utils.ClampDecimal(target, def.Min, def.Max)
		delta := target.Sub(current)

		// Drop proposals with |Δ/current| < 1% (noise).
		if current.IsZero() || delta.Abs().Div(current.Abs()).LessThan(o.cfg.NoiseFloorPct) {
			continue
		}

		proposals = append(proposals, Proposal{
			Name: name, NewValue: target, Group: componentGroupFor(name),
			Priority: score, Reason: reason[name],
		})
	}
	return proposals
}

// componentGroupFor resolves which §4.5-table group a parameter belongs to
// for the purposes of selectProposals' max-2-per-group cap; falls back to
// the parameter's own name so an unmapped parameter still competes singly.
func componentGroupFor(name string) string {
	for group, names := range componentGroup {
		for _, n := range names {
			if n == name {
				return group
			}
		}
	}
	return name
}

// intensityFor implements spec §4.5 step 6's tiering: 0.5 when at/above
// target (direction: loosen), 1.0 near target, 1.5 if 5-10 points below,
// 2.0 if more than 10 points below (direction: tighten in all three).
func intensityFor(target, winRate decimal.Decimal) (intensity, direction decimal.Decimal) {
	diffPoints := target.Sub(winRate).Mul(decimal.NewFromInt(100))
	switch {
	case diffPoints.LessThanOrEqual(decimal.Zero):
		return decimal.NewFromFloat(0.5), decimal.NewFromInt(-1)
	case diffPoints.LessThan(decimal.NewFromInt(5)):
		return decimal.NewFromFloat(1.0), decimal.NewFromInt(1)
	case diffPoints.LessThan(decimal.NewFromInt(10)):
		return decimal.NewFromFloat(1.5), decimal.NewFromInt(1)
	default:
		return decimal.NewFromFloat(2.0), decimal.NewFromInt(1)
	}
}

// selectProposals implements spec §4.5 step 8: sort by priority score
// descending, then take up to maxTotal with at most maxPerGroup per group.
func selectProposals(proposals []Proposal, maxTotal, maxPerGroup int) []Proposal {
	sort.SliceStable(proposals, func(i, j int) bool {
		return proposals[i].Priority.GreaterThan(proposals[j].Priority)
	})

	perGroup := make(map[string]int)
	var selected []Proposal
	for _, p := range proposals {
		if len(selected) >= maxTotal {
			break
		}
		if perGroup[p.Group] >= maxPerGroup {
			continue
		}
		selected = append(selected, p)
		perGroup[p.Group]++
	}
	return selected
}
