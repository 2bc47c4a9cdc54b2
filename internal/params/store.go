// Package params implements the Parameter Store (C1): a durable mapping from
// parameter name to current value, with defaults, bounds, and clamped writes.
// It is single-writer (the Self-Optimiser) / multi-reader (everyone else);
// readers take a Snapshot once at the start of their iteration rather than
// reading per-primitive (spec §5).
package params

import (
	"fmt"
	"math"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/pkg/utils"
)

// Definition describes one recognized parameter name: its default, bounds,
// and typing, per spec §6's table.
type Definition struct {
	Name    string
	Default decimal.Decimal
	Min     decimal.Decimal
	Max     decimal.Decimal
	Type    domain.ParameterType
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// OptimiserTunable lists the 13 parameters the Self-Optimiser is permitted to
// write, with the exact names/defaults/bounds/typing from spec §6.
var OptimiserTunable = []Definition{
	{"swing_lookback", d(5), d(3), d(8), domain.ParamInt},
	{"bos_min_displacement", d(0.003), d(0.001), d(0.006), domain.ParamFloat},
	{"ob_body_ratio_min", d(0.40), d(0.25), d(0.65), domain.ParamFloat},
	{"ob_max_age_candles", d(30), d(15), d(50), domain.ParamInt},
	{"fvg_min_size_pct", d(0.001), d(0.0003), d(0.004), domain.ParamFloat},
	{"fvg_max_age_candles", d(20), d(10), d(40), domain.ParamInt},
	{"liquidity_equal_tolerance", d(0.001), d(0.0003), d(0.003), domain.ParamFloat},
	{"displacement_min_body_ratio", d(0.55), d(0.40), d(0.75), domain.ParamFloat},
	{"displacement_min_size_pct", d(0.006), d(0.002), d(0.010), domain.ParamFloat},
	{"displacement_atr_multiplier", d(1.5), d(1.0), d(2.5), domain.ParamFloat},
	{"poi_max_distance_pct", d(0.010), d(0.005), d(0.020), domain.ParamFloat},
	{"min_rr_ratio", d(2.0), d(1.2), d(3.0), domain.ParamFloat},
	{"default_sl_pct", d(0.020), d(0.008), d(0.025), domain.ParamFloat},
}

// PolicyDefaults lists the non-optimised policy parameters (spec §6): caps,
// SL-distance bounds, the cooldown and the max trade duration, which the
// optimiser never touches.
var PolicyDefaults = []Definition{
	{"max_concurrent_trades", d(10), d(1), d(100), domain.ParamInt},
	{"max_same_direction_trades", d(6), d(1), d(100), domain.ParamInt},
	{"min_sl_distance_pct", d(0.004), d(0.001), d(0.05), domain.ParamFloat},
	{"max_sl_distance_pct", d(0.05), d(0.01), d(0.15), domain.ParamFloat},
	{"signal_cooldown_minutes", d(30), d(0), d(1440), domain.ParamInt},
	{"max_trade_duration_hours", d(48), d(1), d(336), domain.ParamInt},
}

func allDefinitions() []Definition {
	out := make([]Definition, 0, len(OptimiserTunable)+len(PolicyDefaults))
	out = append(out, OptimiserTunable...)
	out = append(out, PolicyDefaults...)
	return out
}

// Snapshot is an immutable point-in-time read of every parameter's current
// value, taken once at the start of a scheduler iteration per spec §5.
type Snapshot struct {
	values map[string]decimal.Decimal
	types  map[string]domain.ParameterType
}

// Float returns the current value of a float-typed parameter.
func (s Snapshot) Float(name string) decimal.Decimal {
	if v, ok := s.values[name]; ok {
		return v
	}
	return decimal.Zero
}

// Int returns the current value of an int-typed parameter, truncated.
func (s Snapshot) Int(name string) int {
	return int(s.Float(name).IntPart())
}

// Store is the single in-process owner of the parameter map. The
// Self-Optimiser is the only writer; all readers call Snapshot().
type Store struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	entries map[string]*domain.ParameterEntry
	defs    map[string]Definition
	persist PersistAdapter
}

// PersistAdapter is the minimum Persistence surface the Parameter Store
// consumes (spec §6: get_bot_param, get_all_bot_params, save_bot_param).
type PersistAdapter interface {
	GetAllBotParams() (map[string]decimal.Decimal, error)
	SaveBotParam(name string, value, defaultValue decimal.Decimal) error
}

// NewStore constructs the Parameter Store, loading any previously persisted
// values and then running enforce_bounds_on_startup (spec §4.5): any stored
// value outside its bounds is reset to the default, with a logged reason.
func NewStore(logger *zap.Logger, persist PersistAdapter) (*Store, error) {
	s := &Store{
		logger:  logger.Named("params"),
		entries: make(map[string]*domain.ParameterEntry),
		defs:    make(map[string]Definition),
		persist: persist,
	}
	for _, def := range allDefinitions() {
		s.defs[def.Name] = def
		s.entries[def.Name] = &domain.ParameterEntry{
			Name:         def.Name,
			CurrentValue: def.Default,
			DefaultValue: def.Default,
			Min:          def.Min,
			Max:          def.Max,
			Type:         def.Type,
		}
	}

	stored, err := persist.GetAllBotParams()
	if err != nil {
		return nil, fmt.Errorf("parameter store unreadable at startup: %w", err)
	}
	for name, value := range stored {
		def, known := s.defs[name]
		if !known {
			continue
		}
		entry := s.entries[name]
		if value.LessThan(def.Min) || value.GreaterThan(def.Max) {
			s.logger.Warn("stored parameter outside bounds at startup, reset to default",
				zap.String("param", name), zap.String("stored", value.String()),
				zap.String("default", def.Default.String()))
			entry.CurrentValue = def.Default
			continue
		}
		entry.CurrentValue = value
	}
	return s, nil
}

// Snapshot returns a consistent, immutable read of every parameter's current
// value. Callers must take exactly one snapshot per iteration.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make(map[string]decimal.Decimal, len(s.entries))
	types := make(map[string]domain.ParameterType, len(s.entries))
	for name, e := range s.entries {
		values[name] = e.CurrentValue
		types[name] = e.Type
	}
	return Snapshot{values: values, types: types}
}

// ErrUnknownParameter is returned by Set for a name not in the recognized table.
var ErrUnknownParameter = fmt.Errorf("unknown parameter name")

// Set clamps the write to the parameter's bounds and persists it. Writes to
// an unrecognized name are refused and logged (spec §3.11).
func (s *Store) Set(name string, value decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.defs[name]
	if !ok {
		s.logger.Warn("write to unrecognized parameter refused", zap.String("param", name))
		return decimal.Zero, ErrUnknownParameter
	}
	clamped := utils.ClampDecimal(value, def.Min, def.Max)
	if def.Type == domain.ParamInt {
		clamped = decimal.NewFromFloat(math.Round(clamped.InexactFloat64()))
	}
	s.entries[name].CurrentValue = clamped
	if err := s.persist.SaveBotParam(name, clamped, def.Default); err != nil {
		return decimal.Zero, fmt.Errorf("persist parameter %s: %w", name, err)
	}
	return clamped, nil
}

// Get returns a single parameter's current value and whether it is recognized.
func (s *Store) Get(name string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return decimal.Zero, false
	}
	return e.CurrentValue, true
}

// Definition returns the bounds/default/typing for a recognized name.
func (s *Store) Definition(name string) (Definition, bool) {
	def, ok := s.defs[name]
	return def, ok
}
