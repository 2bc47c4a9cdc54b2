package detection

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/internal/params"
	"github.com/atlas-desktop/smc-scanner/internal/primitives"
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

// atrPeriod is the trigger layer's volatility-gate lookback. Not an
// optimiser-tunable (spec §6 lists no such parameter); held fixed at the
// conventional Wilder default.
const atrPeriod = 14

// checkTriggerWithParams runs the Layer-3 pass against a candidate POI:
// SWEEP_REJECTION, then MSS, then DISPLACEMENT, first match wins (spec §4.2
// Layer 3), using the optimiser-tuned displacement thresholds (spec §6:
// displacement_min_body_ratio, displacement_atr_multiplier,
// displacement_min_size_pct).
func checkTriggerWithParams(poi domain.POI, frame15m []types.OHLCV, timeframe string, dispBodyRatioMin, dispATRMultiplier, dispMinSizePct decimal.Decimal) *domain.Trigger {
	if len(frame15m) < atrPeriod+2 {
		return nil
	}
	last := frame15m[len(frame15m)-1]
	atr := primitives.ATR(frame15m, atrPeriod)
	if primitives.IsVolatile(last, atr) {
		return nil
	}

	if t := checkSweepRejection(poi, frame15m, timeframe); t != nil {
		return t
	}
	if t := checkMSS(poi, frame15m, timeframe); t != nil {
		return t
	}
	if t := checkDisplacement(poi, frame15m, timeframe, dispBodyRatioMin, dispATRMultiplier, dispMinSizePct); t != nil {
		return t
	}
	return nil
}

func checkSweepRejection(poi domain.POI, frame []types.OHLCV, timeframe string) *domain.Trigger {
	level := poi.ZoneLow
	if poi.Bias == domain.BiasShort {
		level = poi.ZoneHigh
	}
	from := len(frame) - 5
	if from < 0 {
		from = 0
	}
	sweep := primitives.Sweep(frame, from, level, poi.Bias)
	if sweep == nil || sweep.CandleIndex != len(frame)-1 {
		return nil
	}
	entry := frame[len(frame)-1].Close
	sl := sweep.SL
	return buildTrigger(domain.TriggerSweepRejection, poi, entry, sl, timeframe)
}

func checkMSS(poi domain.POI, frame []types.OHLCV, timeframe string) *domain.Trigger {
	anchor := len(frame) - 20
	if anchor < 0 {
		anchor = 0
	}
	fired, _, atIndex := primitives.MSS(frame, anchor, poi.Bias)
	if !fired || atIndex != len(frame)-1 {
		return nil
	}
	entry := frame[len(frame)-1].Close
	return buildTrigger(domain.TriggerMSS, poi, entry, poi.SL, timeframe)
}

func checkDisplacement(poi domain.POI, frame []types.OHLCV, timeframe string, bodyRatioMin, atrMultiplier, minSizePct decimal.Decimal) *domain.Trigger {
	atr := primitives.ATR(frame, atrPeriod)
	events := primitives.Displacement(frame, atr, bodyRatioMin, atrMultiplier, minSizePct)
	if len(events) == 0 {
		return nil
	}
	last := events[len(events)-1]
	if last.EndIndex != len(frame)-1 || last.Direction != poi.Bias {
		return nil
	}
	entry := frame[len(frame)-1].Close
	return buildTrigger(domain.TriggerDisplacement, poi, entry, poi.SL, timeframe)
}

func buildTrigger(kind domain.TriggerType, poi domain.POI, entry, sl decimal.Decimal, timeframe string) *domain.Trigger {
	rr := riskReward(entry, sl, poi.TP)
	return &domain.Trigger{
		Type: kind, Direction: poi.Bias, Entry: entry, SL: sl, TP: poi.TP, RR: rr,
		Quality: gradeQuality(poi), Components: poi.ConfluenceSources, POI: poi, Timeframe: timeframe,
	}
}

// gradeQuality maps confluence depth to a trigger grade. SNIPER is reserved
// for the 5m re-check variant and is never assigned here (spec §4.3).
func gradeQuality(poi domain.POI) domain.TriggerQuality {
	switch {
	case poi.ConfluenceCount >= 4:
		return domain.QualityAPlus
	case poi.ConfluenceCount == 3:
		return domain.QualityA
	case poi.ConfluenceCount == 2:
		return domain.QualityB
	default:
		return domain.QualityC
	}
}
