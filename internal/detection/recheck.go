package detection

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/internal/params"
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

var (
	poiInvalidationPct = decimal.NewFromFloat(0.012)
	poiWidenedProximityPct = decimal.NewFromFloat(0.025)
	sniperProximityPct  = decimal.NewFromFloat(0.03)
)

// RecheckResult is the outcome of re-evaluating a watchlist entry on its next
// tick: either it stays watching, it should be promoted to a signal, or it
// must expire with a reason.
type RecheckResult struct {
	Promote      bool
	Trigger      *domain.Trigger
	Expire       bool
	ExpireReason string
}

// CheckTriggerForWatch is the lightweight re-check the Watchlist Loop runs
// every cycle against a pending entry: invalidate on adverse breach, else
// re-run Layer 3 at widened proximity, optionally at 5m sniper proximity
// (spec §4.2/§9, "the lightweight re-check path").
func CheckTriggerForWatch(entry domain.WatchlistEntry, frame15m, frame5m []types.OHLCV, currentPrice decimal.Decimal, snap params.Snapshot) RecheckResult {
	poi := entry.Context.POI
	dispBodyRatioMin := snap.Float("displacement_min_body_ratio")
	dispATRMultiplier := snap.Float("displacement_atr_multiplier")
	dispMinSizePct := snap.Float("displacement_min_size_pct")

	adverseBreachPct := distancePct(currentPrice, poi.Entry)
	if adverseBreach(entry.Direction, currentPrice, poi) && adverseBreachPct.GreaterThan(poiInvalidationPct.Mul(pctHundred)) {
		return RecheckResult{Expire: true, ExpireReason: "poi_invalidated"}
	}

	proximityPct := distancePct(currentPrice, poi.Entry).Div(pctHundred)
	if proximityPct.LessThanOrEqual(poiWidenedProximityPct) {
		if len(frame15m) > 0 {
			if t := checkTriggerWithParams(poi, frame15m, string(types.Timeframe15m), dispBodyRatioMin, dispATRMultiplier, dispMinSizePct); t != nil {
				return RecheckResult{Promote: true, Trigger: t}
			}
		}
	}

	if proximityPct.LessThanOrEqual(sniperProximityPct) && len(frame5m) > 0 {
		if t := checkTriggerWithParams(poi, frame5m, string(types.Timeframe5m), dispBodyRatioMin, dispATRMultiplier, dispMinSizePct); t != nil {
			t.Quality = domain.QualitySniper
			return RecheckResult{Promote: true, Trigger: t}
		}
	}

	return RecheckResult{}
}

// adverseBreach reports whether price has moved through the POI's protective
// side, away from entry (i.e. the setup's invalidation direction).
func adverseBreach(direction domain.Bias, currentPrice decimal.Decimal, poi domain.POI) bool {
	if direction == domain.BiasLong {
		return currentPrice.LessThan(poi.ZoneLow)
	}
	return currentPrice.GreaterThan(poi.ZoneHigh)
}
