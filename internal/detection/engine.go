package detection

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/internal/params"
	"github.com/atlas-desktop/smc-scanner/internal/primitives"
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

var overextensionMultiplier = decimal.NewFromFloat(1.5)

// Engine composes the Narrative, POI, and Trigger layers into exactly one
// domain.Action per call (spec §4.2).
type Engine struct {
	logger *zap.Logger
}

// NewEngine builds a Detection Engine, logging each layer's outcome at debug
// level under the supplied logger's "detection" name.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{logger: logger.Named("detection")}
}

// Generate runs the three-layer pipeline for a single symbol tick.
func (e *Engine) Generate(symbol string, bundle Bundle, currentPrice decimal.Decimal, snap params.Snapshot) domain.Action {
	narr := narrative(bundle, snap)
	if narr.Bias == domain.BiasNeutral {
		e.logger.Debug("no narrative bias", zap.String("symbol", symbol))
		return domain.NoneAction()
	}

	pois := discoverPOIs(narr.Bias, bundle.Frame15m, currentPrice, snap)
	if len(pois) == 0 {
		e.logger.Debug("no POI candidates", zap.String("symbol", symbol), zap.String("bias", string(narr.Bias)))
		return domain.NoneAction()
	}
	top := pois[0]

	poiMaxDistance := snap.Float("poi_max_distance_pct")
	if top.DistanceFromPricePct.GreaterThan(poiMaxDistance.Mul(pctHundred)) {
		e.logger.Debug("best POI too far from price", zap.String("symbol", symbol))
		return domain.NoneAction()
	}

	trig := checkTriggerWithParams(top, bundle.Frame15m, string(types.Timeframe15m),
		snap.Float("displacement_min_body_ratio"), snap.Float("displacement_atr_multiplier"), snap.Float("displacement_min_size_pct"))
	if trig == nil {
		return e.watch(symbol, narr, top, "poi_formed_awaiting_trigger")
	}

	minRR := snap.Float("min_rr_ratio")
	if trig.RR.LessThan(minRR) {
		return e.watch(symbol, narr, top, "rr_below_threshold")
	}

	overextended := poiMaxDistance.Mul(pctHundred).Mul(overextensionMultiplier)
	if distancePct(currentPrice, trig.Entry).GreaterThan(overextended) {
		return e.watch(symbol, narr, top, "overextended")
	}

	if narr.Quality == domain.QualityWeak && len(bundle.Frame4h) > 0 {
		if guard4hObstacle(top, bundle.Frame4h, snap) {
			e.logger.Info("signal cancelled by 4h obstacle guard", zap.String("symbol", symbol))
			return domain.NoneAction()
		}
	}

	atr := primitives.ATR(bundle.Frame15m, atrPeriod)
	e.logger.Info("signal fired",
		zap.String("symbol", symbol), zap.String("trigger", string(trig.Type)), zap.String("quality", string(trig.Quality)))
	return domain.Action{
		Kind: domain.ActionSignal,
		Signal: &domain.SignalEmission{
			Symbol: symbol, Direction: trig.Direction, Entry: trig.Entry, SL: trig.SL, TP: trig.TP, RR: trig.RR,
			TriggerType: trig.Type, Quality: trig.Quality, Components: trig.Components,
			Narrative: narr, POI: top, ATR: atr, EntryMode: domain.EntryModeMarket, Timeframe: trig.Timeframe,
		},
	}
}

func (e *Engine) watch(symbol string, narr domain.StructureState, poi domain.POI, reason string) domain.Action {
	e.logger.Debug("watch emitted", zap.String("symbol", symbol), zap.String("reason", reason))
	return domain.Action{
		Kind: domain.ActionWatch,
		Watch: &domain.WatchEmission{
			Symbol: symbol, Direction: poi.Bias, Entry: poi.Entry, SL: poi.SL, TP: poi.TP, RR: poi.RR,
			Narrative: narr, POI: poi, Reason: reason,
		},
	}
}

// guard4hObstacle reports whether an unmitigated opposing 4h zone sits within
// the first 30% of the entry->TP run, used to cancel signals whose narrative
// bias came only from the 1h fallback (spec §9 Open Questions: no emergency
// bypass for this guard).
func guard4hObstacle(poi domain.POI, frame4h []types.OHLCV, snap params.Snapshot) bool {
	obMaxAge := snap.Int("ob_max_age_candles")
	obBodyMin := snap.Float("ob_body_ratio_min")
	obs := primitives.ActiveOrderBlocks(primitives.OrderBlocks(frame4h, obMaxAge, obBodyMin))

	fvgMaxAge := snap.Int("fvg_max_age_candles")
	fvgMinSize := snap.Float("fvg_min_size_pct")
	fvgs := primitives.FVGs(frame4h, fvgMaxAge, fvgMinSize)

	opposing := domain.OBBearish
	if poi.Bias == domain.BiasShort {
		opposing = domain.OBBullish
	}

	var zones []candidateZone
	for _, ob := range obs {
		if ob.Kind == opposing {
			zones = append(zones, candidateZone{low: ob.Low, high: ob.High, ce: ob.CE, kind: ob.Kind, source: "OB"})
		}
	}
	for _, g := range fvgs {
		if g.Kind == opposing {
			zones = append(zones, candidateZone{low: g.Low, high: g.High, ce: g.CE, kind: g.Kind, source: "FVG"})
		}
	}

	obstacles, _ := scanObstacles(poi.Bias, poi.Entry, poi.TP, zones, poi.Entry)
	for _, o := range obstacles {
		if o.Kind != "ROUND_NUMBER" {
			return o.DistancePct.Div(pctHundred).LessThanOrEqual(obstacleBand)
		}
	}
	return false
}
