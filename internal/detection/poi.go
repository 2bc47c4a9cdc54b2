package detection

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/internal/params"
	"github.com/atlas-desktop/smc-scanner/internal/primitives"
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

var (
	pctHundred    = decimal.NewFromInt(100)
	pctTwoPercent = decimal.NewFromFloat(0.02)
	zoneBuffer    = decimal.NewFromFloat(0.20)
	obstacleBand  = decimal.NewFromFloat(0.30)
	obstacleCushion = decimal.NewFromFloat(0.02)
)

type candidateZone struct {
	low, high, ce decimal.Decimal
	kind          domain.OBKind
	source        string
}

// discoverPOIs runs the Layer-2 POI discovery pass on the 15m frame, filtered
// to the narrative bias (spec §4.2 Layer 2).
func discoverPOIs(bias domain.Bias, frame15m []types.OHLCV, currentPrice decimal.Decimal, snap params.Snapshot) []domain.POI {
	if len(frame15m) == 0 {
		return nil
	}
	lookback := snap.Int("swing_lookback")
	highs, lows := primitives.Swings(frame15m, lookback)
	tolerance := snap.Float("liquidity_equal_tolerance")
	pools := primitives.LiquidityPools(frame15m, highs, lows, tolerance)

	obMaxAge := snap.Int("ob_max_age_candles")
	obBodyMin := snap.Float("ob_body_ratio_min")
	obs := primitives.ActiveOrderBlocks(primitives.OrderBlocks(frame15m, obMaxAge, obBodyMin))

	fvgMaxAge := snap.Int("fvg_max_age_candles")
	fvgMinSize := snap.Float("fvg_min_size_pct")
	fvgs := primitives.FVGs(frame15m, fvgMaxAge, fvgMinSize)

	wantKind := domain.OBBullish
	if bias == domain.BiasShort {
		wantKind = domain.OBBearish
	}

	var zones []candidateZone
	for _, ob := range obs {
		if ob.Kind != wantKind {
			continue
		}
		if onBiasSide(bias, ob.Low, ob.High, currentPrice) {
			zones = append(zones, candidateZone{low: ob.Low, high: ob.High, ce: ob.CE, kind: ob.Kind, source: "OB"})
		}
	}
	for _, g := range fvgs {
		if g.Kind != wantKind {
			continue
		}
		if onBiasSide(bias, g.Low, g.High, currentPrice) {
			zones = append(zones, candidateZone{low: g.Low, high: g.High, ce: g.CE, kind: g.Kind, source: "FVG"})
		}
	}

	rangeLow, rangeHigh := dealingRange(highs, lows, currentPrice)

	minRR := snap.Float("min_rr_ratio")
	minSL := snap.Float("min_sl_distance_pct")
	maxSL := snap.Float("max_sl_distance_pct")

	var pois []domain.POI
	for i, z := range zones {
		confluence := 1
		var sources []string
		sources = append(sources, z.source)
		for j, other := range zones {
			if i == j {
				continue
			}
			if overlaps(z.low, z.high, other.low, other.high) {
				confluence++
				sources = append(sources, other.source)
			}
		}
		for _, p := range pools {
			if p.Price.GreaterThanOrEqual(z.low) && p.Price.LessThanOrEqual(z.high) {
				confluence++
				sources = append(sources, string(p.Side))
			}
		}

		entry := z.ce
		height := z.high.Sub(z.low)
		buffer := height.Mul(zoneBuffer)

		var sl decimal.Decimal
		if bias == domain.BiasLong {
			sl = z.low.Sub(buffer)
		} else {
			sl = z.high.Add(buffer)
		}

		tp := nearestOpposingLiquidity(pools, bias, entry)

		sl = clampSLDistance(bias, entry, sl, minSL, maxSL)

		obstacles, hasObstacle := scanObstacles(bias, entry, tp, zones, currentPrice)
		if hasObstacle {
			tp = pullTPToObstacle(bias, entry, obstacles[0])
		}

		rr := riskReward(entry, sl, tp)

		poi := domain.POI{
			Bias: bias, Entry: entry, SL: sl, TP: tp, RR: rr,
			ZoneHigh: z.high, ZoneLow: z.low, ConfluenceCount: confluence,
			ConfluenceSources: sources, InCorrectZone: inCorrectZone(bias, entry, rangeLow, rangeHigh),
			InOTE: primitives.InOTE(entry, bias, rangeLow, rangeHigh),
			DistanceFromPricePct: distancePct(currentPrice, entry),
			Obstacles: obstacles, HasObstacle: hasObstacle,
			PDZone: primitives.PremiumDiscountZone(primitives.PositionPct(entry, rangeLow, rangeHigh)),
		}
		pois = append(pois, poi)
	}

	sort.SliceStable(pois, func(i, j int) bool {
		iOK := pois[i].RR.GreaterThanOrEqual(minRR)
		jOK := pois[j].RR.GreaterThanOrEqual(minRR)
		if iOK != jOK {
			return iOK
		}
		if pois[i].ConfluenceCount != pois[j].ConfluenceCount {
			return pois[i].ConfluenceCount > pois[j].ConfluenceCount
		}
		return pois[i].DistanceFromPricePct.LessThan(pois[j].DistanceFromPricePct)
	})

	return pois
}

func onBiasSide(bias domain.Bias, low, high, currentPrice decimal.Decimal) bool {
	if bias == domain.BiasLong {
		return low.LessThanOrEqual(currentPrice)
	}
	return high.GreaterThanOrEqual(currentPrice)
}

func overlaps(aLow, aHigh, bLow, bHigh decimal.Decimal) bool {
	return aLow.LessThanOrEqual(bHigh) && bLow.LessThanOrEqual(aHigh)
}

func dealingRange(highs, lows []domain.SwingPoint, fallback decimal.Decimal) (low, high decimal.Decimal) {
	high = fallback
	low = fallback
	if len(highs) > 0 {
		high = highs[len(highs)-1].Price
	}
	if len(lows) > 0 {
		low = lows[len(lows)-1].Price
	}
	if high.LessThanOrEqual(low) {
		high = low.Add(decimal.NewFromFloat(0.0001))
	}
	return low, high
}

func nearestOpposingLiquidity(pools []domain.LiquidityPool, bias domain.Bias, entry decimal.Decimal) decimal.Decimal {
	bsl, ssl := primitives.NearestUnswept(pools, entry)
	if bias == domain.BiasLong {
		if bsl != nil {
			return bsl.Price
		}
		return entry.Mul(decimal.NewFromInt(1).Add(pctTwoPercent))
	}
	if ssl != nil {
		return ssl.Price
	}
	return entry.Mul(decimal.NewFromInt(1).Sub(pctTwoPercent))
}

// clampSLDistance clamps |entry-sl|/entry into [minPct, maxPct], re-deriving
// sl from entry when outside (spec §4.2 Layer 2).
func clampSLDistance(bias domain.Bias, entry, sl, minPct, maxPct decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return sl
	}
	distPct := entry.Sub(sl).Abs().Div(entry)
	if distPct.GreaterThanOrEqual(minPct) && distPct.LessThanOrEqual(maxPct) {
		return sl
	}
	clamped := distPct
	if clamped.LessThan(minPct) {
		clamped = minPct
	}
	if clamped.GreaterThan(maxPct) {
		clamped = maxPct
	}
	if bias == domain.BiasLong {
		return entry.Mul(decimal.NewFromInt(1).Sub(clamped))
	}
	return entry.Mul(decimal.NewFromInt(1).Add(clamped))
}

func riskReward(entry, sl, tp decimal.Decimal) decimal.Decimal {
	risk := entry.Sub(sl).Abs()
	if risk.IsZero() {
		return decimal.Zero
	}
	reward := tp.Sub(entry).Abs()
	return reward.Div(risk)
}

func inCorrectZone(bias domain.Bias, entry, rangeLow, rangeHigh decimal.Decimal) bool {
	zone := primitives.PremiumDiscountZone(primitives.PositionPct(entry, rangeLow, rangeHigh))
	if bias == domain.BiasLong {
		return zone == domain.PDDeepDiscount || zone == domain.PDDiscount
	}
	return zone == domain.PDPremium || zone == domain.PDDeepPremium
}

func distancePct(currentPrice, target decimal.Decimal) decimal.Decimal {
	if currentPrice.IsZero() {
		return decimal.Zero
	}
	return currentPrice.Sub(target).Abs().Div(currentPrice).Mul(pctHundred)
}

// roundNumberStep picks the round-number grid step by price magnitude, per
// the 1000/500/100/50/5/0.5/0.05 table in spec §4.2.
func roundNumberStep(price decimal.Decimal) decimal.Decimal {
	switch {
	case price.GreaterThanOrEqual(decimal.NewFromInt(10000)):
		return decimal.NewFromInt(1000)
	case price.GreaterThanOrEqual(decimal.NewFromInt(1000)):
		return decimal.NewFromInt(500)
	case price.GreaterThanOrEqual(decimal.NewFromInt(100)):
		return decimal.NewFromInt(100)
	case price.GreaterThanOrEqual(decimal.NewFromInt(10)):
		return decimal.NewFromInt(50)
	case price.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return decimal.NewFromInt(5)
	case price.GreaterThanOrEqual(decimal.NewFromFloat(0.1)):
		return decimal.NewFromFloat(0.5)
	default:
		return decimal.NewFromFloat(0.05)
	}
}

func roundNumberLevels(entry, tp decimal.Decimal) []decimal.Decimal {
	step := roundNumberStep(entry)
	lo, hi := entry, tp
	if lo.GreaterThan(hi) {
		lo, hi = hi, lo
	}
	var levels []decimal.Decimal
	start := lo.Div(step).Ceil().Mul(step)
	for lvl := start; lvl.LessThanOrEqual(hi); lvl = lvl.Add(step) {
		levels = append(levels, lvl)
		if len(levels) > 10 {
			break
		}
	}
	return levels
}

// scanObstacles enumerates opposing unmitigated zones and round-number levels
// between entry and tp; returns them sorted nearest-first and whether the
// closest sits within the first 30% of the entry->tp distance (spec §4.2).
func scanObstacles(bias domain.Bias, entry, tp decimal.Decimal, zones []candidateZone, currentPrice decimal.Decimal) ([]domain.Obstacle, bool) {
	span := tp.Sub(entry).Abs()
	if span.IsZero() {
		return nil, false
	}
	opposingKind := domain.OBBearish
	if bias == domain.BiasShort {
		opposingKind = domain.OBBullish
	}

	var obstacles []domain.Obstacle
	for _, z := range zones {
		if z.kind != opposingKind {
			continue
		}
		between := (bias == domain.BiasLong && z.ce.GreaterThan(entry) && z.ce.LessThan(tp)) ||
			(bias == domain.BiasShort && z.ce.LessThan(entry) && z.ce.GreaterThan(tp))
		if !between {
			continue
		}
		dist := z.ce.Sub(entry).Abs().Div(span)
		obstacles = append(obstacles, domain.Obstacle{Price: z.ce, Kind: z.source, DistancePct: dist.Mul(pctHundred)})
	}
	for _, lvl := range roundNumberLevels(entry, tp) {
		between := (bias == domain.BiasLong && lvl.GreaterThan(entry) && lvl.LessThan(tp)) ||
			(bias == domain.BiasShort && lvl.LessThan(entry) && lvl.GreaterThan(tp))
		if !between {
			continue
		}
		dist := lvl.Sub(entry).Abs().Div(span)
		obstacles = append(obstacles, domain.Obstacle{Price: lvl, Kind: "ROUND_NUMBER", DistancePct: dist.Mul(pctHundred)})
	}

	sort.Slice(obstacles, func(i, j int) bool { return obstacles[i].DistancePct.LessThan(obstacles[j].DistancePct) })
	if len(obstacles) == 0 {
		return nil, false
	}
	closest := obstacles[0].DistancePct.Div(pctHundred)
	return obstacles, closest.LessThanOrEqual(obstacleBand)
}

func pullTPToObstacle(bias domain.Bias, entry decimal.Decimal, obstacle domain.Obstacle) decimal.Decimal {
	cushion := obstacle.Price.Mul(obstacleCushion)
	if bias == domain.BiasLong {
		return obstacle.Price.Sub(cushion)
	}
	return obstacle.Price.Add(cushion)
}
