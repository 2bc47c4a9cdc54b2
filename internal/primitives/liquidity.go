package primitives

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

// LiquidityPools clusters swing highs/lows into equal-level pools (EQH/EQL
// when >=2 touches within `tolerance` fraction of each other, else a lone
// SWING_HIGH/SWING_LOW), then marks each pool swept if any later candle
// exceeds it by tolerance (spec §4.1).
func LiquidityPools(frame []types.OHLCV, highs, lows []domain.SwingPoint, tolerance decimal.Decimal) []domain.LiquidityPool {
	var pools []domain.LiquidityPool
	pools = append(pools, clusterPools(frame, highs, tolerance, domain.LiquidityBSL, domain.LiquidityEQH, domain.LiquiditySwingHigh)...)
	pools = append(pools, clusterPools(frame, lows, tolerance, domain.LiquiditySSL, domain.LiquidityEQL, domain.LiquiditySwingLow)...)
	return pools
}

func clusterPools(frame []types.OHLCV, swings []domain.SwingPoint, tolerance decimal.Decimal, side domain.LiquiditySide, eqKind, swingKind domain.LiquidityKind) []domain.LiquidityPool {
	used := make([]bool, len(swings))
	var pools []domain.LiquidityPool
	for i := range swings {
		if used[i] {
			continue
		}
		cluster := []int{i}
		for j := i + 1; j < len(swings); j++ {
			if used[j] {
				continue
			}
			if withinTolerance(swings[i].Price, swings[j].Price, tolerance) {
				cluster = append(cluster, j)
				used[j] = true
			}
		}
		used[i] = true

		price := swings[i].Price
		kind := swingKind
		if len(cluster) >= 2 {
			kind = eqKind
		}
		lastIdx := swings[i].Index
		for _, k := range cluster {
			if swings[k].Index > lastIdx {
				lastIdx = swings[k].Index
			}
		}
		pool := domain.LiquidityPool{
			Price: price, Side: side, Kind: kind, Strength: len(cluster),
		}
		pool.Swept = isSwept(frame, lastIdx, price, side, tolerance)
		pools = append(pools, pool)
	}
	return pools
}

func withinTolerance(a, b, tolerance decimal.Decimal) bool {
	if a.IsZero() {
		return b.IsZero()
	}
	diff := a.Sub(b).Abs().Div(a)
	return diff.LessThanOrEqual(tolerance)
}

func isSwept(frame []types.OHLCV, fromIdx int, level decimal.Decimal, side domain.LiquiditySide, tolerance decimal.Decimal) bool {
	threshold := level.Mul(decimal.NewFromInt(1))
	bump := level.Mul(tolerance)
	for k := fromIdx + 1; k < len(frame); k++ {
		c := frame[k]
		if side == domain.LiquidityBSL {
			if c.High.GreaterThan(threshold.Add(bump)) {
				return true
			}
		} else {
			if c.Low.LessThan(threshold.Sub(bump)) {
				return true
			}
		}
	}
	return false
}

// NearestUnswept returns the nearest unswept BSL above currentPrice and the
// nearest unswept SSL below currentPrice.
func NearestUnswept(pools []domain.LiquidityPool, currentPrice decimal.Decimal) (bsl, ssl *domain.LiquidityPool) {
	for i := range pools {
		p := &pools[i]
		if p.Swept {
			continue
		}
		if p.Side == domain.LiquidityBSL && p.Price.GreaterThan(currentPrice) {
			if bsl == nil || p.Price.LessThan(bsl.Price) {
				bsl = p
			}
		}
		if p.Side == domain.LiquiditySSL && p.Price.LessThan(currentPrice) {
			if ssl == nil || p.Price.GreaterThan(ssl.Price) {
				ssl = p
			}
		}
	}
	return bsl, ssl
}
