// Package primitives implements the Structural Primitives (C4): pure
// functions over an OHLCV frame plus a parameter snapshot. None of these
// functions touch I/O, mutate shared state, or retain a reference to their
// inputs across calls (spec §3 "Swings are ephemeral recomputations per
// frame"; §9 "module-level global singletons... become constructed-once
// coordinators" — these are the opposite: free functions with no state at all).
package primitives

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

// TrueRange is the greatest of: high-low, |high-prevClose|, |low-prevClose|.
func TrueRange(curr, prev types.OHLCV) decimal.Decimal {
	hl := curr.High.Sub(curr.Low)
	hc := curr.High.Sub(prev.Close).Abs()
	lc := curr.Low.Sub(prev.Close).Abs()
	tr := hl
	if hc.GreaterThan(tr) {
		tr = hc
	}
	if lc.GreaterThan(tr) {
		tr = lc
	}
	return tr
}

// ATR is the mean true-range over the last `period` closed candles. Returns
// zero if the frame is shorter than period+1 (spec §4.1).
func ATR(frame []types.OHLCV, period int) decimal.Decimal {
	if period <= 0 || len(frame) < period+1 {
		return decimal.Zero
	}
	start := len(frame) - period
	sum := decimal.Zero
	for i := start; i < len(frame); i++ {
		sum = sum.Add(TrueRange(frame[i], frame[i-1]))
	}
	return sum.Div(decimal.NewFromInt(int64(period)))
}

// BodyRatio is |close-open| / (high-low), zero-safe.
func BodyRatio(c types.OHLCV) decimal.Decimal {
	rang := c.High.Sub(c.Low)
	if rang.IsZero() {
		return decimal.Zero
	}
	return c.Close.Sub(c.Open).Abs().Div(rang)
}

// IsBullish reports whether the candle closed above its open.
func IsBullish(c types.OHLCV) bool { return c.Close.GreaterThan(c.Open) }

// IsBearish reports whether the candle closed below its open.
func IsBearish(c types.OHLCV) bool { return c.Close.LessThan(c.Open) }

// AvgVolume averages volume over the last n candles ending at (and
// including) index i. Returns zero if there aren't enough candles.
func AvgVolume(frame []types.OHLCV, i, n int) decimal.Decimal {
	if n <= 0 || i-n+1 < 0 || i >= len(frame) {
		return decimal.Zero
	}
	sum := decimal.Zero
	for k := i - n + 1; k <= i; k++ {
		sum = sum.Add(frame[k].Volume)
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}
