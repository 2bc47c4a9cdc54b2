package primitives

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

var slippageTwentyBps = decimal.NewFromFloat(0.002)

// SweepEvent is a stop-hunt wick-then-reclaim candle against a known level.
type SweepEvent struct {
	CandleIndex int
	Direction   domain.Bias
	WickExtreme decimal.Decimal
	SL          decimal.Decimal
}

// Sweep scans for a candle, at or after fromIdx, whose wick crosses `level`
// but whose close returns to the correct side with wick/body > 0.5 (spec
// §4.1). For LONG: wick < level, close > level. Symmetric for SHORT.
func Sweep(frame []types.OHLCV, fromIdx int, level decimal.Decimal, direction domain.Bias) *SweepEvent {
	for i := len(frame) - 1; i >= fromIdx && i >= 0; i-- {
		c := frame[i]
		body := c.Close.Sub(c.Open).Abs()
		if direction == domain.BiasLong {
			if c.Low.LessThan(level) && c.Close.GreaterThan(level) {
				wick := minDec(c.Open, c.Close).Sub(c.Low)
				if wickToBodyExceeds(wick, body) {
					return &SweepEvent{
						CandleIndex: i, Direction: domain.BiasLong, WickExtreme: c.Low,
						SL: c.Low.Mul(decimal.NewFromInt(1).Sub(slippageTwentyBps)),
					}
				}
			}
		} else {
			if c.High.GreaterThan(level) && c.Close.LessThan(level) {
				wick := c.High.Sub(maxDec(c.Open, c.Close))
				if wickToBodyExceeds(wick, body) {
					return &SweepEvent{
						CandleIndex: i, Direction: domain.BiasShort, WickExtreme: c.High,
						SL: c.High.Mul(decimal.NewFromInt(1).Add(slippageTwentyBps)),
					}
				}
			}
		}
	}
	return nil
}

func wickToBodyExceeds(wick, body decimal.Decimal) bool {
	if body.IsZero() {
		return wick.GreaterThan(decimal.Zero)
	}
	return wick.Div(body).GreaterThan(half)
}

func minDec(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

func maxDec(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// MSS finds the latest 3-bar micro-swing fractal in the bias direction after
// anchorIdx, then reports whether a later candle closed across that level
// (spec §4.1 Micro Structure Shift).
func MSS(frame []types.OHLCV, anchorIdx int, direction domain.Bias) (fired bool, level decimal.Decimal, atIndex int) {
	microIdx := -1
	for i := anchorIdx + 1; i < len(frame)-1; i++ {
		if direction == domain.BiasLong && isFractalHigh(frame, i) {
			microIdx = i
		}
		if direction == domain.BiasShort && isFractalLow(frame, i) {
			microIdx = i
		}
	}
	if microIdx == -1 {
		return false, decimal.Zero, -1
	}
	microLevel := frame[microIdx].High
	if direction == domain.BiasShort {
		microLevel = frame[microIdx].Low
	}
	for i := microIdx + 1; i < len(frame); i++ {
		if direction == domain.BiasLong && frame[i].Close.GreaterThan(microLevel) {
			return true, microLevel, i
		}
		if direction == domain.BiasShort && frame[i].Close.LessThan(microLevel) {
			return true, microLevel, i
		}
	}
	return false, microLevel, microIdx
}
