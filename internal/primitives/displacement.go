package primitives

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

// DisplacementEvent is a qualifying 1-3 candle impulsive move (spec §4.1).
type DisplacementEvent struct {
	StartIndex    int
	EndIndex      int
	Direction     domain.Bias
	AggregateMove decimal.Decimal
}

const maxVolatileATRMultiple = 3

// IsVolatile flags a single candle whose range exceeds 3xATR; such candles
// never form displacement (spec §4.1).
func IsVolatile(c types.OHLCV, atr decimal.Decimal) bool {
	if atr.IsZero() {
		return false
	}
	return c.High.Sub(c.Low).GreaterThan(atr.Mul(decimal.NewFromInt(maxVolatileATRMultiple)))
}

// Displacement scans the frame for qualifying 1-3 consecutive same-direction
// strong candles whose aggregate move clears ATR*atrMultiplier, with the
// starting candle's volume clearing 0.8x its trailing 20-bar average. Single
// candles exceeding 3xATR are excluded from forming displacement.
func Displacement(frame []types.OHLCV, atr, minBodyRatio, atrMultiplier, minSizePct decimal.Decimal) []DisplacementEvent {
	var events []DisplacementEvent
	n := len(frame)
	if n < 2 || atr.IsZero() {
		return events
	}

	for runLen := 1; runLen <= 3; runLen++ {
		for start := 1; start+runLen-1 < n; start++ {
			end := start + runLen - 1
			if !qualifyingRun(frame, start, end, atr, minBodyRatio) {
				continue
			}
			move := frame[end].Close.Sub(frame[start].Open).Abs()
			if move.LessThan(atr.Mul(atrMultiplier)) {
				continue
			}
			ref := frame[start].Open
			if ref.IsZero() || move.Div(ref).LessThan(minSizePct) {
				continue
			}
			avgVol := AvgVolume(frame, start-1, 20)
			if avgVol.IsZero() {
				continue
			}
			if frame[start].Volume.LessThan(avgVol.Mul(decimal.NewFromFloat(0.8))) {
				continue
			}
			dir := domain.BiasLong
			if IsBearish(frame[start]) {
				dir = domain.BiasShort
			}
			events = append(events, DisplacementEvent{StartIndex: start, EndIndex: end, Direction: dir, AggregateMove: move})
		}
	}
	return events
}

func qualifyingRun(frame []types.OHLCV, start, end int, atr, minBodyRatio decimal.Decimal) bool {
	wantBullish := IsBullish(frame[start])
	for i := start; i <= end; i++ {
		c := frame[i]
		if IsVolatile(c, atr) {
			return false
		}
		if BodyRatio(c).LessThan(minBodyRatio) {
			return false
		}
		if wantBullish && !IsBullish(c) {
			return false
		}
		if !wantBullish && !IsBearish(c) {
			return false
		}
	}
	return true
}
