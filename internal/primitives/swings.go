package primitives

import (
	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

func isMajorHigh(frame []types.OHLCV, i, lookback int) bool {
	if i-lookback < 0 || i+lookback >= len(frame) {
		return false
	}
	h := frame[i].High
	for k := i - lookback; k <= i+lookback; k++ {
		if k == i {
			continue
		}
		if !h.GreaterThan(frame[k].High) {
			return false
		}
	}
	return true
}

func isMajorLow(frame []types.OHLCV, i, lookback int) bool {
	if i-lookback < 0 || i+lookback >= len(frame) {
		return false
	}
	l := frame[i].Low
	for k := i - lookback; k <= i+lookback; k++ {
		if k == i {
			continue
		}
		if !l.LessThan(frame[k].Low) {
			return false
		}
	}
	return true
}

func isFractalHigh(frame []types.OHLCV, i int) bool {
	if i-1 < 0 || i+1 >= len(frame) {
		return false
	}
	return frame[i].High.GreaterThan(frame[i-1].High) && frame[i].High.GreaterThan(frame[i+1].High)
}

func isFractalLow(frame []types.OHLCV, i int) bool {
	if i-1 < 0 || i+1 >= len(frame) {
		return false
	}
	return frame[i].Low.LessThan(frame[i-1].Low) && frame[i].Low.LessThan(frame[i+1].Low)
}

func nearAccepted(accepted []domain.SwingPoint, i int) bool {
	for _, a := range accepted {
		d := a.Index - i
		if d < 0 {
			d = -d
		}
		if d <= 2 {
			return true
		}
	}
	return false
}

// Swings computes swing highs and swing lows for the given lookback. A MAJOR
// swing dominates `lookback` candles on each side; if the major set yields
// fewer than 2 highs or 2 lows, falls back to a 3-bar INTERNAL fractal,
// excluding any candidate within 2 bars of an already-accepted major (spec
// §4.1). Both sets are returned in chronological order.
func Swings(frame []types.OHLCV, lookback int) (highs, lows []domain.SwingPoint) {
	for i := range frame {
		if isMajorHigh(frame, i, lookback) {
			highs = append(highs, domain.SwingPoint{Index: i, Price: frame[i].High, Kind: domain.SwingHigh, Fractal: domain.FractalMajor})
		}
	}
	for i := range frame {
		if isMajorLow(frame, i, lookback) {
			lows = append(lows, domain.SwingPoint{Index: i, Price: frame[i].Low, Kind: domain.SwingLow, Fractal: domain.FractalMajor})
		}
	}

	if len(highs) < 2 {
		for i := range frame {
			if isFractalHigh(frame, i) && !nearAccepted(highs, i) {
				highs = append(highs, domain.SwingPoint{Index: i, Price: frame[i].High, Kind: domain.SwingHigh, Fractal: domain.FractalInternal})
			}
		}
	}
	if len(lows) < 2 {
		for i := range frame {
			if isFractalLow(frame, i) && !nearAccepted(lows, i) {
				lows = append(lows, domain.SwingPoint{Index: i, Price: frame[i].Low, Kind: domain.SwingLow, Fractal: domain.FractalInternal})
			}
		}
	}
	return sortByIndex(highs), sortByIndex(lows)
}

func sortByIndex(pts []domain.SwingPoint) []domain.SwingPoint {
	for i := 1; i < len(pts); i++ {
		for j := i; j > 0 && pts[j-1].Index > pts[j].Index; j-- {
			pts[j-1], pts[j] = pts[j], pts[j-1]
		}
	}
	return pts
}
