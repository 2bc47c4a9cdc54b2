package primitives

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

var hundred = decimal.NewFromInt(100)

// FVGs scans a three-candle window at each index for a fair-value gap: bullish
// when highs[i-1] < lows[i+1], symmetric for bearish, filtered to
// gap/ref >= minSizePct (spec §4.1). FULL-mitigated gaps are dropped.
func FVGs(frame []types.OHLCV, ageWindow int, minSizePct decimal.Decimal) []domain.FairValueGap {
	var gaps []domain.FairValueGap
	if len(frame) < 3 {
		return gaps
	}
	last := len(frame) - 1
	oldest := last - ageWindow
	if oldest < 1 {
		oldest = 1
	}

	for i := oldest; i < last; i++ {
		prev, next := frame[i-1], frame[i+1]
		ref := frame[i].Close
		if ref.IsZero() {
			continue
		}

		if prev.High.LessThan(next.Low) {
			gap := next.Low.Sub(prev.High)
			sizePct := gap.Div(ref)
			if sizePct.GreaterThanOrEqual(minSizePct) {
				g := domain.FairValueGap{
					Index: i, High: next.Low, Low: prev.High,
					CE: prev.High.Add(next.Low).Div(two), Kind: domain.OBBullish,
					Age: last - i, SizePct: sizePct.Mul(hundred),
				}
				g.Mitigation = fvgMitigation(frame, i+1, g)
				if g.Mitigation != domain.FVGFull {
					gaps = append(gaps, g)
				}
			}
		} else if prev.Low.GreaterThan(next.High) {
			gap := prev.Low.Sub(next.High)
			sizePct := gap.Div(ref)
			if sizePct.GreaterThanOrEqual(minSizePct) {
				g := domain.FairValueGap{
					Index: i, High: prev.Low, Low: next.High,
					CE: next.High.Add(prev.Low).Div(two), Kind: domain.OBBearish,
					Age: last - i, SizePct: sizePct.Mul(hundred),
				}
				g.Mitigation = fvgMitigation(frame, i+1, g)
				if g.Mitigation != domain.FVGFull {
					gaps = append(gaps, g)
				}
			}
		}
	}
	return gaps
}

func fvgMitigation(frame []types.OHLCV, from int, g domain.FairValueGap) domain.FVGMitigation {
	state := domain.FVGFresh
	for k := from + 1; k < len(frame); k++ {
		c := frame[k]
		if g.Kind == domain.OBBullish {
			if c.Low.LessThanOrEqual(g.Low) {
				return domain.FVGFull
			}
			if c.Low.LessThanOrEqual(g.High) {
				state = domain.FVGPartial
			}
		} else {
			if c.High.GreaterThanOrEqual(g.High) {
				return domain.FVGFull
			}
			if c.High.GreaterThanOrEqual(g.Low) {
				state = domain.FVGPartial
			}
		}
	}
	return state
}

// ActiveFVGs filters to non-FULL gaps (already filtered by FVGs, kept for
// callers holding a slice built elsewhere).
func ActiveFVGs(gaps []domain.FairValueGap) []domain.FairValueGap {
	var out []domain.FairValueGap
	for _, g := range gaps {
		if g.Mitigation != domain.FVGFull {
			out = append(out, g)
		}
	}
	return out
}
