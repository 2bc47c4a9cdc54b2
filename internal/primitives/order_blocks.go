package primitives

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

var half = decimal.NewFromFloat(0.5)
var two = decimal.NewFromInt(2)

// OrderBlocks iterates candidate candles within the age window and emits an
// OB when the candidate's body ratio clears `bodyRatioMin` and the next
// candle is a strong opposite-direction displacement that breaches the
// candidate's extreme (spec §4.1). Each OB's Mitigated flag is set;
// mitigated OBs stay in the returned slice (ActiveOrderBlocks filters them
// out).
func OrderBlocks(frame []types.OHLCV, ageWindow int, bodyRatioMin decimal.Decimal) []domain.OrderBlock {
	var obs []domain.OrderBlock
	if len(frame) < 2 {
		return obs
	}
	last := len(frame) - 1
	oldestCandidate := last - ageWindow
	if oldestCandidate < 0 {
		oldestCandidate = 0
	}

	for i := oldestCandidate; i < last; i++ {
		candidate := frame[i]
		next := frame[i+1]
		candidateBody := BodyRatio(candidate)
		if candidateBody.LessThan(bodyRatioMin) {
			continue
		}
		nextBody := BodyRatio(next)
		if nextBody.LessThan(half) {
			continue
		}

		var ob *domain.OrderBlock
		if IsBearish(candidate) && IsBullish(next) && next.Close.GreaterThan(candidate.High) {
			ob = &domain.OrderBlock{
				Index: i, High: candidate.High, Low: candidate.Low,
				CE: candidate.High.Add(candidate.Low).Div(two),
				Kind: domain.OBBullish, Age: last - i, Strength: candidateBody,
			}
		} else if IsBullish(candidate) && IsBearish(next) && next.Close.LessThan(candidate.Low) {
			ob = &domain.OrderBlock{
				Index: i, High: candidate.High, Low: candidate.Low,
				CE: candidate.High.Add(candidate.Low).Div(two),
				Kind: domain.OBBearish, Age: last - i, Strength: candidateBody,
			}
		}
		if ob == nil {
			continue
		}

		ob.Mitigated = isOBMitigated(frame, i+1, *ob)
		obs = append(obs, *ob)
	}
	return obs
}

func isOBMitigated(frame []types.OHLCV, from int, ob domain.OrderBlock) bool {
	for k := from + 1; k < len(frame); k++ {
		c := frame[k]
		if ob.Kind == domain.OBBullish && c.Close.LessThan(ob.Low) {
			return true
		}
		if ob.Kind == domain.OBBearish && c.Close.GreaterThan(ob.High) {
			return true
		}
	}
	return false
}

// ActiveOrderBlocks filters out mitigated order blocks.
func ActiveOrderBlocks(obs []domain.OrderBlock) []domain.OrderBlock {
	var out []domain.OrderBlock
	for _, ob := range obs {
		if !ob.Mitigated {
			out = append(out, ob)
		}
	}
	return out
}
