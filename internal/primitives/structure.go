package primitives

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
)

// mergeSwingsChronological merges highs and lows into one index-ordered
// sequence and returns at most the last `window` entries.
func mergeSwingsChronological(highs, lows []domain.SwingPoint, window int) []domain.SwingPoint {
	merged := make([]domain.SwingPoint, 0, len(highs)+len(lows))
	merged = append(merged, highs...)
	merged = append(merged, lows...)
	merged = sortByIndex(merged)
	if len(merged) > window {
		merged = merged[len(merged)-window:]
	}
	return merged
}

// Structure derives the StructureState from the last <=8 swings chronologically
// (spec §4.1). It counts HH/HL/LH/LL transitions by comparing each swing to
// the most recent prior swing of the same kind within the window.
func Structure(highs, lows []domain.SwingPoint) domain.StructureState {
	const window = 8
	merged := mergeSwingsChronological(highs, lows, window)

	var hh, hl, lh, ll int
	var lastHigh, lastLow *domain.SwingPoint
	var lastHighPrice, lastLowPrice decimal.Decimal
	var lastBOS decimal.Decimal
	var lastHighWasHH, lastLowWasLL bool

	for i := range merged {
		sw := merged[i]
		if sw.Kind == domain.SwingHigh {
			if lastHigh != nil {
				if sw.Price.GreaterThan(lastHigh.Price) {
					hh++
					lastBOS = sw.Price
					lastHighWasHH = true
				} else {
					lh++
					lastHighWasHH = false
				}
			}
			cp := sw
			lastHigh = &cp
			lastHighPrice = sw.Price
		} else {
			if lastLow != nil {
				if sw.Price.LessThan(lastLow.Price) {
					ll++
					lastBOS = sw.Price
					lastLowWasLL = true
				} else {
					hl++
					lastLowWasLL = false
				}
			}
			cp := sw
			lastLow = &cp
			lastLowPrice = sw.Price
		}
	}

	longScore := hh + hl
	shortScore := ll + lh

	state := domain.StructureState{
		Bias:          domain.BiasNeutral,
		Quality:       domain.QualityNeutral,
		LastSwingHigh: lastHighPrice,
		LastSwingLow:  lastLowPrice,
		LastBOSPrice:  lastBOS,
	}

	switch {
	case longScore >= 2 && longScore > shortScore:
		state.Bias = domain.BiasLong
		if longScore >= 3 {
			state.Quality = domain.QualityStrong
		} else {
			state.Quality = domain.QualityWeak
		}
		// CHoCH: the latest low dipped below the prior low in a LONG bias.
		if lastLowWasLL {
			state.CHoCH = true
			state.Quality = domain.QualityWeak
		}
	case shortScore >= 2 && shortScore > longScore:
		state.Bias = domain.BiasShort
		if shortScore >= 3 {
			state.Quality = domain.QualityStrong
		} else {
			state.Quality = domain.QualityWeak
		}
		// CHoCH: the latest high exceeded the prior high in a SHORT bias.
		if lastHighWasHH {
			state.CHoCH = true
			state.Quality = domain.QualityWeak
		}
	default:
		state.Bias = domain.BiasNeutral
		state.Quality = domain.QualityNeutral
	}

	return state
}
