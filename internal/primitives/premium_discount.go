package primitives

import (
	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
)

var (
	pct30 = decimal.NewFromInt(30)
	pct50 = decimal.NewFromInt(50)
	pct70 = decimal.NewFromInt(70)
	ote618 = decimal.NewFromFloat(0.618)
	ote786 = decimal.NewFromFloat(0.786)
)

// PositionPct returns (price-rangeLow)/(rangeHigh-rangeLow) * 100.
func PositionPct(price, rangeLow, rangeHigh decimal.Decimal) decimal.Decimal {
	span := rangeHigh.Sub(rangeLow)
	if span.IsZero() {
		return pct50
	}
	return price.Sub(rangeLow).Div(span).Mul(hundred)
}

// PremiumDiscountZone classifies a position_pct per spec §4.1's boundary
// table: DEEP_DISCOUNT<=30, 30<DISCOUNT<50, NEUTRAL==50, 50<PREMIUM<70,
// DEEP_PREMIUM>=70.
func PremiumDiscountZone(positionPct decimal.Decimal) domain.PDZone {
	switch {
	case positionPct.LessThanOrEqual(pct30):
		return domain.PDDeepDiscount
	case positionPct.Equal(pct50):
		return domain.PDNeutral
	case positionPct.LessThan(pct50):
		return domain.PDDiscount
	case positionPct.GreaterThanOrEqual(pct70):
		return domain.PDDeepPremium
	default:
		return domain.PDPremium
	}
}

// OTEZone computes the Fibonacci 0.618-0.786 retracement zone within the
// dealing range [rangeLow, rangeHigh], once per direction.
func OTEZone(direction domain.Bias, rangeLow, rangeHigh decimal.Decimal) (low, high decimal.Decimal) {
	span := rangeHigh.Sub(rangeLow)
	if direction == domain.BiasLong {
		return rangeHigh.Sub(span.Mul(ote786)), rangeHigh.Sub(span.Mul(ote618))
	}
	return rangeLow.Add(span.Mul(ote618)), rangeLow.Add(span.Mul(ote786))
}

// InOTE reports whether price falls within the OTE zone for direction.
func InOTE(price decimal.Decimal, direction domain.Bias, rangeLow, rangeHigh decimal.Decimal) bool {
	low, high := OTEZone(direction, rangeLow, rangeHigh)
	return price.GreaterThanOrEqual(low) && price.LessThanOrEqual(high)
}
