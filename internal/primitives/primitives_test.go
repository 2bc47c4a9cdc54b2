package primitives

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

func candle(o, h, l, c, v float64) types.OHLCV {
	return types.OHLCV{
		Timestamp: time.Now(),
		Open:      decimal.NewFromFloat(o),
		High:      decimal.NewFromFloat(h),
		Low:       decimal.NewFromFloat(l),
		Close:     decimal.NewFromFloat(c),
		Volume:    decimal.NewFromFloat(v),
	}
}

func TestATRShortFrameReturnsZero(t *testing.T) {
	frame := []types.OHLCV{candle(1, 2, 0.5, 1.5, 10)}
	if got := ATR(frame, 14); !got.IsZero() {
		t.Fatalf("expected zero ATR for short frame, got %s", got)
	}
}

func TestATRComputesMeanTrueRange(t *testing.T) {
	frame := []types.OHLCV{
		candle(10, 11, 9, 10, 100),
		candle(10, 12, 10, 11, 100),
		candle(11, 13, 10.5, 12, 100),
	}
	got := ATR(frame, 2)
	if got.IsZero() {
		t.Fatalf("expected non-zero ATR")
	}
}

func TestSwingsFallBackToFractalWhenMajorsScarce(t *testing.T) {
	frame := make([]types.OHLCV, 0, 11)
	for i := 0; i < 11; i++ {
		frame = append(frame, candle(10, 10.5, 9.5, 10, 100))
	}
	frame[5] = candle(10, 12, 9.5, 10, 100) // a lone fractal high

	highs, lows := Swings(frame, 6)
	foundFractalHigh := false
	for _, h := range highs {
		if h.Index == 5 && h.Fractal == domain.FractalInternal {
			foundFractalHigh = true
		}
	}
	if !foundFractalHigh {
		t.Fatalf("expected fractal fallback to find the lone spike high, highs=%v", highs)
	}
	_ = lows
}

func TestStructureBullishBias(t *testing.T) {
	highs := []domain.SwingPoint{
		{Index: 1, Price: decimal.NewFromFloat(100), Kind: domain.SwingHigh, Fractal: domain.FractalMajor},
		{Index: 5, Price: decimal.NewFromFloat(105), Kind: domain.SwingHigh, Fractal: domain.FractalMajor},
		{Index: 9, Price: decimal.NewFromFloat(110), Kind: domain.SwingHigh, Fractal: domain.FractalMajor},
	}
	lows := []domain.SwingPoint{
		{Index: 3, Price: decimal.NewFromFloat(95), Kind: domain.SwingLow, Fractal: domain.FractalMajor},
		{Index: 7, Price: decimal.NewFromFloat(98), Kind: domain.SwingLow, Fractal: domain.FractalMajor},
	}
	st := Structure(highs, lows)
	if st.Bias != domain.BiasLong {
		t.Fatalf("expected LONG bias, got %s", st.Bias)
	}
	if st.Quality != domain.QualityStrong {
		t.Fatalf("expected STRONG quality (HH+HL>=3), got %s", st.Quality)
	}
}

func TestPremiumDiscountZones(t *testing.T) {
	cases := []struct {
		pct  float64
		want domain.PDZone
	}{
		{10, domain.PDDeepDiscount},
		{40, domain.PDDiscount},
		{60, domain.PDPremium},
		{80, domain.PDDeepPremium},
	}
	for _, c := range cases {
		got := PremiumDiscountZone(decimal.NewFromFloat(c.pct))
		if got != c.want {
			t.Fatalf("pct=%v: got %s want %s", c.pct, got, c.want)
		}
	}
}

func TestIsVolatileFlagsWideRangeCandle(t *testing.T) {
	atr := decimal.NewFromFloat(1)
	volatile := candle(10, 20, 5, 19, 100) // range 15 > 3*ATR
	if !IsVolatile(volatile, atr) {
		t.Fatalf("expected candle to be flagged volatile")
	}
}

func TestBodyRatioZeroRangeIsZero(t *testing.T) {
	c := candle(10, 10, 10, 10, 1)
	if got := BodyRatio(c); !got.IsZero() {
		t.Fatalf("expected zero body ratio for zero-range candle, got %s", got)
	}
}
