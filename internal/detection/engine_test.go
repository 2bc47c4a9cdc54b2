package detection

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/internal/params"
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

type fakePersist struct{}

func (fakePersist) GetAllBotParams() (map[string]decimal.Decimal, error) { return nil, nil }
func (fakePersist) SaveBotParam(name string, value, defaultValue decimal.Decimal) error {
	return nil
}

func testSnapshot(t *testing.T) params.Snapshot {
	t.Helper()
	store, err := params.NewStore(zap.NewNop(), fakePersist{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store.Snapshot()
}

func candle(o, h, l, c, v float64, ts time.Time) types.OHLCV {
	return types.OHLCV{
		Timestamp: ts,
		Open:      decimal.NewFromFloat(o),
		High:      decimal.NewFromFloat(h),
		Low:       decimal.NewFromFloat(l),
		Close:     decimal.NewFromFloat(c),
		Volume:    decimal.NewFromFloat(v),
	}
}

// flatFrame builds n quiet candles around a price, used as filler so ATR and
// swing computations have enough history without producing any structure.
func flatFrame(n int, price float64) []types.OHLCV {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	frame := make([]types.OHLCV, 0, n)
	for i := 0; i < n; i++ {
		frame = append(frame, candle(price, price+0.2, price-0.2, price, 100, base.Add(time.Duration(i)*time.Hour)))
	}
	return frame
}

func TestEngineReturnsNoneOnNeutralNarrative(t *testing.T) {
	snap := testSnapshot(t)
	e := NewEngine(zap.NewNop())
	bundle := Bundle{
		Frame15m: flatFrame(40, 100),
		Frame1h:  flatFrame(40, 100),
		Frame4h:  flatFrame(40, 100),
	}
	action := e.Generate("BTCUSDT", bundle, decimal.NewFromFloat(100), snap)
	if action.Kind != domain.ActionNone {
		t.Fatalf("expected NONE action on flat/neutral frames, got %s", action.Kind)
	}
}

func TestEngineReturnsKnownActionKindOnRisingFrames(t *testing.T) {
	snap := testSnapshot(t)
	e := NewEngine(zap.NewNop())

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var frame4h []types.OHLCV
	price := 100.0
	for i := 0; i < 30; i++ {
		price += 1.5
		frame4h = append(frame4h, candle(price-1, price+0.5, price-1.5, price, 100, base.Add(time.Duration(i)*4*time.Hour)))
	}

	var frame15m []types.OHLCV
	p := price
	for i := 0; i < 60; i++ {
		p += 0.05
		frame15m = append(frame15m, candle(p-0.05, p+0.1, p-0.15, p, 100, base.Add(time.Duration(i)*15*time.Minute)))
	}

	bundle := Bundle{Frame15m: frame15m, Frame4h: frame4h}
	action := e.Generate("BTCUSDT", bundle, frame15m[len(frame15m)-1].Close, snap)

	if action.Kind != domain.ActionNone && action.Kind != domain.ActionWatch && action.Kind != domain.ActionSignal {
		t.Fatalf("unexpected action kind: %s", action.Kind)
	}
}

func TestRoundNumberStepByMagnitude(t *testing.T) {
	cases := []struct {
		price float64
		want  float64
	}{
		{50000, 1000},
		{5000, 500},
		{500, 100},
		{50, 50},
		{5, 5},
		{0.5, 0.5},
		{0.05, 0.05},
	}
	for _, c := range cases {
		got := roundNumberStep(decimal.NewFromFloat(c.price))
		if !got.Equal(decimal.NewFromFloat(c.want)) {
			t.Fatalf("price=%v: got step %s want %v", c.price, got, c.want)
		}
	}
}
