package watchlist

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
func (fakePersist) SaveBotParam(name string, value, defaultValue decimal.Decimal) error { return nil }

func testSnapshot(t *testing.T) params.Snapshot {
	t.Helper()
	store, err := params.NewStore(zap.NewNop(), fakePersist{})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store.Snapshot()
}

func baseEntry() domain.WatchlistEntry {
	return domain.WatchlistEntry{
		ID: "w1", Symbol: "BTCUSDT", Direction: domain.BiasLong,
		PotentialEntry: decimal.NewFromInt(100), PotentialSL: decimal.NewFromInt(98), PotentialTP: decimal.NewFromInt(106),
		MaxWatchCandles: 3, Last5mCandleTS: time.Unix(0, 0),
		Status: domain.WatchlistWatching,
	}
}

func TestTickExpiresOnDuplicateActiveSignal(t *testing.T) {
	m := NewManager(zap.NewNop())
	entry := baseEntry()
	snap := testSnapshot(t)
	candle := types.OHLCV{Timestamp: time.Unix(300, 0)}
	updated, outcome, _ := m.Tick(entry, candle, nil, nil, decimal.NewFromInt(100), snap, true)
	if outcome != OutcomeExpire || updated.ExpireReason != "duplicate_active_signal" {
		t.Fatalf("expected duplicate expiry, got %+v outcome=%s", updated, outcome)
	}
}

func TestTickExpiresOnTimeout(t *testing.T) {
	m := NewManager(zap.NewNop())
	entry := baseEntry()
	entry.CandlesWatched = 2
	snap := testSnapshot(t)
	candle := types.OHLCV{Timestamp: time.Unix(300, 0)}
	updated, outcome, _ := m.Tick(entry, candle, nil, nil, decimal.NewFromInt(100), snap, false)
	if outcome != OutcomeExpire || updated.ExpireReason != "timeout" {
		t.Fatalf("expected timeout expiry, got %+v outcome=%s", updated, outcome)
	}
}

func TestTickExpiresOnSLInvalidation(t *testing.T) {
	m := NewManager(zap.NewNop())
	entry := baseEntry()
	snap := testSnapshot(t)
	candle := types.OHLCV{Timestamp: time.Unix(300, 0)}
	updated, outcome, _ := m.Tick(entry, candle, nil, nil, decimal.NewFromInt(97), snap, false)
	if outcome != OutcomeExpire || updated.ExpireReason != "sl_invalidated" {
		t.Fatalf("expected sl_invalidated expiry, got %+v outcome=%s", updated, outcome)
	}
}

func TestTickSkipsWhenNoNewCandle(t *testing.T) {
	m := NewManager(zap.NewNop())
	entry := baseEntry()
	entry.Last5mCandleTS = time.Unix(600, 0)
	snap := testSnapshot(t)
	candle := types.OHLCV{Timestamp: time.Unix(300, 0)}
	updated, outcome, _ := m.Tick(entry, candle, nil, nil, decimal.NewFromInt(100), snap, false)
	if outcome != OutcomeContinue || updated.CandlesWatched != 0 {
		t.Fatalf("expected no-op continue, got %+v outcome=%s", updated, outcome)
	}
}
