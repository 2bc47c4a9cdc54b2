package lifecycle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/internal/params"
)

type fakeStore struct {
	activeCount   int
	sameDirCount  int
	lastClose     *time.Time
}

func (f fakeStore) CountActiveSignals() (int, error) { return f.activeCount, nil }
func (f fakeStore) CountActiveSignalsByDirection(domain.Bias) (int, error) { return f.sameDirCount, nil }
func (f fakeStore) LastSignalCloseTime(string) (*time.Time, error) { return f.lastClose, nil }

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

func TestCheckEntryRejectsAtMaxConcurrent(t *testing.T) {
	snap := testSnapshot(t)
	store := fakeStore{activeCount: 999}
	result, err := CheckEntry(zap.NewNop(), store, snap, "BTCUSDT", domain.BiasLong,
		decimal.NewFromInt(100), decimal.NewFromInt(98), decimal.NewFromInt(106), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Approved || result.Reason != "max_concurrent_trades" {
		t.Fatalf("expected max_concurrent_trades rejection, got %+v", result)
	}
}

func TestCheckEntryRejectsCooldown(t *testing.T) {
	snap := testSnapshot(t)
	now := time.Now()
	recent := now.Add(-1 * time.Minute)
	store := fakeStore{lastClose: &recent}
	result, err := CheckEntry(zap.NewNop(), store, snap, "BTCUSDT", domain.BiasLong,
		decimal.NewFromInt(100), decimal.NewFromInt(98), decimal.NewFromInt(106), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Approved || result.Reason != "cooldown_active" {
		t.Fatalf("expected cooldown_active rejection, got %+v", result)
	}
}

func TestCheckEntryApproves(t *testing.T) {
	snap := testSnapshot(t)
	store := fakeStore{}
	result, err := CheckEntry(zap.NewNop(), store, snap, "BTCUSDT", domain.BiasLong,
		decimal.NewFromInt(100), decimal.NewFromInt(98), decimal.NewFromInt(106), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Approved {
		t.Fatalf("expected approval, got %+v", result)
	}
}

func TestEvaluateClosesWonAtTakeProfit(t *testing.T) {
	m := NewManager(zap.NewNop())
	sig := domain.Signal{
		ID: "1", Symbol: "BTCUSDT", Direction: domain.BiasLong, Status: domain.SignalActive,
		EntryPrice: decimal.NewFromInt(100), InitialStopLoss: decimal.NewFromInt(98), StopLoss: decimal.NewFromInt(98),
		TakeProfit: decimal.NewFromInt(106), EntryTime: time.Now().Add(-time.Hour),
	}
	snap := testSnapshot(t)
	updated, changed := m.Evaluate(sig, decimal.NewFromInt(107), time.Now(), snap)
	if !changed || updated.Status != domain.SignalWon {
		t.Fatalf("expected WON, got %+v changed=%v", updated, changed)
	}
}

// TestEvaluateBreakevenAndTrailing reproduces spec §8 scenario 5 end to end:
// entry=100, sl=99, tp=104. Progress 0.60 moves the stop to breakeven only;
// progress 0.75 additionally engages trailing; a subsequent pullback to
// 101.4 closes WON near the trailing level, not the raw tick price.
func TestEvaluateBreakevenAndTrailing(t *testing.T) {
	m := NewManager(zap.NewNop())
	snap := testSnapshot(t)
	sig := domain.Signal{
		ID: "1", Symbol: "BTCUSDT", Direction: domain.BiasLong, Status: domain.SignalActive,
		EntryPrice: decimal.NewFromInt(100), InitialStopLoss: decimal.NewFromInt(99), StopLoss: decimal.NewFromInt(99),
		TakeProfit: decimal.NewFromInt(104), EntryTime: time.Now().Add(-time.Hour),
	}

	sig, changed := m.Evaluate(sig, decimal.NewFromFloat(102.4), time.Now(), snap)
	if !changed {
		t.Fatal("expected breakeven ratchet at progress=0.60")
	}
	if sig.Status != domain.SignalActive {
		t.Fatalf("expected still ACTIVE after breakeven-only ratchet, got %s", sig.Status)
	}
	wantBreakeven := decimal.NewFromInt(100).Mul(decimal.NewFromFloat(1.002))
	if !sig.StopLoss.Equal(wantBreakeven) {
		t.Fatalf("expected effective_sl=%s after breakeven, got %s", wantBreakeven, sig.StopLoss)
	}

	sig, changed = m.Evaluate(sig, decimal.NewFromInt(103), time.Now(), snap)
	if !changed {
		t.Fatal("expected trailing ratchet at progress=0.75")
	}
	wantTrailing := decimal.NewFromFloat(101.5)
	if !sig.StopLoss.Equal(wantTrailing) {
		t.Fatalf("expected effective_sl=%s after trailing, got %s", wantTrailing, sig.StopLoss)
	}

	now := time.Now()
	sig, changed = m.Evaluate(sig, decimal.NewFromFloat(101.4), now, snap)
	if !changed || sig.Status != domain.SignalWon {
		t.Fatalf("expected WON on trailing-stop hit, got %+v changed=%v", sig, changed)
	}
	wantPnL := decimal.NewFromFloat(1.5)
	if !sig.PnLPct.Equal(wantPnL) {
		t.Fatalf("expected pnl_pct=%s (sl-implied, within slippage clamp), got %s", wantPnL, sig.PnLPct)
	}
}

func TestEvaluateSlippageClampAppliesOnGapThroughStop(t *testing.T) {
	m := NewManager(zap.NewNop())
	snap := testSnapshot(t)
	sig := domain.Signal{
		ID: "1", Symbol: "BTCUSDT", Direction: domain.BiasLong, Status: domain.SignalActive,
		EntryPrice: decimal.NewFromInt(100), InitialStopLoss: decimal.NewFromInt(98), StopLoss: decimal.NewFromInt(98),
		TakeProfit: decimal.NewFromInt(110), EntryTime: time.Now().Add(-time.Hour),
	}

	updated, changed := m.Evaluate(sig, decimal.NewFromInt(90), time.Now(), snap)
	if !changed || updated.Status != domain.SignalLost {
		t.Fatalf("expected LOST on gap through stop, got %+v", updated)
	}
	// sl-implied pnl% = (98-100)/100*100 = -2. Floor = -2 - 0.5 = -2.5.
	wantFloor := decimal.NewFromFloat(-2.5)
	if !updated.PnLPct.Equal(wantFloor) {
		t.Fatalf("expected pnl_pct clamped to floor %s, got %s", wantFloor, updated.PnLPct)
	}
}

func TestEvaluateCancelsOnStructuralInversion(t *testing.T) {
	m := NewManager(zap.NewNop())
	snap := testSnapshot(t)
	sig := domain.Signal{
		ID: "1", Symbol: "BTCUSDT", Direction: domain.BiasLong, Status: domain.SignalActive,
		EntryPrice: decimal.NewFromInt(100), InitialStopLoss: decimal.NewFromInt(98), StopLoss: decimal.NewFromInt(98),
		TakeProfit: decimal.NewFromInt(95), EntryTime: time.Now().Add(-time.Hour),
	}
	updated, changed := m.Evaluate(sig, decimal.NewFromInt(99), time.Now(), snap)
	if !changed || updated.Status != domain.SignalCancelled || updated.Notes != "structural_sanity_failed" {
		t.Fatalf("expected CANCELLED on structural inversion, got %+v", updated)
	}
}

func TestEvaluateCancelsOnPreBreakevenOrientation(t *testing.T) {
	m := NewManager(zap.NewNop())
	snap := testSnapshot(t)
	// StopLoss has not yet moved to breakeven (98 < entry 100), but
	// TakeProfit sits below entry instead of above it.
	sig := domain.Signal{
		ID: "1", Symbol: "BTCUSDT", Direction: domain.BiasLong, Status: domain.SignalActive,
		EntryPrice: decimal.NewFromInt(100), InitialStopLoss: decimal.NewFromInt(98), StopLoss: decimal.NewFromInt(98),
		TakeProfit: decimal.NewFromInt(99), EntryTime: time.Now().Add(-time.Hour),
	}
	updated, changed := m.Evaluate(sig, decimal.NewFromInt(98), time.Now(), snap)
	if !changed || updated.Status != domain.SignalCancelled || updated.Notes != "pre_breakeven_orientation_failed" {
		t.Fatalf("expected CANCELLED on pre-breakeven orientation, got %+v", updated)
	}
}

func TestEvaluateClosesOnMaxDuration(t *testing.T) {
	m := NewManager(zap.NewNop())
	sig := domain.Signal{
		ID: "1", Symbol: "BTCUSDT", Direction: domain.BiasLong, Status: domain.SignalActive,
		EntryPrice: decimal.NewFromInt(100), InitialStopLoss: decimal.NewFromInt(98), StopLoss: decimal.NewFromInt(98),
		TakeProfit: decimal.NewFromInt(110), EntryTime: time.Now().Add(-72 * time.Hour),
	}
	snap := testSnapshot(t)
	updated, changed := m.Evaluate(sig, decimal.NewFromInt(101), time.Now(), snap)
	if !changed || updated.Status != domain.SignalWon {
		t.Fatalf("expected WON on age with positive pnl, got %+v", updated)
	}

	updated, changed = m.Evaluate(sig, decimal.NewFromInt(95), time.Now(), snap)
	if !changed || updated.Status != domain.SignalLost {
		t.Fatalf("expected LOST on age with negative pnl, got %+v", updated)
	}
}
