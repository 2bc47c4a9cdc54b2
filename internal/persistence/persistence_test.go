package persistence

import (
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/smc-scanner/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestAddAndGetActiveSignals(t *testing.T) {
	store := newTestStore(t)

	id, err := store.AddSignal(domain.Signal{
		Symbol:     "BTCUSDT",
		Direction:  domain.BiasLong,
		EntryPrice: decimal.NewFromFloat(65000),
		StopLoss:   decimal.NewFromFloat(64000),
		TakeProfit: decimal.NewFromFloat(67000),
	})
	if err != nil {
		t.Fatalf("add signal: %v", err)
	}
	if id == "" {
		t.Fatalf("expected a generated signal ID")
	}

	active, err := store.GetActiveSignals()
	if err != nil {
		t.Fatalf("get active signals: %v", err)
	}
	if len(active) != 1 || active[0].ID != id {
		t.Fatalf("expected the new signal to be active, got %+v", active)
	}

	count, err := store.CountActiveSignals()
	if err != nil {
		t.Fatalf("count active signals: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected active count 1, got %d", count)
	}
}

func TestUpdateSignalStatusClosesTrade(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.AddSignal(domain.Signal{Symbol: "ETHUSDT", Direction: domain.BiasShort})

	if err := store.UpdateSignalStatus(id, domain.SignalWon, decimal.NewFromFloat(3000), decimal.NewFromFloat(0.02)); err != nil {
		t.Fatalf("update status: %v", err)
	}

	active, _ := store.CountActiveSignals()
	if active != 0 {
		t.Fatalf("expected no active signals after close, got %d", active)
	}

	completed, err := store.GetCompletedSignals(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("get completed signals: %v", err)
	}
	if len(completed) != 1 || completed[0].Status != domain.SignalWon {
		t.Fatalf("expected one WON signal, got %+v", completed)
	}
}

func TestLastSignalCloseTimeTracksMostRecent(t *testing.T) {
	store := newTestStore(t)
	id, _ := store.AddSignal(domain.Signal{Symbol: "BTCUSDT", Direction: domain.BiasLong})
	if err := store.UpdateSignalStatus(id, domain.SignalLost, decimal.Zero, decimal.NewFromFloat(-0.01)); err != nil {
		t.Fatalf("update status: %v", err)
	}

	last, err := store.LastSignalCloseTime("BTCUSDT")
	if err != nil {
		t.Fatalf("last close time: %v", err)
	}
	if last == nil {
		t.Fatalf("expected a close time to be recorded")
	}
	if time.Since(*last) > time.Minute {
		t.Fatalf("expected a recent close time, got %v", last)
	}

	if none, _ := store.LastSignalCloseTime("SOLUSDT"); none != nil {
		t.Fatalf("expected nil close time for a symbol with no history")
	}
}

func TestWatchlistLifecycle(t *testing.T) {
	store := newTestStore(t)

	id, err := store.AddToWatchlist(domain.WatchlistEntry{
		Symbol:          "BTCUSDT",
		Direction:       domain.BiasLong,
		MaxWatchCandles: 12,
	})
	if err != nil {
		t.Fatalf("add to watchlist: %v", err)
	}

	watching, err := store.GetWatchingItems()
	if err != nil || len(watching) != 1 {
		t.Fatalf("expected one watching item, got %v err=%v", watching, err)
	}

	exists, err := store.ActiveSignalExists("BTCUSDT", domain.BiasLong)
	if err != nil {
		t.Fatalf("active signal exists: %v", err)
	}
	if exists {
		t.Fatalf("expected no active signal yet")
	}

	if err := store.UpdateWatchlistItem(id, 3, time.Now()); err != nil {
		t.Fatalf("update watchlist item: %v", err)
	}

	if err := store.ExpireWatchlistItem(id, "timeout"); err != nil {
		t.Fatalf("expire watchlist item: %v", err)
	}

	watching, _ = store.GetWatchingItems()
	if len(watching) != 0 {
		t.Fatalf("expected no watching items after expiry, got %d", len(watching))
	}

	breakdown, err := store.GetWatchlistExpiryBreakdown(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("expiry breakdown: %v", err)
	}
	if breakdown["timeout"] != 1 {
		t.Fatalf("expected one timeout expiry, got %v", breakdown)
	}
}

func TestParametersRoundTripThroughDisk(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := store.SaveBotParam("min_rr_ratio", decimal.NewFromFloat(2.5), decimal.NewFromFloat(2.0)); err != nil {
		t.Fatalf("save bot param: %v", err)
	}

	reopened, err := NewStore(zap.NewNop(), dir)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}

	all, err := reopened.GetAllBotParams()
	if err != nil {
		t.Fatalf("get all bot params: %v", err)
	}
	v, ok := all["min_rr_ratio"]
	if !ok || !v.Equal(decimal.NewFromFloat(2.5)) {
		t.Fatalf("expected persisted parameter to survive reopen, got %v", all)
	}
}

func TestAppendOptimisationLogPersists(t *testing.T) {
	store := newTestStore(t)

	entry := domain.OptimisationLogEntry{
		ParamName:      "min_rr_ratio",
		OldValue:       decimal.NewFromFloat(2.0),
		NewValue:       decimal.NewFromFloat(1.8),
		Reason:         "nudge_toward_safety",
		TradesAnalyzed: 20,
		Timestamp:      time.Now(),
	}
	if err := store.AppendOptimisationLog(entry); err != nil {
		t.Fatalf("append optimisation log: %v", err)
	}

	logs, err := store.GetOptimisationLogs(10)
	if err != nil {
		t.Fatalf("get optimisation logs: %v", err)
	}
	if len(logs) != 1 || logs[0].ParamName != "min_rr_ratio" {
		t.Fatalf("expected one logged entry, got %+v", logs)
	}
}

func TestGetComponentPerformanceBucketsByTag(t *testing.T) {
	store := newTestStore(t)

	win, _ := store.AddSignal(domain.Signal{Symbol: "BTCUSDT", Components: []string{"SWEEP_REJECTION"}})
	loss, _ := store.AddSignal(domain.Signal{Symbol: "ETHUSDT", Components: []string{"SWEEP_REJECTION"}})
	_ = store.UpdateSignalStatus(win, domain.SignalWon, decimal.Zero, decimal.Zero)
	_ = store.UpdateSignalStatus(loss, domain.SignalLost, decimal.Zero, decimal.Zero)

	perf, err := store.GetComponentPerformance()
	if err != nil {
		t.Fatalf("component performance: %v", err)
	}
	stats, ok := perf["SWEEP_REJECTION"]
	if !ok || stats.TradeCount != 2 {
		t.Fatalf("expected two trades tagged SWEEP_REJECTION, got %+v", perf)
	}
	if !stats.WinRate.Equal(decimal.NewFromFloat(0.5)) {
		t.Fatalf("expected a 50%% win rate, got %v", stats.WinRate)
	}
}

func TestNewStoreCreatesDataDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/path"
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected test dir not to exist yet")
	}
	if _, err := NewStore(zap.NewNop(), dir); err != nil {
		t.Fatalf("new store: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("expected data directory to be created, got %v", err)
	}
}
