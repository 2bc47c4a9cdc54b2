// Command scanner runs the Smart Money Concepts intraday scanner: it wires
// the Parameter Store, market data adapter, detection engine, trade
// lifecycle manager, watchlist loop, self-optimiser, persistence, and the
// four-cadence scheduler together, then serves ambient metrics until a
// shutdown signal arrives. Generalized from the teacher's cmd/server/main.go
// (same setupLogger idiom, same signal.Notify/cancel/Stop shutdown shape),
// replacing its PhD-research trading stack with this repo's own components.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-desktop/smc-scanner/internal/config"
	"github.com/atlas-desktop/smc-scanner/internal/detection"
	"github.com/atlas-desktop/smc-scanner/internal/domain"
	"github.com/atlas-desktop/smc-scanner/internal/eventbus"
	"github.com/atlas-desktop/smc-scanner/internal/lifecycle"
	"github.com/atlas-desktop/smc-scanner/internal/marketdata"
	"github.com/atlas-desktop/smc-scanner/internal/metrics"
	"github.com/atlas-desktop/smc-scanner/internal/optimiser"
	"github.com/atlas-desktop/smc-scanner/internal/params"
	"github.com/atlas-desktop/smc-scanner/internal/persistence"
	"github.com/atlas-desktop/smc-scanner/internal/scheduler"
	"github.com/atlas-desktop/smc-scanner/internal/watchlist"
	"github.com/atlas-desktop/smc-scanner/internal/workerpool"
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

func main() {
	configPath := flag.String("config", "./scanner.yaml", "Path to the scanner's YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting smc-scanner",
		zap.Strings("symbols", cfg.Symbols),
		zap.String("data_dir", cfg.DataDir),
		zap.String("metrics_addr", cfg.MetricsAddr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := persistence.NewStore(logger, cfg.DataDir)
	if err != nil {
		logger.Fatal("failed to open persistence store", zap.Error(err))
	}

	paramStore, err := params.NewStore(logger, store)
	if err != nil {
		logger.Fatal("failed to load parameter store", zap.Error(err))
	}

	bus := eventbus.New(logger, eventbus.DefaultConfig())

	reg, promReg := metrics.New()
	metricsServer := metrics.NewServer(logger, cfg.MetricsAddr, promReg)
	go func() {
		if err := metricsServer.Start(); err != nil {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	binance := marketdata.NewBinanceAdapter(logger, cfg.Binance)
	if err := binance.Start(ctx); err != nil {
		logger.Fatal("failed to start market data adapter", zap.Error(err))
	}

	pool := workerpool.New(logger, workerpool.DefaultConfig("scan-tick"))
	pool.Start()

	app := &application{
		logger:     logger,
		cfg:        cfg,
		store:      store,
		paramStore: paramStore,
		bus:        bus,
		reg:        reg,
		market:     binance,
		pool:       pool,
		detection:  detection.NewEngine(logger),
		lifecycle:  lifecycle.NewManager(logger),
		watchlist:  watchlist.NewManager(logger),
		optimiser:  optimiser.New(logger, store, paramStore, optimiser.DefaultConfig(), time.Now().UnixNano()),
	}

	sched := scheduler.New(logger, paramStore, cfg.Scheduler,
		app.onScan, app.onOpenTradeCheck, app.onWatchlist, app.onOptimise)
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("failed to start scheduler", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	cancel()
	if err := sched.Stop(); err != nil {
		logger.Error("error stopping scheduler", zap.Error(err))
	}
	if err := binance.Stop(); err != nil {
		logger.Error("error stopping market data adapter", zap.Error(err))
	}
	if err := pool.Stop(); err != nil {
		logger.Error("error stopping worker pool", zap.Error(err))
	}
	bus.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Stop(shutdownCtx); err != nil {
		logger.Error("error stopping metrics server", zap.Error(err))
	}

	logger.Info("smc-scanner stopped")
}

// application bundles the wired components the scheduler's four cadence
// callbacks close over.
type application struct {
	logger     *zap.Logger
	cfg        config.Config
	store      *persistence.Store
	paramStore *params.Store
	bus        *eventbus.Bus
	reg        *metrics.Registry
	market     marketdata.Source
	pool       *workerpool.Pool
	detection  *detection.Engine
	lifecycle  *lifecycle.Manager
	watchlist  *watchlist.Manager
	optimiser  *optimiser.Optimiser
}

// onScan runs one Narrative->POI->Trigger pass per watched symbol, fanned
// out across the worker pool (spec §4.2, §4.6).
func (a *application) onScan(ctx context.Context, snap params.Snapshot) {
	start := time.Now()
	defer func() { a.reg.ScanTickDuration.Observe(time.Since(start).Seconds()) }()

	var wg sync.WaitGroup
	for _, symbol := range a.cfg.Symbols {
		symbol := symbol
		wg.Add(1)
		err := a.pool.SubmitFunc(func() error {
			defer wg.Done()
			a.scanSymbol(ctx, symbol, snap)
			return nil
		})
		if err != nil {
			wg.Done()
			a.logger.Warn("scan tick submit failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}
	wg.Wait()
}

func (a *application) scanSymbol(ctx context.Context, symbol string, snap params.Snapshot) {
	a.reg.SymbolsScanned.Inc()

	timeframes := []types.Timeframe{types.Timeframe5m, types.Timeframe15m, types.Timeframe1h, types.Timeframe4h}
	frames, err := a.market.GetMultiTimeframeData(ctx, symbol, timeframes)
	if err != nil {
		a.reg.MarketDataDrops.Inc()
		a.logger.Warn("failed to fetch multi-timeframe data", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	tick, err := a.market.GetTicker(ctx, symbol)
	if err != nil {
		a.reg.MarketDataDrops.Inc()
		a.logger.Warn("failed to fetch ticker", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	bundle := detection.Bundle{
		Frame5m:  frames[types.Timeframe5m],
		Frame15m: frames[types.Timeframe15m],
		Frame1h:  frames[types.Timeframe1h],
		Frame4h:  frames[types.Timeframe4h],
	}
	action := a.detection.Generate(symbol, bundle, tick.Last, snap)

	switch action.Kind {
	case domain.ActionSignal:
		a.emitSignal(ctx, symbol, action.Signal, tick.Last)
	case domain.ActionWatch:
		a.emitWatch(ctx, action.Watch)
	}
}

func (a *application) emitSignal(ctx context.Context, symbol string, sig *domain.SignalEmission, currentPrice decimal.Decimal) {
	direction := sig.Direction
	exists, err := a.store.ActiveSignalExists(symbol, direction)
	if err != nil {
		a.logger.Error("failed to check active signal dedup", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if exists {
		a.logger.Debug("duplicate active signal suppressed", zap.String("symbol", symbol), zap.String("direction", string(direction)))
		return
	}

	result, err := lifecycle.CheckEntry(a.logger, a.store, a.paramStore.Snapshot(), symbol, direction, sig.Entry, sig.SL, sig.TP, time.Now())
	if err != nil {
		a.logger.Error("entry gate check failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if !result.Approved {
		a.logger.Info("signal rejected by entry gate", zap.String("symbol", symbol), zap.String("reason", result.Reason))
		return
	}

	record := domain.Signal{
		Symbol:          symbol,
		Direction:       direction,
		EntryPrice:      sig.Entry,
		StopLoss:        sig.SL,
		InitialStopLoss: sig.SL,
		TakeProfit:      sig.TP,
		EntryMode:       sig.EntryMode,
		Components:      signalComponents(sig.TriggerType, sig.Components),
		HTFBias:         sig.Narrative.Bias,
		RRRatio:         sig.RR,
		Timeframe:       sig.Timeframe,
	}
	id, err := a.store.AddSignal(record)
	if err != nil {
		a.logger.Error("failed to persist signal", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	record.ID = id
	a.reg.SignalsEmitted.WithLabelValues(string(direction)).Inc()
	a.reg.ActiveSignals.Inc()
	a.bus.Publish(eventbus.NewSignalCreatedEvent(record))
}

func (a *application) emitWatch(ctx context.Context, w *domain.WatchEmission) {
	entry := domain.WatchlistEntry{
		Symbol:          w.Symbol,
		Direction:       w.Direction,
		PotentialEntry:  w.Entry,
		PotentialSL:     w.SL,
		PotentialTP:     w.TP,
		WatchReason:     w.Reason,
		MaxWatchCandles: 36,
	}
	id, err := a.store.AddToWatchlist(entry)
	if err != nil {
		a.logger.Error("failed to persist watchlist entry", zap.String("symbol", w.Symbol), zap.Error(err))
		return
	}
	entry.ID = id
	a.reg.WatchlistSize.Inc()
	a.bus.Publish(eventbus.NewWatchlistCreatedEvent(entry))
}

// onOpenTradeCheck re-evaluates every active signal's breakeven/trailing
// stop and terminal-hit state (spec §4.3).
func (a *application) onOpenTradeCheck(ctx context.Context, snap params.Snapshot) {
	active, err := a.store.GetActiveSignals()
	if err != nil {
		a.logger.Error("failed to load active signals", zap.Error(err))
		return
	}
	for _, sig := range active {
		tick, err := a.market.GetTicker(ctx, sig.Symbol)
		if err != nil {
			a.logger.Warn("failed to fetch ticker for open trade check", zap.String("symbol", sig.Symbol), zap.Error(err))
			continue
		}
		updated, closed := a.lifecycle.Evaluate(sig, tick.Last, time.Now(), snap)
		if updated.StopLoss.Cmp(sig.StopLoss) != 0 {
			if err := a.store.UpdateSignalSL(sig.ID, updated.StopLoss); err != nil {
				a.logger.Error("failed to persist ratcheted stop", zap.String("id", sig.ID), zap.Error(err))
			}
		}
		if closed {
			if err := a.store.UpdateSignalStatus(sig.ID, updated.Status, updated.ClosePrice, updated.PnLPct); err != nil {
				a.logger.Error("failed to persist closed signal", zap.String("id", sig.ID), zap.Error(err))
				continue
			}
			a.reg.SignalsClosed.WithLabelValues(string(updated.Status)).Inc()
			a.reg.ActiveSignals.Dec()
			a.bus.Publish(eventbus.NewSignalClosedEvent(updated))
		}
	}
}

// onWatchlist re-checks every watching entry against the latest 5m candle
// close (spec §4.4).
func (a *application) onWatchlist(ctx context.Context, snap params.Snapshot) {
	entries, err := a.store.GetWatchingItems()
	if err != nil {
		a.logger.Error("failed to load watchlist", zap.Error(err))
		return
	}
	for _, entry := range entries {
		frames, err := a.market.GetMultiTimeframeData(ctx, entry.Symbol, []types.Timeframe{types.Timeframe5m, types.Timeframe15m})
		if err != nil {
			a.logger.Warn("failed to fetch candles for watchlist re-check", zap.String("symbol", entry.Symbol), zap.Error(err))
			continue
		}
		frame5m := frames[types.Timeframe5m]
		frame15m := frames[types.Timeframe15m]
		if len(frame5m) == 0 {
			continue
		}
		latest5m := frame5m[len(frame5m)-1]

		tick, err := a.market.GetTicker(ctx, entry.Symbol)
		if err != nil {
			a.logger.Warn("failed to fetch ticker for watchlist re-check", zap.String("symbol", entry.Symbol), zap.Error(err))
			continue
		}

		exists, err := a.store.ActiveSignalExists(entry.Symbol, entry.Direction)
		if err != nil {
			a.logger.Error("failed to check active signal dedup for watchlist entry", zap.String("id", entry.ID), zap.Error(err))
			continue
		}

		updated, outcome, trigger := a.watchlist.Tick(entry, latest5m, frame15m, frame5m, tick.Last, snap, exists)

		switch outcome {
		case watchlist.OutcomeContinue:
			if err := a.store.UpdateWatchlistItem(updated.ID, updated.CandlesWatched, updated.Last5mCandleTS); err != nil {
				a.logger.Error("failed to persist watchlist progress", zap.String("id", updated.ID), zap.Error(err))
			}
		case watchlist.OutcomeExpire:
			if err := a.store.ExpireWatchlistItem(updated.ID, updated.ExpireReason); err != nil {
				a.logger.Error("failed to persist watchlist expiry", zap.String("id", updated.ID), zap.Error(err))
				continue
			}
			a.reg.WatchlistSize.Dec()
			a.bus.Publish(eventbus.NewWatchlistExpiredEvent(updated))
		case watchlist.OutcomePromote:
			if err := a.store.PromoteWatchlistItem(updated.ID); err != nil {
				a.logger.Error("failed to persist watchlist promotion", zap.String("id", updated.ID), zap.Error(err))
				continue
			}
			a.reg.WatchlistSize.Dec()
			a.promoteToSignal(updated, trigger)
			a.bus.Publish(eventbus.NewWatchlistPromotedEvent(updated))
		}
	}
}

func (a *application) promoteToSignal(entry domain.WatchlistEntry, trigger *domain.Trigger) {
	if trigger == nil {
		return
	}
	record := domain.Signal{
		Symbol:          entry.Symbol,
		Direction:       trigger.Direction,
		EntryPrice:      trigger.Entry,
		StopLoss:        trigger.SL,
		InitialStopLoss: trigger.SL,
		TakeProfit:      trigger.TP,
		EntryMode:       domain.EntryModeMarket,
		Components:      signalComponents(trigger.Type, trigger.Components),
		RRRatio:         trigger.RR,
		Timeframe:       trigger.Timeframe,
	}
	id, err := a.store.AddSignal(record)
	if err != nil {
		a.logger.Error("failed to persist promoted signal", zap.String("symbol", entry.Symbol), zap.Error(err))
		return
	}
	record.ID = id
	a.reg.SignalsEmitted.WithLabelValues(string(trigger.Direction)).Inc()
	a.reg.ActiveSignals.Inc()
	a.bus.Publish(eventbus.NewSignalCreatedEvent(record))
}

// onOptimise runs the Self-Optimiser's slow cadence (spec §4.5).
func (a *application) onOptimise(ctx context.Context, snap params.Snapshot) {
	a.optimiser.Run(time.Now())
	a.reg.OptimisationApplys.Inc()
}

// signalComponents builds the full component tag set the Self-Optimiser's
// component-priority mapping (spec §4.5 step 5) blames for losses: the
// confluence-zone sources (OB/FVG/BSL/SSL) plus the trigger type that fired
// and the two tags that are structurally true of every signal — it always
// carries an HTF bias from the Narrative layer and its entry always sits
// inside a discovered POI zone.
func signalComponents(triggerType domain.TriggerType, confluence []string) []string {
	out := make([]string, 0, len(confluence)+3)
	out = append(out, confluence...)
	out = append(out, string(triggerType), "HTF_BIAS", "POI_ZONE")
	return out
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
