package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

var _ Source = (*BinanceAdapter)(nil)

// BinanceConfig configures the Binance websocket adapter.
type BinanceConfig struct {
	WSURL       string
	Symbols     []string
	Timeframes  []types.Timeframe
	BufferSize  int
}

// DefaultBinanceConfig returns the production stream endpoint and the four
// timeframes the Detection Engine consumes.
func DefaultBinanceConfig() BinanceConfig {
	return BinanceConfig{
		WSURL:      "wss://stream.binance.com:9443/ws",
		Timeframes: []types.Timeframe{types.Timeframe5m, types.Timeframe15m, types.Timeframe1h, types.Timeframe4h},
		BufferSize: 500,
	}
}

// BinanceAdapter streams closed klines and 24h ticker updates over a single
// multiplexed Binance websocket connection, reconnecting and resubscribing on
// drop (spec §3, C2).
type BinanceAdapter struct {
	logger *zap.Logger
	cfg    BinanceConfig

	connMu sync.RWMutex
	conn   *websocket.Conn

	subMu         sync.RWMutex
	subscriptions map[string]bool

	ohlcvMu    sync.RWMutex
	ohlcvCache map[string][]types.OHLCV

	tickerMu    sync.RWMutex
	tickerCache map[string]types.Tick

	onCandle func(symbol string, tf types.Timeframe, candle types.OHLCV)

	running bool
	cancel  context.CancelFunc
}

// NewBinanceAdapter builds the adapter; call Start to open the connection.
func NewBinanceAdapter(logger *zap.Logger, cfg BinanceConfig) *BinanceAdapter {
	return &BinanceAdapter{
		logger:        logger.Named("marketdata"),
		cfg:           cfg,
		subscriptions: make(map[string]bool),
		ohlcvCache:    make(map[string][]types.OHLCV),
		tickerCache:   make(map[string]types.Tick),
	}
}

// OnCandle sets a callback invoked for every closed candle across all
// subscribed symbols/timeframes.
func (a *BinanceAdapter) OnCandle(fn func(symbol string, tf types.Timeframe, candle types.OHLCV)) {
	a.onCandle = fn
}

// Start connects, subscribes to the configured symbols, and launches the
// read loop and reconnect monitor.
func (a *BinanceAdapter) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running = true

	if err := a.connect(); err != nil {
		return fmt.Errorf("failed to connect to binance: %w", err)
	}
	for _, symbol := range a.cfg.Symbols {
		if err := a.Subscribe(symbol); err != nil {
			a.logger.Warn("initial subscribe failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	go a.readLoop(runCtx)
	go a.reconnectMonitor(runCtx)

	a.logger.Info("binance market data adapter started", zap.Int("symbols", len(a.cfg.Symbols)))
	return nil
}

// Stop closes the connection and signals the background loops to exit.
func (a *BinanceAdapter) Stop() error {
	a.running = false
	if a.cancel != nil {
		a.cancel()
	}
	a.connMu.Lock()
	if a.conn != nil {
		a.conn.Close()
	}
	a.connMu.Unlock()
	a.logger.Info("binance market data adapter stopped")
	return nil
}

func (a *BinanceAdapter) connect() error {
	a.connMu.Lock()
	defer a.connMu.Unlock()
	u, err := url.Parse(a.cfg.WSURL)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return err
	}
	a.conn = conn
	a.logger.Debug("connected to binance websocket")
	return nil
}

// Subscribe opens ticker and kline-per-timeframe streams for a symbol.
func (a *BinanceAdapter) Subscribe(symbol string) error {
	a.subMu.Lock()
	if a.subscriptions[symbol] {
		a.subMu.Unlock()
		return nil
	}
	a.subscriptions[symbol] = true
	a.subMu.Unlock()

	lower := strings.ToLower(symbol)
	streams := []string{lower + "@ticker"}
	for _, tf := range a.cfg.Timeframes {
		streams = append(streams, fmt.Sprintf("%s@kline_%s", lower, string(tf)))
	}

	msg := map[string]any{"method": "SUBSCRIBE", "params": streams, "id": time.Now().UnixNano()}

	a.connMu.Lock()
	defer a.connMu.Unlock()
	if a.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	if err := a.conn.WriteJSON(msg); err != nil {
		return err
	}
	a.logger.Debug("subscribed", zap.String("symbol", symbol))
	return nil
}

func (a *BinanceAdapter) readLoop(ctx context.Context) {
	for a.running {
		select {
		case <-ctx.Done():
			return
		default:
		}

		a.connMu.RLock()
		conn := a.conn
		a.connMu.RUnlock()
		if conn == nil {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if a.running {
				a.logger.Error("websocket read error", zap.Error(err))
				a.connMu.Lock()
				a.conn = nil
				a.connMu.Unlock()
			}
			continue
		}
		a.handleMessage(message)
	}
}

func (a *BinanceAdapter) reconnectMonitor(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.connMu.RLock()
			conn := a.conn
			a.connMu.RUnlock()
			if conn != nil || !a.running {
				continue
			}
			a.logger.Info("attempting binance reconnect")
			if err := a.connect(); err != nil {
				a.logger.Error("reconnect failed", zap.Error(err))
				continue
			}
			a.subMu.Lock()
			symbols := make([]string, 0, len(a.subscriptions))
			for symbol := range a.subscriptions {
				symbols = append(symbols, symbol)
				a.subscriptions[symbol] = false
			}
			a.subMu.Unlock()
			for _, symbol := range symbols {
				if err := a.Subscribe(symbol); err != nil {
					a.logger.Error("resubscribe failed", zap.String("symbol", symbol), zap.Error(err))
				}
			}
		}
	}
}

func (a *BinanceAdapter) handleMessage(data []byte) {
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	eventType, _ := msg["e"].(string)
	switch eventType {
	case "24hrTicker":
		a.handleTicker(msg)
	case "kline":
		a.handleKline(msg)
	}
}

func (a *BinanceAdapter) handleTicker(msg map[string]any) {
	symbol, _ := msg["s"].(string)
	lastStr, _ := msg["c"].(string)
	eventTime, _ := msg["E"].(float64)
	last, err := decimal.NewFromString(lastStr)
	if err != nil {
		return
	}
	tick := types.Tick{Symbol: symbol, Last: last, Timestamp: time.UnixMilli(int64(eventTime))}
	a.tickerMu.Lock()
	a.tickerCache[symbol] = tick
	a.tickerMu.Unlock()
}

// handleKline caches a kline only once Binance reports it closed ("x":
// true); the detection pipeline must never see a repainting candle.
func (a *BinanceAdapter) handleKline(msg map[string]any) {
	k, ok := msg["k"].(map[string]any)
	if !ok {
		return
	}
	closed, _ := k["x"].(bool)
	if !closed {
		return
	}
	symbol, _ := k["s"].(string)
	interval, _ := k["i"].(string)
	openStr, _ := k["o"].(string)
	highStr, _ := k["h"].(string)
	lowStr, _ := k["l"].(string)
	closeStr, _ := k["c"].(string)
	volumeStr, _ := k["v"].(string)
	closeTime, _ := k["T"].(float64)

	open, err1 := decimal.NewFromString(openStr)
	high, err2 := decimal.NewFromString(highStr)
	low, err3 := decimal.NewFromString(lowStr)
	closePrice, err4 := decimal.NewFromString(closeStr)
	volume, err5 := decimal.NewFromString(volumeStr)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return
	}

	candle := types.OHLCV{
		Timestamp: time.UnixMilli(int64(closeTime)),
		Open:      open, High: high, Low: low, Close: closePrice, Volume: volume,
	}
	tf := types.Timeframe(interval)
	key := cacheKey(symbol, tf)

	a.ohlcvMu.Lock()
	cache := append(a.ohlcvCache[key], candle)
	if len(cache) > a.cfg.BufferSize {
		cache = cache[len(cache)-a.cfg.BufferSize:]
	}
	a.ohlcvCache[key] = cache
	a.ohlcvMu.Unlock()

	if a.onCandle != nil {
		a.onCandle(symbol, tf, candle)
	}
}

func cacheKey(symbol string, tf types.Timeframe) string {
	return symbol + ":" + string(tf)
}

// GetCandles returns up to the last `limit` cached closed candles.
func (a *BinanceAdapter) GetCandles(ctx context.Context, symbol string, tf types.Timeframe, limit int) ([]types.OHLCV, error) {
	a.ohlcvMu.RLock()
	defer a.ohlcvMu.RUnlock()
	cache := a.ohlcvCache[cacheKey(symbol, tf)]
	if limit <= 0 || limit >= len(cache) {
		out := make([]types.OHLCV, len(cache))
		copy(out, cache)
		return out, nil
	}
	out := make([]types.OHLCV, limit)
	copy(out, cache[len(cache)-limit:])
	return out, nil
}

// GetMultiTimeframeData fetches the full cached history for every requested
// timeframe.
func (a *BinanceAdapter) GetMultiTimeframeData(ctx context.Context, symbol string, timeframes []types.Timeframe) (map[types.Timeframe][]types.OHLCV, error) {
	out := make(map[types.Timeframe][]types.OHLCV, len(timeframes))
	for _, tf := range timeframes {
		candles, err := a.GetCandles(ctx, symbol, tf, 0)
		if err != nil {
			return nil, err
		}
		out[tf] = candles
	}
	return out, nil
}

// GetTicker returns the last cached ticker read for a symbol.
func (a *BinanceAdapter) GetTicker(ctx context.Context, symbol string) (types.Tick, error) {
	a.tickerMu.RLock()
	defer a.tickerMu.RUnlock()
	tick, ok := a.tickerCache[symbol]
	if !ok {
		return types.Tick{}, fmt.Errorf("no ticker cached for %s", symbol)
	}
	return tick, nil
}
