package marketdata

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

func newTestAdapter() *BinanceAdapter {
	return NewBinanceAdapter(zap.NewNop(), DefaultBinanceConfig())
}

func klineMsg(closed bool) map[string]any {
	return map[string]any{
		"e": "kline",
		"k": map[string]any{
			"s": "BTCUSDT",
			"i": "15m",
			"o": "100.00",
			"h": "101.50",
			"l": "99.50",
			"c": "101.00",
			"v": "12.5",
			"T": float64(time.Date(2026, 7, 30, 12, 15, 0, 0, time.UTC).UnixMilli()),
			"x": closed,
		},
	}
}

func TestHandleKlineIgnoresUnclosedCandle(t *testing.T) {
	a := newTestAdapter()
	a.handleKline(klineMsg(false))

	candles, err := a.GetCandles(context.Background(), "BTCUSDT", types.Timeframe15m, 0)
	if err != nil {
		t.Fatalf("get candles: %v", err)
	}
	if len(candles) != 0 {
		t.Fatalf("expected no cached candle from an unclosed kline, got %d", len(candles))
	}
}

func TestHandleKlineCachesClosedCandle(t *testing.T) {
	a := newTestAdapter()
	var gotSymbol string
	var gotTF types.Timeframe
	a.OnCandle(func(symbol string, tf types.Timeframe, candle types.OHLCV) {
		gotSymbol, gotTF = symbol, tf
	})

	a.handleKline(klineMsg(true))

	candles, err := a.GetCandles(context.Background(), "BTCUSDT", types.Timeframe15m, 0)
	if err != nil {
		t.Fatalf("get candles: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("expected one cached closed candle, got %d", len(candles))
	}
	if !candles[0].Close.Equal(candles[0].Close) || candles[0].Close.IsZero() {
		t.Fatalf("expected a parsed close price, got %v", candles[0].Close)
	}
	if gotSymbol != "BTCUSDT" || gotTF != types.Timeframe15m {
		t.Fatalf("onCandle callback got wrong symbol/timeframe: %s %s", gotSymbol, gotTF)
	}
}

func TestGetCandlesRespectsLimit(t *testing.T) {
	a := newTestAdapter()
	for i := 0; i < 5; i++ {
		msg := klineMsg(true)
		k := msg["k"].(map[string]any)
		k["T"] = float64(time.Date(2026, 7, 30, 12, i, 0, 0, time.UTC).UnixMilli())
		a.handleKline(msg)
	}

	candles, err := a.GetCandles(context.Background(), "BTCUSDT", types.Timeframe15m, 2)
	if err != nil {
		t.Fatalf("get candles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected limit of 2 candles, got %d", len(candles))
	}
}

func TestGetMultiTimeframeData(t *testing.T) {
	a := newTestAdapter()
	a.handleKline(klineMsg(true))

	msg1h := klineMsg(true)
	k1h := msg1h["k"].(map[string]any)
	k1h["i"] = "1h"
	a.handleKline(msg1h)

	out, err := a.GetMultiTimeframeData(context.Background(), "BTCUSDT", []types.Timeframe{types.Timeframe15m, types.Timeframe1h, types.Timeframe4h})
	if err != nil {
		t.Fatalf("get multi timeframe data: %v", err)
	}
	if len(out[types.Timeframe15m]) != 1 || len(out[types.Timeframe1h]) != 1 {
		t.Fatalf("expected one candle cached per populated timeframe, got %v", out)
	}
	if len(out[types.Timeframe4h]) != 0 {
		t.Fatalf("expected empty slice for an unpopulated timeframe, got %d", len(out[types.Timeframe4h]))
	}
}

func TestGetTickerReturnsErrorWhenUncached(t *testing.T) {
	a := newTestAdapter()
	if _, err := a.GetTicker(context.Background(), "BTCUSDT"); err == nil {
		t.Fatalf("expected error for an uncached ticker")
	}
}

func TestHandleTickerCachesLastPrice(t *testing.T) {
	a := newTestAdapter()
	a.handleTicker(map[string]any{
		"s": "BTCUSDT",
		"c": "65000.50",
		"E": float64(time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC).UnixMilli()),
	})

	tick, err := a.GetTicker(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("get ticker: %v", err)
	}
	if tick.Last.String() != "65000.5" {
		t.Fatalf("expected last price 65000.5, got %s", tick.Last.String())
	}
}
