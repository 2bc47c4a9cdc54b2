// Package marketdata defines the MarketDataSource contract (C2) and a
// concrete Binance-websocket adapter, grounded on the teacher's
// data.MarketDataService (internal/data/market_data.go).
package marketdata

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

// Source is the market-data contract the Detection Engine and Scheduler
// consume. Every OHLCV it returns is a closed candle; no implementation may
// emit the currently-forming candle (spec §3, "no repainting").
type Source interface {
	GetCandles(ctx context.Context, symbol string, tf types.Timeframe, limit int) ([]types.OHLCV, error)
	GetMultiTimeframeData(ctx context.Context, symbol string, timeframes []types.Timeframe) (map[types.Timeframe][]types.OHLCV, error)
	GetTicker(ctx context.Context, symbol string) (types.Tick, error)
}

// FundingRateSource is an optional capability a Source may implement; the
// spot websocket stream does not carry it (see DESIGN.md).
type FundingRateSource interface {
	GetFundingRate(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// OpenInterestSource is an optional capability a Source may implement; the
// spot websocket stream does not carry it (see DESIGN.md).
type OpenInterestSource interface {
	GetOpenInterest(ctx context.Context, symbol string) (decimal.Decimal, error)
}
