// Package config loads the scanner's runtime configuration through Viper,
// grounded on the teacher's spf13/viper dependency (declared in go.mod but
// never wired to a concrete loader in the teacher repo). It reads a YAML
// file on disk and layers environment-variable overrides on top
// (SCANNER_-prefixed), the standard viper pattern for a twelve-factor
// service: file for local/dev defaults, environment for deployment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/atlas-desktop/smc-scanner/internal/marketdata"
	"github.com/atlas-desktop/smc-scanner/internal/scheduler"
	"github.com/atlas-desktop/smc-scanner/pkg/types"
)

// Config is the fully resolved, typed configuration the scanner boots from.
type Config struct {
	Symbols   []string
	DataDir   string
	LogLevel  string
	MetricsAddr string

	Scheduler scheduler.Config
	Binance   marketdata.BinanceConfig

	Policy PolicyConfig
}

// PolicyConfig holds the non-optimised policy parameters named in SPEC_FULL
// §A.3, loaded from config. The running scanner does not read cfg.Policy:
// the gates and the age check read the same names, with the same defaults,
// from the Parameter Store snapshot (params.PolicyDefaults).
type PolicyConfig struct {
	MaxConcurrentTrades    int
	MaxSameDirectionTrades int
	MinSLDistancePct       decimal.Decimal
	MaxSLDistancePct       decimal.Decimal
	SignalCooldownMinutes  int
	MaxTradeDurationHours  int
}

// Load reads configPath (a YAML file; missing is tolerated, defaults apply)
// and overlays any SCANNER_-prefixed environment variables on top.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	setDefaults(v)

	v.SetEnvPrefix("SCANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read config file %q: %w", configPath, err)
		}
	}

	return Config{
		Symbols:     v.GetStringSlice("symbols"),
		DataDir:     v.GetString("data_dir"),
		LogLevel:    v.GetString("log_level"),
		MetricsAddr: v.GetString("metrics_addr"),
		Scheduler: scheduler.Config{
			ScanInterval:           v.GetDuration("scheduler.scan_interval"),
			OpenTradeCheckInterval: v.GetDuration("scheduler.open_trade_check_interval"),
			WatchlistInterval:      v.GetDuration("scheduler.watchlist_interval"),
			OptimiserInterval:      v.GetDuration("scheduler.optimiser_interval"),
		},
		Binance: marketdata.BinanceConfig{
			WSURL:      v.GetString("binance.ws_url"),
			Symbols:    v.GetStringSlice("symbols"),
			Timeframes: defaultTimeframes(),
			BufferSize: v.GetInt("binance.buffer_size"),
		},
		Policy: PolicyConfig{
			MaxConcurrentTrades:    v.GetInt("policy.max_concurrent_trades"),
			MaxSameDirectionTrades: v.GetInt("policy.max_same_direction_trades"),
			MinSLDistancePct:       decimal.NewFromFloat(v.GetFloat64("policy.min_sl_distance_pct")),
			MaxSLDistancePct:       decimal.NewFromFloat(v.GetFloat64("policy.max_sl_distance_pct")),
			SignalCooldownMinutes:  v.GetInt("policy.signal_cooldown_minutes"),
			MaxTradeDurationHours:  v.GetInt("policy.max_trade_duration_hours"),
		},
	}, nil
}

func defaultTimeframes() []types.Timeframe {
	return []types.Timeframe{types.Timeframe5m, types.Timeframe15m, types.Timeframe1h, types.Timeframe4h}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("symbols", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"})
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", ":9090")

	v.SetDefault("scheduler.scan_interval", 180*time.Second)
	v.SetDefault("scheduler.open_trade_check_interval", 5*time.Second)
	v.SetDefault("scheduler.watchlist_interval", 60*time.Second)
	v.SetDefault("scheduler.optimiser_interval", 30*time.Minute)

	v.SetDefault("binance.ws_url", "wss://stream.binance.com:9443/stream")
	v.SetDefault("binance.buffer_size", 256)

	v.SetDefault("policy.max_concurrent_trades", 10)
	v.SetDefault("policy.max_same_direction_trades", 6)
	v.SetDefault("policy.min_sl_distance_pct", 0.004)
	v.SetDefault("policy.max_sl_distance_pct", 0.05)
	v.SetDefault("policy.signal_cooldown_minutes", 30)
	v.SetDefault("policy.max_trade_duration_hours", 48)
}
