// Package metrics is the ambient Prometheus surface: a registry of scan-tick
// and signal-lifecycle instruments plus the minimal /metrics and /healthz
// HTTP endpoints, grounded on the teacher's internal/api/server.go http.Server
// construction idiom (addr/handler/Read-WriteTimeout, logged Start/Stop) but
// using the standard library's http.ServeMux rather than gorilla/mux — this
// surface only ever needs two fixed routes, not the backtest/websocket router
// the API layer built (an explicit Non-goal, see DESIGN.md).
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Registry holds every instrument the scanner emits. Constructed once at
// startup and passed by reference into the components that report through it.
type Registry struct {
	ScanTickDuration   prometheus.Histogram
	SymbolsScanned     prometheus.Counter
	SignalsEmitted     *prometheus.CounterVec
	SignalsClosed      *prometheus.CounterVec
	WatchlistSize      prometheus.Gauge
	ActiveSignals      prometheus.Gauge
	OptimisationApplys prometheus.Counter
	MarketDataDrops    prometheus.Counter
}

// New registers every instrument against a fresh prometheus.Registry.
func New() (*Registry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{
		ScanTickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "smc",
			Name:      "scan_tick_duration_seconds",
			Help:      "Duration of a full scheduler scan tick across all watched symbols.",
			Buckets:   prometheus.DefBuckets,
		}),
		SymbolsScanned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "smc",
			Name:      "symbols_scanned_total",
			Help:      "Total number of per-symbol detection passes run.",
		}),
		SignalsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smc",
			Name:      "signals_emitted_total",
			Help:      "Signals emitted by the detection engine, labeled by bias direction.",
		}, []string{"direction"}),
		SignalsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smc",
			Name:      "signals_closed_total",
			Help:      "Signals closed by the trade lifecycle manager, labeled by terminal status.",
		}, []string{"status"}),
		WatchlistSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "smc",
			Name:      "watchlist_size",
			Help:      "Current number of entries being watched.",
		}),
		ActiveSignals: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "smc",
			Name:      "active_signals",
			Help:      "Current number of active (open) signals.",
		}),
		OptimisationApplys: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "smc",
			Name:      "optimisation_applies_total",
			Help:      "Total number of self-optimiser runs.",
		}),
		MarketDataDrops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "smc",
			Name:      "marketdata_drops_total",
			Help:      "Total number of per-symbol scans skipped because the candle or ticker fetch failed.",
		}),
	}
	return r, reg
}

// Server exposes /metrics and /healthz on a dedicated address.
type Server struct {
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer wires the metrics registry and a liveness check into an
// http.Server, mirroring the teacher's addr/handler/timeout construction.
func NewServer(logger *zap.Logger, addr string, reg *prometheus.Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &Server{
		logger: logger.Named("metrics"),
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Start blocks serving until the server is stopped or fails.
func (s *Server) Start() error {
	s.logger.Info("starting metrics server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping metrics server")
	return s.httpServer.Shutdown(ctx)
}
