// Package metrics exposes Prometheus instrumentation for the trading agent.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jinktrader/internal/ports"
)

// OpenTrades tracks the number of currently monitored positions.
var OpenTrades = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "jink",
	Subsystem: "trading",
	Name:      "open_trades",
	Help:      "Number of currently open trades",
})

// SignalsTotal counts pulled signals by exchange and outcome.
var SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "jink",
	Subsystem: "trading",
	Name:      "signals_total",
	Help:      "Total signals received, by exchange and outcome",
}, []string{"exchange", "outcome"})

// OrdersTotal counts executed orders by exchange and side.
var OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "jink",
	Subsystem: "trading",
	Name:      "orders_total",
	Help:      "Total orders executed, by exchange and side",
}, []string{"exchange", "side"})

// ClosesTotal counts terminal trades by close reason.
var ClosesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "jink",
	Subsystem: "trading",
	Name:      "closes_total",
	Help:      "Total closed trades, by reason",
}, []string{"reason"})

// OrderLatency measures order round-trip time on the venue.
var OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "jink",
	Subsystem: "trading",
	Name:      "order_latency_seconds",
	Help:      "Order execution latency on the exchange",
	Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.5, 1, 2, 5},
}, []string{"exchange", "side"})

// TickDuration measures a full monitoring tick, price sample included.
var TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "jink",
	Subsystem: "trading",
	Name:      "tick_duration_seconds",
	Help:      "Duration of one position monitoring tick",
	Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
})

// Serve starts the /metrics endpoint on addr in the background. The returned
// server is already listening; shut it down on exit.
func Serve(addr string, logger ports.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(context.Background(), err, "metrics server stopped")
		}
	}()
	return srv
}
