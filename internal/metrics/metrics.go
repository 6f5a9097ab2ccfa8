// Package metrics exposes the trading counters, latency histograms and
// account gauges in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aftermath"

// Metrics groups every collector the bot reports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	TradesExecuted      prometheus.Counter
	TradesSuccessful    prometheus.Counter
	TradesFailed        prometheus.Counter
	ExecutionSeconds    prometheus.Histogram
	VerificationSeconds prometheus.Histogram
	WalletBalance       prometheus.Gauge
	TotalPnL            prometheus.Gauge
	ActivePositions     prometheus.Gauge
	TrackedEvents       prometheus.Gauge
	Decisions           *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg. When reg is also a
// Gatherer (as *prometheus.Registry is) Handler serves from it; otherwise
// the default gatherer is used.
func New(reg prometheus.Registerer) *Metrics {
	latency := []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30}
	m := &Metrics{
		TradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_executed_total",
			Help:      "Orders submitted to the venue.",
		}),
		TradesSuccessful: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_successful_total",
			Help:      "Orders acknowledged by the venue.",
		}),
		TradesFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_failed_total",
			Help:      "Orders rejected by the venue or the size cap.",
		}),
		ExecutionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_seconds",
			Help:      "Wall time of one triggered pipeline run.",
			Buckets:   latency,
		}),
		VerificationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verification_seconds",
			Help:      "Latency of the earnings verification call.",
			Buckets:   latency,
		}),
		WalletBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wallet_balance_usd",
			Help:      "Tracked wallet balance.",
		}),
		TotalPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_pnl_usd",
			Help:      "Realized profit and loss across settled trades.",
		}),
		ActivePositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_positions",
			Help:      "Open trades counted against the concurrency limit.",
		}),
		TrackedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_events",
			Help:      "Earnings events awaiting their verification window.",
		}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Trade decisions by verdict.",
		}, []string{"verdict"}),
	}

	reg.MustRegister(
		m.TradesExecuted,
		m.TradesSuccessful,
		m.TradesFailed,
		m.ExecutionSeconds,
		m.VerificationSeconds,
		m.WalletBalance,
		m.TotalPnL,
		m.ActivePositions,
		m.TrackedEvents,
		m.Decisions,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// RecordTrade counts one submission attempt and its result.
func (m *Metrics) RecordTrade(success bool) {
	if m == nil {
		return
	}
	m.TradesExecuted.Inc()
	if success {
		m.TradesSuccessful.Inc()
	} else {
		m.TradesFailed.Inc()
	}
}

// ObserveExecution records the duration of a pipeline run.
func (m *Metrics) ObserveExecution(d time.Duration) {
	if m == nil {
		return
	}
	m.ExecutionSeconds.Observe(d.Seconds())
}

// ObserveVerification records the duration of a verification call.
func (m *Metrics) ObserveVerification(d time.Duration) {
	if m == nil {
		return
	}
	m.VerificationSeconds.Observe(d.Seconds())
}

// RecordDecision counts a decision verdict.
func (m *Metrics) RecordDecision(verdict string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(verdict).Inc()
}

// SetBalance updates the wallet gauge.
func (m *Metrics) SetBalance(usd float64) {
	if m == nil {
		return
	}
	m.WalletBalance.Set(usd)
}

// SetPnL updates the realized PnL gauge.
func (m *Metrics) SetPnL(usd float64) {
	if m == nil {
		return
	}
	m.TotalPnL.Set(usd)
}

// SetActivePositions updates the open trades gauge.
func (m *Metrics) SetActivePositions(n int) {
	if m == nil {
		return
	}
	m.ActivePositions.Set(float64(n))
}

// SetTrackedEvents updates the tracked events gauge.
func (m *Metrics) SetTrackedEvents(n int) {
	if m == nil {
		return
	}
	m.TrackedEvents.Set(float64(n))
}

// Handler returns the scrape handler for the registry the metrics live in.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Serve runs a dedicated scrape endpoint at :port/metrics until ctx is
// cancelled.
func (m *Metrics) Serve(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", m.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics: serving", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics: listen: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics: shutdown: %w", err)
		}
		return nil
	}
}
