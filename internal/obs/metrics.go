// Package obs exposes the reactor's counters and latency histograms
// through github.com/prometheus/client_golang, replacing the teacher's
// hand-rolled atomic counters (internal/obs/metrics.go) with the same
// library the retrieval pack's market-maker-bot monitoring package
// registers (Aidin1998-finalex/services/marketfeeds/market-maker-bot/
// monitoring/metrics.go).
package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ordermesh/pingpong/internal/engine"
	"github.com/ordermesh/pingpong/internal/market"
	"github.com/ordermesh/pingpong/internal/risk"
)

// Metrics collects the reactor's per-market counters and latencies.
// Registered once at startup with a dedicated prometheus.Registry so tests
// and multiple reactors in one process never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	fills        *prometheus.CounterVec
	cancels      *prometheus.CounterVec
	riskDenies   *prometheus.CounterVec
	queueDrops   prometheus.Counter
	queueClosed  prometheus.Counter

	orderFlowLatency prometheus.Histogram
	riskEvalLatency  prometheus.Histogram
	tickerLatency    prometheus.Histogram
}

// NewMetrics allocates and registers a fresh metrics set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pingpong_fills_total",
			Help: "Fills processed, partitioned by market and fill type.",
		}, []string{"market", "fill_type"}),
		cancels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pingpong_cancels_total",
			Help: "Cancels issued, partitioned by market and cancel reason.",
		}, []string{"market", "reason"}),
		riskDenies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pingpong_risk_denies_total",
			Help: "Proposed positions denied by the risk engine, by reason.",
		}, []string{"market", "reason"}),
		queueDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pingpong_queue_drops_total",
			Help: "Events dropped because the bus queue was full.",
		}),
		queueClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pingpong_queue_closed_publishes_total",
			Help: "Publish attempts against an already-closed bus queue.",
		}),
		orderFlowLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pingpong_order_flow_latency_seconds",
			Help:    "Time from submit request to ack/fill.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
		}),
		riskEvalLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pingpong_risk_eval_latency_seconds",
			Help:    "Time spent in risk.Engine.Evaluate.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
		}),
		tickerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pingpong_ticker_event_latency_seconds",
			Help:    "Time from exchange ticker timestamp to local processing.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
	}
	m.registry.MustRegister(m.fills, m.cancels, m.riskDenies, m.queueDrops, m.queueClosed,
		m.orderFlowLatency, m.riskEvalLatency, m.tickerLatency)
	return m
}

// Registry exposes the underlying prometheus.Registry for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// IncFill records a fill in m for the given fill type.
func (m *Metrics) IncFill(mk market.Market, ft engine.FillType) {
	if m == nil {
		return
	}
	m.fills.WithLabelValues(string(mk), ft.String()).Inc()
}

// IncCancel records a cancel issued in mk for the given reason.
func (m *Metrics) IncCancel(mk market.Market, reason market.CancelReason) {
	if m == nil {
		return
	}
	m.cancels.WithLabelValues(string(mk), reason.String()).Inc()
}

// IncRiskDeny records a risk-engine denial.
func (m *Metrics) IncRiskDeny(mk market.Market, reason risk.Reason) {
	if m == nil {
		return
	}
	m.riskDenies.WithLabelValues(string(mk), reason.String()).Inc()
}

// IncQueueDrop records a bus queue drop.
func (m *Metrics) IncQueueDrop() {
	if m == nil {
		return
	}
	m.queueDrops.Inc()
}

// IncQueueClosed records a publish attempt against a closed bus queue.
func (m *Metrics) IncQueueClosed() {
	if m == nil {
		return
	}
	m.queueClosed.Inc()
}

// ObserveOrderFlow measures end-to-end order flow latency.
func (m *Metrics) ObserveOrderFlow(d time.Duration) {
	if m == nil {
		return
	}
	m.orderFlowLatency.Observe(d.Seconds())
}

// ObserveRiskEval measures risk evaluation latency.
func (m *Metrics) ObserveRiskEval(d time.Duration) {
	if m == nil {
		return
	}
	m.riskEvalLatency.Observe(d.Seconds())
}

// ObserveTickerLatency measures exchange-to-local ticker processing delay.
func (m *Metrics) ObserveTickerLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.tickerLatency.Observe(d.Seconds())
}
