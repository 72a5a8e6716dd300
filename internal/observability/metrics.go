package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nexus-trading/screener/internal/token"
)

const namespace = "screener"

// Metrics holds the screener's Prometheus collectors. Each instance owns its
// registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram
	candidates    prometheus.Counter
	malformed     prometheus.Counter
	rejections    *prometheus.CounterVec
	statuses      *prometheus.CounterVec
	patterns      *prometheus.CounterVec
	trades        *prometheus.CounterVec
	blacklistSize *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed polling cycles.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one polling cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Candidates evaluated by the pipeline.",
		}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_pairs_total",
			Help:      "Market-data pairs skipped because they could not be normalized.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Candidates rejected, by pipeline stage.",
		}, []string{"stage"}),
		statuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Classified candidates, by status.",
		}, []string{"status"}),
		patterns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patterns_total",
			Help:      "Recorded pattern events, by type.",
		}, []string{"pattern_type"}),
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trade dispatches, by result.",
		}, []string{"result"}),
		blacklistSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "blacklist_entries",
			Help:      "Blacklist size, by list.",
		}, []string{"list"}),
	}

	reg.MustRegister(
		m.cycles, m.cycleDuration, m.candidates, m.malformed,
		m.rejections, m.statuses, m.patterns, m.trades, m.blacklistSize,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveCycle records one finished cycle.
func (m *Metrics) ObserveCycle(d time.Duration, candidates, malformed int) {
	m.cycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
	m.candidates.Add(float64(candidates))
	m.malformed.Add(float64(malformed))
}

func (m *Metrics) Rejected(stage string) {
	m.rejections.WithLabelValues(stage).Inc()
}

func (m *Metrics) Classified(s token.Status) {
	m.statuses.WithLabelValues(string(s)).Inc()
}

func (m *Metrics) Trade(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.trades.WithLabelValues(result).Inc()
}

func (m *Metrics) SetBlacklistSize(coins, devs int) {
	m.blacklistSize.WithLabelValues("coins").Set(float64(coins))
	m.blacklistSize.WithLabelValues("devs").Set(float64(devs))
}

// Publish counts a recorded pattern. Implements audit.Sink.
func (m *Metrics) Publish(_ context.Context, e token.PatternEvent) error {
	m.patterns.WithLabelValues(string(e.PatternType)).Inc()
	return nil
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
