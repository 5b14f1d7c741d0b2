package monitor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the watcher.
type Metrics struct {
	Registry        *prometheus.Registry
	SamplesTotal    *prometheus.CounterVec
	SampleDuration  prometheus.Histogram
	FetchErrors     *prometheus.CounterVec
	AlarmsFired     prometheus.Counter
	ParseCacheTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	samples := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffwatch_samples_total",
			Help: "Total sampling attempts by outcome.",
		},
		[]string{"outcome"},
	)
	sampleDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "buffwatch_sample_duration_seconds",
			Help:    "Latency of one fetch+parse attempt.",
			Buckets: prometheus.DefBuckets,
		},
	)
	fetchErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffwatch_fetch_errors_total",
			Help: "Total fetch failures by error type.",
		},
		[]string{"error_type"},
	)
	alarmsFired := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "buffwatch_alarms_fired_total",
			Help: "Total alarm activation edges.",
		},
	)
	parseCache := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buffwatch_parse_cache_total",
			Help: "Parse cache lookups by result.",
		},
		[]string{"result"},
	)

	registry.MustRegister(samples, sampleDuration, fetchErrors, alarmsFired, parseCache)

	return &Metrics{
		Registry:        registry,
		SamplesTotal:    samples,
		SampleDuration:  sampleDuration,
		FetchErrors:     fetchErrors,
		AlarmsFired:     alarmsFired,
		ParseCacheTotal: parseCache,
	}
}

// IncSample increments the sample counter for an outcome label.
func (m *Metrics) IncSample(outcome string) {
	if m == nil {
		return
	}
	m.SamplesTotal.WithLabelValues(outcome).Inc()
}

// ObserveSampleDuration records the latency of one sampling attempt.
func (m *Metrics) ObserveSampleDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.SampleDuration.Observe(d.Seconds())
}

// IncFetchError increments the fetch error counter for a type label.
func (m *Metrics) IncFetchError(errorType string) {
	if m == nil {
		return
	}
	m.FetchErrors.WithLabelValues(errorType).Inc()
}

// IncAlarmFired increments the alarm edge counter.
func (m *Metrics) IncAlarmFired() {
	if m == nil {
		return
	}
	m.AlarmsFired.Inc()
}

// IncCacheHit increments the parse cache hit counter.
func (m *Metrics) IncCacheHit() {
	if m == nil {
		return
	}
	m.ParseCacheTotal.WithLabelValues("hit").Inc()
}

// IncCacheMiss increments the parse cache miss counter.
func (m *Metrics) IncCacheMiss() {
	if m == nil {
		return
	}
	m.ParseCacheTotal.WithLabelValues("miss").Inc()
}
