package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "scriptbridge"

// Outcome labels recorded for evaluations.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Collector owns the evaluation metrics and the registry they are exposed
// from. A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	evaluations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	deoptimized *prometheus.CounterVec
	symbols     prometheus.Gauge
}

// NewCollector registers the evaluation metrics on registry, or on a fresh
// registry with the Go and process collectors when registry is nil.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Script evaluations by configuration and outcome.",
		}, []string{"config", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_duration_seconds",
			Help:      "Wall time of script evaluations.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"config"}),
		deoptimized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deoptimized_total",
			Help:      "Evaluations run at the interpreted level because of oversized input.",
		}, []string{"config"}),
		symbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "symbols",
			Help:      "Number of symbols currently bound.",
		}),
	}

	registry.MustRegister(c.evaluations, c.duration, c.deoptimized, c.symbols)
	return c
}

// RecordEvaluation records one finished evaluation.
func (c *Collector) RecordEvaluation(config, outcome string, interpreted bool, d time.Duration) {
	if c == nil {
		return
	}
	c.evaluations.WithLabelValues(config, outcome).Inc()
	c.duration.WithLabelValues(config).Observe(d.Seconds())
	if interpreted {
		c.deoptimized.WithLabelValues(config).Inc()
	}
}

func (c *Collector) SetSymbols(n int) {
	if c == nil {
		return
	}
	c.symbols.Set(float64(n))
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler exposes the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
