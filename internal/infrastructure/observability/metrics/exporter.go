package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AtRiskMedia/compliance-core/internal/domain/telemetry"
)

const namespace = "compliance_core"

// Exporter mirrors samples, cache events, flush outcomes and health results
// into Prometheus instruments on its own registry.
type Exporter struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	cacheRemovals   *prometheus.CounterVec
	flushedSamples  prometheus.Counter
	droppedSamples  prometheus.Counter
	healthScore     prometheus.Gauge
	healthChecks    *prometheus.GaugeVec
	activeAlerts    prometheus.Gauge
}

// NewExporter creates the instruments on a fresh registry together with the
// Go runtime and process collectors.
func NewExporter() *Exporter {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Exporter{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Instrumented operations by route, method and status code",
		}, []string{"route", "method", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Instrumented operation latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result",
		}, []string{"result"}),
		cacheRemovals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "removals_total",
			Help:      "Cache entries removed by reason",
		}, []string{"reason"}),
		flushedSamples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metrics",
			Name:      "flushed_samples_total",
			Help:      "Samples written to the durable store",
		}),
		droppedSamples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metrics",
			Name:      "dropped_samples_total",
			Help:      "Samples abandoned after repeated flush failures",
		}),
		healthScore: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "score",
			Help:      "Aggregate health score of the latest run (0-100)",
		}),
		healthChecks: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "check_status",
			Help:      "Latest check status (1 healthy, 0.6 warning, 0 critical)",
		}, []string{"component"}),
		activeAlerts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "active",
			Help:      "Number of active alerts",
		}),
	}
}

// Registry returns the registry served on /metrics.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// RegisterGaugeFunc exposes a value sampled at scrape time.
func (e *Exporter) RegisterGaugeFunc(subsystem, name, help string, fn func() float64) {
	promauto.With(e.registry).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn)
}

func (e *Exporter) ObserveSample(s telemetry.MetricSample) {
	e.requests.WithLabelValues(s.Route, s.Method, strconv.Itoa(s.StatusCode)).Inc()
	e.requestDuration.WithLabelValues(s.Route, s.Method).Observe(s.ResponseTimeMs / 1000)
}

func (e *Exporter) ObserveHit()  { e.cacheLookups.WithLabelValues("hit").Inc() }
func (e *Exporter) ObserveMiss() { e.cacheLookups.WithLabelValues("miss").Inc() }

func (e *Exporter) ObserveRemoval(reason string, count int) {
	e.cacheRemovals.WithLabelValues(reason).Add(float64(count))
}

func (e *Exporter) ObserveFlush(samples int) { e.flushedSamples.Add(float64(samples)) }
func (e *Exporter) ObserveDrop(samples int)  { e.droppedSamples.Add(float64(samples)) }

// SetHealth records the score of a run and the weight of each check status.
func (e *Exporter) SetHealth(score float64, checks map[string]float64) {
	e.healthScore.Set(score)
	for component, value := range checks {
		e.healthChecks.WithLabelValues(component).Set(value)
	}
}

// SetActiveAlerts records the size of the active alert set.
func (e *Exporter) SetActiveAlerts(n int) {
	e.activeAlerts.Set(float64(n))
}
