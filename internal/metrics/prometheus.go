// Package metrics exposes a Prometheus registry for scraping by external
// monitoring systems (Grafana, Alertmanager, etc.). Every series here
// names something about the task-monad runtime itself — spark lifecycle,
// the FISH/SCHEDULE stealing protocol, task throughput, IVar blocking,
// quiescence detection, and the static closure registry — not the
// applications running on top of it.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default histogram buckets for dispatch latency, in milliseconds.
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// PrometheusMetrics wraps the collectors for one node's runtime metrics.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	sparksCreatedTotal    *prometheus.CounterVec
	sparksConvertedTotal  *prometheus.CounterVec
	fishesSentTotal       prometheus.Counter
	fishesNoWorkTotal     prometheus.Counter
	stealsTotal           prometheus.Counter
	tasksCompletedTotal   prometheus.Counter
	quiescenceRoundsTotal prometheus.Counter
	registryLookupsTotal  *prometheus.CounterVec

	ivarsBlocked   prometheus.Gauge
	sparkPoolDepth prometheus.Gauge
	activeWorkers  prometheus.Gauge

	dispatchLatency *prometheus.HistogramVec

	uptime prometheus.GaugeFunc
}

var (
	promMetrics *PrometheusMetrics
	startTime   = time.Now()
)

// InitPrometheus initializes the Prometheus metrics subsystem under
// namespace (e.g. "parsec"). buckets overrides the dispatch-latency
// histogram's bucket boundaries; pass nil for the default set.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		sparksCreatedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sparks_created_total",
				Help:      "Total sparks pushed onto a node's spark pool, by closure label",
			},
			[]string{"label"},
		),

		sparksConvertedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sparks_converted_total",
				Help:      "Total sparks promoted to a running task by the local worker pool, by closure label",
			},
			[]string{"label"},
		),

		fishesSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fishes_sent_total",
				Help:      "Total FISH messages sent to a victim node",
			},
		),

		fishesNoWorkTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fishes_nowork_total",
				Help:      "Total FISH round trips answered with NOWORK",
			},
		),

		stealsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steals_total",
				Help:      "Total sparks successfully stolen from a remote node via FISH/SCHEDULE",
			},
		),

		tasksCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_completed_total",
				Help:      "Total tasks run to completion by this node's worker pool",
			},
		),

		quiescenceRoundsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quiescence_rounds_total",
				Help:      "Total QUIESCE polling rounds this node has answered",
			},
		),

		registryLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registry_lookups_total",
				Help:      "Total closure registry lookups, by result",
			},
			[]string{"result"}, // hit, miss
		),

		ivarsBlocked: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ivars_blocked",
				Help:      "Number of goroutines currently blocked in IVar.Get awaiting resolution",
			},
		),

		sparkPoolDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "spark_pool_depth",
				Help:      "Current depth of this node's local spark pool",
			},
		),

		activeWorkers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_workers",
				Help:      "Number of worker goroutines currently running a task",
			},
		),

		dispatchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_latency_milliseconds",
				Help:      "Round-trip latency of a remote dispatch, by message kind",
				Buckets:   buckets,
			},
			[]string{"kind"}, // fish, execute, rput
		),
	}

	pm.uptime = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Time since this node's metrics subsystem was initialized",
		},
		func() float64 {
			return time.Since(startTime).Seconds()
		},
	)

	registry.MustRegister(
		pm.sparksCreatedTotal,
		pm.sparksConvertedTotal,
		pm.fishesSentTotal,
		pm.fishesNoWorkTotal,
		pm.stealsTotal,
		pm.tasksCompletedTotal,
		pm.quiescenceRoundsTotal,
		pm.registryLookupsTotal,
		pm.ivarsBlocked,
		pm.sparkPoolDepth,
		pm.activeWorkers,
		pm.dispatchLatency,
		pm.uptime,
	)

	promMetrics = pm
}

// RecordSparkCreated records a spark entering the spark pool under label.
func RecordSparkCreated(label string) {
	if promMetrics == nil {
		return
	}
	promMetrics.sparksCreatedTotal.WithLabelValues(label).Inc()
}

// RecordSparkConverted records a spark being promoted to a running task.
func RecordSparkConverted(label string) {
	if promMetrics == nil {
		return
	}
	promMetrics.sparksConvertedTotal.WithLabelValues(label).Inc()
}

// RecordFishSent records an outgoing FISH message.
func RecordFishSent() {
	if promMetrics == nil {
		return
	}
	promMetrics.fishesSentTotal.Inc()
}

// RecordFishNoWork records a FISH answered with NOWORK.
func RecordFishNoWork() {
	if promMetrics == nil {
		return
	}
	promMetrics.fishesNoWorkTotal.Inc()
}

// RecordSteal records a spark successfully stolen via FISH/SCHEDULE.
func RecordSteal() {
	if promMetrics == nil {
		return
	}
	promMetrics.stealsTotal.Inc()
}

// RecordTaskCompleted records one task running to completion.
func RecordTaskCompleted() {
	if promMetrics == nil {
		return
	}
	promMetrics.tasksCompletedTotal.Inc()
}

// RecordQuiescenceRound records this node answering one QUIESCE poll.
func RecordQuiescenceRound() {
	if promMetrics == nil {
		return
	}
	promMetrics.quiescenceRoundsTotal.Inc()
}

// RecordRegistryLookup records a closure registry lookup, hit or miss.
func RecordRegistryLookup(hit bool) {
	if promMetrics == nil {
		return
	}
	result := "hit"
	if !hit {
		result = "miss"
	}
	promMetrics.registryLookupsTotal.WithLabelValues(result).Inc()
}

// IncIVarsBlocked increments the count of goroutines blocked in IVar.Get.
func IncIVarsBlocked() {
	if promMetrics == nil {
		return
	}
	promMetrics.ivarsBlocked.Inc()
}

// DecIVarsBlocked decrements the count of goroutines blocked in IVar.Get.
func DecIVarsBlocked() {
	if promMetrics == nil {
		return
	}
	promMetrics.ivarsBlocked.Dec()
}

// SetSparkPoolDepth sets this node's current spark pool depth gauge.
func SetSparkPoolDepth(depth int) {
	if promMetrics == nil {
		return
	}
	promMetrics.sparkPoolDepth.Set(float64(depth))
}

// SetActiveWorkers sets the count of workers currently running a task.
func SetActiveWorkers(n int) {
	if promMetrics == nil {
		return
	}
	promMetrics.activeWorkers.Set(float64(n))
}

// RecordDispatchLatency records a remote dispatch's round-trip latency,
// by message kind ("fish", "execute", "rput").
func RecordDispatchLatency(kind string, durationMs float64) {
	if promMetrics == nil {
		return
	}
	promMetrics.dispatchLatency.WithLabelValues(kind).Observe(durationMs)
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the registry, for wiring custom collectors.
func PrometheusRegistry() *prometheus.Registry {
	if promMetrics == nil {
		return nil
	}
	return promMetrics.registry
}
