// Package metrics exposes scriptyard's Prometheus collectors: run outcomes,
// queue depth, and scheduler fires, wired into internal/engine,
// internal/queue, and internal/scheduler at construction time rather than
// through package-level globals, so tests can use their own registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector scriptyard's core subsystems report to.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	QueueDepth      prometheus.GaugeFunc
	QueueRejected   prometheus.Counter
	SchedulerFires  *prometheus.CounterVec
	TriggerOverruns prometheus.Counter
	Subscribers     prometheus.GaugeFunc
}

// New registers and returns a Metrics bundle against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the default
// registry; cmd/bootstrap.go passes prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scriptyard",
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Total script runs finalized, by terminal status.",
		}, []string{"status"}),
		RunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scriptyard",
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Script run wall-clock duration from PREPARING to TERMINAL.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"status"}),
		QueueRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scriptyard",
			Subsystem: "queue",
			Name:      "rejected_total",
			Help:      "RunRequests rejected because the queue was full.",
		}),
		SchedulerFires: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scriptyard",
			Subsystem: "scheduler",
			Name:      "fires_total",
			Help:      "Trigger firings, by trigger kind.",
		}, []string{"kind"}),
		TriggerOverruns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scriptyard",
			Subsystem: "scheduler",
			Name:      "trigger_overruns_total",
			Help:      "Trigger firings dropped because the run queue was full.",
		}),
	}
}

// SetSubscribers wires a gauge reporting the Live-Event Fan-out's current
// subscriber count. Called once after the fanout.Bus exists, since the
// GaugeFunc needs a closure over it.
func (m *Metrics) SetSubscribers(reg prometheus.Registerer, count func() int) {
	m.Subscribers = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "scriptyard",
		Subsystem: "fanout",
		Name:      "subscribers",
		Help:      "Current number of live websocket subscriptions.",
	}, func() float64 { return float64(count()) })
}

// SetQueueDepth wires a gauge reporting the Run Queue's current depth.
// Called once after the queue.Queue exists, since the GaugeFunc needs a
// closure over its Depth method.
func (m *Metrics) SetQueueDepth(reg prometheus.Registerer, depth func() int) {
	m.QueueDepth = promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "scriptyard",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Current number of RunRequests buffered in the run queue.",
	}, func() float64 { return float64(depth()) })
}
