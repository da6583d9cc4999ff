package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "deepwell"

// Metrics are the gateway's prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	queueDepth     prometheus.Gauge
	ownerState     prometheus.Gauge
	commands       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	droppedReplies prometheus.Counter
}

// NewMetrics creates the gateway collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "queue_depth",
			Help:      "Commands waiting for the core owner.",
		}),
		ownerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "owner_state",
			Help:      "Core owner state: 0 running, 1 draining, 2 stopped.",
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "commands_total",
			Help:      "Commands handled by the core owner, by command and outcome.",
		}, []string{"command", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "command_duration_seconds",
			Help:      "Time from enqueue to reply.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		droppedReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "replies_dropped_total",
			Help:      "Replies whose caller had stopped waiting.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.queueDepth, m.ownerState, m.commands, m.duration, m.droppedReplies)
	}
	return m
}

func (m *Metrics) enqueued() {
	if m == nil {
		return
	}
	m.queueDepth.Inc()
}

func (m *Metrics) dequeued() {
	if m == nil {
		return
	}
	m.queueDepth.Dec()
}

func (m *Metrics) state(s State) {
	if m == nil {
		return
	}
	m.ownerState.Set(float64(s))
}

func (m *Metrics) handled(kind, outcome string, enqueued time.Time, delivered bool) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(kind, outcome).Inc()
	if !enqueued.IsZero() {
		m.duration.WithLabelValues(kind).Observe(time.Since(enqueued).Seconds())
	}
	if !delivered {
		m.droppedReplies.Inc()
	}
}
