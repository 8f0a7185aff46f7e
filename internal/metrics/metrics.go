// ABOUTME: Prometheus collectors for gateway frames, heartbeats, reconnects and deliveries
// ABOUTME: A nil *Metrics is valid and records nothing

package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "coven_discord"

// Metrics holds every collector the gateway client records to.
type Metrics struct {
	framesReceived    *prometheus.CounterVec
	heartbeatsSent    prometheus.Counter
	missedAcks        prometheus.Counter
	reconnects        *prometheus.CounterVec
	deliveries        *prometheus.CounterVec
	deliveryDuration  *prometheus.HistogramVec
	unitsInFlight     prometheus.Gauge
	deadlineMisses    prometheus.Counter
	duplicatesDropped *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "frames_received_total",
				Help:      "Frames received from the gateway socket.",
			},
			[]string{"op"},
		),
		heartbeatsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "heartbeats_sent_total",
			Help:      "Heartbeats written to the socket.",
		}),
		missedAcks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "heartbeat_acks_missed_total",
			Help:      "Heartbeats that were not acknowledged before the next one was due.",
		}),
		reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "gateway",
				Name:      "connects_total",
				Help:      "Socket connections by mode.",
			},
			[]string{"mode"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbound",
				Name:      "deliveries_total",
				Help:      "Outbound instructions delivered, by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		deliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "outbound",
				Name:      "delivery_duration_seconds",
				Help:      "Time spent delivering an outbound instruction.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		unitsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "units_in_flight",
			Help:      "Processing units currently running.",
		}),
		deadlineMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "interaction",
			Name:      "deadline_misses_total",
			Help:      "Interactions answered with a placeholder because the handler was slow.",
		}),
		duplicatesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "duplicates_dropped_total",
				Help:      "Replayed dispatches ignored, by kind.",
			},
			[]string{"kind"},
		),
	}

	reg.MustRegister(
		m.framesReceived,
		m.heartbeatsSent,
		m.missedAcks,
		m.reconnects,
		m.deliveries,
		m.deliveryDuration,
		m.unitsInFlight,
		m.deadlineMisses,
		m.duplicatesDropped,
	)
	return m
}

// FrameReceived counts one inbound frame.
func (m *Metrics) FrameReceived(op string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(strings.ToLower(op)).Inc()
}

// HeartbeatSent counts one heartbeat.
func (m *Metrics) HeartbeatSent() {
	if m == nil {
		return
	}
	m.heartbeatsSent.Inc()
}

// AckMissed counts one unacknowledged heartbeat.
func (m *Metrics) AckMissed() {
	if m == nil {
		return
	}
	m.missedAcks.Inc()
}

// Connected counts one connection; mode is "fresh" or "resume".
func (m *Metrics) Connected(mode string) {
	if m == nil {
		return
	}
	m.reconnects.WithLabelValues(mode).Inc()
}

// Delivered records one outbound delivery.
func (m *Metrics) Delivered(kind string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.deliveries.WithLabelValues(kind, outcome).Inc()
	m.deliveryDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// UnitStarted and UnitFinished track the processing pool.
func (m *Metrics) UnitStarted() {
	if m == nil {
		return
	}
	m.unitsInFlight.Inc()
}

func (m *Metrics) UnitFinished() {
	if m == nil {
		return
	}
	m.unitsInFlight.Dec()
}

// DeadlineMissed counts one placeholder response.
func (m *Metrics) DeadlineMissed() {
	if m == nil {
		return
	}
	m.deadlineMisses.Inc()
}

// DuplicateDropped counts one replayed dispatch.
func (m *Metrics) DuplicateDropped(kind string) {
	if m == nil {
		return
	}
	m.duplicatesDropped.WithLabelValues(kind).Inc()
}
