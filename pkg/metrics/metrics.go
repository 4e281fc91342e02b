// Package metrics exposes Prometheus instrumentation for the monitor.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder bundles the service's Prometheus collectors. Collectors are
// registered on the default registry, so Recorder is a process-wide
// singleton; NewRecorder always returns the same instance.
type Recorder struct {
	eventsIngested *prometheus.CounterVec
	eventsRejected prometheus.Counter
	broadcasts     *prometheus.CounterVec
	slowConsumers  prometheus.Counter
	agents         prometheus.Gauge
	subscribers    prometheus.Gauge
	retentionSwept prometheus.Counter
}

var (
	recorder *Recorder
	once     sync.Once
)

// NewRecorder returns the process-wide metrics recorder.
func NewRecorder() *Recorder {
	once.Do(func() {
		recorder = &Recorder{
			eventsIngested: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "watchtower_events_ingested_total",
					Help: "Hook events accepted by the ingestion endpoint, by canonical kind",
				},
				[]string{"kind"},
			),
			eventsRejected: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "watchtower_events_rejected_total",
					Help: "Hook events rejected as malformed",
				},
			),
			broadcasts: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "watchtower_broadcasts_total",
					Help: "Messages published to subscriber topics, by topic scope",
				},
				[]string{"scope"},
			),
			slowConsumers: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "watchtower_slow_consumer_disconnects_total",
					Help: "Subscribers disconnected after overflowing their send queue",
				},
			),
			agents: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "watchtower_agents",
					Help: "Agents currently registered",
				},
			),
			subscribers: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "watchtower_subscribers",
					Help: "WebSocket subscribers currently connected",
				},
			),
			retentionSwept: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "watchtower_retention_deleted_total",
					Help: "Agents deleted by the retention worker",
				},
			),
		}
	})
	return recorder
}

// EventIngested counts an accepted event of the given canonical kind.
func (r *Recorder) EventIngested(kind string) {
	r.eventsIngested.WithLabelValues(kind).Inc()
}

// EventRejected counts a malformed envelope.
func (r *Recorder) EventRejected() {
	r.eventsRejected.Inc()
}

// Broadcast counts a publish to a topic. scope is "agent", "project",
// or "all" — topic names themselves carry unbounded cardinality.
func (r *Recorder) Broadcast(scope string) {
	r.broadcasts.WithLabelValues(scope).Inc()
}

// SlowConsumerDropped counts a drop-and-disconnect.
func (r *Recorder) SlowConsumerDropped() {
	r.slowConsumers.Inc()
}

// SetAgents records the current registry size.
func (r *Recorder) SetAgents(n int) {
	r.agents.Set(float64(n))
}

// SubscriberConnected increments the connected-subscriber gauge.
func (r *Recorder) SubscriberConnected() {
	r.subscribers.Inc()
}

// SubscriberDisconnected decrements the connected-subscriber gauge.
func (r *Recorder) SubscriberDisconnected() {
	r.subscribers.Dec()
}

// RetentionDeleted counts agents removed by a retention sweep.
func (r *Recorder) RetentionDeleted(n int) {
	r.retentionSwept.Add(float64(n))
}
