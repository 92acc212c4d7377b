package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gateway"

// Ingestion outcomes recorded on ingest_total.
const (
	OutcomeAccepted = "accepted"
	OutcomeInvalid  = "invalid"
	OutcomeNotFound = "not_found"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Metrics holds the gateway's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	ingestTotal     *prometheus.CounterVec
	broadcastTotal  *prometheus.CounterVec
	subscribers     prometheus.Gauge
	subscriberDrops *prometheus.CounterVec
	recentEvents    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registerer,
// or with the default registerer when nil. Collectors that are already
// registered are reused.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Ingestion calls by event type and outcome.",
		}, []string{"type", "outcome"}),
		broadcastTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_total",
			Help:      "Live events fanned out to subscribers by event type.",
		}, []string{"type"}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Currently connected stream subscribers.",
		}),
		subscriberDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_drops_total",
			Help:      "Subscribers deregistered by reason.",
		}, []string{"reason"}),
		recentEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recent_events",
			Help:      "Events held in the recent-event buffer.",
		}),
	}

	m.ingestTotal = register(registerer, m.ingestTotal)
	m.broadcastTotal = register(registerer, m.broadcastTotal)
	m.subscribers = register(registerer, m.subscribers)
	m.subscriberDrops = register(registerer, m.subscriberDrops)
	m.recentEvents = register(registerer, m.recentEvents)
	return m
}

func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return collector
}

func (m *Metrics) Ingest(eventType, outcome string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.ingestTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *Metrics) Broadcast(eventType string) {
	if m == nil {
		return
	}
	m.broadcastTotal.WithLabelValues(eventType).Inc()
}

func (m *Metrics) SetSubscribers(count int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(count))
}

func (m *Metrics) SubscriberDropped(reason string) {
	if m == nil {
		return
	}
	m.subscriberDrops.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetRecentEvents(count int) {
	if m == nil {
		return
	}
	m.recentEvents.Set(float64(count))
}
