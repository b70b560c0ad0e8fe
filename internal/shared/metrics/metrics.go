package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeLabel = "outcome"
	reasonLabel  = "reason"
	eventLabel   = "event"
)

// Metrics groups the collectors of the bidding core. Each instance owns its registry so
// tests can build as many as they need.
type Metrics struct {
	Registry *prometheus.Registry

	adjudications      *prometheus.CounterVec
	admissionRejected  *prometheus.CounterVec
	admissionWait      prometheus.Histogram
	commitFailures     prometheus.Counter
	eventsDelivered    *prometheus.CounterVec
	subscribers        prometheus.Gauge
	subscribersDropped prometheus.Counter
	timerFires         prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		adjudications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "adjudications_total",
			Help:      "Bid adjudications by outcome.",
		}, []string{outcomeLabel}),
		admissionRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "admission_rejected_total",
			Help:      "Bids refused by the admission gateway before adjudication.",
		}, []string{reasonLabel}),
		admissionWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "auction",
			Name:      "admission_wait_seconds",
			Help:      "Time spent waiting for the per-auction critical section.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}),
		commitFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "commit_failures_total",
			Help:      "Adjudications or transitions aborted by a storage failure.",
		}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "events_delivered_total",
			Help:      "Events handed to the broadcaster, by type.",
		}, []string{eventLabel}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "auction",
			Name:      "subscribers",
			Help:      "Open event subscriptions.",
		}),
		subscribersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "subscribers_dropped_total",
			Help:      "Subscriptions closed because the consumer fell behind.",
		}),
		timerFires: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "auction",
			Name:      "timer_fires_total",
			Help:      "Clock-driven transition checks executed.",
		}),
	}

	m.Registry.MustRegister(
		m.adjudications,
		m.admissionRejected,
		m.admissionWait,
		m.commitFailures,
		m.eventsDelivered,
		m.subscribers,
		m.subscribersDropped,
		m.timerFires,
	)
	return m
}

func (m *Metrics) RecordAdjudication(outcome string) {
	m.adjudications.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func (m *Metrics) RecordAdmissionRejected(reason string) {
	m.admissionRejected.With(prometheus.Labels{reasonLabel: reason}).Inc()
}

func (m *Metrics) RecordAdmissionWait(d time.Duration) {
	m.admissionWait.Observe(d.Seconds())
}

func (m *Metrics) RecordCommitFailure() {
	m.commitFailures.Inc()
}

func (m *Metrics) RecordEvent(eventType string) {
	m.eventsDelivered.With(prometheus.Labels{eventLabel: eventType}).Inc()
}

func (m *Metrics) SubscriberOpened() { m.subscribers.Inc() }

func (m *Metrics) SubscriberClosed(dropped bool) {
	m.subscribers.Dec()
	if dropped {
		m.subscribersDropped.Inc()
	}
}

func (m *Metrics) RecordTimerFire() {
	m.timerFires.Inc()
}
