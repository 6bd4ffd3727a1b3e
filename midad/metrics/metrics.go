package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IntegrityViolations counts workspace records whose stored owner did not
	// match the requesting owner. Any increase warrants investigation.
	IntegrityViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "midad",
		Name:      "userdata_integrity_violations_total",
		Help:      "Workspace records rejected because the stored owner id did not match the requested owner.",
	}, []string{"category"})

	FeedEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "midad",
		Name:      "realtime_events_published_total",
		Help:      "Change events published to the realtime feed.",
	}, []string{"kind"})

	FeedSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "midad",
		Name:      "realtime_subscriptions_active",
		Help:      "Currently active realtime feed subscriptions.",
	})

	AssistantRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "midad",
		Name:      "assistant_requests_total",
		Help:      "Writing assistant generation requests by outcome.",
	}, []string{"action", "outcome"})

	SessionRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "midad",
		Name:      "session_record_repairs_total",
		Help:      "User records created lazily for sessions whose internal record was missing.",
	})
)
