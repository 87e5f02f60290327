// Package metrics registers the server's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_sessions",
		Help: "Currently connected sessions",
	})

	Broadcasts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_broadcasts",
		Help: "Currently live broadcasts",
	})

	Viewers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signaling_viewers",
		Help: "Viewership edges across all broadcasts",
	})

	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_events_total",
		Help: "Inbound events processed by the coordinator",
	}, []string{"type"})

	RelaysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_relays_total",
		Help: "Negotiation messages relayed, by kind and outcome",
	}, []string{"kind", "outcome"})

	DroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_dropped_total",
		Help: "Events or deliveries dropped, by reason",
	}, []string{"reason"})

	PanicsRecovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signaling_panics_recovered_total",
		Help: "Panics recovered while handling an event",
	})

	MirrorWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "signaling_mirror_writes_total",
		Help: "Redis mirror writes, by outcome",
	}, []string{"outcome"})
)

// Drop reasons.
const (
	ReasonUnknownTarget = "unknown_target"
	ReasonNotMember     = "not_member"
	ReasonSendBuffer    = "send_buffer_full"
	ReasonRateLimited   = "rate_limited"
	ReasonInvalid       = "invalid"
	ReasonMirrorQueue   = "mirror_queue_full"
)
