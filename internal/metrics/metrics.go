// Package metrics exposes Prometheus instrumentation for the relay:
// connection and room population, event throughput, and fan-out delivery
// outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_connections_active",
			Help: "Current number of live WebSocket connections",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_rooms_active",
			Help: "Current number of rooms with at least one member",
		},
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_total",
			Help: "Total inbound events processed, by event name",
		},
		[]string{"event"},
	)

	EventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_dropped_total",
			Help: "Total inbound events dropped without dispatch",
		},
		[]string{"reason"}, // "malformed", "unknown_event"
	)

	BroadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_broadcasts_total",
			Help: "Total room broadcasts performed",
		},
	)

	DeliveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Total per-connection deliveries queued by broadcasts",
		},
	)

	DeliveriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_deliveries_dropped_total",
			Help: "Total deliveries dropped on closing or saturated connections",
		},
	)
)
