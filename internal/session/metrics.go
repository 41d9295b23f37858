package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "richcord",
			Name:      "connect_attempts_total",
			Help:      "Discord login attempts by result",
		},
		[]string{"result"},
	)

	reconnectsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "richcord",
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect timers armed after an unexpected disconnect",
		},
	)

	presenceUpdates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "richcord",
			Name:      "presence_updates_total",
			Help:      "Presence updates by result",
		},
		[]string{"result"},
	)

	connectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "richcord",
			Name:      "connection_state",
			Help:      "Current connection state (0 disconnected, 1 connecting, 2 connected)",
		},
	)
)
