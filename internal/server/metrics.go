package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codedeck",
		Subsystem: "server",
		Name:      "session_loads_total",
		Help:      "Total session load requests, by engine.",
	}, []string{"engine"})

	sessionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codedeck",
		Subsystem: "server",
		Name:      "sessions_open",
		Help:      "Number of currently open sessions.",
	})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "codedeck",
		Subsystem: "server",
		Name:      "ws_connections_active",
		Help:      "Number of active WebSocket connections.",
	})
)
