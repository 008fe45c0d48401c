package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aisync",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "aisync",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "path"})

	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "aisync",
		Name:      "connected_clients",
		Help:      "Number of currently connected playback clients.",
	})

	SessionActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "aisync",
		Name:      "session_active",
		Help:      "Whether a media session is currently loaded (0 or 1).",
	})

	PlaybackPositionMs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "aisync",
		Name:      "playback_position_ms",
		Help:      "Current coordinator playback position in milliseconds.",
	})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aisync",
		Name:      "messages_total",
		Help:      "Total inbound client messages by type.",
	}, []string{"type"})

	ProtocolViolationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aisync",
		Name:      "protocol_violations_total",
		Help:      "Total inbound frames rejected as protocol violations.",
	})

	BroadcastsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "aisync",
		Name:      "broadcasts_total",
		Help:      "Total fan-out broadcasts by message type.",
	}, []string{"type"})

	HandshakeEvictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aisync",
		Name:      "handshake_evictions_total",
		Help:      "Total clients evicted for not acknowledging a file handshake.",
	})

	ResyncsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aisync",
		Name:      "resyncs_total",
		Help:      "Total completed resync cycles.",
	})

	ResyncsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "aisync",
		Name:      "resyncs_dropped_total",
		Help:      "Total resync requests dropped because one was already in flight.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ConnectedClients,
		SessionActive,
		PlaybackPositionMs,
		MessagesTotal,
		ProtocolViolationsTotal,
		BroadcastsTotal,
		HandshakeEvictionsTotal,
		ResyncsTotal,
		ResyncsDroppedTotal,
	)
}
