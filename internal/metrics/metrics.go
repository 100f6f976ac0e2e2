package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transport metrics
	EnvelopesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomcast_envelopes_published_total",
			Help: "Total envelopes published to the broadcast address",
		},
	)

	EnvelopesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomcast_envelopes_received_total",
			Help: "Total envelopes accepted by the receive loop",
		},
	)

	EnvelopesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomcast_envelopes_dropped_total",
			Help: "Total datagrams dropped before routing",
		},
		[]string{"reason"}, // "decode" or "foreign_room"
	)

	// Store metrics
	StoreErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomcast_store_errors_total",
			Help: "Total swallowed message-log write failures",
		},
	)

	// Session metrics
	HistoryReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomcast_history_replayed_total",
			Help: "Total historical rows forwarded at join time",
		},
	)

	ReplayDuplicates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomcast_replay_duplicates_total",
			Help: "Total replay rows collapsed by the dedup key",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomcast_online_users",
			Help: "Users currently known online in the joined group",
		},
	)

	// Status server metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomcast_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomcast_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)
)
