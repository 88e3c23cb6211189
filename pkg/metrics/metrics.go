package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Skip reasons for MessagesSkipped
const (
	ReasonHousekeeping = "housekeeping"
	ReasonMalformed    = "malformed"
	ReasonWriteFailed  = "write_failed"
)

// MessagesReceived counts every frame read from the feed
var MessagesReceived = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "feedrelay_messages_received_total",
		Help: "Total number of messages read from the price feed",
	},
)

// MessagesForwarded counts records appended to the destination stream by trading pair
var MessagesForwarded = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feedrelay_messages_forwarded_total",
		Help: "Total number of messages appended to the destination stream",
	},
	[]string{"product_id"},
)

// MessagesSkipped counts messages that were not forwarded
var MessagesSkipped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feedrelay_messages_skipped_total",
		Help: "Total number of messages not forwarded, by reason",
	},
	[]string{"reason"},
)

var (
	WriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feedrelay_write_failures_total",
			Help: "Total number of failed destination write attempts",
		},
	)

	Reconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feedrelay_reconnects_total",
			Help: "Total number of feed reconnections",
		},
	)

	Sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedrelay_sessions_total",
			Help: "Total number of relay sessions by result",
		},
		[]string{"result"},
	)
)

// SessionDuration records wall-clock session length
var SessionDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "feedrelay_session_duration_seconds",
		Help:    "Wall-clock duration of relay sessions",
		Buckets: []float64{1, 5, 15, 60, 120, 300, 600, 900},
	},
)

// WriteLatency records destination append latency
var WriteLatency = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "feedrelay_write_latency_seconds",
		Help:    "Latency in seconds of destination stream appends",
		Buckets: prometheus.DefBuckets,
	},
)

func init() {
	prometheus.MustRegister(MessagesReceived, MessagesForwarded, MessagesSkipped)
	prometheus.MustRegister(WriteFailures, Reconnects, Sessions)
	prometheus.MustRegister(SessionDuration, WriteLatency)
}
