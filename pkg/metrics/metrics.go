package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MessagesReceived counts inbound datagrams by pipeline (itch/mdp)
var MessagesReceived = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feedhandler_messages_received_total",
		Help: "Total number of inbound datagrams processed",
	},
	[]string{"pipeline"},
)

// MessagesSent counts outbound envelopes by pipeline and type
var MessagesSent = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feedhandler_messages_sent_total",
		Help: "Total number of outbound envelopes published",
	},
	[]string{"pipeline", "type"},
)

// BytesReceived and BytesSent track raw transport volume
var (
	BytesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedhandler_bytes_received_total",
			Help: "Total bytes read from the inbound multicast groups",
		},
		[]string{"pipeline"},
	)

	BytesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feedhandler_bytes_sent_total",
			Help: "Total bytes written to the outbound multicast group",
		},
		[]string{"pipeline"},
	)
)

// DecodeErrors counts datagrams dropped or truncated by the wire decoders
var DecodeErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feedhandler_decode_errors_total",
		Help: "Total decode errors (truncated datagrams, short messages)",
	},
	[]string{"pipeline"},
)

// Recovery metrics for the price-level pipeline
var (
	GapsDetected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feedhandler_gaps_detected_total",
			Help: "Per-security rpt_seq gaps detected",
		},
	)

	RecoveriesCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feedhandler_recoveries_completed_total",
			Help: "Snapshot recoveries completed",
		},
	)

	MessagesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "feedhandler_messages_dropped_total",
			Help: "Incremental entries dropped as stale or during recovery",
		},
	)

	SecuritiesInRecovery = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "feedhandler_securities_in_recovery",
			Help: "Securities currently waiting for a snapshot",
		},
	)
)

// BooksTracked gauges the size of each book registry
var BooksTracked = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "feedhandler_books_tracked",
		Help: "Number of instrument books currently tracked",
	},
	[]string{"pipeline"},
)

func init() {
	prometheus.MustRegister(MessagesReceived, MessagesSent, BytesReceived, BytesSent, DecodeErrors)
	prometheus.MustRegister(GapsDetected, RecoveriesCompleted, MessagesDropped, SecuritiesInRecovery)
	prometheus.MustRegister(BooksTracked)
}
