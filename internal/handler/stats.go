// Package handler runs the two feed pipelines: ingestion, book
// maintenance, recovery, and the conflated or tick publish loop, all on a
// single goroutine per handler.
package handler

import (
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/feedhandler/internal/config"
)

// Stats are the run-loop counters surfaced on the stats interval. They
// are owned by the pipeline goroutine; reads from other goroutines are
// not supported.
type Stats struct {
	MessagesReceived uint64
	MessagesSent     uint64
	BytesReceived    uint64
	BytesSent        uint64
	AddOrders        uint64
	DeleteOrders     uint64
	Executions       uint64
	Trades           uint64
	Errors           uint64
	PacketGaps       uint64
}

func (s *Stats) fields() []zap.Field {
	return []zap.Field{
		zap.Uint64("messages_received", s.MessagesReceived),
		zap.Uint64("messages_sent", s.MessagesSent),
		zap.Uint64("bytes_received", s.BytesReceived),
		zap.Uint64("bytes_sent", s.BytesSent),
		zap.Uint64("add_orders", s.AddOrders),
		zap.Uint64("delete_orders", s.DeleteOrders),
		zap.Uint64("executions", s.Executions),
		zap.Uint64("trades", s.Trades),
		zap.Uint64("errors", s.Errors),
	}
}

// pollTimeout bounds the receive wait so the conflation timer stays
// responsive: min(conflation interval, 100ms), clamped to at least 1ms.
func pollTimeout(cfg *config.Config) time.Duration {
	t := time.Duration(cfg.ConflationIntervalMs) * time.Millisecond
	if t > 100*time.Millisecond {
		t = 100 * time.Millisecond
	}
	if t < time.Millisecond {
		t = time.Millisecond
	}
	return t
}

// heartbeatInterval is how long the output group may stay silent before
// the publisher emits a liveness envelope.
const heartbeatInterval = time.Second
