// Package bridge mirrors outbound envelopes onto a Kafka topic for
// downstream consumers that cannot join the multicast group. The mirror
// sits off the data path: envelopes are queued on a bounded channel and
// dropped when the queue is full.
package bridge

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Writer is the subset of *kafka.Writer the mirror needs; tests provide
// a fake.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Mirror publishes envelope bytes keyed by instrument.
type Mirror struct {
	logger *zap.Logger
	writer Writer
	queue  chan kafka.Message

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	dropped uint64
	mu      sync.Mutex
}

// queueDepth bounds in-flight envelopes awaiting the broker.
const queueDepth = 1024

// New creates a mirror over an existing writer and starts its drain
// goroutine.
func New(logger *zap.Logger, writer Writer) *Mirror {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mirror{
		logger: logger,
		writer: writer,
		queue:  make(chan kafka.Message, queueDepth),
		cancel: cancel,
	}
	m.wg.Add(1)
	go m.drain(ctx)
	return m
}

// NewWithBrokers builds the kafka writer for the given brokers and topic.
func NewWithBrokers(logger *zap.Logger, brokers []string, topic string) *Mirror {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
	return New(logger, w)
}

// Publish enqueues one envelope. It never blocks; when the queue is full
// the envelope is dropped and counted.
func (m *Mirror) Publish(key string, envelope []byte) {
	payload := make([]byte, len(envelope))
	copy(payload, envelope)

	select {
	case m.queue <- kafka.Message{Key: []byte(key), Value: payload}:
	default:
		m.mu.Lock()
		m.dropped++
		m.mu.Unlock()
	}
}

// Dropped reports envelopes discarded because the queue was full.
func (m *Mirror) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

func (m *Mirror) drain(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-m.queue:
			if err := m.writer.WriteMessages(ctx, msg); err != nil && ctx.Err() == nil {
				m.logger.Warn("kafka mirror publish failed", zap.Error(err))
			}
		}
	}
}

// Close stops the drain goroutine and closes the writer.
func (m *Mirror) Close() error {
	m.cancel()
	m.wg.Wait()
	return m.writer.Close()
}
