package handler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aidin1998/feedhandler/internal/book"
	"github.com/Aidin1998/feedhandler/internal/bridge"
	"github.com/Aidin1998/feedhandler/internal/config"
	"github.com/Aidin1998/feedhandler/internal/envelope"
	"github.com/Aidin1998/feedhandler/internal/md"
	"github.com/Aidin1998/feedhandler/internal/protocol/itch"
	"github.com/Aidin1998/feedhandler/internal/transport"
	"github.com/Aidin1998/feedhandler/pkg/metrics"
)

// Itch is the per-order pipeline: framed per-order messages in, book
// maintenance by order ref, tick or conflated envelopes out.
type Itch struct {
	cfg        *config.Config
	logger     *zap.Logger
	instanceID string

	receiver transport.Receiver
	sender   transport.Sender
	mirror   *bridge.Mirror

	books   *book.Manager
	decoder *itch.Decoder

	tick     bool
	sequence uint64
	stats    Stats

	lastPublish time.Time
	lastStats   time.Time
	lastSent    time.Time

	sendBuf []byte
}

// NewItch wires the pipeline. mirror may be nil.
func NewItch(cfg *config.Config, logger *zap.Logger, receiver transport.Receiver, sender transport.Sender, mirror *bridge.Mirror) *Itch {
	h := &Itch{
		cfg:        cfg,
		logger:     logger,
		instanceID: uuid.New().String(),
		receiver:   receiver,
		sender:     sender,
		mirror:     mirror,
		books:      book.NewManager(cfg.BookDepth, cfg.BookMaxOrders),
		tick:       cfg.Mode == config.ModeTick,
		sendBuf:    make([]byte, 0, 2048),
	}
	h.decoder = itch.NewDecoder(h)
	return h
}

// Books exposes the registry for tests and the stats logger.
func (h *Itch) Books() *book.Manager { return h.books }

// Stats returns a copy of the counters.
func (h *Itch) Stats() Stats { return h.stats }

// Run blocks until ctx is cancelled. The loop polls the inbound group,
// applies each datagram in full, then makes its publish decisions.
func (h *Itch) Run(ctx context.Context) error {
	h.logger.Info("feed handler started",
		zap.String("instance_id", h.instanceID),
		zap.String("mode", h.cfg.Mode),
		zap.String("input", h.cfg.InputGroup),
		zap.String("output", h.cfg.OutputGroup),
		zap.Int("conflation_interval_ms", h.cfg.ConflationIntervalMs),
	)

	buf := make([]byte, h.cfg.InputBuffer)
	timeout := pollTimeout(h.cfg)
	now := time.Now()
	h.lastPublish = now
	h.lastStats = now
	h.lastSent = now

	for {
		if ctx.Err() != nil {
			h.logStats()
			h.logger.Info("feed handler stopped")
			return nil
		}

		n, err := h.receiver.ReadPacket(buf, timeout)
		switch {
		case err == nil && n > 0:
			h.ProcessDatagram(buf[:n])
		case errors.Is(err, transport.ErrTimeout):
			// idle tick
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			h.stats.Errors++
			h.logger.Warn("receive failed", zap.Error(err))
		}

		now = time.Now()
		if !h.tick && now.Sub(h.lastPublish) >= time.Duration(h.cfg.ConflationIntervalMs)*time.Millisecond {
			h.PublishConflated(now)
			h.lastPublish = now
		}
		if now.Sub(h.lastSent) >= heartbeatInterval {
			h.publishHeartbeat(now)
		}
		if now.Sub(h.lastStats) >= time.Duration(h.cfg.StatsIntervalSec)*time.Second {
			h.logStats()
			h.lastStats = now
		}
	}
}

// ProcessDatagram applies one inbound datagram in arrival order.
func (h *Itch) ProcessDatagram(datagram []byte) {
	h.stats.MessagesReceived++
	h.stats.BytesReceived += uint64(len(datagram))
	metrics.MessagesReceived.WithLabelValues("itch").Inc()
	metrics.BytesReceived.WithLabelValues("itch").Add(float64(len(datagram)))

	errsBefore := h.decoder.Errors
	h.decoder.Decode(datagram)
	if h.decoder.Errors != errsBefore {
		h.stats.Errors++
		metrics.DecodeErrors.WithLabelValues("itch").Inc()
	}
}

// PublishConflated emits one snapshot per dirty book.
func (h *Itch) PublishConflated(now time.Time) {
	ts := uint64(now.UnixNano())
	for _, symbol := range h.books.DrainDirty() {
		snap := h.books.Book(symbol).Snapshot(ts, h.nextSeq())
		h.send(envelope.AppendSnapshot(h.sendBuf[:0], &snap), symbol, "snapshot")
	}
	metrics.BooksTracked.WithLabelValues("itch").Set(float64(h.books.Len()))
}

func (h *Itch) publishHeartbeat(now time.Time) {
	h.send(envelope.AppendHeartbeat(h.sendBuf[:0], uint64(now.UnixNano())), "", "heartbeat")
}

func (h *Itch) nextSeq() uint64 {
	h.sequence++
	return h.sequence
}

func (h *Itch) send(b []byte, key, kind string) {
	if err := h.sender.Send(b); err != nil {
		h.stats.Errors++
		h.logger.Warn("send failed", zap.String("type", kind), zap.Error(err))
		return
	}
	h.stats.MessagesSent++
	h.stats.BytesSent += uint64(len(b))
	h.lastSent = time.Now()
	metrics.MessagesSent.WithLabelValues("itch", kind).Inc()
	metrics.BytesSent.WithLabelValues("itch").Add(float64(len(b)))
	if h.mirror != nil {
		h.mirror.Publish(key, b)
	}
}

func (h *Itch) logStats() {
	h.logger.Info("feed handler stats", h.stats.fields()...)
}

// itch.Listener implementation. Every callback runs on the pipeline
// goroutine, between ReadPacket and the publish decision.

func (h *Itch) OnSystemEvent(m itch.SystemEvent) {
	h.logger.Debug("system event", zap.String("code", string(m.EventCode)))
}

func (h *Itch) OnStockDirectory(m itch.StockDirectory) {
	// Pre-create the book so the first add lands on a known symbol.
	h.books.Book(m.Stock.String())
}

func (h *Itch) OnAddOrder(m itch.AddOrder) {
	symbol := m.Stock.String()
	ob := h.books.Book(symbol)

	var before md.Quote
	if h.tick {
		before = ob.BBO(0, 0)
	}

	evictedRef, evicted := ob.Add(m.OrderRef, m.Side, m.Price, m.Shares)
	if evicted {
		h.books.Unindex(evictedRef)
	}
	h.books.Index(m.OrderRef, symbol)
	h.stats.AddOrders++

	if h.tick {
		h.quoteIfChanged(ob, before, m.Timestamp)
	}
}

func (h *Itch) OnOrderExecuted(m itch.OrderExecuted) {
	h.stats.Executions++
	ob, ok := h.books.Lookup(m.OrderRef)
	if !ok {
		return
	}
	var execPrice uint32
	if m.HasPrice {
		execPrice = m.ExecutionPrice
	}
	exec, ok := ob.Execute(m.OrderRef, m.ExecutedShares, execPrice)
	if !ok {
		return
	}
	if exec.Removed {
		h.books.Unindex(m.OrderRef)
	}

	if h.tick {
		tick := md.TradeTick{
			Symbol:      md.MakeSymbol(ob.Symbol()),
			Timestamp:   m.Timestamp,
			Sequence:    h.nextSeq(),
			Price:       exec.Price,
			Quantity:    exec.Quantity,
			Side:        byte(exec.Aggressor),
			MatchNumber: m.MatchNumber,
		}
		h.send(envelope.AppendTrade(h.sendBuf[:0], &tick), ob.Symbol(), "trade")
	}
}

func (h *Itch) OnOrderCancel(m itch.OrderCancel) {
	h.stats.DeleteOrders++
	ob, ok := h.books.Lookup(m.OrderRef)
	if !ok {
		return
	}
	if _, removed := ob.Cancel(m.OrderRef, m.CancelledShares); removed {
		h.books.Unindex(m.OrderRef)
	}
}

func (h *Itch) OnOrderDelete(m itch.OrderDelete) {
	h.stats.DeleteOrders++
	ob, ok := h.books.Lookup(m.OrderRef)
	if !ok {
		return
	}
	ob.Delete(m.OrderRef)
	h.books.Unindex(m.OrderRef)
}

func (h *Itch) OnOrderReplace(m itch.OrderReplace) {
	ob, ok := h.books.Lookup(m.OriginalRef)
	if !ok {
		return
	}

	var before md.Quote
	if h.tick {
		before = ob.BBO(0, 0)
	}

	if ob.Replace(m.OriginalRef, m.NewRef, m.Price, m.Shares) {
		h.books.Reindex(m.OriginalRef, m.NewRef)
	}

	if h.tick {
		h.quoteIfChanged(ob, before, m.Timestamp)
	}
}

func (h *Itch) OnTrade(m itch.Trade) {
	h.stats.Trades++
	symbol := m.Stock.String()
	h.books.Book(symbol).RecordTrade(m.Price, m.Shares)

	if h.tick {
		tick := md.TradeTick{
			Symbol:      md.Symbol(m.Stock),
			Timestamp:   m.Timestamp,
			Sequence:    h.nextSeq(),
			Price:       m.Price,
			Quantity:    m.Shares,
			Side:        byte(m.Side),
			MatchNumber: m.MatchNumber,
		}
		h.send(envelope.AppendTrade(h.sendBuf[:0], &tick), symbol, "trade")
	}
}

func (h *Itch) OnCrossTrade(m itch.CrossTrade) {
	h.stats.Trades++
	qty := m.Shares
	if qty > 0xFFFFFFFF {
		qty = 0xFFFFFFFF
	}
	h.books.Book(m.Stock.String()).RecordTrade(m.CrossPrice, uint32(qty))
}

// quoteIfChanged emits a BBO envelope when the top of book moved.
func (h *Itch) quoteIfChanged(ob *book.OrderBook, before md.Quote, ts uint64) {
	after := ob.BBO(ts, 0)
	if after.BidPrice == before.BidPrice && after.BidQty == before.BidQty &&
		after.AskPrice == before.AskPrice && after.AskQty == before.AskQty {
		return
	}
	after.Sequence = h.nextSeq()
	h.send(envelope.AppendQuote(h.sendBuf[:0], &after), ob.Symbol(), "quote")
}
