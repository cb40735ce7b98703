// Package sim generates synthetic feeds for both inbound dialects. The
// generators are deterministic given a seed, which the tests rely on.
package sim

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/feedhandler/internal/protocol/itch"
	"github.com/Aidin1998/feedhandler/internal/transport"
)

// ItchConfig shapes the per-order generator.
type ItchConfig struct {
	Symbols           []string
	MessagesPerSecond int
	MinPrice          uint32 // 4 implied decimals
	MaxPrice          uint32
	PriceTick         uint32
	MinQty            uint32
	MaxQty            uint32
	QtyRound          uint32
	Seed              int64
}

// DefaultItchConfig mirrors a small-cap equity session.
func DefaultItchConfig() ItchConfig {
	return ItchConfig{
		Symbols:           []string{"AAPL", "MSFT", "GOOG", "AMZN"},
		MessagesPerSecond: 1000,
		MinPrice:          500000,   // $50.0000
		MaxPrice:          5000000,  // $500.0000
		PriceTick:         100,      // $0.0100
		MinQty:            100,
		MaxQty:            5000,
		QtyRound:          100,
	}
}

type activeOrder struct {
	ref       uint64
	symbol    string
	price     uint32
	remaining uint32
	side      itch.Side
}

// maxActiveOrders caps the generator's resting-order table.
const maxActiveOrders = 10000

// ItchSimulator emits a random-walk mix of adds, executes, deletes, and
// trades: roughly 60/20/15/5.
type ItchSimulator struct {
	cfg    ItchConfig
	logger *zap.Logger
	sender transport.Sender
	rng    *rand.Rand

	nextRef uint64
	active  []activeOrder
	sent    uint64
}

func NewItchSimulator(cfg ItchConfig, logger *zap.Logger, sender transport.Sender) *ItchSimulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &ItchSimulator{
		cfg:     cfg,
		logger:  logger,
		sender:  sender,
		rng:     rand.New(rand.NewSource(seed)),
		nextRef: 1,
	}
}

// Sent reports messages emitted so far.
func (s *ItchSimulator) Sent() uint64 { return s.sent }

// Run emits messages at the configured rate until ctx is cancelled.
func (s *ItchSimulator) Run(ctx context.Context) error {
	s.logger.Info("itch simulator started",
		zap.Strings("symbols", s.cfg.Symbols),
		zap.Int("rate", s.cfg.MessagesPerSecond),
	)

	interval := time.Second / time.Duration(s.cfg.MessagesPerSecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("itch simulator stopped", zap.Uint64("messages_sent", s.sent))
			return nil
		case <-ticker.C:
			s.Step()
		}
	}
}

// Step emits one message.
func (s *ItchSimulator) Step() {
	action := s.rng.Intn(100)
	switch {
	case action < 60:
		s.sendAdd()
	case action < 80 && len(s.active) > 0:
		s.sendExecute()
	case action < 95 && len(s.active) > 0:
		s.sendDelete()
	default:
		s.sendTrade()
	}
}

func (s *ItchSimulator) sendAdd() {
	symbol := s.cfg.Symbols[s.rng.Intn(len(s.cfg.Symbols))]
	side := itch.SideBuy
	if s.rng.Intn(2) == 1 {
		side = itch.SideSell
	}
	price := s.roundPrice(s.cfg.MinPrice + uint32(s.rng.Int63n(int64(s.cfg.MaxPrice-s.cfg.MinPrice))))
	qty := s.roundQty(s.cfg.MinQty + uint32(s.rng.Int63n(int64(s.cfg.MaxQty-s.cfg.MinQty))))

	msg := itch.AddOrder{
		Timestamp: s.now(),
		OrderRef:  s.nextRef,
		Side:      side,
		Shares:    qty,
		Stock:     itch.MakeSymbol(symbol),
		Price:     price,
	}

	s.active = append(s.active, activeOrder{ref: s.nextRef, symbol: symbol, price: price, remaining: qty, side: side})
	if len(s.active) > maxActiveOrders {
		s.active = s.active[1:]
	}
	s.nextRef++

	s.emit(itch.AppendAddOrder(nil, msg))
}

func (s *ItchSimulator) sendDelete() {
	idx := s.rng.Intn(len(s.active))
	ref := s.active[idx].ref
	s.active = append(s.active[:idx], s.active[idx+1:]...)

	s.emit(itch.AppendOrderDelete(nil, itch.OrderDelete{Timestamp: s.now(), OrderRef: ref}))
}

func (s *ItchSimulator) sendExecute() {
	idx := s.rng.Intn(len(s.active))
	o := &s.active[idx]

	execQty := s.roundQty(1 + uint32(s.rng.Int63n(int64(o.remaining))))
	if execQty == 0 || execQty > o.remaining {
		execQty = o.remaining
	}

	msg := itch.OrderExecuted{
		Timestamp:      s.now(),
		OrderRef:       o.ref,
		ExecutedShares: execQty,
		MatchNumber:    s.sent,
	}

	o.remaining -= execQty
	if o.remaining == 0 {
		s.active = append(s.active[:idx], s.active[idx+1:]...)
	}

	s.emit(itch.AppendOrderExecuted(nil, msg))
}

func (s *ItchSimulator) sendTrade() {
	symbol := s.cfg.Symbols[s.rng.Intn(len(s.cfg.Symbols))]
	side := itch.SideBuy
	if s.rng.Intn(2) == 1 {
		side = itch.SideSell
	}

	msg := itch.Trade{
		Timestamp:   s.now(),
		Side:        side,
		Shares:      s.roundQty(s.cfg.MinQty + uint32(s.rng.Int63n(int64(s.cfg.MaxQty-s.cfg.MinQty)))),
		Stock:       itch.MakeSymbol(symbol),
		Price:       s.roundPrice(s.cfg.MinPrice + uint32(s.rng.Int63n(int64(s.cfg.MaxPrice-s.cfg.MinPrice)))),
		MatchNumber: s.sent,
	}

	s.emit(itch.AppendTrade(nil, msg))
}

func (s *ItchSimulator) emit(frame []byte) {
	if err := s.sender.Send(frame); err != nil {
		s.logger.Warn("simulator send failed", zap.Error(err))
		return
	}
	s.sent++
}

func (s *ItchSimulator) roundPrice(p uint32) uint32 {
	return (p / s.cfg.PriceTick) * s.cfg.PriceTick
}

func (s *ItchSimulator) roundQty(q uint32) uint32 {
	r := (q / s.cfg.QtyRound) * s.cfg.QtyRound
	if r == 0 {
		r = s.cfg.QtyRound
	}
	return r
}

func (s *ItchSimulator) now() uint64 {
	// Nanoseconds since midnight, truncated to the 48-bit wire field.
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return uint64(now.Sub(midnight).Nanoseconds()) & 0xFFFFFFFFFFFF
}
