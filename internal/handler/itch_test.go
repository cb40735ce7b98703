package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aidin1998/feedhandler/internal/config"
	"github.com/Aidin1998/feedhandler/internal/envelope"
	"github.com/Aidin1998/feedhandler/internal/protocol/itch"
	"github.com/Aidin1998/feedhandler/internal/transport"
	"github.com/Aidin1998/feedhandler/pkg/logger"
)

type fakeSender struct {
	frames [][]byte
}

func (s *fakeSender) Send(b []byte) error {
	frame := make([]byte, len(b))
	copy(frame, b)
	s.frames = append(s.frames, frame)
	return nil
}

func (s *fakeSender) Close() error { return nil }

type fakeReceiver struct {
	packets [][]byte
}

func (r *fakeReceiver) ReadPacket(buf []byte, timeout time.Duration) (int, error) {
	if len(r.packets) == 0 {
		time.Sleep(timeout)
		return 0, transport.ErrTimeout
	}
	p := r.packets[0]
	r.packets = r.packets[1:]
	return copy(buf, p), nil
}

func (r *fakeReceiver) Close() error { return nil }

func newItchHandler(t *testing.T, mode string) (*Itch, *fakeSender) {
	t.Helper()
	cfg := config.DefaultItch()
	cfg.Mode = mode
	sender := &fakeSender{}
	h := NewItch(&cfg, logger.Nop(), &fakeReceiver{}, sender, nil)
	return h, sender
}

func TestConflatedAddPublishesSnapshot(t *testing.T) {
	h, sender := newItchHandler(t, config.ModeConflated)

	h.ProcessDatagram(itch.AppendAddOrder(nil, itch.AddOrder{
		OrderRef: 1, Side: itch.SideBuy, Shares: 500,
		Stock: itch.MakeSymbol("AAPL"), Price: 1000000,
	}))
	assert.Empty(t, sender.frames) // nothing until the conflation tick

	h.PublishConflated(time.Now())
	require.Len(t, sender.frames, 1)

	msg, err := envelope.Decode(sender.frames[0])
	require.NoError(t, err)
	require.Equal(t, envelope.TypeSnapshot, msg.Type)
	assert.Equal(t, "AAPL", msg.Snapshot.Symbol.String())
	require.Len(t, msg.Snapshot.Bids, 1)
	assert.Equal(t, uint32(1000000), msg.Snapshot.Bids[0].Price)
	assert.Equal(t, uint32(500), msg.Snapshot.Bids[0].Quantity)
	assert.Equal(t, uint32(1), msg.Snapshot.Bids[0].OrderCount)

	// Clean books publish nothing on the next tick.
	h.PublishConflated(time.Now())
	assert.Len(t, sender.frames, 1)
}

func TestTickModeAddEmitsQuote(t *testing.T) {
	h, sender := newItchHandler(t, config.ModeTick)

	h.ProcessDatagram(itch.AppendAddOrder(nil, itch.AddOrder{
		OrderRef: 1, Side: itch.SideBuy, Shares: 500,
		Stock: itch.MakeSymbol("AAPL"), Price: 1000000,
	}))

	require.Len(t, sender.frames, 1)
	msg, err := envelope.Decode(sender.frames[0])
	require.NoError(t, err)
	require.Equal(t, envelope.TypeQuote, msg.Type)
	assert.Equal(t, uint32(1000000), msg.Quote.BidPrice)
	assert.Equal(t, uint32(500), msg.Quote.BidQty)
	assert.Zero(t, msg.Quote.AskPrice)

	// A deeper add that leaves the top untouched emits nothing.
	h.ProcessDatagram(itch.AppendAddOrder(nil, itch.AddOrder{
		OrderRef: 2, Side: itch.SideBuy, Shares: 100,
		Stock: itch.MakeSymbol("AAPL"), Price: 990000,
	}))
	assert.Len(t, sender.frames, 1)
}

func TestTickModeExecuteEmitsTradeWithAggressor(t *testing.T) {
	h, sender := newItchHandler(t, config.ModeTick)

	h.ProcessDatagram(itch.AppendAddOrder(nil, itch.AddOrder{
		OrderRef: 1, Side: itch.SideBuy, Shares: 500,
		Stock: itch.MakeSymbol("AAPL"), Price: 1000000,
	}))
	h.ProcessDatagram(itch.AppendOrderExecuted(nil, itch.OrderExecuted{
		OrderRef: 1, ExecutedShares: 200, MatchNumber: 7,
	}))

	require.Len(t, sender.frames, 2)
	msg, err := envelope.Decode(sender.frames[1])
	require.NoError(t, err)
	require.Equal(t, envelope.TypeTrade, msg.Type)
	assert.Equal(t, byte('S'), msg.Trade.Side)
	assert.Equal(t, uint32(1000000), msg.Trade.Price)
	assert.Equal(t, uint32(200), msg.Trade.Quantity)
	assert.Equal(t, uint64(7), msg.Trade.MatchNumber)

	snap := h.Books().Book("AAPL").Snapshot(0, 0)
	assert.Equal(t, uint64(200), snap.TotalVolume)
	assert.Equal(t, uint32(1000000), snap.LastPrice)
}

func TestRefOnlyMessagesRouteToOwningBook(t *testing.T) {
	h, _ := newItchHandler(t, config.ModeConflated)

	h.ProcessDatagram(itch.AppendAddOrder(nil, itch.AddOrder{
		OrderRef: 1, Side: itch.SideBuy, Shares: 500,
		Stock: itch.MakeSymbol("AAPL"), Price: 1000000,
	}))
	h.ProcessDatagram(itch.AppendAddOrder(nil, itch.AddOrder{
		OrderRef: 2, Side: itch.SideSell, Shares: 100,
		Stock: itch.MakeSymbol("MSFT"), Price: 3000000,
	}))

	// Delete carries only the ref; the handler must find MSFT's book.
	h.ProcessDatagram(itch.AppendOrderDelete(nil, itch.OrderDelete{OrderRef: 2}))

	assert.Zero(t, h.Books().Book("MSFT").Orders())
	assert.Equal(t, 1, h.Books().Book("AAPL").Orders())
}

func TestReplaceMovesOrderAndIndex(t *testing.T) {
	h, _ := newItchHandler(t, config.ModeConflated)

	h.ProcessDatagram(itch.AppendAddOrder(nil, itch.AddOrder{
		OrderRef: 1, Side: itch.SideBuy, Shares: 500,
		Stock: itch.MakeSymbol("AAPL"), Price: 1000000,
	}))
	h.ProcessDatagram(itch.AppendOrderReplace(nil, itch.OrderReplace{
		OriginalRef: 1, NewRef: 2, Shares: 300, Price: 1020000,
	}))

	ob := h.Books().Book("AAPL")
	assert.Equal(t, 1, ob.Orders())
	q := ob.BBO(0, 0)
	assert.Equal(t, uint32(1020000), q.BidPrice)

	// The new ref routes; the old one no longer does.
	h.ProcessDatagram(itch.AppendOrderCancel(nil, itch.OrderCancel{OrderRef: 2, CancelledShares: 300}))
	assert.Zero(t, ob.Orders())
}

func TestUnknownRefIgnored(t *testing.T) {
	h, _ := newItchHandler(t, config.ModeConflated)

	h.ProcessDatagram(itch.AppendOrderDelete(nil, itch.OrderDelete{OrderRef: 404}))
	h.ProcessDatagram(itch.AppendOrderExecuted(nil, itch.OrderExecuted{OrderRef: 404, ExecutedShares: 1}))

	assert.Zero(t, h.Books().Len())
	assert.Equal(t, uint64(1), h.Stats().DeleteOrders)
	assert.Equal(t, uint64(1), h.Stats().Executions)
}

func TestSequenceMonotonicAcrossPublishes(t *testing.T) {
	h, sender := newItchHandler(t, config.ModeConflated)

	for i := 0; i < 3; i++ {
		h.ProcessDatagram(itch.AppendAddOrder(nil, itch.AddOrder{
			OrderRef: uint64(i + 1), Side: itch.SideBuy, Shares: 10,
			Stock: itch.MakeSymbol("AAPL"), Price: 1000000 + uint32(i)*100,
		}))
		h.ProcessDatagram(itch.AppendAddOrder(nil, itch.AddOrder{
			OrderRef: uint64(100 + i), Side: itch.SideSell, Shares: 10,
			Stock: itch.MakeSymbol("MSFT"), Price: 2000000,
		}))
		h.PublishConflated(time.Now())
	}

	var last uint64
	for _, frame := range sender.frames {
		msg, err := envelope.Decode(frame)
		require.NoError(t, err)
		require.NotNil(t, msg.Snapshot)
		assert.Greater(t, msg.Snapshot.Sequence, last)
		last = msg.Snapshot.Sequence
	}
}

func TestTradeMessageRecordsAndTicks(t *testing.T) {
	h, sender := newItchHandler(t, config.ModeTick)

	h.ProcessDatagram(itch.AppendTrade(nil, itch.Trade{
		Side: itch.SideSell, Shares: 100, Stock: itch.MakeSymbol("GOOG"),
		Price: 2000000, MatchNumber: 5,
	}))

	require.Len(t, sender.frames, 1)
	msg, err := envelope.Decode(sender.frames[0])
	require.NoError(t, err)
	require.Equal(t, envelope.TypeTrade, msg.Type)
	assert.Equal(t, "GOOG", msg.Trade.Symbol.String())

	snap := h.Books().Book("GOOG").Snapshot(0, 0)
	assert.Equal(t, uint64(100), snap.TotalVolume)
}

func TestRunStopsOnCancel(t *testing.T) {
	h, _ := newItchHandler(t, config.ModeConflated)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run loop did not stop on cancel")
	}
}
