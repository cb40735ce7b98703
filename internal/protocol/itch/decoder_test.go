package itch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	adds     []AddOrder
	execs    []OrderExecuted
	cancels  []OrderCancel
	deletes  []OrderDelete
	replaces []OrderReplace
	trades   []Trade
	crosses  []CrossTrade
	events   []SystemEvent
	dirs     []StockDirectory
}

func (r *recordingListener) OnSystemEvent(m SystemEvent)       { r.events = append(r.events, m) }
func (r *recordingListener) OnStockDirectory(m StockDirectory) { r.dirs = append(r.dirs, m) }
func (r *recordingListener) OnAddOrder(m AddOrder)             { r.adds = append(r.adds, m) }
func (r *recordingListener) OnOrderExecuted(m OrderExecuted)   { r.execs = append(r.execs, m) }
func (r *recordingListener) OnOrderCancel(m OrderCancel)       { r.cancels = append(r.cancels, m) }
func (r *recordingListener) OnOrderDelete(m OrderDelete)       { r.deletes = append(r.deletes, m) }
func (r *recordingListener) OnOrderReplace(m OrderReplace)     { r.replaces = append(r.replaces, m) }
func (r *recordingListener) OnTrade(m Trade)                   { r.trades = append(r.trades, m) }
func (r *recordingListener) OnCrossTrade(m CrossTrade)         { r.crosses = append(r.crosses, m) }

func TestDecodeMultiMessageDatagram(t *testing.T) {
	add := AddOrder{
		Timestamp: 34200000000123,
		OrderRef:  42,
		Side:      SideBuy,
		Shares:    500,
		Stock:     MakeSymbol("AAPL"),
		Price:     1500000,
	}
	exec := OrderExecuted{OrderRef: 42, ExecutedShares: 200, MatchNumber: 7}
	del := OrderDelete{OrderRef: 42}

	var datagram []byte
	datagram = AppendAddOrder(datagram, add)
	datagram = AppendOrderExecuted(datagram, exec)
	datagram = AppendOrderDelete(datagram, del)

	var rec recordingListener
	dec := NewDecoder(&rec)
	dec.Decode(datagram)

	require.Len(t, rec.adds, 1)
	require.Len(t, rec.execs, 1)
	require.Len(t, rec.deletes, 1)
	assert.Equal(t, add, rec.adds[0])
	assert.Equal(t, uint64(42), rec.execs[0].OrderRef)
	assert.Equal(t, uint32(200), rec.execs[0].ExecutedShares)
	assert.False(t, rec.execs[0].HasPrice)
	assert.Equal(t, uint64(3), dec.Messages)
	assert.Equal(t, uint64(0), dec.Errors)
}

func TestDecodeTradeAndSymbolPadding(t *testing.T) {
	tr := Trade{
		Side:        SideSell,
		Shares:      100,
		Stock:       MakeSymbol("ES"),
		Price:       45000000,
		MatchNumber: 9,
	}
	datagram := AppendTrade(nil, tr)

	var rec recordingListener
	NewDecoder(&rec).Decode(datagram)

	require.Len(t, rec.trades, 1)
	assert.Equal(t, "ES", rec.trades[0].Stock.String())
	assert.Equal(t, Symbol{'E', 'S', ' ', ' ', ' ', ' ', ' ', ' '}, rec.trades[0].Stock)
}

func TestDecodeTruncatedFrameDiscardsRemainder(t *testing.T) {
	datagram := AppendAddOrder(nil, AddOrder{OrderRef: 1, Side: SideBuy, Stock: MakeSymbol("X")})
	// Second frame declares more bytes than the datagram holds.
	datagram = append(datagram, 0x00, 0xFF, byte(TypeAddOrder))

	var rec recordingListener
	dec := NewDecoder(&rec)
	dec.Decode(datagram)

	assert.Len(t, rec.adds, 1)
	assert.Equal(t, uint64(1), dec.Errors)
}

func TestDecodeShortBodySkipped(t *testing.T) {
	// Frame claims to be an AddOrder but carries only 5 body bytes.
	datagram := []byte{0x00, 0x05, byte(TypeAddOrder), 0, 0, 0, 0}

	var rec recordingListener
	dec := NewDecoder(&rec)
	dec.Decode(datagram)

	assert.Empty(t, rec.adds)
	assert.Equal(t, uint64(1), dec.Skipped)
	assert.Equal(t, uint64(0), dec.Errors)
}

func TestDecodeUnknownTypeSkipped(t *testing.T) {
	body := make([]byte, 20)
	body[0] = 'Z'
	datagram := []byte{0x00, 0x14}
	datagram = append(datagram, body...)
	datagram = AppendOrderDelete(datagram, OrderDelete{OrderRef: 3})

	var rec recordingListener
	dec := NewDecoder(&rec)
	dec.Decode(datagram)

	require.Len(t, rec.deletes, 1)
	assert.Equal(t, uint64(1), dec.Skipped)
	assert.Equal(t, uint64(1), dec.Messages)
}

func TestDecodeExecutedWithPrice(t *testing.T) {
	// Hand-build the 38-byte body: the encoder has no with-price variant.
	b := make([]byte, 0, sizeOrderExecutedWithPrice+2)
	b = append(b, 0x00, sizeOrderExecutedWithPrice)
	b = append(b, byte(TypeOrderExecutedWithPrice))
	b = append(b, 0, 0, 0, 0)                         // locate, tracking
	b = append(b, 0, 0, 0, 0, 0, 0, 0, 0)             // timestamp
	b = append(b, 0, 0, 0, 0, 0, 0, 0, 99)            // order ref
	b = append(b, 0, 0, 1, 0)                         // executed shares = 256
	b = append(b, 0, 0, 0, 0, 0, 0, 0, 5)             // match number
	b = append(b, 'Y')                                // printable
	b = append(b, 0x00, 0x0F, 0x42, 0x40)             // price = 1000000
	require.Len(t, b, sizeOrderExecutedWithPrice+2)

	var rec recordingListener
	NewDecoder(&rec).Decode(b)

	require.Len(t, rec.execs, 1)
	assert.True(t, rec.execs[0].HasPrice)
	assert.Equal(t, uint32(1000000), rec.execs[0].ExecutionPrice)
	assert.Equal(t, uint32(256), rec.execs[0].ExecutedShares)
}
