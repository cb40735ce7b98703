package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aidin1998/feedhandler/internal/protocol/mdp"
)

func bidUpdate(action mdp.UpdateAction, level uint8, price int64, qty int32) mdp.IncrementalEntry {
	return mdp.IncrementalEntry{
		Price:          price,
		Size:           qty,
		SecurityID:     1001,
		EntryType:      mdp.EntryBid,
		UpdateAction:   action,
		PriceLevel:     level,
		NumberOfOrders: 1,
	}
}

func TestOverlayThenNewShiftsLevels(t *testing.T) {
	b := NewLevelBook(1001, 10)
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 1, 100, 10))
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 2, 99, 20))
	b.ApplyUpdate(bidUpdate(mdp.ActionNew, 1, 101, 5))

	bids, _ := b.Counts()
	require.Equal(t, 3, bids)
	assert.Equal(t, PLevel{Price: 101, Quantity: 5, Orders: 1}, b.Bid(0))
	assert.Equal(t, PLevel{Price: 100, Quantity: 10, Orders: 1}, b.Bid(1))
	assert.Equal(t, PLevel{Price: 99, Quantity: 20, Orders: 1}, b.Bid(2))
}

func TestNewAtFullDepthDropsTail(t *testing.T) {
	b := NewLevelBook(1001, 3)
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 1, 102, 1))
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 2, 101, 2))
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 3, 100, 3))
	b.ApplyUpdate(bidUpdate(mdp.ActionNew, 1, 103, 4))

	bids, _ := b.Counts()
	assert.Equal(t, 3, bids)
	assert.Equal(t, int64(103), b.Bid(0).Price)
	assert.Equal(t, int64(102), b.Bid(1).Price)
	assert.Equal(t, int64(101), b.Bid(2).Price)
}

func TestChangeKeepsCount(t *testing.T) {
	b := NewLevelBook(1001, 10)
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 1, 100, 10))
	b.ApplyUpdate(bidUpdate(mdp.ActionChange, 1, 100, 35))

	bids, _ := b.Counts()
	assert.Equal(t, 1, bids)
	assert.Equal(t, int32(35), b.Bid(0).Quantity)
}

func TestDeleteShiftsUp(t *testing.T) {
	b := NewLevelBook(1001, 10)
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 1, 101, 1))
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 2, 100, 2))
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 3, 99, 3))
	b.ApplyUpdate(bidUpdate(mdp.ActionDelete, 1, 0, 0))

	bids, _ := b.Counts()
	assert.Equal(t, 2, bids)
	assert.Equal(t, int64(100), b.Bid(0).Price)
	assert.Equal(t, int64(99), b.Bid(1).Price)
	assert.Equal(t, PLevel{}, b.Bid(2))
}

func TestDeleteThruClearsTop(t *testing.T) {
	b := NewLevelBook(1001, 10)
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 1, 101, 1))
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 2, 100, 2))
	b.ApplyUpdate(bidUpdate(mdp.ActionDeleteThru, 2, 0, 0))

	bids, _ := b.Counts()
	assert.Zero(t, bids)
	assert.Equal(t, PLevel{}, b.Bid(0))
	assert.Equal(t, PLevel{}, b.Bid(1))
}

func TestDeleteFromSetsCountToLevelFloor(t *testing.T) {
	b := NewLevelBook(1001, 10)
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 1, 101, 1))
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 2, 100, 2))
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 3, 99, 3))
	b.ApplyUpdate(bidUpdate(mdp.ActionDeleteFrom, 2, 0, 0))

	bids, _ := b.Counts()
	assert.Equal(t, 1, bids)
	assert.Equal(t, int64(101), b.Bid(0).Price)
	assert.Equal(t, PLevel{}, b.Bid(1))

	// DeleteFrom at level 1 floors the count at zero.
	b.ApplyUpdate(bidUpdate(mdp.ActionDeleteFrom, 1, 0, 0))
	bids, _ = b.Counts()
	assert.Zero(t, bids)
}

func TestOutOfRangeLevelsIgnored(t *testing.T) {
	b := NewLevelBook(1001, 5)
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 0, 100, 1))
	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 6, 100, 1))

	bids, _ := b.Counts()
	assert.Zero(t, bids)
}

func TestTradeEntryRecordsTrade(t *testing.T) {
	b := NewLevelBook(1001, 10)
	b.ApplyUpdate(mdp.IncrementalEntry{
		Price:        45000000000,
		Size:         7,
		EntryType:    mdp.EntryTrade,
		UpdateAction: mdp.ActionNew,
		RptSeq:       4,
	})
	b.ApplyUpdate(mdp.IncrementalEntry{
		Price:        45002500000,
		Size:         3,
		EntryType:    mdp.EntryTrade,
		UpdateAction: mdp.ActionNew,
		RptSeq:       5,
	})

	snap := b.Snapshot(0, 1)
	assert.Equal(t, uint32(45002500), snap.LastPrice)
	assert.Equal(t, uint32(3), snap.LastQty)
	assert.Equal(t, uint64(10), snap.TotalVolume)
	assert.Equal(t, uint32(5), b.LastRptSeq())
}

func TestPricesMonotonicAfterRandomActions(t *testing.T) {
	b := NewLevelBook(1001, 10)
	// A descending ladder built with Overlay, then disturbed.
	for i := uint8(1); i <= 5; i++ {
		b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, i, int64(110-i), 10))
		b.ApplyUpdate(mdp.IncrementalEntry{
			Price: int64(110 + i), Size: 10, EntryType: mdp.EntryOffer,
			UpdateAction: mdp.ActionOverlay, PriceLevel: i, NumberOfOrders: 1,
		})
	}
	b.ApplyUpdate(bidUpdate(mdp.ActionNew, 1, 110, 9))
	b.ApplyUpdate(bidUpdate(mdp.ActionDelete, 3, 0, 0))

	bids, asks := b.Counts()
	for i := 1; i < bids; i++ {
		assert.Greater(t, b.Bid(i-1).Price, b.Bid(i).Price)
	}
	for i := 1; i < asks; i++ {
		assert.Less(t, b.Ask(i-1).Price, b.Ask(i).Price)
	}
}

func TestSnapshotIdempotent(t *testing.T) {
	entries := []mdp.SnapshotEntry{
		{Price: 101, Size: 5, EntryType: mdp.EntryBid, PriceLevel: 1, NumberOfOrders: 2},
		{Price: 100, Size: 8, EntryType: mdp.EntryBid, PriceLevel: 2, NumberOfOrders: 1},
		{Price: 102, Size: 4, EntryType: mdp.EntryOffer, PriceLevel: 1, NumberOfOrders: 3},
	}

	b := NewLevelBook(1001, 10)
	b.ApplySnapshot(entries, 42)
	first := b.Snapshot(0, 1)

	b.ApplySnapshot(entries, 42)
	second := b.Snapshot(0, 1)

	assert.Equal(t, first, second)
	assert.Equal(t, uint32(42), b.LastRptSeq())
}

func TestSnapshotReplacesDeeperBook(t *testing.T) {
	b := NewLevelBook(1001, 10)
	for i := uint8(1); i <= 5; i++ {
		b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, i, int64(110-i), 10))
	}

	b.ApplySnapshot([]mdp.SnapshotEntry{
		{Price: 200, Size: 1, EntryType: mdp.EntryBid, PriceLevel: 1, NumberOfOrders: 1},
	}, 9)

	bids, _ := b.Counts()
	assert.Equal(t, 1, bids)
	assert.Equal(t, int64(200), b.Bid(0).Price)
}

func TestLevelManager(t *testing.T) {
	m := NewLevelManager(10)
	b := m.Book(1001)
	assert.Same(t, b, m.Book(1001))
	m.Book(1002)

	m.MarkDirty(1002)
	m.MarkDirty(1001)
	m.MarkDirty(1001)
	assert.Equal(t, []uint32{1001, 1002}, m.DrainDirty())
	assert.Nil(t, m.DrainDirty())

	assert.Equal(t, []uint32{1001, 1002}, m.All())

	b.ApplyUpdate(bidUpdate(mdp.ActionOverlay, 1, 100, 1))
	m.ResetAll()
	bids, _ := b.Counts()
	assert.Zero(t, bids)
	assert.Zero(t, b.LastRptSeq())
}

func TestChannelResetKeepsSymbolName(t *testing.T) {
	b := NewLevelBook(1001, 10)
	b.SetSymbol("ESH26")
	b.Reset()
	assert.Equal(t, "ESH26", b.Symbol())
}
