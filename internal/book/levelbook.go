package book

import (
	"sort"
	"strconv"
	"sync"

	"github.com/Aidin1998/feedhandler/internal/md"
	"github.com/Aidin1998/feedhandler/internal/protocol/mdp"
)

// PLevel is one slot of a fixed-depth book side. Price carries 7 implied
// decimals (the price-level dialect's native form).
type PLevel struct {
	Price    int64
	Quantity int32
	Orders   uint8
}

// LevelBook is the fixed-depth price-level book for a single security.
// Slot i corresponds to protocol level i+1.
type LevelBook struct {
	securityID uint32
	symbol     md.Symbol
	depth      int

	bids     []PLevel
	asks     []PLevel
	bidCount int
	askCount int

	lastPrice   int64
	lastQty     int32
	totalVolume uint64
	lastRptSeq  uint32

	dirty bool
}

// NewLevelBook creates an empty book of the given depth. The symbol
// defaults to the decimal security id until a definition names it.
func NewLevelBook(securityID uint32, depth int) *LevelBook {
	return &LevelBook{
		securityID: securityID,
		symbol:     md.MakeSymbol(strconv.FormatUint(uint64(securityID), 10)),
		depth:      depth,
		bids:       make([]PLevel, depth),
		asks:       make([]PLevel, depth),
	}
}

func (b *LevelBook) SecurityID() uint32 { return b.securityID }
func (b *LevelBook) Symbol() string     { return b.symbol.String() }

// SetSymbol names the book from a security definition.
func (b *LevelBook) SetSymbol(symbol string) {
	b.symbol = md.MakeSymbol(symbol)
}

// Clear empties both sides. Trade state and rpt_seq survive a clear; a
// channel reset zeroes those separately via Reset.
func (b *LevelBook) Clear() {
	for i := range b.bids {
		b.bids[i] = PLevel{}
	}
	for i := range b.asks {
		b.asks[i] = PLevel{}
	}
	b.bidCount = 0
	b.askCount = 0
}

// Reset clears everything, including trade state and sequence tracking.
func (b *LevelBook) Reset() {
	b.Clear()
	b.lastPrice = 0
	b.lastQty = 0
	b.totalVolume = 0
	b.lastRptSeq = 0
	b.dirty = true
}

// ApplyUpdate mutates one side per the entry's action. Trade entries
// update last-trade state instead. Levels out of [1, depth] are ignored.
func (b *LevelBook) ApplyUpdate(e mdp.IncrementalEntry) {
	switch {
	case e.EntryType.IsBid():
		b.applySide(b.bids, &b.bidCount, e)
	case e.EntryType.IsOffer():
		b.applySide(b.asks, &b.askCount, e)
	case e.EntryType == mdp.EntryTrade:
		b.RecordTrade(e.Price, e.Size)
	default:
		return
	}
	if e.RptSeq > b.lastRptSeq {
		b.lastRptSeq = e.RptSeq
	}
	b.dirty = true
}

func (b *LevelBook) applySide(arr []PLevel, count *int, e mdp.IncrementalEntry) {
	if e.PriceLevel == 0 || int(e.PriceLevel) > b.depth {
		return
	}
	idx := int(e.PriceLevel) - 1
	lv := PLevel{Price: e.Price, Quantity: e.Size, Orders: e.NumberOfOrders}

	switch e.UpdateAction {
	case mdp.ActionNew:
		copy(arr[idx+1:], arr[idx:b.depth-1])
		arr[idx] = lv
		if *count < b.depth {
			*count++
		}
	case mdp.ActionChange:
		arr[idx] = lv
	case mdp.ActionDelete:
		copy(arr[idx:], arr[idx+1:])
		arr[b.depth-1] = PLevel{}
		if *count > 0 {
			*count--
		}
	case mdp.ActionDeleteThru:
		for i := 0; i <= idx; i++ {
			arr[i] = PLevel{}
		}
		*count = 0
	case mdp.ActionDeleteFrom:
		for i := idx; i < b.depth; i++ {
			arr[i] = PLevel{}
		}
		*count = idx
	case mdp.ActionOverlay:
		arr[idx] = lv
		if idx+1 > *count {
			*count = idx + 1
		}
	}
}

// ApplySnapshot replaces the book with the snapshot's levels (Overlay
// semantics at each indicated slot) and adopts its rpt_seq.
func (b *LevelBook) ApplySnapshot(entries []mdp.SnapshotEntry, rptSeq uint32) {
	b.Clear()
	for _, e := range entries {
		if e.PriceLevel == 0 || int(e.PriceLevel) > b.depth {
			continue
		}
		idx := int(e.PriceLevel) - 1
		lv := PLevel{Price: e.Price, Quantity: e.Size, Orders: e.NumberOfOrders}
		switch {
		case e.EntryType.IsBid():
			b.bids[idx] = lv
			if idx+1 > b.bidCount {
				b.bidCount = idx + 1
			}
		case e.EntryType.IsOffer():
			b.asks[idx] = lv
			if idx+1 > b.askCount {
				b.askCount = idx + 1
			}
		}
	}
	b.lastRptSeq = rptSeq
	b.dirty = true
}

// RecordTrade updates last-trade state and cumulative volume.
func (b *LevelBook) RecordTrade(price int64, qty int32) {
	b.lastPrice = price
	b.lastQty = qty
	if qty > 0 {
		b.totalVolume += uint64(qty)
	}
	b.dirty = true
}

func (b *LevelBook) LastRptSeq() uint32 { return b.lastRptSeq }

// Counts reports the live level counts.
func (b *LevelBook) Counts() (bids, asks int) { return b.bidCount, b.askCount }

// Bid and Ask expose slots for tests and accessors.
func (b *LevelBook) Bid(i int) PLevel { return b.bids[i] }
func (b *LevelBook) Ask(i int) PLevel { return b.asks[i] }

// Snapshot renders the book in the normalized 4-decimal form.
func (b *LevelBook) Snapshot(ts, seq uint64) md.Snapshot {
	snap := md.Snapshot{
		Symbol:      b.symbol,
		Timestamp:   ts,
		Sequence:    seq,
		LastPrice:   mdp.FixedPointPrice(b.lastPrice),
		LastQty:     uint32(b.lastQty),
		TotalVolume: b.totalVolume,
	}
	for i := 0; i < b.bidCount; i++ {
		snap.Bids = append(snap.Bids, md.Level{
			Price:      mdp.FixedPointPrice(b.bids[i].Price),
			Quantity:   uint32(b.bids[i].Quantity),
			OrderCount: uint32(b.bids[i].Orders),
		})
	}
	for i := 0; i < b.askCount; i++ {
		snap.Asks = append(snap.Asks, md.Level{
			Price:      mdp.FixedPointPrice(b.asks[i].Price),
			Quantity:   uint32(b.asks[i].Quantity),
			OrderCount: uint32(b.asks[i].Orders),
		})
	}
	return snap
}

// LevelManager is the keyed registry of price-level books plus the dirty
// set drained by the conflated publisher.
type LevelManager struct {
	mu    sync.Mutex
	depth int
	books map[uint32]*LevelBook
	dirty map[uint32]struct{}
}

func NewLevelManager(depth int) *LevelManager {
	return &LevelManager{
		depth: depth,
		books: make(map[uint32]*LevelBook),
		dirty: make(map[uint32]struct{}),
	}
}

// Book returns the book for a security, creating it on first reference.
func (m *LevelManager) Book(securityID uint32) *LevelBook {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[securityID]
	if !ok {
		b = NewLevelBook(securityID, m.depth)
		m.books[securityID] = b
	}
	return b
}

// MarkDirty queues a security for the next conflated publish.
func (m *LevelManager) MarkDirty(securityID uint32) {
	m.mu.Lock()
	m.dirty[securityID] = struct{}{}
	m.mu.Unlock()
}

// DrainDirty returns the queued securities in ascending id order and
// clears the set.
func (m *LevelManager) DrainDirty() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.dirty) == 0 {
		return nil
	}
	ids := make([]uint32, 0, len(m.dirty))
	for id := range m.dirty {
		ids = append(ids, id)
	}
	m.dirty = make(map[uint32]struct{})
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// All returns every tracked security id in ascending order.
func (m *LevelManager) All() []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint32, 0, len(m.books))
	for id := range m.books {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ResetAll empties every book in place, keeping registrations and names.
func (m *LevelManager) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.books {
		b.Reset()
	}
	m.dirty = make(map[uint32]struct{})
}

// Len reports the number of tracked books.
func (m *LevelManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.books)
}
