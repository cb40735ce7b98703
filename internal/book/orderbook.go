// Package book implements the two order-book engines: the per-order book
// keyed by order reference and the fixed-depth price-level book, plus the
// keyed managers that own them.
package book

import (
	"container/list"

	"github.com/tidwall/btree"

	"github.com/Aidin1998/feedhandler/internal/md"
	"github.com/Aidin1998/feedhandler/internal/protocol/itch"
)

type order struct {
	ref       uint64
	price     uint32
	remaining uint32
	side      itch.Side
	arrival   *list.Element
}

type level struct {
	quantity uint32
	orders   uint32
}

// OrderBook is the per-order book for a single symbol. Aggregate level
// quantities always equal the sum of remaining order quantities at that
// price, and order counts are exact: they change only when an order joins
// or leaves the level.
type OrderBook struct {
	symbol    md.Symbol
	depth     int
	maxOrders int

	orders  map[uint64]*order
	arrival *list.List // oldest resting order first, for bounded eviction

	bids *btree.Map[uint32, *level]
	asks *btree.Map[uint32, *level]

	lastPrice   uint32
	lastQty     uint32
	totalVolume uint64

	dirty bool
}

// NewOrderBook creates an empty book. maxOrders bounds resting orders per
// book (0 disables the bound); on overflow the oldest order is evicted.
func NewOrderBook(symbol string, depth, maxOrders int) *OrderBook {
	return &OrderBook{
		symbol:    md.MakeSymbol(symbol),
		depth:     depth,
		maxOrders: maxOrders,
		orders:    make(map[uint64]*order),
		arrival:   list.New(),
		bids:      btree.NewMap[uint32, *level](32),
		asks:      btree.NewMap[uint32, *level](32),
	}
}

func (ob *OrderBook) Symbol() string { return ob.symbol.String() }

// Add inserts a resting order. A duplicate ref is ignored. When the book
// is at its bound, the oldest order is evicted first and its ref returned
// so the caller can drop it from the routing index.
func (ob *OrderBook) Add(ref uint64, side itch.Side, price, qty uint32) (evictedRef uint64, evicted bool) {
	if _, exists := ob.orders[ref]; exists {
		return 0, false
	}
	if ob.maxOrders > 0 && len(ob.orders) >= ob.maxOrders {
		if front := ob.arrival.Front(); front != nil {
			evictedRef = front.Value.(*order).ref
			evicted = true
			ob.Delete(evictedRef)
		}
	}

	o := &order{ref: ref, price: price, remaining: qty, side: side}
	o.arrival = ob.arrival.PushBack(o)
	ob.orders[ref] = o
	ob.addToLevel(side, price, qty)
	ob.dirty = true
	return evictedRef, evicted
}

// Delete removes an order entirely. Unknown refs are no-ops.
func (ob *OrderBook) Delete(ref uint64) bool {
	o, ok := ob.orders[ref]
	if !ok {
		return false
	}
	ob.removeFromLevel(o.side, o.price, o.remaining, true)
	ob.arrival.Remove(o.arrival)
	delete(ob.orders, ref)
	ob.dirty = true
	return true
}

// Cancel reduces an order by qty, clamped to its remaining quantity. The
// order is removed when nothing remains. Reports whether the order was
// found and whether it was removed.
func (ob *OrderBook) Cancel(ref uint64, qty uint32) (found, removed bool) {
	o, ok := ob.orders[ref]
	if !ok {
		return false, false
	}
	cancel := min(qty, o.remaining)
	o.remaining -= cancel
	removed = o.remaining == 0
	ob.removeFromLevel(o.side, o.price, cancel, removed)
	if removed {
		ob.arrival.Remove(o.arrival)
		delete(ob.orders, ref)
	}
	ob.dirty = true
	return true, removed
}

// Execution describes a fill against a resting order.
type Execution struct {
	Price     uint32
	Quantity  uint32
	Aggressor itch.Side
	Removed   bool
}

// Execute fills an order for qty, clamped to its remaining quantity, and
// records the trade at the resting price. The aggressor is the opposite
// of the resting side. execPrice overrides the trade price when non-zero
// (executed-with-price variant).
func (ob *OrderBook) Execute(ref uint64, qty, execPrice uint32) (Execution, bool) {
	o, ok := ob.orders[ref]
	if !ok {
		return Execution{}, false
	}
	exec := Execution{
		Price:     o.price,
		Quantity:  min(qty, o.remaining),
		Aggressor: o.side.Opposite(),
	}
	if execPrice != 0 {
		exec.Price = execPrice
	}

	o.remaining -= exec.Quantity
	exec.Removed = o.remaining == 0
	ob.removeFromLevel(o.side, o.price, exec.Quantity, exec.Removed)
	if exec.Removed {
		ob.arrival.Remove(o.arrival)
		delete(ob.orders, ref)
	}

	ob.RecordTrade(exec.Price, exec.Quantity)
	return exec, true
}

// Replace removes the old order and inserts a new one under newRef at the
// supplied price and quantity, preserving side. Unknown oldRef is a no-op.
func (ob *OrderBook) Replace(oldRef, newRef uint64, price, qty uint32) bool {
	o, ok := ob.orders[oldRef]
	if !ok {
		return false
	}
	side := o.side
	ob.Delete(oldRef)
	ob.Add(newRef, side, price, qty)
	return true
}

// RecordTrade updates the last-trade fields and cumulative volume.
func (ob *OrderBook) RecordTrade(price, qty uint32) {
	ob.lastPrice = price
	ob.lastQty = qty
	ob.totalVolume += uint64(qty)
	ob.dirty = true
}

// Snapshot renders the top depth levels of each side.
func (ob *OrderBook) Snapshot(ts, seq uint64) md.Snapshot {
	snap := md.Snapshot{
		Symbol:      ob.symbol,
		Timestamp:   ts,
		Sequence:    seq,
		LastPrice:   ob.lastPrice,
		LastQty:     ob.lastQty,
		TotalVolume: ob.totalVolume,
	}
	ob.bids.Reverse(func(price uint32, lv *level) bool {
		if len(snap.Bids) >= ob.depth {
			return false
		}
		snap.Bids = append(snap.Bids, md.Level{Price: price, Quantity: lv.quantity, OrderCount: lv.orders})
		return true
	})
	ob.asks.Scan(func(price uint32, lv *level) bool {
		if len(snap.Asks) >= ob.depth {
			return false
		}
		snap.Asks = append(snap.Asks, md.Level{Price: price, Quantity: lv.quantity, OrderCount: lv.orders})
		return true
	})
	return snap
}

// BBO returns the top of each side; zeros for an empty side.
func (ob *OrderBook) BBO(ts, seq uint64) md.Quote {
	q := md.Quote{Symbol: ob.symbol, Timestamp: ts, Sequence: seq}
	ob.bids.Reverse(func(price uint32, lv *level) bool {
		q.BidPrice, q.BidQty = price, lv.quantity
		return false
	})
	ob.asks.Scan(func(price uint32, lv *level) bool {
		q.AskPrice, q.AskQty = price, lv.quantity
		return false
	})
	return q
}

// Orders reports the number of resting orders.
func (ob *OrderBook) Orders() int { return len(ob.orders) }

// LevelCounts reports the live level count per side.
func (ob *OrderBook) LevelCounts() (bids, asks int) {
	return ob.bids.Len(), ob.asks.Len()
}

func (ob *OrderBook) Dirty() bool { return ob.dirty }
func (ob *OrderBook) ClearDirty() { ob.dirty = false }

func (ob *OrderBook) sideLevels(side itch.Side) *btree.Map[uint32, *level] {
	if side == itch.SideBuy {
		return ob.bids
	}
	return ob.asks
}

func (ob *OrderBook) addToLevel(side itch.Side, price, qty uint32) {
	levels := ob.sideLevels(side)
	lv, ok := levels.Get(price)
	if !ok {
		lv = &level{}
		levels.Set(price, lv)
	}
	lv.quantity += qty
	lv.orders++
}

func (ob *OrderBook) removeFromLevel(side itch.Side, price, qty uint32, orderLeft bool) {
	levels := ob.sideLevels(side)
	lv, ok := levels.Get(price)
	if !ok {
		return
	}
	if lv.quantity > qty {
		lv.quantity -= qty
	} else {
		lv.quantity = 0
	}
	if orderLeft && lv.orders > 0 {
		lv.orders--
	}
	if lv.quantity == 0 {
		levels.Delete(price)
	}
}
