package itch

import "encoding/binary"

// Listener receives decoded messages in datagram order. Implementations
// must not retain slices handed to them.
type Listener interface {
	OnSystemEvent(SystemEvent)
	OnStockDirectory(StockDirectory)
	OnAddOrder(AddOrder)
	OnOrderExecuted(OrderExecuted)
	OnOrderCancel(OrderCancel)
	OnOrderDelete(OrderDelete)
	OnOrderReplace(OrderReplace)
	OnTrade(Trade)
	OnCrossTrade(CrossTrade)
}

// Decoder walks datagrams of length-prefixed messages. Truncated frames
// discard the remainder of the datagram; short or unrecognized bodies are
// skipped without aborting the frame walk.
type Decoder struct {
	listener Listener

	Messages uint64 // bodies dispatched to the listener
	Skipped  uint64 // short bodies and unrecognized types
	Errors   uint64 // truncated frames
}

func NewDecoder(l Listener) *Decoder {
	return &Decoder{listener: l}
}

// Decode walks one datagram. Each frame is a 2-byte big-endian length
// followed by that many body bytes.
func (d *Decoder) Decode(datagram []byte) {
	offset := 0
	for offset+2 < len(datagram) {
		msgLen := int(binary.BigEndian.Uint16(datagram[offset:]))
		if msgLen == 0 || offset+2+msgLen > len(datagram) {
			d.Errors++
			return
		}
		d.decodeBody(datagram[offset+2 : offset+2+msgLen])
		offset += 2 + msgLen
	}
}

func (d *Decoder) decodeBody(b []byte) {
	if len(b) < 1 {
		d.Skipped++
		return
	}

	switch MsgType(b[0]) {
	case TypeSystemEvent:
		if len(b) < sizeSystemEvent {
			d.Skipped++
			return
		}
		d.listener.OnSystemEvent(SystemEvent{
			StockLocate:    binary.BigEndian.Uint16(b[1:]),
			TrackingNumber: binary.BigEndian.Uint16(b[3:]),
			Timestamp:      timestamp(b),
			EventCode:      b[13],
		})
		d.Messages++

	case TypeStockDirectory:
		if len(b) < sizeStockDirectory {
			d.Skipped++
			return
		}
		m := StockDirectory{
			StockLocate:    binary.BigEndian.Uint16(b[1:]),
			TrackingNumber: binary.BigEndian.Uint16(b[3:]),
			Timestamp:      timestamp(b),
			MarketCategory: b[21],
			LotSize:        binary.BigEndian.Uint32(b[23:]),
		}
		copy(m.Stock[:], b[13:21])
		d.listener.OnStockDirectory(m)
		d.Messages++

	case TypeAddOrder:
		if len(b) < sizeAddOrder {
			d.Skipped++
			return
		}
		d.listener.OnAddOrder(decodeAddOrder(b, false))
		d.Messages++

	case TypeAddOrderMPID:
		if len(b) < sizeAddOrderMPID {
			d.Skipped++
			return
		}
		d.listener.OnAddOrder(decodeAddOrder(b, true))
		d.Messages++

	case TypeOrderExecuted:
		if len(b) < sizeOrderExecuted {
			d.Skipped++
			return
		}
		d.listener.OnOrderExecuted(OrderExecuted{
			StockLocate:    binary.BigEndian.Uint16(b[1:]),
			TrackingNumber: binary.BigEndian.Uint16(b[3:]),
			Timestamp:      timestamp(b),
			OrderRef:       binary.BigEndian.Uint64(b[13:]),
			ExecutedShares: binary.BigEndian.Uint32(b[21:]),
			MatchNumber:    binary.BigEndian.Uint64(b[25:]),
		})
		d.Messages++

	case TypeOrderExecutedWithPrice:
		if len(b) < sizeOrderExecutedWithPrice {
			d.Skipped++
			return
		}
		d.listener.OnOrderExecuted(OrderExecuted{
			StockLocate:    binary.BigEndian.Uint16(b[1:]),
			TrackingNumber: binary.BigEndian.Uint16(b[3:]),
			Timestamp:      timestamp(b),
			OrderRef:       binary.BigEndian.Uint64(b[13:]),
			ExecutedShares: binary.BigEndian.Uint32(b[21:]),
			MatchNumber:    binary.BigEndian.Uint64(b[25:]),
			HasPrice:       true,
			ExecutionPrice: binary.BigEndian.Uint32(b[34:]),
		})
		d.Messages++

	case TypeOrderCancel:
		if len(b) < sizeOrderCancel {
			d.Skipped++
			return
		}
		d.listener.OnOrderCancel(OrderCancel{
			StockLocate:     binary.BigEndian.Uint16(b[1:]),
			TrackingNumber:  binary.BigEndian.Uint16(b[3:]),
			Timestamp:       timestamp(b),
			OrderRef:        binary.BigEndian.Uint64(b[13:]),
			CancelledShares: binary.BigEndian.Uint32(b[21:]),
		})
		d.Messages++

	case TypeOrderDelete:
		if len(b) < sizeOrderDelete {
			d.Skipped++
			return
		}
		d.listener.OnOrderDelete(OrderDelete{
			StockLocate:    binary.BigEndian.Uint16(b[1:]),
			TrackingNumber: binary.BigEndian.Uint16(b[3:]),
			Timestamp:      timestamp(b),
			OrderRef:       binary.BigEndian.Uint64(b[13:]),
		})
		d.Messages++

	case TypeOrderReplace:
		if len(b) < sizeOrderReplace {
			d.Skipped++
			return
		}
		d.listener.OnOrderReplace(OrderReplace{
			StockLocate:    binary.BigEndian.Uint16(b[1:]),
			TrackingNumber: binary.BigEndian.Uint16(b[3:]),
			Timestamp:      timestamp(b),
			OriginalRef:    binary.BigEndian.Uint64(b[13:]),
			NewRef:         binary.BigEndian.Uint64(b[21:]),
			Shares:         binary.BigEndian.Uint32(b[29:]),
			Price:          binary.BigEndian.Uint32(b[33:]),
		})
		d.Messages++

	case TypeTrade:
		if len(b) < sizeTrade {
			d.Skipped++
			return
		}
		m := Trade{
			StockLocate:    binary.BigEndian.Uint16(b[1:]),
			TrackingNumber: binary.BigEndian.Uint16(b[3:]),
			Timestamp:      timestamp(b),
			OrderRef:       binary.BigEndian.Uint64(b[13:]),
			Side:           Side(b[21]),
			Shares:         binary.BigEndian.Uint32(b[22:]),
			Price:          binary.BigEndian.Uint32(b[34:]),
			MatchNumber:    binary.BigEndian.Uint64(b[38:]),
		}
		copy(m.Stock[:], b[26:34])
		d.listener.OnTrade(m)
		d.Messages++

	case TypeCrossTrade:
		if len(b) < sizeCrossTrade {
			d.Skipped++
			return
		}
		m := CrossTrade{
			StockLocate:    binary.BigEndian.Uint16(b[1:]),
			TrackingNumber: binary.BigEndian.Uint16(b[3:]),
			Timestamp:      timestamp(b),
			Shares:         binary.BigEndian.Uint64(b[13:]),
			CrossPrice:     binary.BigEndian.Uint32(b[29:]),
			MatchNumber:    binary.BigEndian.Uint64(b[33:]),
			CrossType:      b[41],
		}
		copy(m.Stock[:], b[21:29])
		d.listener.OnCrossTrade(m)
		d.Messages++

	default:
		d.Skipped++
	}
}

func decodeAddOrder(b []byte, mpid bool) AddOrder {
	m := AddOrder{
		StockLocate:    binary.BigEndian.Uint16(b[1:]),
		TrackingNumber: binary.BigEndian.Uint16(b[3:]),
		Timestamp:      timestamp(b),
		OrderRef:       binary.BigEndian.Uint64(b[13:]),
		Side:           Side(b[21]),
		Shares:         binary.BigEndian.Uint32(b[22:]),
		Price:          binary.BigEndian.Uint32(b[34:]),
	}
	copy(m.Stock[:], b[26:34])
	if mpid {
		copy(m.MPID[:], b[38:42])
	}
	return m
}

// timestamp extracts the 48-bit value carried in the top 6 bytes of the
// 8-byte field at offset 5.
func timestamp(b []byte) uint64 {
	return binary.BigEndian.Uint64(b[5:13]) >> 16
}
