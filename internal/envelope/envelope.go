// Package envelope implements the length-prefixed outbound container of
// the per-order pipeline. All integers are little-endian; the length
// field covers the whole envelope including the 12-byte header.
package envelope

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Aidin1998/feedhandler/internal/md"
)

// Type selects the body layout.
type Type uint8

const (
	TypeHeartbeat Type = 0
	TypeSnapshot  Type = 1
	TypeTrade     Type = 2
	TypeQuote     Type = 3
)

func (t Type) String() string {
	switch t {
	case TypeHeartbeat:
		return "heartbeat"
	case TypeSnapshot:
		return "snapshot"
	case TypeTrade:
		return "trade"
	case TypeQuote:
		return "quote"
	}
	return "unknown"
}

// HeaderSize is the fixed envelope header: length u16, type u8, flags u8,
// timestamp u64.
const HeaderSize = 12

var (
	ErrShort      = errors.New("envelope: buffer shorter than declared length")
	ErrBadBody    = errors.New("envelope: body does not match declared type")
	ErrDepthRange = errors.New("envelope: level count exceeds maximum depth")
)

// Message is a decoded envelope. Exactly one body pointer is non-nil for
// non-heartbeat types.
type Message struct {
	Type      Type
	Flags     uint8
	Timestamp uint64

	Snapshot *md.Snapshot
	Quote    *md.Quote
	Trade    *md.TradeTick
}

func appendHeader(dst []byte, t Type, flags uint8, ts uint64, total int) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, uint16(total))
	dst = append(dst, byte(t), flags)
	return binary.LittleEndian.AppendUint64(dst, ts)
}

// AppendHeartbeat writes a type-0 envelope with an empty body.
func AppendHeartbeat(dst []byte, ts uint64) []byte {
	return appendHeader(dst, TypeHeartbeat, 0, ts, HeaderSize)
}

// AppendSnapshot writes a full book snapshot envelope.
func AppendSnapshot(dst []byte, s *md.Snapshot) []byte {
	total := HeaderSize + snapshotBodySize(s)
	dst = appendHeader(dst, TypeSnapshot, 0, s.Timestamp, total)
	dst = append(dst, s.Symbol[:]...)
	dst = binary.LittleEndian.AppendUint64(dst, s.Timestamp)
	dst = binary.LittleEndian.AppendUint64(dst, s.Sequence)
	dst = appendSide(dst, s.Bids)
	dst = appendSide(dst, s.Asks)
	dst = binary.LittleEndian.AppendUint32(dst, s.LastPrice)
	dst = binary.LittleEndian.AppendUint32(dst, s.LastQty)
	return binary.LittleEndian.AppendUint64(dst, s.TotalVolume)
}

func snapshotBodySize(s *md.Snapshot) int {
	return 8 + 8 + 8 + 1 + len(s.Bids)*12 + 1 + len(s.Asks)*12 + 4 + 4 + 8
}

func appendSide(dst []byte, levels []md.Level) []byte {
	dst = append(dst, uint8(len(levels)))
	for _, lv := range levels {
		dst = binary.LittleEndian.AppendUint32(dst, lv.Price)
		dst = binary.LittleEndian.AppendUint32(dst, lv.Quantity)
		dst = binary.LittleEndian.AppendUint32(dst, lv.OrderCount)
	}
	return dst
}

// AppendQuote writes a BBO envelope.
func AppendQuote(dst []byte, q *md.Quote) []byte {
	dst = appendHeader(dst, TypeQuote, 0, q.Timestamp, HeaderSize+40)
	dst = append(dst, q.Symbol[:]...)
	dst = binary.LittleEndian.AppendUint64(dst, q.Timestamp)
	dst = binary.LittleEndian.AppendUint64(dst, q.Sequence)
	dst = binary.LittleEndian.AppendUint32(dst, q.BidPrice)
	dst = binary.LittleEndian.AppendUint32(dst, q.BidQty)
	dst = binary.LittleEndian.AppendUint32(dst, q.AskPrice)
	return binary.LittleEndian.AppendUint32(dst, q.AskQty)
}

// AppendTrade writes a trade tick envelope.
func AppendTrade(dst []byte, t *md.TradeTick) []byte {
	dst = appendHeader(dst, TypeTrade, 0, t.Timestamp, HeaderSize+41)
	dst = append(dst, t.Symbol[:]...)
	dst = binary.LittleEndian.AppendUint64(dst, t.Timestamp)
	dst = binary.LittleEndian.AppendUint64(dst, t.Sequence)
	dst = binary.LittleEndian.AppendUint32(dst, t.Price)
	dst = binary.LittleEndian.AppendUint32(dst, t.Quantity)
	dst = append(dst, t.Side)
	return binary.LittleEndian.AppendUint64(dst, t.MatchNumber)
}

// Decode parses one envelope from the front of b.
func Decode(b []byte) (Message, error) {
	if len(b) < HeaderSize {
		return Message{}, ErrShort
	}
	total := int(binary.LittleEndian.Uint16(b))
	if total < HeaderSize || total > len(b) {
		return Message{}, ErrShort
	}

	msg := Message{
		Type:      Type(b[2]),
		Flags:     b[3],
		Timestamp: binary.LittleEndian.Uint64(b[4:]),
	}
	body := b[HeaderSize:total]

	switch msg.Type {
	case TypeHeartbeat:
		return msg, nil

	case TypeSnapshot:
		s, err := decodeSnapshot(body)
		if err != nil {
			return Message{}, err
		}
		msg.Snapshot = s
		return msg, nil

	case TypeQuote:
		if len(body) != 40 {
			return Message{}, ErrBadBody
		}
		q := &md.Quote{
			Timestamp: binary.LittleEndian.Uint64(body[8:]),
			Sequence:  binary.LittleEndian.Uint64(body[16:]),
			BidPrice:  binary.LittleEndian.Uint32(body[24:]),
			BidQty:    binary.LittleEndian.Uint32(body[28:]),
			AskPrice:  binary.LittleEndian.Uint32(body[32:]),
			AskQty:    binary.LittleEndian.Uint32(body[36:]),
		}
		copy(q.Symbol[:], body[:8])
		msg.Quote = q
		return msg, nil

	case TypeTrade:
		if len(body) != 41 {
			return Message{}, ErrBadBody
		}
		tr := &md.TradeTick{
			Timestamp:   binary.LittleEndian.Uint64(body[8:]),
			Sequence:    binary.LittleEndian.Uint64(body[16:]),
			Price:       binary.LittleEndian.Uint32(body[24:]),
			Quantity:    binary.LittleEndian.Uint32(body[28:]),
			Side:        body[32],
			MatchNumber: binary.LittleEndian.Uint64(body[33:]),
		}
		copy(tr.Symbol[:], body[:8])
		msg.Trade = tr
		return msg, nil

	default:
		return Message{}, fmt.Errorf("envelope: unknown type %d", msg.Type)
	}
}

func decodeSnapshot(body []byte) (*md.Snapshot, error) {
	if len(body) < 25 {
		return nil, ErrBadBody
	}
	s := &md.Snapshot{
		Timestamp: binary.LittleEndian.Uint64(body[8:]),
		Sequence:  binary.LittleEndian.Uint64(body[16:]),
	}
	copy(s.Symbol[:], body[:8])

	off := 24
	var err error
	s.Bids, off, err = decodeSide(body, off)
	if err != nil {
		return nil, err
	}
	s.Asks, off, err = decodeSide(body, off)
	if err != nil {
		return nil, err
	}
	if len(body)-off != 16 {
		return nil, ErrBadBody
	}
	s.LastPrice = binary.LittleEndian.Uint32(body[off:])
	s.LastQty = binary.LittleEndian.Uint32(body[off+4:])
	s.TotalVolume = binary.LittleEndian.Uint64(body[off+8:])
	return s, nil
}

func decodeSide(body []byte, off int) ([]md.Level, int, error) {
	if off >= len(body) {
		return nil, 0, ErrBadBody
	}
	count := int(body[off])
	off++
	if count > md.MaxDepth {
		return nil, 0, ErrDepthRange
	}
	if count == 0 {
		return nil, off, nil
	}
	if off+count*12 > len(body) {
		return nil, 0, ErrBadBody
	}
	levels := make([]md.Level, count)
	for i := 0; i < count; i++ {
		levels[i] = md.Level{
			Price:      binary.LittleEndian.Uint32(body[off:]),
			Quantity:   binary.LittleEndian.Uint32(body[off+4:]),
			OrderCount: binary.LittleEndian.Uint32(body[off+8:]),
		}
		off += 12
	}
	return levels, off, nil
}
