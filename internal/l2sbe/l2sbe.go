// Package l2sbe implements the SBE-framed outbound envelope of the
// price-level pipeline: an 8-byte header, a fixed root block, and two
// repeating level groups. All integers are little-endian. Schema id 1,
// version 1.
package l2sbe

import (
	"encoding/binary"
	"errors"

	"github.com/Aidin1998/feedhandler/internal/md"
	"github.com/Aidin1998/feedhandler/internal/protocol/mdp"
)

const (
	SchemaID      = 1
	SchemaVersion = 1

	TemplateHeartbeat  = 1
	TemplateL2Snapshot = 2

	headerSize        = 8
	groupHeaderSize   = 3
	snapshotRootSize  = 46
	heartbeatRootSize = 16
	entrySize         = 15
)

var ErrMalformed = errors.New("l2sbe: malformed message")

// Entry is one published price level. Price carries 7 implied decimals.
type Entry struct {
	Level     uint8
	Price     int64
	Quantity  uint32
	NumOrders uint16
}

// Snapshot is the decoded form of an L2Snapshot message.
type Snapshot struct {
	Symbol      md.Symbol
	Timestamp   uint64
	Sequence    uint64
	LastPrice   int64
	LastQty     uint32
	TotalVolume uint64
	Bids        []Entry
	Asks        []Entry
}

// Heartbeat is the decoded form of a heartbeat message.
type Heartbeat struct {
	Timestamp uint64
	Sequence  uint64
}

func appendHeader(dst []byte, blockLength, templateID uint16) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, blockLength)
	dst = binary.LittleEndian.AppendUint16(dst, templateID)
	dst = binary.LittleEndian.AppendUint16(dst, SchemaID)
	return binary.LittleEndian.AppendUint16(dst, SchemaVersion)
}

// AppendSnapshot encodes a normalized snapshot, converting 4-decimal
// prices to the 7-decimal wire form. Each side's levels are numbered
// 1-based in publish order.
func AppendSnapshot(dst []byte, s *md.Snapshot) []byte {
	dst = appendHeader(dst, snapshotRootSize, TemplateL2Snapshot)
	dst = append(dst, s.Symbol[:]...)
	dst = binary.LittleEndian.AppendUint64(dst, s.Timestamp)
	dst = binary.LittleEndian.AppendUint64(dst, s.Sequence)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(mdp.SBEPrice(s.LastPrice)))
	dst = binary.LittleEndian.AppendUint32(dst, s.LastQty)
	dst = binary.LittleEndian.AppendUint64(dst, s.TotalVolume)
	dst = append(dst, uint8(len(s.Bids)), uint8(len(s.Asks)))
	dst = appendGroup(dst, s.Bids)
	return appendGroup(dst, s.Asks)
}

func appendGroup(dst []byte, levels []md.Level) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, entrySize)
	dst = append(dst, uint8(len(levels)))
	for i, lv := range levels {
		dst = append(dst, uint8(i+1))
		dst = binary.LittleEndian.AppendUint64(dst, uint64(mdp.SBEPrice(lv.Price)))
		dst = binary.LittleEndian.AppendUint32(dst, lv.Quantity)
		dst = binary.LittleEndian.AppendUint16(dst, uint16(lv.OrderCount))
	}
	return dst
}

// AppendHeartbeat encodes a template-1 heartbeat.
func AppendHeartbeat(dst []byte, ts, seq uint64) []byte {
	dst = appendHeader(dst, heartbeatRootSize, TemplateHeartbeat)
	dst = binary.LittleEndian.AppendUint64(dst, ts)
	return binary.LittleEndian.AppendUint64(dst, seq)
}

// DecodeTemplate peeks the template id without consuming the buffer.
func DecodeTemplate(b []byte) (uint16, error) {
	if len(b) < headerSize {
		return 0, ErrMalformed
	}
	return binary.LittleEndian.Uint16(b[2:]), nil
}

// DecodeSnapshot parses an L2Snapshot message.
func DecodeSnapshot(b []byte) (*Snapshot, error) {
	if len(b) < headerSize+snapshotRootSize {
		return nil, ErrMalformed
	}
	if binary.LittleEndian.Uint16(b[2:]) != TemplateL2Snapshot {
		return nil, ErrMalformed
	}
	root := b[headerSize:]
	s := &Snapshot{
		Timestamp:   binary.LittleEndian.Uint64(root[8:]),
		Sequence:    binary.LittleEndian.Uint64(root[16:]),
		LastPrice:   int64(binary.LittleEndian.Uint64(root[24:])),
		LastQty:     binary.LittleEndian.Uint32(root[32:]),
		TotalVolume: binary.LittleEndian.Uint64(root[36:]),
	}
	copy(s.Symbol[:], root[:8])
	bidCount := int(root[44])
	askCount := int(root[45])

	rest := root[snapshotRootSize:]
	var err error
	s.Bids, rest, err = decodeGroup(rest)
	if err != nil {
		return nil, err
	}
	s.Asks, _, err = decodeGroup(rest)
	if err != nil {
		return nil, err
	}
	if len(s.Bids) != bidCount || len(s.Asks) != askCount {
		return nil, ErrMalformed
	}
	return s, nil
}

func decodeGroup(b []byte) ([]Entry, []byte, error) {
	if len(b) < groupHeaderSize {
		return nil, nil, ErrMalformed
	}
	entryLen := int(binary.LittleEndian.Uint16(b))
	count := int(b[2])
	b = b[groupHeaderSize:]
	if entryLen < entrySize || len(b) < count*entryLen {
		return nil, nil, ErrMalformed
	}
	if count == 0 {
		return nil, b, nil
	}
	entries := make([]Entry, count)
	for i := 0; i < count; i++ {
		e := b[i*entryLen:]
		entries[i] = Entry{
			Level:     e[0],
			Price:     int64(binary.LittleEndian.Uint64(e[1:])),
			Quantity:  binary.LittleEndian.Uint32(e[9:]),
			NumOrders: binary.LittleEndian.Uint16(e[13:]),
		}
	}
	return entries, b[count*entryLen:], nil
}

// DecodeHeartbeat parses a template-1 heartbeat.
func DecodeHeartbeat(b []byte) (Heartbeat, error) {
	if len(b) < headerSize+heartbeatRootSize {
		return Heartbeat{}, ErrMalformed
	}
	if binary.LittleEndian.Uint16(b[2:]) != TemplateHeartbeat {
		return Heartbeat{}, ErrMalformed
	}
	return Heartbeat{
		Timestamp: binary.LittleEndian.Uint64(b[headerSize:]),
		Sequence:  binary.LittleEndian.Uint64(b[headerSize+8:]),
	}, nil
}
