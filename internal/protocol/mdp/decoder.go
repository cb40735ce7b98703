package mdp

import (
	"encoding/binary"
	"strings"
)

// Listener receives decoded messages in packet order.
type Listener interface {
	OnSecurityDefinition(SecurityDefinition)
	OnIncrementalRefresh(IncrementalRefresh)
	OnSnapshotRefresh(SnapshotRefresh)
	OnChannelReset(ChannelReset)
	OnHeartbeat(Heartbeat)
}

// Decoder walks datagrams from either inbound group. Unknown templates are
// skipped by their declared block length; a group that overruns the
// datagram stops the walk for that datagram.
type Decoder struct {
	listener Listener

	Messages uint64
	Skipped  uint64
	Errors   uint64
}

func NewDecoder(l Listener) *Decoder {
	return &Decoder{listener: l}
}

// Decode parses one datagram and returns its packet header. ok is false
// when the datagram is shorter than the packet header.
func (d *Decoder) Decode(datagram []byte) (hdr PacketHeader, ok bool) {
	if len(datagram) < packetHeaderSize {
		d.Errors++
		return PacketHeader{}, false
	}
	hdr.PacketSeq = binary.LittleEndian.Uint32(datagram)
	hdr.SendingTime = binary.LittleEndian.Uint64(datagram[4:])

	offset := packetHeaderSize
	for offset+sbeHeaderSize <= len(datagram) {
		blockLength := int(binary.LittleEndian.Uint16(datagram[offset:]))
		templateID := binary.LittleEndian.Uint16(datagram[offset+2:])

		consumed, cont := d.decodeMessage(datagram[offset:], templateID, blockLength)
		if !cont {
			return hdr, true
		}
		offset += consumed
	}
	return hdr, true
}

// decodeMessage decodes one SBE message starting at b[0]. It returns the
// number of bytes consumed and whether the walk should continue.
func (d *Decoder) decodeMessage(b []byte, templateID uint16, blockLength int) (int, bool) {
	root := b[sbeHeaderSize:]

	switch templateID {
	case TemplateSecurityDefinition:
		if len(root) < secDefBlockLength {
			d.Errors++
			return 0, false
		}
		m := SecurityDefinition{
			SecurityID:        binary.LittleEndian.Uint32(root),
			Symbol:            strings.TrimRight(string(root[4:24]), "\x00"),
			MinPriceIncrement: int64(binary.LittleEndian.Uint64(root[24:])),
			DisplayFactor:     binary.LittleEndian.Uint32(root[32:]),
			TradingStatus:     root[36],
		}
		d.listener.OnSecurityDefinition(m)
		d.Messages++
		return sbeHeaderSize + secDefBlockLength, true

	case TemplateIncrementalRefresh:
		if len(root) < incrementalBlockLen+groupHeaderSize {
			d.Errors++
			return 0, false
		}
		m := IncrementalRefresh{TransactTime: binary.LittleEndian.Uint64(root)}
		group := root[incrementalBlockLen:]
		entryLen := int(binary.LittleEndian.Uint16(group))
		count := int(group[2])
		entries := group[groupHeaderSize:]
		if entryLen < IncrementalEntrySize || len(entries) < count*entryLen {
			d.Errors++
			return 0, false
		}
		m.Entries = make([]IncrementalEntry, count)
		for i := 0; i < count; i++ {
			e := entries[i*entryLen:]
			m.Entries[i] = IncrementalEntry{
				Price:          int64(binary.LittleEndian.Uint64(e)),
				Size:           int32(binary.LittleEndian.Uint32(e[8:])),
				SecurityID:     binary.LittleEndian.Uint32(e[12:]),
				RptSeq:         binary.LittleEndian.Uint32(e[16:]),
				EntryType:      EntryType(e[20]),
				UpdateAction:   UpdateAction(e[21]),
				PriceLevel:     e[22],
				NumberOfOrders: e[23],
			}
		}
		d.listener.OnIncrementalRefresh(m)
		d.Messages++
		return sbeHeaderSize + incrementalBlockLen + groupHeaderSize + count*entryLen, true

	case TemplateSnapshotRefresh:
		if len(root) < snapshotBlockLen+groupHeaderSize {
			d.Errors++
			return 0, false
		}
		m := SnapshotRefresh{
			LastMsgSeq:   binary.LittleEndian.Uint32(root),
			SecurityID:   binary.LittleEndian.Uint32(root[4:]),
			RptSeq:       binary.LittleEndian.Uint32(root[8:]),
			TransactTime: binary.LittleEndian.Uint64(root[12:]),
		}
		group := root[snapshotBlockLen:]
		entryLen := int(binary.LittleEndian.Uint16(group))
		count := int(group[2])
		entries := group[groupHeaderSize:]
		if entryLen < SnapshotEntrySize || len(entries) < count*entryLen {
			d.Errors++
			return 0, false
		}
		m.Entries = make([]SnapshotEntry, count)
		for i := 0; i < count; i++ {
			e := entries[i*entryLen:]
			m.Entries[i] = SnapshotEntry{
				Price:          int64(binary.LittleEndian.Uint64(e)),
				Size:           int32(binary.LittleEndian.Uint32(e[8:])),
				EntryType:      EntryType(e[12]),
				PriceLevel:     e[13],
				NumberOfOrders: e[14],
			}
		}
		d.listener.OnSnapshotRefresh(m)
		d.Messages++
		return sbeHeaderSize + snapshotBlockLen + groupHeaderSize + count*entryLen, true

	case TemplateChannelReset:
		if len(root) < 8 {
			d.Errors++
			return 0, false
		}
		d.listener.OnChannelReset(ChannelReset{TransactTime: binary.LittleEndian.Uint64(root)})
		d.Messages++
		return sbeHeaderSize + blockLength, true

	case TemplateHeartbeat:
		if len(root) < 8 {
			d.Errors++
			return 0, false
		}
		d.listener.OnHeartbeat(Heartbeat{LastSeq: binary.LittleEndian.Uint64(root)})
		d.Messages++
		return sbeHeaderSize + blockLength, true

	default:
		// Unknown template: skip header plus the declared root block.
		d.Skipped++
		return sbeHeaderSize + blockLength, true
	}
}
