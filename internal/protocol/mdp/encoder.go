package mdp

import "encoding/binary"

// Encoding is used by the simulator and by tests. Each Append* writes one
// SBE message; AppendPacketHeader starts a datagram.

const schemaID = 1
const schemaVersion = 9

func AppendPacketHeader(dst []byte, h PacketHeader) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, h.PacketSeq)
	return binary.LittleEndian.AppendUint64(dst, h.SendingTime)
}

func appendSBEHeader(dst []byte, blockLength, templateID uint16) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, blockLength)
	dst = binary.LittleEndian.AppendUint16(dst, templateID)
	dst = binary.LittleEndian.AppendUint16(dst, schemaID)
	return binary.LittleEndian.AppendUint16(dst, schemaVersion)
}

func AppendSecurityDefinition(dst []byte, m SecurityDefinition) []byte {
	dst = appendSBEHeader(dst, secDefBlockLength, TemplateSecurityDefinition)
	dst = binary.LittleEndian.AppendUint32(dst, m.SecurityID)
	var sym [20]byte
	copy(sym[:], m.Symbol)
	dst = append(dst, sym[:]...)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(m.MinPriceIncrement))
	dst = binary.LittleEndian.AppendUint32(dst, m.DisplayFactor)
	return append(dst, m.TradingStatus)
}

func AppendIncrementalRefresh(dst []byte, m IncrementalRefresh) []byte {
	dst = appendSBEHeader(dst, incrementalBlockLen, TemplateIncrementalRefresh)
	dst = binary.LittleEndian.AppendUint64(dst, m.TransactTime)
	dst = binary.LittleEndian.AppendUint16(dst, IncrementalEntrySize)
	dst = append(dst, uint8(len(m.Entries)))
	for _, e := range m.Entries {
		dst = binary.LittleEndian.AppendUint64(dst, uint64(e.Price))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(e.Size))
		dst = binary.LittleEndian.AppendUint32(dst, e.SecurityID)
		dst = binary.LittleEndian.AppendUint32(dst, e.RptSeq)
		dst = append(dst, byte(e.EntryType), byte(e.UpdateAction), e.PriceLevel, e.NumberOfOrders)
	}
	return dst
}

func AppendSnapshotRefresh(dst []byte, m SnapshotRefresh) []byte {
	dst = appendSBEHeader(dst, snapshotBlockLen, TemplateSnapshotRefresh)
	dst = binary.LittleEndian.AppendUint32(dst, m.LastMsgSeq)
	dst = binary.LittleEndian.AppendUint32(dst, m.SecurityID)
	dst = binary.LittleEndian.AppendUint32(dst, m.RptSeq)
	dst = binary.LittleEndian.AppendUint64(dst, m.TransactTime)
	dst = binary.LittleEndian.AppendUint16(dst, SnapshotEntrySize)
	dst = append(dst, uint8(len(m.Entries)))
	for _, e := range m.Entries {
		dst = binary.LittleEndian.AppendUint64(dst, uint64(e.Price))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(e.Size))
		dst = append(dst, byte(e.EntryType), e.PriceLevel, e.NumberOfOrders, 0)
	}
	return dst
}

func AppendChannelReset(dst []byte, m ChannelReset) []byte {
	dst = appendSBEHeader(dst, 8, TemplateChannelReset)
	return binary.LittleEndian.AppendUint64(dst, m.TransactTime)
}

func AppendHeartbeat(dst []byte, m Heartbeat) []byte {
	dst = appendSBEHeader(dst, 8, TemplateHeartbeat)
	return binary.LittleEndian.AppendUint64(dst, m.LastSeq)
}
