package itch

import "encoding/binary"

// Encoding is used by the simulator and by tests; each Append* writes one
// framed message (2-byte big-endian length prefix plus body) onto dst.

func appendHeader(dst []byte, t MsgType, bodyLen int, locate, tracking uint16, ts uint64) []byte {
	dst = binary.BigEndian.AppendUint16(dst, uint16(bodyLen))
	dst = append(dst, byte(t))
	dst = binary.BigEndian.AppendUint16(dst, locate)
	dst = binary.BigEndian.AppendUint16(dst, tracking)
	dst = binary.BigEndian.AppendUint64(dst, ts<<16)
	return dst
}

func AppendSystemEvent(dst []byte, m SystemEvent) []byte {
	dst = appendHeader(dst, TypeSystemEvent, sizeSystemEvent, m.StockLocate, m.TrackingNumber, m.Timestamp)
	return append(dst, m.EventCode)
}

func AppendAddOrder(dst []byte, m AddOrder) []byte {
	dst = appendHeader(dst, TypeAddOrder, sizeAddOrder, m.StockLocate, m.TrackingNumber, m.Timestamp)
	dst = binary.BigEndian.AppendUint64(dst, m.OrderRef)
	dst = append(dst, byte(m.Side))
	dst = binary.BigEndian.AppendUint32(dst, m.Shares)
	dst = append(dst, m.Stock[:]...)
	return binary.BigEndian.AppendUint32(dst, m.Price)
}

func AppendOrderExecuted(dst []byte, m OrderExecuted) []byte {
	dst = appendHeader(dst, TypeOrderExecuted, sizeOrderExecuted, m.StockLocate, m.TrackingNumber, m.Timestamp)
	dst = binary.BigEndian.AppendUint64(dst, m.OrderRef)
	dst = binary.BigEndian.AppendUint32(dst, m.ExecutedShares)
	return binary.BigEndian.AppendUint64(dst, m.MatchNumber)
}

func AppendOrderCancel(dst []byte, m OrderCancel) []byte {
	dst = appendHeader(dst, TypeOrderCancel, sizeOrderCancel, m.StockLocate, m.TrackingNumber, m.Timestamp)
	dst = binary.BigEndian.AppendUint64(dst, m.OrderRef)
	return binary.BigEndian.AppendUint32(dst, m.CancelledShares)
}

func AppendOrderDelete(dst []byte, m OrderDelete) []byte {
	dst = appendHeader(dst, TypeOrderDelete, sizeOrderDelete, m.StockLocate, m.TrackingNumber, m.Timestamp)
	return binary.BigEndian.AppendUint64(dst, m.OrderRef)
}

func AppendOrderReplace(dst []byte, m OrderReplace) []byte {
	dst = appendHeader(dst, TypeOrderReplace, sizeOrderReplace, m.StockLocate, m.TrackingNumber, m.Timestamp)
	dst = binary.BigEndian.AppendUint64(dst, m.OriginalRef)
	dst = binary.BigEndian.AppendUint64(dst, m.NewRef)
	dst = binary.BigEndian.AppendUint32(dst, m.Shares)
	return binary.BigEndian.AppendUint32(dst, m.Price)
}

func AppendTrade(dst []byte, m Trade) []byte {
	dst = appendHeader(dst, TypeTrade, sizeTrade, m.StockLocate, m.TrackingNumber, m.Timestamp)
	dst = binary.BigEndian.AppendUint64(dst, m.OrderRef)
	dst = append(dst, byte(m.Side))
	dst = binary.BigEndian.AppendUint32(dst, m.Shares)
	dst = append(dst, m.Stock[:]...)
	dst = binary.BigEndian.AppendUint32(dst, m.Price)
	return binary.BigEndian.AppendUint64(dst, m.MatchNumber)
}
