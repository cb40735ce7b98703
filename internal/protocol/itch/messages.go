// Package itch decodes the per-order inbound dialect: datagrams carrying
// one or more length-prefixed messages, big-endian integers, 8-byte
// space-padded symbols, u32 prices with 4 implied decimal places.
package itch

import "strings"

// MsgType is the single-character code at offset 0 of every message body.
type MsgType byte

const (
	TypeSystemEvent            MsgType = 'S'
	TypeStockDirectory         MsgType = 'R'
	TypeAddOrder               MsgType = 'A'
	TypeAddOrderMPID           MsgType = 'F'
	TypeOrderExecuted          MsgType = 'E'
	TypeOrderExecutedWithPrice MsgType = 'C'
	TypeOrderCancel            MsgType = 'X'
	TypeOrderDelete            MsgType = 'D'
	TypeOrderReplace           MsgType = 'U'
	TypeTrade                  MsgType = 'P'
	TypeCrossTrade             MsgType = 'Q'
)

// Side of a resting order.
type Side byte

const (
	SideBuy  Side = 'B'
	SideSell Side = 'S'
)

// Opposite returns the aggressor side for an execution against this side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Body sizes, including the type byte. A body shorter than its declared
// type's size is skipped by the decoder.
const (
	sizeSystemEvent            = 14
	sizeStockDirectory         = 41
	sizeAddOrder               = 38
	sizeAddOrderMPID           = 42
	sizeOrderExecuted          = 33
	sizeOrderExecutedWithPrice = 38
	sizeOrderCancel            = 25
	sizeOrderDelete            = 21
	sizeOrderReplace           = 37
	sizeTrade                  = 46
	sizeCrossTrade             = 42
)

// Symbol is the 8-byte space-padded instrument identifier.
type Symbol [8]byte

// String trims the trailing space padding.
func (s Symbol) String() string {
	return strings.TrimRight(string(s[:]), " ")
}

// MakeSymbol space-pads a string into canonical form, truncating past 8 bytes.
func MakeSymbol(s string) Symbol {
	var sym Symbol
	copy(sym[:], "        ")
	copy(sym[:], s)
	return sym
}

type SystemEvent struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	EventCode      byte
}

type StockDirectory struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	Stock          Symbol
	MarketCategory byte
	LotSize        uint32
}

type AddOrder struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	OrderRef       uint64
	Side           Side
	Shares         uint32
	Stock          Symbol
	Price          uint32
	MPID           [4]byte // zero for the plain variant
}

type OrderExecuted struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	OrderRef       uint64
	ExecutedShares uint32
	MatchNumber    uint64
	HasPrice       bool
	ExecutionPrice uint32
}

type OrderCancel struct {
	StockLocate     uint16
	TrackingNumber  uint16
	Timestamp       uint64
	OrderRef        uint64
	CancelledShares uint32
}

type OrderDelete struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	OrderRef       uint64
}

type OrderReplace struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	OriginalRef    uint64
	NewRef         uint64
	Shares         uint32
	Price          uint32
}

type Trade struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	OrderRef       uint64
	Side           Side
	Shares         uint32
	Stock          Symbol
	Price          uint32
	MatchNumber    uint64
}

type CrossTrade struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
	Shares         uint64
	Stock          Symbol
	CrossPrice     uint32
	MatchNumber    uint64
	CrossType      byte
}
