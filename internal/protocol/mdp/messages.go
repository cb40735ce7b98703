// Package mdp decodes the price-level inbound dialect: a 12-byte packet
// header followed by back-to-back SBE messages, all integers
// little-endian, prices i64 with 7 implied decimal places.
package mdp

// SBE template ids recognized on the inbound channels.
const (
	TemplateChannelReset       = 4
	TemplateHeartbeat          = 12
	TemplateSecurityDefinition = 27
	TemplateIncrementalRefresh = 32
	TemplateSnapshotRefresh    = 38
)

// EntryType tags the side or nature of an update entry.
type EntryType uint8

const (
	EntryBid          EntryType = 0
	EntryOffer        EntryType = 1
	EntryTrade        EntryType = 2
	EntryImpliedBid   EntryType = 'E'
	EntryImpliedOffer EntryType = 'F'
)

// IsBid reports whether the entry targets the bid array.
func (t EntryType) IsBid() bool { return t == EntryBid || t == EntryImpliedBid }

// IsOffer reports whether the entry targets the ask array.
func (t EntryType) IsOffer() bool { return t == EntryOffer || t == EntryImpliedOffer }

// UpdateAction selects the book mutation applied at the entry's level.
type UpdateAction uint8

const (
	ActionNew UpdateAction = iota
	ActionChange
	ActionDelete
	ActionDeleteThru
	ActionDeleteFrom
	ActionOverlay
)

// Wire sizes.
const (
	packetHeaderSize = 12
	sbeHeaderSize    = 8
	groupHeaderSize  = 3

	secDefBlockLength    = 37
	incrementalBlockLen  = 8 // transact_time only
	snapshotBlockLen     = 20
	IncrementalEntrySize = 24
	SnapshotEntrySize    = 16
)

// PacketHeader leads every datagram on both inbound groups.
type PacketHeader struct {
	PacketSeq   uint32
	SendingTime uint64
}

// SecurityDefinition announces an instrument on the incremental channel.
type SecurityDefinition struct {
	SecurityID        uint32
	Symbol            string // trimmed of trailing NULs
	MinPriceIncrement int64
	DisplayFactor     uint32
	TradingStatus     uint8
}

// IncrementalEntry is one update inside an MD-Incremental-Refresh group.
type IncrementalEntry struct {
	Price          int64
	Size           int32
	SecurityID     uint32
	RptSeq         uint32
	EntryType      EntryType
	UpdateAction   UpdateAction
	PriceLevel     uint8
	NumberOfOrders uint8
}

// IncrementalRefresh carries the root transact time plus its entries.
type IncrementalRefresh struct {
	TransactTime uint64
	Entries      []IncrementalEntry
}

// SnapshotEntry is one level inside an MD-Snapshot-Full-Refresh group.
type SnapshotEntry struct {
	Price          int64
	Size           int32
	EntryType      EntryType
	PriceLevel     uint8
	NumberOfOrders uint8
}

// SnapshotRefresh replaces an entire book during recovery.
type SnapshotRefresh struct {
	LastMsgSeq   uint32
	SecurityID   uint32
	RptSeq       uint32
	TransactTime uint64
	Entries      []SnapshotEntry
}

// ChannelReset instructs the handler to drop all state.
type ChannelReset struct {
	TransactTime uint64
}

// Heartbeat keeps the channel alive between updates.
type Heartbeat struct {
	LastSeq uint64
}

// FixedPointPrice converts a 7-decimal mantissa to the 4-decimal u32 form
// shared with the per-order pipeline. The conversion is exact for
// multiples of 1000 (whole 0.0001 units); finer digits are truncated, so a
// mantissa below 1000 becomes 0.
func FixedPointPrice(p int64) uint32 {
	return uint32(p / 1000)
}

// SBEPrice converts a 4-decimal u32 price to the 7-decimal mantissa.
func SBEPrice(p uint32) int64 {
	return int64(p) * 1000
}
