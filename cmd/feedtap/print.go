package main

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Aidin1998/feedhandler/internal/envelope"
	"github.com/Aidin1998/feedhandler/internal/l2sbe"
	"github.com/Aidin1998/feedhandler/internal/md"
)

// price4 renders a 4-implied-decimal fixed-point price.
func price4(p uint32) string {
	return decimal.New(int64(p), -4).StringFixed(2)
}

// price7 renders a 7-implied-decimal SBE price.
func price7(p int64) string {
	return decimal.New(p, -7).StringFixed(2)
}

func formatEnvelope(b []byte) string {
	msg, err := envelope.Decode(b)
	if err != nil {
		return fmt.Sprintf("[?] undecodable envelope: %v", err)
	}

	switch msg.Type {
	case envelope.TypeQuote:
		q := msg.Quote
		return fmt.Sprintf("[QUOTE] %-8s | Bid: %10s x %6d | Ask: %10s x %6d | seq=%d",
			q.Symbol.String(), price4(q.BidPrice), q.BidQty, price4(q.AskPrice), q.AskQty, q.Sequence)

	case envelope.TypeTrade:
		t := msg.Trade
		return fmt.Sprintf("[TRADE] %-8s | Price: %10s | Qty: %6d | Side: %c | seq=%d",
			t.Symbol.String(), price4(t.Price), t.Quantity, t.Side, t.Sequence)

	case envelope.TypeSnapshot:
		return formatSnapshot(msg.Snapshot)

	case envelope.TypeHeartbeat:
		return fmt.Sprintf("[HB] ts=%d", msg.Timestamp)
	}
	return ""
}

func formatSnapshot(s *md.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "\n[SNAPSHOT] %s (seq=%d)\n", s.Symbol.String(), s.Sequence)
	sb.WriteString(strings.Repeat("-", 64) + "\n")
	fmt.Fprintf(&sb, "%30s | %30s\n", "BIDS", "ASKS")

	levels := len(s.Bids)
	if len(s.Asks) > levels {
		levels = len(s.Asks)
	}
	for i := 0; i < levels; i++ {
		if i < len(s.Bids) {
			bid := s.Bids[i]
			fmt.Fprintf(&sb, "%8d @ %10s (%3d)", bid.Quantity, price4(bid.Price), bid.OrderCount)
		} else {
			sb.WriteString(strings.Repeat(" ", 27))
		}
		sb.WriteString(" | ")
		if i < len(s.Asks) {
			ask := s.Asks[i]
			fmt.Fprintf(&sb, "%10s x %8d (%3d)", price4(ask.Price), ask.Quantity, ask.OrderCount)
		}
		sb.WriteString("\n")
	}

	if s.LastPrice > 0 {
		fmt.Fprintf(&sb, "Last: %s x %d | Volume: %d\n", price4(s.LastPrice), s.LastQty, s.TotalVolume)
	}
	sb.WriteString(strings.Repeat("-", 64))
	return sb.String()
}

func formatSBE(b []byte) string {
	tpl, err := l2sbe.DecodeTemplate(b)
	if err != nil {
		return fmt.Sprintf("[?] undecodable message: %v", err)
	}

	switch tpl {
	case l2sbe.TemplateHeartbeat:
		hb, err := l2sbe.DecodeHeartbeat(b)
		if err != nil {
			return fmt.Sprintf("[?] bad heartbeat: %v", err)
		}
		return fmt.Sprintf("[HB] ts=%d seq=%d", hb.Timestamp, hb.Sequence)

	case l2sbe.TemplateL2Snapshot:
		s, err := l2sbe.DecodeSnapshot(b)
		if err != nil {
			return fmt.Sprintf("[?] bad snapshot: %v", err)
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "\n[L2] %s (seq=%d)\n", s.Symbol.String(), s.Sequence)
		sb.WriteString(strings.Repeat("-", 64) + "\n")

		levels := len(s.Bids)
		if len(s.Asks) > levels {
			levels = len(s.Asks)
		}
		for i := 0; i < levels; i++ {
			if i < len(s.Bids) {
				bid := s.Bids[i]
				fmt.Fprintf(&sb, "%8d @ %10s (%3d)", bid.Quantity, price7(bid.Price), bid.NumOrders)
			} else {
				sb.WriteString(strings.Repeat(" ", 27))
			}
			sb.WriteString(" | ")
			if i < len(s.Asks) {
				ask := s.Asks[i]
				fmt.Fprintf(&sb, "%10s x %8d (%3d)", price7(ask.Price), ask.Quantity, ask.NumOrders)
			}
			sb.WriteString("\n")
		}

		if s.LastPrice > 0 {
			fmt.Fprintf(&sb, "Last: %s x %d | Volume: %d\n", price7(s.LastPrice), s.LastQty, s.TotalVolume)
		}
		sb.WriteString(strings.Repeat("-", 64))
		return sb.String()

	default:
		return fmt.Sprintf("[?] unknown template %d", tpl)
	}
}
