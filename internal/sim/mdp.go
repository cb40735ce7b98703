package sim

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/Aidin1998/feedhandler/internal/protocol/mdp"
	"github.com/Aidin1998/feedhandler/internal/transport"
)

// MdpConfig shapes the price-level generator.
type MdpConfig struct {
	UpdatesPerSecond   int
	SnapshotIntervalMs int
	SimulateGaps       bool
	GapFrequency       uint32 // skip a rpt_seq every N updates per book
	Seed               int64
}

func DefaultMdpConfig() MdpConfig {
	return MdpConfig{
		UpdatesPerSecond:   500,
		SnapshotIntervalMs: 2000,
		GapFrequency:       1000,
	}
}

const simDepth = 5

type simLevel struct {
	price  int64
	qty    int32
	orders uint8
}

type simBook struct {
	securityID uint32
	symbol     string
	midPrice   int64
	tickSize   int64
	bids       [simDepth]simLevel
	asks       [simDepth]simLevel
	rptSeq     uint32
}

func (b *simBook) initialize(mid, tick int64) {
	b.midPrice = mid
	b.tickSize = tick
	for i := 0; i < simDepth; i++ {
		b.bids[i] = simLevel{
			price:  mid - int64(i+1)*tick,
			qty:    int32(50 + (simDepth-1-i)*25),
			orders: uint8(5 + (simDepth-1-i)*2),
		}
		b.asks[i] = simLevel{
			price:  mid + int64(i+1)*tick,
			qty:    int32(50 + (simDepth-1-i)*25),
			orders: uint8(5 + (simDepth-1-i)*2),
		}
	}
}

func (b *simBook) randomUpdate(rng *rand.Rand) {
	isBid := rng.Intn(2) == 0
	level := rng.Intn(simDepth)

	var levels *[simDepth]simLevel
	if isBid {
		levels = &b.bids
	} else {
		levels = &b.asks
	}

	newQty := levels[level].qty + int32(rng.Intn(51)-20)
	if newQty < 10 {
		newQty = 10
	}
	levels[level].qty = newQty

	// Occasionally step the mid and rebuild the ladder.
	if level == 0 && rng.Intn(3) != 1 {
		move := int64(rng.Intn(3)-1) * b.tickSize
		if move != 0 {
			b.midPrice += move
			for i := 0; i < simDepth; i++ {
				b.bids[i].price = b.midPrice - int64(i+1)*b.tickSize
				b.asks[i].price = b.midPrice + int64(i+1)*b.tickSize
			}
		}
	}

	b.rptSeq++
}

// MdpSimulator maintains four futures books and publishes Overlay
// incrementals plus periodic full snapshots on a second group. Gaps are
// simulated by skipping a rpt_seq.
type MdpSimulator struct {
	cfg    MdpConfig
	logger *zap.Logger
	incr   transport.Sender
	snap   transport.Sender
	rng    *rand.Rand

	books       [4]simBook
	incrPktSeq  uint32
	snapPktSeq  uint32
	updatesSent uint64
}

func NewMdpSimulator(cfg MdpConfig, logger *zap.Logger, incremental, snapshot transport.Sender) *MdpSimulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &MdpSimulator{
		cfg:    cfg,
		logger: logger,
		incr:   incremental,
		snap:   snapshot,
		rng:    rand.New(rand.NewSource(seed)),
	}
	s.books[0] = simBook{securityID: 1001, symbol: "ESH26"}
	s.books[0].initialize(45000000000, 2500000) // $4500.00, $0.25 tick
	s.books[1] = simBook{securityID: 1002, symbol: "NQM26"}
	s.books[1].initialize(180000000000, 2500000) // $18000.00, $0.25 tick
	s.books[2] = simBook{securityID: 1003, symbol: "CLK26"}
	s.books[2].initialize(750000000, 100000) // $75.00, $0.01 tick
	s.books[3] = simBook{securityID: 1004, symbol: "GCZ26"}
	s.books[3].initialize(20000000000, 1000000) // $2000.00, $0.10 tick
	return s
}

// Updates reports incremental updates emitted so far.
func (s *MdpSimulator) Updates() uint64 { return s.updatesSent }

// Run announces the securities, then interleaves incrementals and
// snapshots until ctx is cancelled.
func (s *MdpSimulator) Run(ctx context.Context) error {
	s.logger.Info("mdp simulator started",
		zap.Int("rate", s.cfg.UpdatesPerSecond),
		zap.Int("snapshot_interval_ms", s.cfg.SnapshotIntervalMs),
		zap.Bool("simulate_gaps", s.cfg.SimulateGaps),
	)

	s.SendSecurityDefinitions()

	updateTicker := time.NewTicker(time.Second / time.Duration(s.cfg.UpdatesPerSecond))
	defer updateTicker.Stop()
	snapshotTicker := time.NewTicker(time.Duration(s.cfg.SnapshotIntervalMs) * time.Millisecond)
	defer snapshotTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("mdp simulator stopped", zap.Uint64("updates_sent", s.updatesSent))
			return nil
		case <-updateTicker.C:
			s.Step()
		case <-snapshotTicker.C:
			s.SendSnapshots()
		}
	}
}

// SendSecurityDefinitions announces each book on the incremental group.
func (s *MdpSimulator) SendSecurityDefinitions() {
	for i := range s.books {
		b := &s.books[i]
		s.incrPktSeq++
		pkt := mdp.AppendPacketHeader(nil, mdp.PacketHeader{PacketSeq: s.incrPktSeq, SendingTime: nowNs()})
		pkt = mdp.AppendSecurityDefinition(pkt, mdp.SecurityDefinition{
			SecurityID:        b.securityID,
			Symbol:            b.symbol,
			MinPriceIncrement: b.tickSize,
			DisplayFactor:     1,
			TradingStatus:     17, // trading
		})
		if err := s.incr.Send(pkt); err != nil {
			s.logger.Warn("definition send failed", zap.Error(err))
		}
	}
}

// Step mutates one random book and publishes its top three levels.
func (s *MdpSimulator) Step() {
	b := &s.books[s.rng.Intn(len(s.books))]
	b.randomUpdate(s.rng)

	if s.cfg.SimulateGaps && s.cfg.GapFrequency > 0 && b.rptSeq%s.cfg.GapFrequency == 0 {
		b.rptSeq++ // the skipped rpt_seq forces the handler into recovery
		s.logger.Info("simulated gap", zap.Uint32("security_id", b.securityID), zap.Uint32("rpt_seq", b.rptSeq))
	}

	entries := make([]mdp.IncrementalEntry, 0, 6)
	for i := 0; i < 3; i++ {
		entries = append(entries, mdp.IncrementalEntry{
			Price:          b.bids[i].price,
			Size:           b.bids[i].qty,
			SecurityID:     b.securityID,
			RptSeq:         b.rptSeq,
			EntryType:      mdp.EntryBid,
			UpdateAction:   mdp.ActionOverlay,
			PriceLevel:     uint8(i + 1),
			NumberOfOrders: b.bids[i].orders,
		}, mdp.IncrementalEntry{
			Price:          b.asks[i].price,
			Size:           b.asks[i].qty,
			SecurityID:     b.securityID,
			RptSeq:         b.rptSeq,
			EntryType:      mdp.EntryOffer,
			UpdateAction:   mdp.ActionOverlay,
			PriceLevel:     uint8(i + 1),
			NumberOfOrders: b.asks[i].orders,
		})
	}

	s.incrPktSeq++
	pkt := mdp.AppendPacketHeader(nil, mdp.PacketHeader{PacketSeq: s.incrPktSeq, SendingTime: nowNs()})
	pkt = mdp.AppendIncrementalRefresh(pkt, mdp.IncrementalRefresh{TransactTime: nowNs(), Entries: entries})
	if err := s.incr.Send(pkt); err != nil {
		s.logger.Warn("incremental send failed", zap.Error(err))
		return
	}
	s.updatesSent++
}

// SendSnapshots publishes a full refresh per book on the snapshot group.
func (s *MdpSimulator) SendSnapshots() {
	for i := range s.books {
		b := &s.books[i]

		entries := make([]mdp.SnapshotEntry, 0, simDepth*2)
		for j := 0; j < simDepth; j++ {
			entries = append(entries, mdp.SnapshotEntry{
				Price:          b.bids[j].price,
				Size:           b.bids[j].qty,
				EntryType:      mdp.EntryBid,
				PriceLevel:     uint8(j + 1),
				NumberOfOrders: b.bids[j].orders,
			})
		}
		for j := 0; j < simDepth; j++ {
			entries = append(entries, mdp.SnapshotEntry{
				Price:          b.asks[j].price,
				Size:           b.asks[j].qty,
				EntryType:      mdp.EntryOffer,
				PriceLevel:     uint8(j + 1),
				NumberOfOrders: b.asks[j].orders,
			})
		}

		s.snapPktSeq++
		pkt := mdp.AppendPacketHeader(nil, mdp.PacketHeader{PacketSeq: s.snapPktSeq, SendingTime: nowNs()})
		pkt = mdp.AppendSnapshotRefresh(pkt, mdp.SnapshotRefresh{
			LastMsgSeq:   s.incrPktSeq,
			SecurityID:   b.securityID,
			RptSeq:       b.rptSeq,
			TransactTime: nowNs(),
			Entries:      entries,
		})
		if err := s.snap.Send(pkt); err != nil {
			s.logger.Warn("snapshot send failed", zap.Error(err))
		}
	}
}

func nowNs() uint64 {
	return uint64(time.Now().UnixNano())
}
