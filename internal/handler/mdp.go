package handler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Aidin1998/feedhandler/internal/book"
	"github.com/Aidin1998/feedhandler/internal/bridge"
	"github.com/Aidin1998/feedhandler/internal/config"
	"github.com/Aidin1998/feedhandler/internal/l2sbe"
	"github.com/Aidin1998/feedhandler/internal/protocol/mdp"
	"github.com/Aidin1998/feedhandler/internal/recovery"
	"github.com/Aidin1998/feedhandler/internal/transport"
	"github.com/Aidin1998/feedhandler/pkg/metrics"
)

// Mdp is the price-level pipeline: SBE packets in on the incremental and
// snapshot groups, per-security recovery, fixed-depth books, conflated
// SBE snapshots out.
type Mdp struct {
	cfg        *config.Config
	logger     *zap.Logger
	instanceID string

	incremental transport.Receiver
	snapshot    transport.Receiver
	sender      transport.Sender
	mirror      *bridge.Mirror

	books   *book.LevelManager
	rec     *recovery.Manager
	decoder *mdp.Decoder

	lastPacketSeq uint32
	firstPacket   bool

	sequence uint64
	stats    Stats

	lastPublish time.Time
	lastStats   time.Time
	lastSent    time.Time

	sendBuf []byte
}

// NewMdp wires the pipeline. snapshot and mirror may be nil.
func NewMdp(cfg *config.Config, logger *zap.Logger, incremental, snapshot transport.Receiver, sender transport.Sender, mirror *bridge.Mirror) *Mdp {
	h := &Mdp{
		cfg:         cfg,
		logger:      logger,
		instanceID:  uuid.New().String(),
		incremental: incremental,
		snapshot:    snapshot,
		sender:      sender,
		mirror:      mirror,
		books:       book.NewLevelManager(cfg.BookDepth),
		rec:         recovery.NewManager(),
		firstPacket: true,
		sendBuf:     make([]byte, 0, 2048),
	}
	h.decoder = mdp.NewDecoder(h)
	return h
}

// Books exposes the registry for tests.
func (h *Mdp) Books() *book.LevelManager { return h.books }

// Recovery exposes the state machine for tests.
func (h *Mdp) Recovery() *recovery.Manager { return h.rec }

// Stats returns a copy of the counters.
func (h *Mdp) Stats() Stats { return h.stats }

// Run blocks until ctx is cancelled. The snapshot group is only read
// while some security needs recovery.
func (h *Mdp) Run(ctx context.Context) error {
	h.logger.Info("mdp feed handler started",
		zap.String("instance_id", h.instanceID),
		zap.String("incremental", h.cfg.InputGroup),
		zap.String("snapshot", h.cfg.SnapshotGroup),
		zap.String("output", h.cfg.OutputGroup),
		zap.Int("conflation_interval_ms", h.cfg.ConflationIntervalMs),
	)

	buf := make([]byte, h.cfg.InputBuffer)
	timeout := pollTimeout(h.cfg)
	now := time.Now()
	h.lastPublish = now
	h.lastStats = now
	h.lastSent = now

	recoveryTimeout := uint64(h.cfg.RecoveryTimeoutMs) * uint64(time.Millisecond)

	for {
		if ctx.Err() != nil {
			h.logStats()
			h.logger.Info("mdp feed handler stopped")
			return nil
		}

		incTimeout := timeout
		recovering := h.rec.NeedsRecovery()
		if recovering && h.snapshot != nil {
			incTimeout = timeout / 2
			if incTimeout < time.Millisecond {
				incTimeout = time.Millisecond
			}
		}

		n, err := h.incremental.ReadPacket(buf, incTimeout)
		switch {
		case err == nil && n > 0:
			h.ProcessIncremental(buf[:n])
		case errors.Is(err, transport.ErrTimeout):
		case err != nil:
			if ctx.Err() != nil {
				continue
			}
			h.stats.Errors++
			h.logger.Warn("incremental receive failed", zap.Error(err))
		}

		if recovering && h.snapshot != nil {
			n, err = h.snapshot.ReadPacket(buf, incTimeout)
			switch {
			case err == nil && n > 0:
				h.ProcessSnapshot(buf[:n])
			case errors.Is(err, transport.ErrTimeout):
			case err != nil:
				if ctx.Err() != nil {
					continue
				}
				h.stats.Errors++
				h.logger.Warn("snapshot receive failed", zap.Error(err))
			}
		}

		now = time.Now()
		if now.Sub(h.lastPublish) >= time.Duration(h.cfg.ConflationIntervalMs)*time.Millisecond {
			h.PublishConflated(now)
			h.lastPublish = now
		}
		if now.Sub(h.lastSent) >= heartbeatInterval {
			h.publishHeartbeat(now)
		}

		for _, id := range h.rec.CheckTimeouts(uint64(now.UnixNano()), recoveryTimeout) {
			h.logger.Warn("recovery timeout, waiting for next snapshot cycle",
				zap.Uint32("security_id", id),
				zap.Uint32("attempts", h.rec.RecoveryAttempts(id)),
			)
		}
		metrics.SecuritiesInRecovery.Set(float64(len(h.rec.Recovering())))

		if now.Sub(h.lastStats) >= time.Duration(h.cfg.StatsIntervalSec)*time.Second {
			h.logStats()
			h.lastStats = now
		}
	}
}

// ProcessIncremental applies one datagram from the incremental group.
func (h *Mdp) ProcessIncremental(datagram []byte) {
	h.stats.MessagesReceived++
	h.stats.BytesReceived += uint64(len(datagram))
	metrics.MessagesReceived.WithLabelValues("mdp").Inc()
	metrics.BytesReceived.WithLabelValues("mdp").Add(float64(len(datagram)))

	errsBefore := h.decoder.Errors
	hdr, ok := h.decoder.Decode(datagram)
	if h.decoder.Errors != errsBefore {
		h.stats.Errors++
		metrics.DecodeErrors.WithLabelValues("mdp").Inc()
	}
	if !ok {
		return
	}

	// Packet-level gaps affect every security in the channel; per-security
	// continuity is still governed by rpt_seq.
	if !h.firstPacket && hdr.PacketSeq != h.lastPacketSeq+1 {
		h.stats.PacketGaps++
		h.logger.Debug("packet gap",
			zap.Uint32("expected", h.lastPacketSeq+1),
			zap.Uint32("got", hdr.PacketSeq),
		)
	}
	h.firstPacket = false
	h.lastPacketSeq = hdr.PacketSeq
}

// ProcessSnapshot applies one datagram from the snapshot group.
func (h *Mdp) ProcessSnapshot(datagram []byte) {
	h.stats.MessagesReceived++
	h.stats.BytesReceived += uint64(len(datagram))
	metrics.MessagesReceived.WithLabelValues("mdp").Inc()
	metrics.BytesReceived.WithLabelValues("mdp").Add(float64(len(datagram)))

	errsBefore := h.decoder.Errors
	h.decoder.Decode(datagram)
	if h.decoder.Errors != errsBefore {
		h.stats.Errors++
		metrics.DecodeErrors.WithLabelValues("mdp").Inc()
	}
}

// PublishConflated emits one snapshot per dirty security that is in
// Normal state; securities mid-recovery publish after their snapshot
// lands.
func (h *Mdp) PublishConflated(now time.Time) {
	ts := uint64(now.UnixNano())
	for _, id := range h.books.DrainDirty() {
		if h.rec.StateOf(id) != recovery.StateNormal {
			continue
		}
		snap := h.books.Book(id).Snapshot(ts, h.nextSeq())
		h.send(l2sbe.AppendSnapshot(h.sendBuf[:0], &snap), snap.Symbol.String(), "snapshot")
	}
	metrics.BooksTracked.WithLabelValues("mdp").Set(float64(h.books.Len()))
}

func (h *Mdp) publishHeartbeat(now time.Time) {
	h.send(l2sbe.AppendHeartbeat(h.sendBuf[:0], uint64(now.UnixNano()), h.nextSeq()), "", "heartbeat")
}

func (h *Mdp) nextSeq() uint64 {
	h.sequence++
	return h.sequence
}

func (h *Mdp) send(b []byte, key, kind string) {
	if err := h.sender.Send(b); err != nil {
		h.stats.Errors++
		h.logger.Warn("send failed", zap.String("type", kind), zap.Error(err))
		return
	}
	h.stats.MessagesSent++
	h.stats.BytesSent += uint64(len(b))
	h.lastSent = time.Now()
	metrics.MessagesSent.WithLabelValues("mdp", kind).Inc()
	metrics.BytesSent.WithLabelValues("mdp").Add(float64(len(b)))
	if h.mirror != nil {
		h.mirror.Publish(key, b)
	}
}

func (h *Mdp) logStats() {
	rs := h.rec.Stats()
	fields := append(h.stats.fields(),
		zap.Uint64("packet_gaps", h.stats.PacketGaps),
		zap.Uint64("gaps_detected", rs.GapsDetected),
		zap.Uint64("recoveries_completed", rs.RecoveriesCompleted),
		zap.Uint64("messages_dropped", rs.MessagesDropped),
		zap.Uint32s("recovering", h.rec.Recovering()),
	)
	h.logger.Info("mdp feed handler stats", fields...)
}

// mdp.Listener implementation.

func (h *Mdp) OnSecurityDefinition(m mdp.SecurityDefinition) {
	b := h.books.Book(m.SecurityID)
	if m.Symbol != "" {
		b.SetSymbol(m.Symbol)
	}
	h.rec.Init(m.SecurityID, 1)
	h.logger.Info("security definition",
		zap.Uint32("security_id", m.SecurityID),
		zap.String("symbol", m.Symbol),
	)
}

func (h *Mdp) OnIncrementalRefresh(m mdp.IncrementalRefresh) {
	before := h.rec.Stats()
	for _, e := range m.Entries {
		if !h.rec.OnIncremental(e.SecurityID, e.RptSeq) {
			continue
		}
		h.books.Book(e.SecurityID).ApplyUpdate(e)
		h.books.MarkDirty(e.SecurityID)

		switch {
		case e.UpdateAction == mdp.ActionNew:
			h.stats.AddOrders++
		case e.UpdateAction == mdp.ActionDelete:
			h.stats.DeleteOrders++
		}
		if e.EntryType == mdp.EntryTrade {
			h.stats.Trades++
		}
	}
	after := h.rec.Stats()
	if d := after.GapsDetected - before.GapsDetected; d > 0 {
		metrics.GapsDetected.Add(float64(d))
	}
	if d := after.MessagesDropped - before.MessagesDropped; d > 0 {
		metrics.MessagesDropped.Add(float64(d))
	}
}

func (h *Mdp) OnSnapshotRefresh(m mdp.SnapshotRefresh) {
	if !h.rec.OnSnapshot(m.SecurityID, m.RptSeq) {
		return
	}
	b := h.books.Book(m.SecurityID)
	b.ApplySnapshot(m.Entries, m.RptSeq)
	h.books.MarkDirty(m.SecurityID)
	h.rec.CompleteRecovery(m.SecurityID, m.RptSeq)
	metrics.RecoveriesCompleted.Inc()
	h.logger.Info("recovery complete",
		zap.Uint32("security_id", m.SecurityID),
		zap.Uint32("rpt_seq", m.RptSeq),
	)
}

func (h *Mdp) OnChannelReset(m mdp.ChannelReset) {
	h.logger.Info("channel reset", zap.Uint64("transact_time", m.TransactTime))
	h.books.ResetAll()
	h.rec.ChannelReset()
	h.firstPacket = true
}

func (h *Mdp) OnHeartbeat(mdp.Heartbeat) {}
