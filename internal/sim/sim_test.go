package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aidin1998/feedhandler/internal/protocol/itch"
	"github.com/Aidin1998/feedhandler/internal/protocol/mdp"
	"github.com/Aidin1998/feedhandler/pkg/logger"
)

type captureSender struct {
	frames [][]byte
}

func (c *captureSender) Send(b []byte) error {
	frame := make([]byte, len(b))
	copy(frame, b)
	c.frames = append(c.frames, frame)
	return nil
}

func (c *captureSender) Close() error { return nil }

type countingItchListener struct {
	adds, execs, deletes, trades int
}

func (l *countingItchListener) OnSystemEvent(itch.SystemEvent)       {}
func (l *countingItchListener) OnStockDirectory(itch.StockDirectory) {}
func (l *countingItchListener) OnAddOrder(itch.AddOrder)             { l.adds++ }
func (l *countingItchListener) OnOrderExecuted(itch.OrderExecuted)   { l.execs++ }
func (l *countingItchListener) OnOrderCancel(itch.OrderCancel)       {}
func (l *countingItchListener) OnOrderDelete(itch.OrderDelete)       { l.deletes++ }
func (l *countingItchListener) OnOrderReplace(itch.OrderReplace)     {}
func (l *countingItchListener) OnTrade(itch.Trade)                   { l.trades++ }
func (l *countingItchListener) OnCrossTrade(itch.CrossTrade)         {}

func TestItchSimulatorEmitsDecodableMix(t *testing.T) {
	cfg := DefaultItchConfig()
	cfg.Seed = 42
	sender := &captureSender{}
	s := NewItchSimulator(cfg, logger.Nop(), sender)

	for i := 0; i < 2000; i++ {
		s.Step()
	}
	require.Equal(t, uint64(2000), s.Sent())
	require.Len(t, sender.frames, 2000)

	var counter countingItchListener
	dec := itch.NewDecoder(&counter)
	for _, frame := range sender.frames {
		dec.Decode(frame)
	}

	assert.Equal(t, uint64(2000), dec.Messages)
	assert.Zero(t, dec.Errors)
	assert.Zero(t, dec.Skipped)
	assert.Greater(t, counter.adds, 1000)
	assert.Greater(t, counter.execs, 0)
	assert.Greater(t, counter.deletes, 0)
}

type countingMdpListener struct {
	defs, incs, snaps int
	maxRptSeq         map[uint32]uint32
}

func (l *countingMdpListener) OnSecurityDefinition(mdp.SecurityDefinition) { l.defs++ }
func (l *countingMdpListener) OnIncrementalRefresh(m mdp.IncrementalRefresh) {
	l.incs++
	for _, e := range m.Entries {
		if l.maxRptSeq == nil {
			l.maxRptSeq = make(map[uint32]uint32)
		}
		if e.RptSeq > l.maxRptSeq[e.SecurityID] {
			l.maxRptSeq[e.SecurityID] = e.RptSeq
		}
	}
}
func (l *countingMdpListener) OnSnapshotRefresh(mdp.SnapshotRefresh) { l.snaps++ }
func (l *countingMdpListener) OnChannelReset(mdp.ChannelReset)       {}
func (l *countingMdpListener) OnHeartbeat(mdp.Heartbeat)             {}

func TestMdpSimulatorStreams(t *testing.T) {
	cfg := DefaultMdpConfig()
	cfg.Seed = 7
	incr := &captureSender{}
	snap := &captureSender{}
	s := NewMdpSimulator(cfg, logger.Nop(), incr, snap)

	s.SendSecurityDefinitions()
	for i := 0; i < 500; i++ {
		s.Step()
	}
	s.SendSnapshots()

	var counter countingMdpListener
	dec := mdp.NewDecoder(&counter)
	for _, frame := range incr.frames {
		_, ok := dec.Decode(frame)
		require.True(t, ok)
	}
	for _, frame := range snap.frames {
		_, ok := dec.Decode(frame)
		require.True(t, ok)
	}

	assert.Equal(t, 4, counter.defs)
	assert.Equal(t, 500, counter.incs)
	assert.Equal(t, 4, counter.snaps)
	assert.Zero(t, dec.Errors)
}

func TestMdpSimulatorGapSkipsRptSeq(t *testing.T) {
	cfg := DefaultMdpConfig()
	cfg.Seed = 7
	cfg.SimulateGaps = true
	cfg.GapFrequency = 10
	incr := &captureSender{}
	s := NewMdpSimulator(cfg, logger.Nop(), incr, &captureSender{})

	for i := 0; i < 200; i++ {
		s.Step()
	}

	var counter countingMdpListener
	dec := mdp.NewDecoder(&counter)
	for _, frame := range incr.frames {
		dec.Decode(frame)
	}

	// Without gaps the rpt_seq totals across books equal the update
	// count exactly; every skipped rpt_seq pushes the sum past it.
	total := uint32(0)
	for _, maxSeq := range counter.maxRptSeq {
		total += maxSeq
	}
	assert.Greater(t, total, uint32(200))
}
