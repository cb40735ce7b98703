// The mdpsim binary publishes a synthetic price-level feed: incremental
// updates on one group, periodic full snapshots on a second, with
// optional deliberate rpt_seq gaps to exercise recovery.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/Aidin1998/feedhandler/internal/sim"
	"github.com/Aidin1998/feedhandler/internal/transport"
	"github.com/Aidin1998/feedhandler/pkg/logger"
)

func main() {
	incrGroup := flag.String("incremental-group", "239.2.1.1", "incremental multicast group")
	incrPort := flag.Int("incremental-port", 40001, "incremental port")
	snapGroup := flag.String("snapshot-group", "239.2.1.2", "snapshot multicast group")
	snapPort := flag.Int("snapshot-port", 40002, "snapshot port")
	iface := flag.String("interface", "0.0.0.0", "outbound interface address")
	rate := flag.Int("rate", 500, "updates per second")
	snapshotMs := flag.Int("snapshot-interval-ms", 2000, "snapshot cycle interval")
	gaps := flag.Bool("gaps", false, "skip rpt_seqs to exercise recovery")
	gapFrequency := flag.Uint("gap-frequency", 1000, "updates between simulated gaps")
	seed := flag.Int64("seed", 0, "rng seed (0 = time-based)")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	zapLogger, err := logger.New(*logLevel, "mdpsim")
	if err != nil {
		log.Printf("failed to create logger: %v", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	incremental, err := transport.NewSender(*incrGroup, *incrPort, *iface, 1)
	if err != nil {
		zapLogger.Error("failed to start incremental sender", zap.Error(err))
		os.Exit(1)
	}
	defer incremental.Close()

	snapshot, err := transport.NewSender(*snapGroup, *snapPort, *iface, 1)
	if err != nil {
		zapLogger.Error("failed to start snapshot sender", zap.Error(err))
		os.Exit(1)
	}
	defer snapshot.Close()

	cfg := sim.DefaultMdpConfig()
	cfg.UpdatesPerSecond = *rate
	cfg.SnapshotIntervalMs = *snapshotMs
	cfg.SimulateGaps = *gaps
	cfg.GapFrequency = uint32(*gapFrequency)
	cfg.Seed = *seed

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := sim.NewMdpSimulator(cfg, zapLogger, incremental, snapshot)
	if err := s.Run(ctx); err != nil {
		zapLogger.Error("simulator failed", zap.Error(err))
		os.Exit(1)
	}
}
