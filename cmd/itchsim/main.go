// The itchsim binary publishes a synthetic per-order feed onto the
// handler's input group.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/Aidin1998/feedhandler/internal/sim"
	"github.com/Aidin1998/feedhandler/internal/transport"
	"github.com/Aidin1998/feedhandler/pkg/logger"
)

func main() {
	group := flag.String("group", "239.1.1.1", "target multicast group")
	port := flag.Int("port", 30001, "target port")
	iface := flag.String("interface", "0.0.0.0", "outbound interface address")
	rate := flag.Int("rate", 1000, "messages per second")
	symbols := flag.String("symbols", "AAPL,MSFT,GOOG,AMZN", "comma-separated symbols")
	seed := flag.Int64("seed", 0, "rng seed (0 = time-based)")
	logLevel := flag.String("log-level", "info", "log level")
	flag.Parse()

	zapLogger, err := logger.New(*logLevel, "itchsim")
	if err != nil {
		log.Printf("failed to create logger: %v", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	sender, err := transport.NewSender(*group, *port, *iface, 1)
	if err != nil {
		zapLogger.Error("failed to start sender", zap.Error(err))
		os.Exit(1)
	}
	defer sender.Close()

	cfg := sim.DefaultItchConfig()
	cfg.MessagesPerSecond = *rate
	cfg.Symbols = strings.Split(*symbols, ",")
	cfg.Seed = *seed

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := sim.NewItchSimulator(cfg, zapLogger, sender)
	if err := s.Run(ctx); err != nil {
		zapLogger.Error("simulator failed", zap.Error(err))
		os.Exit(1)
	}
}
