// The feedhandler binary runs the per-order pipeline: it consumes the
// ITCH-style multicast feed, maintains per-symbol books, and republishes
// envelopes on the output group.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Aidin1998/feedhandler/internal/bridge"
	"github.com/Aidin1998/feedhandler/internal/config"
	"github.com/Aidin1998/feedhandler/internal/handler"
	"github.com/Aidin1998/feedhandler/internal/transport"
	"github.com/Aidin1998/feedhandler/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment variables")
	}

	configPath := flag.String("config", os.Getenv("FEEDHANDLER_CONFIG"), "path to YAML config")
	mode := flag.String("mode", "", "override processing mode: tick | conflated")
	flag.Parse()

	cfg, err := config.Load(*configPath, config.DefaultItch())
	if err != nil {
		log.Printf("configuration error: %v", err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
		if err := cfg.Validate(); err != nil {
			log.Printf("configuration error: %v", err)
			os.Exit(1)
		}
	}

	zapLogger, err := logger.New(cfg.LogLevel, "feedhandler")
	if err != nil {
		log.Printf("failed to create logger: %v", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	receiver, err := transport.NewReceiver(cfg.InputGroup, cfg.InputPort, cfg.Interface, cfg.InputBuffer)
	if err != nil {
		zapLogger.Error("failed to start receiver", zap.Error(err))
		os.Exit(1)
	}
	defer receiver.Close()

	sender, err := transport.NewSender(cfg.OutputGroup, cfg.OutputPort, cfg.Interface, cfg.OutputTTL)
	if err != nil {
		zapLogger.Error("failed to start sender", zap.Error(err))
		os.Exit(1)
	}
	defer sender.Close()

	var mirror *bridge.Mirror
	if cfg.MirrorEnabled() {
		mirror = bridge.NewWithBrokers(zapLogger, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer mirror.Close()
	}

	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
				zapLogger.Warn("metrics listener failed", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := handler.NewItch(cfg, zapLogger, receiver, sender, mirror)
	if err := h.Run(ctx); err != nil {
		zapLogger.Error("run loop failed", zap.Error(err))
		os.Exit(1)
	}
}
