package main

import (
	"flag"
	"log"
	"time"

	"github.com/ignite/campaign-engine/internal/app"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Queue.Driver == "memory" {
		log.Fatalf("A standalone worker needs a shared queue; set queue.driver to amqp")
	}

	ctx, stop := app.SignalContext()
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	defer a.Close()

	w := a.NewWorker()
	if err := w.Start(); err != nil {
		log.Fatalf("Failed to start send worker: %v", err)
	}

	consumer, err := a.NewEngagementConsumer(ctx)
	if err != nil {
		log.Fatalf("Failed to build engagement consumer: %v", err)
	}
	if consumer != nil {
		go consumer.Run(ctx)
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down worker")
			w.Stop()
			processed, failed, skipped := w.Stats()
			logger.Info("worker stopped", "processed", processed, "failed", failed, "skipped", skipped)
			return
		case <-ticker.C:
			processed, failed, skipped := w.Stats()
			logger.Info("worker heartbeat", "processed", processed, "failed", failed, "skipped", skipped)
		}
	}
}
