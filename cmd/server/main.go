package main

import (
	"flag"
	"log"
	"time"

	"github.com/ignite/campaign-engine/internal/api"
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

	ctx, stop := app.SignalContext()
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	defer a.Close()

	if err := a.StartScheduler(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	if cfg.Server.RunWorker {
		w := a.NewWorker()
		if err := w.Start(); err != nil {
			log.Fatalf("Failed to start send worker: %v", err)
		}
		defer w.Stop()
	}

	consumer, err := a.NewEngagementConsumer(ctx)
	if err != nil {
		log.Fatalf("Failed to build engagement consumer: %v", err)
	}
	if consumer != nil {
		go consumer.Run(ctx)
	}

	srv := api.NewServer(cfg.Server, a.AdminHandler(true))
	logger.Info("campaign engine server starting",
		"addr", cfg.Server.Addr(),
		"queue", cfg.Queue.Driver,
		"scheduler", cfg.Scheduler.Driver,
		"run_worker", cfg.Server.RunWorker)

	if err := app.Serve(ctx, srv, 30*time.Second); err != nil {
		logger.Error("server stopped with error", "error", err)
		return
	}
	logger.Info("server stopped")
}
