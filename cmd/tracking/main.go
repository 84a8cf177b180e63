package main

import (
	"flag"
	"log"
	"net/http"
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

	ctx, stop := app.SignalContext()
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}
	defer a.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.RedirectHandler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	logger.Info("redirect service starting", "addr", srv.Addr)
	if err := app.Serve(ctx, srv, 10*time.Second); err != nil {
		logger.Error("redirect service stopped with error", "error", err)
	}
}
