package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"spxlab/internal/api"
	"spxlab/internal/app"
	"spxlab/internal/config"
	"spxlab/internal/util"
)

func main() {
	cfgPath := "config/spxlab.yaml"
	if p := os.Getenv("SPXLAB_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := util.NewLogger(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("opening app: %v", err)
	}
	defer a.Close()

	svc, err := a.Service()
	if err != nil {
		log.Fatalf("building service: %v", err)
	}

	srv := api.NewServer(svc, cfg.Server.Addr(), cfg.Server.GRPCAddr(), logger)
	logger.Info("starting spx-server", "sources", a.Sources)
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
