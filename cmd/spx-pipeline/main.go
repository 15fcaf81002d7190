package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"spxlab/internal/app"
	"spxlab/internal/config"
	"spxlab/internal/pipeline"
	"spxlab/internal/util"
)

func main() {
	once := flag.Bool("once", false, "run the pipeline once and exit")
	force := flag.Bool("force", false, "rerun even if today's anchor already completed")
	cfgPath := flag.String("config", "", "config file (default $SPXLAB_CONFIG or config/spxlab.yaml)")
	flag.Parse()

	path := "config/spxlab.yaml"
	if p := os.Getenv("SPXLAB_CONFIG"); p != "" {
		path = p
	}
	if *cfgPath != "" {
		path = *cfgPath
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Dual logger: stdout + dated log file.
	var w io.Writer = os.Stdout
	if cfg.Logging.Dir != "" {
		logFile, err := util.OpenLogFile(cfg.Logging.Dir, "spx-pipeline", time.Now())
		if err != nil {
			log.Fatalf("failed to create log file: %v", err)
		}
		defer logFile.Close()
		w = io.MultiWriter(os.Stdout, logFile)
	}
	logger := util.NewLogger(w, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("opening app: %v", err)
	}
	defer a.Close()

	p, err := a.Pipeline()
	if err != nil {
		log.Fatalf("building pipeline: %v", err)
	}
	if *force {
		if err := p.Force(); err != nil {
			log.Fatalf("clearing completion marker: %v", err)
		}
	}

	if *once {
		rep, err := p.RunOnce(ctx)
		if err != nil {
			log.Fatalf("pipeline error: %v", err)
		}
		logger.Info("pipeline finished", "skipped", rep.Skipped, "appended", rep.Appended, "exported", rep.Exported)
		return
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("loading timezone: %v", err)
	}
	sched, err := pipeline.NewScheduler(p, cfg.Pipeline.RunAt, loc, util.DefaultBackoff, logger)
	if err != nil {
		log.Fatalf("building scheduler: %v", err)
	}
	logger.Info("starting spx-pipeline daemon", "runAt", cfg.Pipeline.RunAt, "timezone", cfg.Pipeline.Timezone)
	if err := sched.Run(ctx); err != nil {
		log.Fatalf("daemon error: %v", err)
	}
}
