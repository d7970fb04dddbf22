// sync-single syncs one or more named instruments, bypassing the universe
// file. Useful for backfilling a new listing or repairing a single series.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stocksync/internal/app"
	"stocksync/internal/config"
	"stocksync/internal/domain"
	"stocksync/internal/gather"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", os.Getenv("STOCKSYNC_CONFIG"), "path to config file")
	mode := flag.String("mode", "", "update mode: tail, full, head_tail")
	name := flag.String("name", "", "instrument name to stamp on records without one")
	flag.Parse()

	codes := flag.Args()
	if len(codes) == 0 {
		log.Fatal("usage: sync-single [flags] CODE [CODE...]")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *mode != "" {
		cfg.Sync.UpdateMode = *mode
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer a.Close()

	window, err := a.Window(time.Now())
	if err != nil {
		log.Fatalf("invalid window: %v", err)
	}
	updateMode, err := domain.ParseUpdateMode(cfg.Sync.UpdateMode)
	if err != nil {
		log.Fatalf("invalid mode: %v", err)
	}

	instruments := make([]domain.Instrument, 0, len(codes))
	for _, code := range codes {
		instruments = append(instruments, domain.Instrument{Code: code, Name: *name})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runner := gather.NewRunner(instruments, a.Resolver, a.Calendar, a.Fetcher, a.Reconciler, a.Journal,
		gather.Options{
			Window:   window,
			Mode:     updateMode,
			Adjust:   domain.Adjust(cfg.Sync.Adjust),
			DelayMin: time.Duration(cfg.Sync.DelayMinMS) * time.Millisecond,
			DelayMax: time.Duration(cfg.Sync.DelayMaxMS) * time.Millisecond,
		}, a.Log)
	if err := runner.Run(ctx); err != nil {
		a.Log.Error("sync aborted", "error", err)
		os.Exit(1)
	}
}
