// sync-daily runs one incremental sync pass over the whole A-share universe,
// or keeps running on a cron schedule with --daemon.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"stocksync/internal/app"
	"stocksync/internal/config"
	"stocksync/internal/domain"
	"stocksync/internal/gather"
	"stocksync/internal/universe"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", os.Getenv("STOCKSYNC_CONFIG"), "path to config file")
	daemon := flag.Bool("daemon", false, "keep running on the configured cron schedule")
	mode := flag.String("mode", "", "update mode: tail, full, head_tail")
	start := flag.String("start", "", "window start, YYYYMMDD")
	end := flag.String("end", "", "window end, YYYYMMDD")
	batchSize := flag.Int("batch-size", -1, "instruments per run, 0 for all")
	startIndex := flag.Int("start-index", -1, "universe offset to start from")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *mode != "" {
		cfg.Sync.UpdateMode = *mode
	}
	if *start != "" {
		cfg.Sync.StartDate = *start
	}
	if *end != "" {
		cfg.Sync.EndDate = *end
	}
	if *batchSize >= 0 {
		cfg.Sync.BatchSize = *batchSize
	}
	if *startIndex >= 0 {
		cfg.Sync.StartIndex = *startIndex
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *daemon {
		runDaemon(ctx, a)
		return
	}
	if err := runOnce(ctx, a); err != nil {
		a.Log.Error("sync run aborted", "error", err)
		os.Exit(1)
	}
}

func runOnce(ctx context.Context, a *app.App) error {
	window, err := a.Window(time.Now())
	if err != nil {
		return err
	}

	instruments, err := universe.Load(filepath.Join(a.Config.Storage.DataDir, string(domain.MarketCN)))
	if err != nil {
		return err
	}

	updateMode, err := domain.ParseUpdateMode(a.Config.Sync.UpdateMode)
	if err != nil {
		return err
	}

	runner := gather.NewRunner(instruments, a.Resolver, a.Calendar, a.Fetcher, a.Reconciler, a.Journal,
		gather.Options{
			Window:     window,
			Mode:       updateMode,
			Adjust:     domain.Adjust(a.Config.Sync.Adjust),
			DelayMin:   time.Duration(a.Config.Sync.DelayMinMS) * time.Millisecond,
			DelayMax:   time.Duration(a.Config.Sync.DelayMaxMS) * time.Millisecond,
			BatchSize:  a.Config.Sync.BatchSize,
			StartIndex: a.Config.Sync.StartIndex,
		}, a.Log)
	return runner.Run(ctx)
}

func runDaemon(ctx context.Context, a *app.App) {
	c := cron.New()
	_, err := c.AddFunc(a.Config.Daemon.Schedule, func() {
		if err := runOnce(ctx, a); err != nil && ctx.Err() == nil {
			a.Log.Error("scheduled sync run failed", "error", err)
		}
	})
	if err != nil {
		log.Fatalf("invalid daemon schedule %q: %v", a.Config.Daemon.Schedule, err)
	}

	a.Log.Info("daemon started", "schedule", a.Config.Daemon.Schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	a.Log.Info("daemon stopped")
}
