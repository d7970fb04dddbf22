// sync-universe refreshes the local instrument list from the Eastmoney
// listing endpoint.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"stocksync/internal/config"
	"stocksync/internal/domain"
	"stocksync/internal/universe"
	"stocksync/internal/util"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", os.Getenv("STOCKSYNC_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	instruments, err := universe.NewFetcher().Fetch(ctx)
	if err != nil {
		log.Fatalf("fetching listing: %v", err)
	}

	dir := filepath.Join(cfg.Storage.DataDir, string(domain.MarketCN))
	if err := universe.Save(dir, instruments); err != nil {
		log.Fatalf("saving universe: %v", err)
	}
	logger.Info("universe refreshed", "instruments", len(instruments), "path", filepath.Join(dir, universe.FileName))
}
