// sync-rebuild reconstructs the watermark file from the persisted series,
// recovering from a lost or corrupted watermark map.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"stocksync/internal/app"
	"stocksync/internal/config"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", os.Getenv("STOCKSYNC_CONFIG"), "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize: %v", err)
	}
	defer a.Close()

	codes, err := a.Series.List()
	if err != nil {
		log.Fatalf("listing series: %v", err)
	}
	if len(codes) == 0 {
		a.Log.Warn("no series found, nothing to rebuild")
		return
	}

	rebuilt := a.Watermarks.Rebuild(codes, func(code string) (time.Time, bool) {
		last, ok, err := a.Series.LastDate(code)
		if err != nil {
			a.Log.Warn("skipping unreadable series", "code", code, "error", err)
			return time.Time{}, false
		}
		return last, ok
	})
	a.Log.Info("watermarks rebuilt", "series", len(codes), "rebuilt", rebuilt)
}
