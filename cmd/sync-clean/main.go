// sync-clean repairs on-disk state: re-filters every persisted series to
// drop legacy suspended rows, deletes temp files left behind by killed runs,
// and removes watermark entries whose series no longer exists. With --all it
// clears the watermark map entirely instead.
package main

import (
	"flag"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"stocksync/internal/app"
	"stocksync/internal/config"
	"stocksync/internal/domain"
	"stocksync/internal/reconcile"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", os.Getenv("STOCKSYNC_CONFIG"), "path to config file")
	all := flag.Bool("all", false, "clear the whole watermark map")
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

	cleaned, dropped := refilterSeries(a, codes)
	a.Log.Info("series re-filtered", "series", cleaned, "rows_dropped", dropped)

	if *all {
		if err := a.Watermarks.Clear(); err != nil {
			log.Fatalf("clearing watermarks: %v", err)
		}
		a.Log.Info("watermark map cleared")
	} else {
		removed := removeStaleWatermarks(a, codes)
		a.Log.Info("stale watermarks removed", "count", removed)
	}

	removed := removeTempFiles(a, filepath.Join(cfg.Storage.DataDir, string(domain.MarketCN)))
	a.Log.Info("temp files removed", "count", removed)
}

// refilterSeries rewrites every series that still carries invalid
// (zero-volume or zero-amount) rows.
func refilterSeries(a *app.App, codes []string) (cleaned, dropped int) {
	for _, code := range codes {
		records, err := a.Series.Read(code)
		if err != nil {
			a.Log.Warn("skipping unreadable series", "code", code, "error", err)
			continue
		}
		valid, removed := reconcile.FilterInvalid(records)
		if removed == 0 {
			continue
		}
		if err := a.Series.Write(code, valid); err != nil {
			a.Log.Warn("rewriting series failed", "code", code, "error", err)
			continue
		}
		cleaned++
		dropped += removed
	}
	return cleaned, dropped
}

func removeStaleWatermarks(a *app.App, codes []string) int {
	have := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		have[code] = struct{}{}
	}

	removed := 0
	for _, code := range a.Watermarks.Codes() {
		if _, ok := have[code]; !ok {
			a.Watermarks.Remove(code)
			removed++
		}
	}
	return removed
}

// removeTempFiles walks the market directory and deletes leftover
// write-temp-then-rename artifacts (*.tmp.<pid>.<suffix>).
func removeTempFiles(a *app.App, root string) int {
	removed := 0
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if strings.Contains(d.Name(), ".tmp.") {
			if err := os.Remove(path); err != nil {
				a.Log.Warn("removing temp file", "path", path, "error", err)
			} else {
				removed++
			}
		}
		return nil
	})
	return removed
}
