// Package app wires configuration into the runtime components the commands
// share: stores, calendar, resolver, failover fetcher, reconciler, journal.
package app

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"stocksync/internal/calendar"
	"stocksync/internal/config"
	"stocksync/internal/domain"
	"stocksync/internal/fetcher"
	"stocksync/internal/gather"
	"stocksync/internal/journal"
	"stocksync/internal/provider"
	"stocksync/internal/reconcile"
	"stocksync/internal/resolver"
	"stocksync/internal/series"
	"stocksync/internal/util"
	"stocksync/internal/watermark"
)

// App bundles the wired components for one process.
type App struct {
	Config     *config.Config
	Log        *slog.Logger
	Series     *series.Store
	Watermarks *watermark.Store
	Calendar   *calendar.Calendar
	Resolver   *resolver.Resolver
	Fetcher    *fetcher.Failover
	Reconciler *reconcile.Reconciler
	Journal    journal.Journal
}

// New builds an App from cfg and installs the logger as the process default.
func New(cfg *config.Config) (*App, error) {
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ss := series.NewStore(cfg.Storage.DataDir)
	ws := watermark.NewStore(filepath.Join(cfg.Storage.DataDir, string(domain.MarketCN)), logger)
	cal := calendar.New(cfg.Storage.HolidaysFile, logger)
	res := resolver.New(ss, ws, cal, logger)

	providers := []provider.Provider{
		provider.NewBaostock(cfg.Baostock.Host, cfg.Baostock.Port),
		provider.NewEastmoney(),
		provider.NewYahoo(),
	}
	if cfg.Tushare.Token != "" {
		providers = append(providers, provider.NewTushare(cfg.Tushare.Token))
	}

	var limiter *rate.Limiter
	if cfg.Sync.RateLimitPerMin > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.Sync.RateLimitPerMin)/60), 1)
	}
	f := fetcher.New(providers, cfg.Sync.PreferredSource, limiter, logger)

	rec := reconcile.New(ss, ws, logger)

	var jnl journal.Journal = journal.Noop{}
	if cfg.Storage.SQLitePath != "" {
		sj, err := journal.NewSQLiteJournal(cfg.Storage.SQLitePath)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		jnl = sj
	}

	return &App{
		Config:     cfg,
		Log:        logger,
		Series:     ss,
		Watermarks: ws,
		Calendar:   cal,
		Resolver:   res,
		Fetcher:    f,
		Reconciler: rec,
		Journal:    jnl,
	}, nil
}

// Close releases provider sessions and the journal.
func (a *App) Close() {
	if err := a.Fetcher.Close(); err != nil {
		a.Log.Warn("closing fetcher", "error", err)
	}
	if err := a.Journal.Close(); err != nil {
		a.Log.Warn("closing journal", "error", err)
	}
}

// Window resolves the configured sync window. An empty end date means "now",
// clamped to yesterday before the daily bar publish cutoff in exchange time.
func (a *App) Window(now time.Time) (domain.DateRange, error) {
	start, err := util.ParseCompact(a.Config.Sync.StartDate)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("sync.start_date: %w", err)
	}

	var end time.Time
	if a.Config.Sync.EndDate != "" {
		end, err = util.ParseCompact(a.Config.Sync.EndDate)
		if err != nil {
			return domain.DateRange{}, fmt.Errorf("sync.end_date: %w", err)
		}
	} else {
		end = safeEnd(now)
	}

	if end.Before(start) {
		return domain.DateRange{}, fmt.Errorf("sync window %s..%s is inverted",
			util.Compact(start), util.Compact(end))
	}
	return domain.DateRange{Start: start, End: end}, nil
}

func safeEnd(now time.Time) time.Time {
	if loc, err := time.LoadLocation("Asia/Shanghai"); err == nil {
		now = now.In(loc)
	}
	return gather.SafeEndDate(now)
}
