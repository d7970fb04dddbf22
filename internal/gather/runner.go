package gather

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"stocksync/internal/calendar"
	"stocksync/internal/domain"
	"stocksync/internal/fetcher"
	"stocksync/internal/journal"
	"stocksync/internal/reconcile"
	"stocksync/internal/resolver"
	"stocksync/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*Runner)(nil)

// The cutoff after which today's bar is considered published. Before it, a
// window ending today is clamped to yesterday so a half-day bar is never
// persisted.
const publishCutoffMinutes = 18*60 + 30

// Options configures a Runner.
type Options struct {
	Window     domain.DateRange
	Mode       domain.UpdateMode
	Adjust     domain.Adjust
	DelayMin   time.Duration
	DelayMax   time.Duration
	BatchSize  int // 0 means the whole universe
	StartIndex int
}

// Runner performs one sequential sync pass: resolve each instrument's fetch
// window, fetch through the failover chain, reconcile, and journal the run.
type Runner struct {
	universe   []domain.Instrument
	resolver   *resolver.Resolver
	calendar   *calendar.Calendar
	fetcher    *fetcher.Failover
	reconciler *reconcile.Reconciler
	journal    journal.Journal
	opts       Options
	log        *slog.Logger

	// Injected for tests.
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a Runner over the given universe and components.
func NewRunner(universe []domain.Instrument, res *resolver.Resolver, cal *calendar.Calendar,
	f *fetcher.Failover, rec *reconcile.Reconciler, jnl journal.Journal, opts Options, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if jnl == nil {
		jnl = journal.Noop{}
	}
	return &Runner{
		universe:   universe,
		resolver:   res,
		calendar:   cal,
		fetcher:    f,
		reconciler: rec,
		journal:    jnl,
		opts:       opts,
		log:        logger,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:      sleepCtx,
	}
}

// Name implements Gatherer.
func (r *Runner) Name() string { return "cn-daily" }

// Run implements Gatherer. Per-instrument failures never abort the pass;
// they are accumulated, logged, and journaled at the end. Cancellation stops
// the loop after the in-flight instrument completes.
func (r *Runner) Run(ctx context.Context) error {
	batch := r.slice()
	run := journal.RunSummary{
		StartedAt: time.Now().UTC(),
		Mode:      string(r.opts.Mode),
		Total:     len(batch),
	}
	var failures []journal.Failure

	r.log.Info("sync run starting",
		"instruments", len(batch),
		"window", util.Compact(r.opts.Window.Start)+".."+util.Compact(r.opts.Window.End),
		"mode", string(r.opts.Mode))

	var runErr error
	for i, inst := range batch {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		outcome := r.syncOne(ctx, inst, &run, &failures)
		r.log.Debug("instrument done", "code", inst.Code, "outcome", outcome, "progress", fmt.Sprintf("%d/%d", i+1, len(batch)))

		if i < len(batch)-1 {
			if err := r.sleep(ctx, r.delay()); err != nil {
				runErr = err
				break
			}
		}
	}

	run.FinishedAt = time.Now().UTC()
	if err := r.journal.RecordRun(ctx, run, failures, r.fetcher.Stats()); err != nil {
		r.log.Warn("recording run failed", "error", err)
	}

	r.log.Info("sync run finished",
		"updated", run.Updated, "created", run.Created, "no_data", run.NoData,
		"skipped", run.Skipped, "failed", run.Failed)
	for _, f := range failures {
		r.log.Warn("instrument failed", "code", f.Code, "name", f.Name, "reason", f.Reason)
	}
	return runErr
}

// syncOne runs the resolve-fetch-reconcile sequence for one instrument and
// updates the run counters.
func (r *Runner) syncOne(ctx context.Context, inst domain.Instrument, run *journal.RunSummary, failures *[]journal.Failure) string {
	res := r.resolver.Resolve(inst.Code, r.opts.Window.Start, r.opts.Window.End, r.opts.Mode)
	if !res.NeedUpdate {
		run.Skipped++
		return "skipped"
	}

	// The resolver only consults the calendar on its tail fast path; gate
	// the remaining branches here so a session-free window (weekends and
	// holidays for a brand-new instrument) never reaches the providers.
	if !r.calendar.HasSession(res.FetchStart, res.FetchEnd) {
		run.Skipped++
		return "skipped"
	}

	window := domain.DateRange{Start: res.FetchStart, End: res.FetchEnd}
	out := r.fetcher.Fetch(ctx, inst, window, r.opts.Adjust)
	switch out.Kind {
	case fetcher.KindSuccess:
		mres, err := r.reconciler.Merge(inst.Code, out.Records, res.FullRefresh, res.FetchEnd)
		if err != nil {
			run.Failed++
			*failures = append(*failures, journal.Failure{Code: inst.Code, Name: inst.Name, Reason: err.Error()})
			return "failed"
		}
		if mres.IsUpdate {
			run.Updated++
			return "updated"
		}
		run.Created++
		return "created"

	case fetcher.KindNoData:
		// Nothing to write, but the window is confirmed empty: advance the
		// watermark so the next run does not re-request it.
		if _, err := r.reconciler.Merge(inst.Code, nil, false, res.FetchEnd); err != nil {
			run.Failed++
			*failures = append(*failures, journal.Failure{Code: inst.Code, Name: inst.Name, Reason: err.Error()})
			return "failed"
		}
		run.NoData++
		return "no_data"

	default:
		run.Failed++
		*failures = append(*failures, journal.Failure{
			Code: inst.Code, Name: inst.Name, Reason: summarizeErrors(out.Errors),
		})
		return "failed"
	}
}

func (r *Runner) slice() []domain.Instrument {
	start := r.opts.StartIndex
	if start < 0 {
		start = 0
	}
	if start >= len(r.universe) {
		return nil
	}
	batch := r.universe[start:]
	if r.opts.BatchSize > 0 && len(batch) > r.opts.BatchSize {
		batch = batch[:r.opts.BatchSize]
	}
	return batch
}

func (r *Runner) delay() time.Duration {
	if r.opts.DelayMax <= r.opts.DelayMin {
		return r.opts.DelayMin
	}
	return r.opts.DelayMin + time.Duration(r.rng.Int63n(int64(r.opts.DelayMax-r.opts.DelayMin)))
}

func summarizeErrors(errs []fetcher.ProviderError) string {
	if len(errs) == 0 {
		return "all providers failed"
	}
	s := errs[0].Error()
	for _, e := range errs[1:] {
		s += "; " + e.Error()
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SafeEndDate clamps a window ending "today" to yesterday while today's bar
// is not yet published. now must carry the exchange's local time.
func SafeEndDate(now time.Time) time.Time {
	today := util.Day(now)
	if now.Hour()*60+now.Minute() < publishCutoffMinutes {
		return util.PrevDay(today)
	}
	return today
}
