// Package resolver decides, per instrument, exactly what date range must be
// fetched from upstream. It reconciles the persisted series, the watermark
// cache, and the trading calendar, and always errs on the side of fetching:
// a wasted request is recoverable, silently skipped data is not.
package resolver

import (
	"log/slog"
	"time"

	"stocksync/internal/calendar"
	"stocksync/internal/domain"
	"stocksync/internal/series"
	"stocksync/internal/util"
	"stocksync/internal/watermark"
)

// Resolution is the resolver's answer for one instrument and window.
type Resolution struct {
	NeedUpdate  bool
	FetchStart  time.Time
	FetchEnd    time.Time
	FullRefresh bool
	// MissingDates lists missing trading days in ISO form for diagnostics.
	// It is populated whenever the full analysis path runs, whether or not
	// an update is triggered.
	MissingDates []string
}

// Resolver computes minimal fetch windows.
type Resolver struct {
	series     *series.Store
	watermarks *watermark.Store
	calendar   *calendar.Calendar
	log        *slog.Logger
}

// New creates a Resolver over the given stores and calendar.
func New(s *series.Store, w *watermark.Store, c *calendar.Calendar, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{series: s, watermarks: w, calendar: c, log: logger}
}

// Resolve returns what must be fetched for code to cover [start, end] under
// the given update mode.
//
// Tail mode takes a fast path that never loads the whole series: the
// watermark (or, failing that, only the final row of the file) bounds the
// trailing gap, and the calendar proves whether that gap contains a session.
// Full and head_tail modes load the series and partition missing trading days
// into head, middle, and tail.
func (r *Resolver) Resolve(code string, start, end time.Time, mode domain.UpdateMode) Resolution {
	start, end = util.Day(start), util.Day(end)

	if !r.series.Exists(code) {
		return Resolution{NeedUpdate: true, FetchStart: start, FetchEnd: end}
	}

	if mode == domain.ModeTail {
		if last, ok := r.watermarks.Get(code); ok {
			return r.resolveTail(last, start, end)
		}
		if last, ok, err := r.series.LastDate(code); err == nil {
			if !ok {
				// Series file exists but holds no rows.
				return Resolution{NeedUpdate: true, FetchStart: start, FetchEnd: end}
			}
			return r.resolveTail(last, start, end)
		}
		// Tail fast path failed; fall through to the full analysis, which
		// degrades conservatively on read errors.
	}

	return r.resolveFull(code, start, end, mode)
}

// resolveTail handles the tail fast path given a trusted last-synced or
// last-recorded date.
func (r *Resolver) resolveTail(last, start, end time.Time) Resolution {
	if util.SameOrAfter(last, end) {
		return Resolution{}
	}
	next := util.NextDay(last)
	if !r.calendar.HasSession(next, end) {
		// The remaining gap is provably non-trading days.
		return Resolution{}
	}
	return Resolution{NeedUpdate: true, FetchStart: next, FetchEnd: end}
}

// resolveFull loads the series and analyses every missing trading day in the
// window. On any read failure it degrades to re-fetching the whole window.
func (r *Resolver) resolveFull(code string, start, end time.Time, mode domain.UpdateMode) Resolution {
	records, err := r.series.Read(code)
	if err != nil {
		r.log.Warn("series unreadable, degrading to full re-fetch", "code", code, "error", err)
		return Resolution{NeedUpdate: true, FetchStart: start, FetchEnd: end}
	}
	if len(records) == 0 {
		return Resolution{NeedUpdate: true, FetchStart: start, FetchEnd: end}
	}

	existing := make(map[string]struct{}, len(records))
	seriesStart, seriesEnd := records[0].Date, records[0].Date
	for _, rec := range records {
		existing[util.Compact(rec.Date)] = struct{}{}
		if rec.Date.Before(seriesStart) {
			seriesStart = rec.Date
		}
		if rec.Date.After(seriesEnd) {
			seriesEnd = rec.Date
		}
	}

	// Missing trading days in [start, end], ascending.
	var missing []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if _, ok := existing[util.Compact(d)]; ok {
			continue
		}
		if r.calendar.HasSession(d, d) {
			missing = append(missing, d)
		}
	}
	if len(missing) == 0 {
		return Resolution{}
	}

	missingISO := make([]string, len(missing))
	for i, d := range missing {
		missingISO[i] = util.ISO(d)
	}

	hasHead := missing[0].Before(seriesStart)
	hasTail := missing[len(missing)-1].After(seriesEnd)
	hasMiddle := false
	for _, d := range missing {
		if d.After(seriesStart) && d.Before(seriesEnd) {
			hasMiddle = true
			break
		}
	}

	none := Resolution{MissingDates: missingISO}
	tailFetch := Resolution{
		NeedUpdate:   true,
		FetchStart:   util.NextDay(seriesEnd),
		FetchEnd:     end,
		MissingDates: missingISO,
	}
	headFetch := Resolution{
		NeedUpdate:   true,
		FetchStart:   start,
		FetchEnd:     util.PrevDay(seriesStart),
		MissingDates: missingISO,
	}
	fullFetch := Resolution{
		NeedUpdate:   true,
		FetchStart:   start,
		FetchEnd:     end,
		FullRefresh:  true,
		MissingDates: missingISO,
	}

	if hasMiddle {
		switch mode {
		case domain.ModeFull:
			// Interior days are wrongly missing until proven otherwise:
			// re-fetch the whole window so upstream can resupply them.
			return fullFetch
		case domain.ModeTail:
			if hasTail {
				return tailFetch
			}
			return none
		case domain.ModeHeadTail:
			switch {
			case hasHead && hasTail:
				// Head and tail both missing collapses to one full-range
				// fetch instead of two requests.
				return fullFetch
			case hasTail:
				return tailFetch
			case hasHead:
				return headFetch
			default:
				return none
			}
		}
	}

	// No interior gap.
	if mode == domain.ModeTail {
		if hasTail {
			return tailFetch
		}
		return none
	}
	switch {
	case hasTail && !hasHead:
		return tailFetch
	case hasHead && !hasTail:
		return headFetch
	case hasHead && hasTail:
		return fullFetch
	}
	return none
}
