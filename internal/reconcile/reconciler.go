// Package reconcile merges fetched record batches into the persisted series
// and advances the watermark. It is the only component that mutates series
// files; per instrument the state machine is Absent or Present(watermark),
// driven exclusively by Merge outcomes.
package reconcile

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"stocksync/internal/domain"
	"stocksync/internal/series"
	"stocksync/internal/util"
	"stocksync/internal/watermark"
)

// MergeResult summarizes one merge: whether an existing series was updated
// (as opposed to created), how many valid records were persisted from the
// batch, and how many invalid rows were dropped across both the batch and
// the pre-existing series.
type MergeResult struct {
	IsUpdate     bool
	NewCount     int
	RemovedCount int
}

// Reconciler owns series mutation and watermark advancement.
type Reconciler struct {
	series     *series.Store
	watermarks *watermark.Store
	log        *slog.Logger
}

// New creates a Reconciler over the given stores.
func New(ss *series.Store, ws *watermark.Store, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{series: ss, watermarks: ws, log: logger}
}

// FilterInvalid drops suspended observations. A record survives only when
// both volume and amount are strictly positive; zero or negative in either
// marks a day with no actual trade.
func FilterInvalid(records []domain.DailyRecord) (valid []domain.DailyRecord, removed int) {
	valid = make([]domain.DailyRecord, 0, len(records))
	for _, r := range records {
		if r.Volume > 0 && r.Amount > 0 {
			valid = append(valid, r)
		} else {
			removed++
		}
	}
	return valid, removed
}

// Merge folds batch into the persisted series for code and advances the
// watermark to requestedEnd.
//
// The batch is filtered first. An all-invalid batch writes nothing but still
// advances the watermark, so a confirmed-empty window is not re-requested on
// the next run. Otherwise the batch either replaces the series (no prior
// series, or fullRefresh) or is merged into it: the existing rows are
// re-filtered as well, overlapping dates are taken from the batch, and the
// result is sorted ascending. Existing rows keep their recorded instrument
// name, so renames remain visible in history.
//
// The watermark never moves backwards: a head-only backfill, whose requested
// end predates the already-synced tail, merges its rows without touching the
// recorded high-water date.
func (r *Reconciler) Merge(code string, batch []domain.DailyRecord, fullRefresh bool, requestedEnd time.Time) (MergeResult, error) {
	filtered, removed := FilterInvalid(batch)
	res := MergeResult{RemovedCount: removed}

	exists := r.series.Exists(code)
	res.IsUpdate = exists

	if len(filtered) == 0 {
		r.log.Debug("batch empty after filtering, advancing watermark only",
			"code", code, "removed", removed, "watermark", util.Compact(requestedEnd))
		r.advance(code, requestedEnd)
		return res, nil
	}

	out := filtered
	if exists && !fullRefresh {
		existing, err := r.series.Read(code)
		if err != nil {
			return res, fmt.Errorf("merging %s: %w", code, err)
		}
		existingValid, existingRemoved := FilterInvalid(existing)
		res.RemovedCount += existingRemoved
		out = mergeByDate(existingValid, filtered)
	}

	if err := r.series.Write(code, out); err != nil {
		return res, err
	}
	res.NewCount = len(filtered)

	r.advance(code, requestedEnd)
	return res, nil
}

// advance moves the watermark to requestedEnd unless it is already at or past
// that date.
func (r *Reconciler) advance(code string, requestedEnd time.Time) {
	if cur, ok := r.watermarks.Get(code); ok && !requestedEnd.After(cur) {
		return
	}
	r.watermarks.Set(code, requestedEnd)
}

// mergeByDate concatenates existing and incoming, deduplicates by calendar
// day with the incoming row winning, and returns the rows sorted ascending.
func mergeByDate(existing, incoming []domain.DailyRecord) []domain.DailyRecord {
	byDate := make(map[string]domain.DailyRecord, len(existing)+len(incoming))
	for _, r := range existing {
		byDate[util.ISO(r.Date)] = r
	}
	for _, r := range incoming {
		byDate[util.ISO(r.Date)] = r
	}

	out := make([]domain.DailyRecord, 0, len(byDate))
	for _, r := range byDate {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
