// Package journal records the outcome of sync runs: one summary row per
// run, the per-instrument failures, and which provider answered how often.
// The journal is observability only; losing it never affects series data.
package journal

import (
	"context"
	"time"
)

// RunSummary is the aggregate outcome of one sync run.
type RunSummary struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Mode       string
	Total      int
	Updated    int
	Created    int
	NoData     int
	Skipped    int
	Failed     int
}

// Failure identifies one instrument the run could not sync and why.
type Failure struct {
	Code   string
	Name   string
	Reason string
}

// Journal persists run outcomes.
type Journal interface {
	RecordRun(ctx context.Context, run RunSummary, failures []Failure, usage map[string]int) error
	Close() error
}

// Compile-time interface check.
var _ Journal = (*Noop)(nil)

// Noop discards everything. Used when no journal path is configured.
type Noop struct{}

func (Noop) RecordRun(context.Context, RunSummary, []Failure, map[string]int) error { return nil }
func (Noop) Close() error                                                           { return nil }
