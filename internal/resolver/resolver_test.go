package resolver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stocksync/internal/calendar"
	"stocksync/internal/domain"
	"stocksync/internal/series"
	"stocksync/internal/util"
	"stocksync/internal/watermark"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func record(d time.Time) domain.DailyRecord {
	return domain.DailyRecord{
		Date: d, Code: "600519", Name: "贵州茅台",
		Open: 1685, Close: 1690, High: 1702, Low: 1680,
		Volume: 2_500_000, Amount: 4_230_000_000,
	}
}

func newResolver(t *testing.T) (*Resolver, *series.Store, *watermark.Store) {
	t.Helper()
	dir := t.TempDir()
	ss := series.NewStore(dir)
	ws := watermark.NewStore(filepath.Join(dir, "CN"), nil)
	cal := calendar.New("", nil)
	return New(ss, ws, cal, nil), ss, ws
}

func TestResolveNoSeries(t *testing.T) {
	r, _, _ := newResolver(t)

	res := r.Resolve("600519", day(2024, 1, 1), day(2024, 1, 31), domain.ModeTail)
	if !res.NeedUpdate || res.FullRefresh {
		t.Fatalf("want plain full-window fetch, got %+v", res)
	}
	if !res.FetchStart.Equal(day(2024, 1, 1)) || !res.FetchEnd.Equal(day(2024, 1, 31)) {
		t.Errorf("fetch window = %v..%v", res.FetchStart, res.FetchEnd)
	}
}

func TestResolveWatermarkUpToDate(t *testing.T) {
	r, ss, ws := newResolver(t)
	if err := ss.Write("600519", []domain.DailyRecord{record(day(2024, 1, 8))}); err != nil {
		t.Fatal(err)
	}
	ws.Set("600519", day(2024, 1, 31))

	res := r.Resolve("600519", day(2024, 1, 1), day(2024, 1, 31), domain.ModeTail)
	if res.NeedUpdate {
		t.Errorf("watermark at end should need no update, got %+v", res)
	}
}

func TestResolveWatermarkTailGap(t *testing.T) {
	r, ss, ws := newResolver(t)
	if err := ss.Write("600519", []domain.DailyRecord{record(day(2024, 1, 8))}); err != nil {
		t.Fatal(err)
	}
	// Watermark beyond the last recorded date (trailing suspension).
	ws.Set("600519", day(2024, 1, 24))

	res := r.Resolve("600519", day(2024, 1, 1), day(2024, 1, 31), domain.ModeTail)
	if !res.NeedUpdate || res.FullRefresh {
		t.Fatalf("want tail fetch, got %+v", res)
	}
	if !res.FetchStart.Equal(day(2024, 1, 25)) || !res.FetchEnd.Equal(day(2024, 1, 31)) {
		t.Errorf("fetch window = %v..%v, want 2024-01-25..2024-01-31", res.FetchStart, res.FetchEnd)
	}
}

func TestResolveWatermarkWeekendGap(t *testing.T) {
	r, ss, ws := newResolver(t)
	if err := ss.Write("600519", []domain.DailyRecord{record(day(2024, 1, 12))}); err != nil {
		t.Fatal(err)
	}
	// Friday 2024-01-12 synced; window ends Sunday 2024-01-14.
	ws.Set("600519", day(2024, 1, 12))

	res := r.Resolve("600519", day(2024, 1, 1), day(2024, 1, 14), domain.ModeTail)
	if res.NeedUpdate {
		t.Errorf("weekend-only gap should need no update, got %+v", res)
	}
}

// The concrete correctness table: series holds 2024-01-08..09 and
// 2024-01-26..27, no watermark, window 2024-01-01..31, tail mode. The
// interior gap alone must not trigger an update; the trailing gap must.
func TestResolveTailIgnoresInteriorGap(t *testing.T) {
	r, ss, _ := newResolver(t)
	recs := []domain.DailyRecord{
		record(day(2024, 1, 8)), record(day(2024, 1, 9)),
		record(day(2024, 1, 26)), record(day(2024, 1, 27)),
	}
	if err := ss.Write("600519", recs); err != nil {
		t.Fatal(err)
	}

	res := r.Resolve("600519", day(2024, 1, 1), day(2024, 1, 31), domain.ModeTail)
	if !res.NeedUpdate || res.FullRefresh {
		t.Fatalf("want tail fetch without refresh, got %+v", res)
	}
	if !res.FetchStart.Equal(day(2024, 1, 28)) || !res.FetchEnd.Equal(day(2024, 1, 31)) {
		t.Errorf("fetch window = %v..%v, want 2024-01-28..2024-01-31", res.FetchStart, res.FetchEnd)
	}

	// Same series, window ending at the last recorded day: the interior
	// gap alone triggers nothing.
	res = r.Resolve("600519", day(2024, 1, 1), day(2024, 1, 27), domain.ModeTail)
	if res.NeedUpdate {
		t.Errorf("interior gap alone should not trigger an update, got %+v", res)
	}
}

func TestResolveFullModeMiddleGap(t *testing.T) {
	r, ss, ws := newResolver(t)
	recs := []domain.DailyRecord{
		record(day(2024, 1, 8)), record(day(2024, 1, 9)),
		record(day(2024, 1, 26)), record(day(2024, 1, 27)),
	}
	if err := ss.Write("600519", recs); err != nil {
		t.Fatal(err)
	}
	_ = ws

	res := r.Resolve("600519", day(2024, 1, 8), day(2024, 1, 27), domain.ModeFull)
	if !res.NeedUpdate || !res.FullRefresh {
		t.Fatalf("middle gap in full mode should force a refresh, got %+v", res)
	}
	if !res.FetchStart.Equal(day(2024, 1, 8)) || !res.FetchEnd.Equal(day(2024, 1, 27)) {
		t.Errorf("refresh window = %v..%v, want whole request", res.FetchStart, res.FetchEnd)
	}
	if len(res.MissingDates) == 0 {
		t.Error("missing dates should be reported for diagnostics")
	}
	// First interior missing trading day is Wednesday 2024-01-10.
	if res.MissingDates[0] != "2024-01-10" {
		t.Errorf("MissingDates[0] = %s, want 2024-01-10", res.MissingDates[0])
	}
}

func TestResolveHeadTailMode(t *testing.T) {
	r, ss, _ := newResolver(t)
	recs := []domain.DailyRecord{
		record(day(2024, 1, 15)), record(day(2024, 1, 16)),
		record(day(2024, 1, 17)), record(day(2024, 1, 18)),
		record(day(2024, 1, 19)),
	}
	if err := ss.Write("600519", recs); err != nil {
		t.Fatal(err)
	}

	// Head gap only.
	res := r.Resolve("600519", day(2024, 1, 8), day(2024, 1, 19), domain.ModeHeadTail)
	if !res.NeedUpdate || res.FullRefresh {
		t.Fatalf("want head fetch, got %+v", res)
	}
	if !res.FetchStart.Equal(day(2024, 1, 8)) || !res.FetchEnd.Equal(day(2024, 1, 14)) {
		t.Errorf("head window = %v..%v, want 2024-01-08..2024-01-14", res.FetchStart, res.FetchEnd)
	}

	// Head and tail gaps collapse to one full-range refresh.
	res = r.Resolve("600519", day(2024, 1, 8), day(2024, 1, 31), domain.ModeHeadTail)
	if !res.NeedUpdate || !res.FullRefresh {
		t.Fatalf("head+tail should collapse to a full refresh, got %+v", res)
	}
}

func TestResolveHeadTailMiddleOnly(t *testing.T) {
	r, ss, _ := newResolver(t)
	recs := []domain.DailyRecord{
		record(day(2024, 1, 8)), record(day(2024, 1, 10)),
		record(day(2024, 1, 12)),
	}
	if err := ss.Write("600519", recs); err != nil {
		t.Fatal(err)
	}

	res := r.Resolve("600519", day(2024, 1, 8), day(2024, 1, 12), domain.ModeHeadTail)
	if res.NeedUpdate {
		t.Fatalf("middle-only gap should not trigger head_tail update, got %+v", res)
	}
	// Diagnostics still report the interior missing sessions (Jan 9, 11).
	if len(res.MissingDates) != 2 || res.MissingDates[0] != "2024-01-09" || res.MissingDates[1] != "2024-01-11" {
		t.Errorf("MissingDates = %v, want [2024-01-09 2024-01-11]", res.MissingDates)
	}
}

func TestResolveCorruptSeriesDegrades(t *testing.T) {
	r, ss, _ := newResolver(t)
	path := ss.Path("600519")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, mode := range []domain.UpdateMode{domain.ModeTail, domain.ModeFull, domain.ModeHeadTail} {
		res := r.Resolve("600519", day(2024, 1, 1), day(2024, 1, 31), mode)
		if !res.NeedUpdate || res.FullRefresh {
			t.Errorf("mode %s: corrupt series should degrade to plain full-window fetch, got %+v", mode, res)
		}
		if !res.FetchStart.Equal(day(2024, 1, 1)) || !res.FetchEnd.Equal(day(2024, 1, 31)) {
			t.Errorf("mode %s: window = %v..%v", mode, res.FetchStart, res.FetchEnd)
		}
	}
}

func TestResolveMissingDatesAreISO(t *testing.T) {
	r, ss, _ := newResolver(t)
	recs := []domain.DailyRecord{record(day(2024, 1, 8)), record(day(2024, 1, 12))}
	if err := ss.Write("600519", recs); err != nil {
		t.Fatal(err)
	}

	res := r.Resolve("600519", day(2024, 1, 8), day(2024, 1, 12), domain.ModeFull)
	for _, d := range res.MissingDates {
		if _, err := util.ParseISO(d); err != nil {
			t.Errorf("missing date %q is not ISO formatted", d)
		}
	}
}
