package watermark

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSetGetRoundtrip(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)

	if _, ok := s.Get("600519"); ok {
		t.Fatal("Get on empty store should report absent")
	}

	d := day(2024, 3, 1)
	s.Set("600519", d)

	got, ok := s.Get("600519")
	if !ok {
		t.Fatal("Get after Set should find the watermark")
	}
	if !got.Equal(d) {
		t.Errorf("Get = %v, want %v", got, d)
	}

	// A fresh store must see the persisted value.
	s2 := NewStore(dir, nil)
	got, ok = s2.Get("600519")
	if !ok || !got.Equal(d) {
		t.Errorf("reloaded Get = %v, %v; want %v, true", got, ok, d)
	}
}

func TestBatchSetAndRemove(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)

	s.BatchSet(map[string]time.Time{
		"000001": day(2024, 1, 10),
		"600519": day(2024, 1, 11),
	})
	if s.Len() != 2 {
		t.Fatalf("Len = %d, want 2", s.Len())
	}

	s.Remove("000001")
	if _, ok := s.Get("000001"); ok {
		t.Error("removed code should be absent")
	}
	if _, ok := s.Get("600519"); !ok {
		t.Error("untouched code should remain")
	}
}

func TestCodes(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)

	s.BatchSet(map[string]time.Time{
		"000001": day(2024, 1, 10),
		"600519": day(2024, 1, 11),
	})

	codes := s.Codes()
	if len(codes) != 2 {
		t.Fatalf("Codes = %v, want 2 entries", codes)
	}
	seen := map[string]bool{}
	for _, c := range codes {
		seen[c] = true
	}
	if !seen["000001"] || !seen["600519"] {
		t.Errorf("Codes = %v", codes)
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	s.Set("600519", day(2024, 1, 2))

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", s.Len())
	}
	if _, err := os.Stat(filepath.Join(dir, FileName)); !os.IsNotExist(err) {
		t.Error("Clear should remove the backing file")
	}
}

func TestRebuild(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	s.Set("600519", day(2020, 1, 1)) // stale entry that rebuild must replace

	last := func(code string) (time.Time, bool) {
		switch code {
		case "600519":
			return day(2024, 2, 1), true
		case "000001":
			return day(2024, 2, 2), true
		}
		return time.Time{}, false
	}

	n := s.Rebuild([]string{"600519", "000001", "999999"}, last)
	if n != 2 {
		t.Fatalf("Rebuild = %d, want 2", n)
	}
	if got, _ := s.Get("600519"); !got.Equal(day(2024, 2, 1)) {
		t.Errorf("rebuilt watermark = %v, want %v", got, day(2024, 2, 1))
	}
	if _, ok := s.Get("999999"); ok {
		t.Error("code without series should not appear after rebuild")
	}
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	for i := 0; i < 5; i++ {
		s.Set("600519", day(2024, 1, 1+i))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp.") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestPersistFailureSwallowed(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir, nil)
	s.Set("600519", day(2024, 1, 2))

	// Point future persists at an impossible location: a path whose parent
	// is a regular file.
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	s.path = filepath.Join(blocker, FileName)

	s.Set("600519", day(2024, 1, 3)) // must not panic or fail the caller

	if got, ok := s.Get("600519"); !ok || !got.Equal(day(2024, 1, 3)) {
		t.Errorf("in-memory cache should stay authoritative, got %v %v", got, ok)
	}
	if s.LastPersistError() == nil {
		t.Error("LastPersistError should report the swallowed failure")
	}
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(dir, nil)
	if s.Len() != 0 {
		t.Errorf("corrupt file should yield an empty store, Len = %d", s.Len())
	}
}
