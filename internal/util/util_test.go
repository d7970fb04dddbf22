package util

import (
	"testing"
	"time"
)

func TestParseCompact(t *testing.T) {
	got, err := ParseCompact("20240115")
	if err != nil {
		t.Fatalf("ParseCompact: %v", err)
	}
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ParseCompact = %v, want %v", got, want)
	}

	if _, err := ParseCompact("2024-01-15"); err == nil {
		t.Error("ParseCompact should reject ISO input")
	}
}

func TestCompactISO(t *testing.T) {
	d := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	if got := Compact(d); got != "20240305" {
		t.Errorf("Compact = %q, want %q", got, "20240305")
	}
	if got := ISO(d); got != "2024-03-05" {
		t.Errorf("ISO = %q, want %q", got, "2024-03-05")
	}
}

func TestNextPrevDay(t *testing.T) {
	d := time.Date(2024, 2, 29, 15, 4, 5, 0, time.UTC) // leap day, not midnight
	if got := NextDay(d); !got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("NextDay = %v", got)
	}
	if got := PrevDay(d); !got.Equal(time.Date(2024, 2, 28, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("PrevDay = %v", got)
	}
}

func TestSameOrAfter(t *testing.T) {
	a := time.Date(2024, 1, 10, 9, 30, 0, 0, time.UTC)
	b := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	if !SameOrAfter(a, b) {
		t.Error("same day should count as same-or-after")
	}
	if SameOrAfter(b, NextDay(b)) {
		t.Error("earlier day should not count as same-or-after")
	}
}

func TestRound2(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{1.236, 1.24},
		{1.234, 1.23},
		{-1.236, -1.24},
		{0, 0},
		{1685.019, 1685.02},
	}
	for _, c := range cases {
		if got := Round2(c.in); got != c.want {
			t.Errorf("Round2(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	if l := NewLogger("debug", "json"); l == nil {
		t.Fatal("NewLogger returned nil")
	}
	if l := NewLogger("nonsense", "text"); l == nil {
		t.Fatal("NewLogger with unknown level returned nil")
	}
}
