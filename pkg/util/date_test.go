package util

import (
	"testing"
	"time"
)

func TestDayKey(t *testing.T) {
	at := time.Date(2026, 8, 28, 14, 30, 0, 0, time.Local)
	if got := DayKey(at); got != "2026-08-28" {
		t.Fatalf("DayKey = %q", got)
	}
	if DayKey(at) != DayKey(at.Add(8*time.Hour)) {
		t.Fatal("same-day times must share a key")
	}
	if DayKey(at) == DayKey(at.Add(24*time.Hour)) {
		t.Fatal("key must change when the day rolls over")
	}
}

func TestUntilNextDay(t *testing.T) {
	at := time.Date(2026, 8, 28, 23, 0, 0, 0, time.Local)
	if got := UntilNextDay(at); got != time.Hour {
		t.Fatalf("expected 1h to midnight, got %v", got)
	}
	if got := UntilNextDay(at); got <= 0 || got > 24*time.Hour {
		t.Fatalf("duration out of range: %v", got)
	}
}

func TestWithinHours(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	if !WithinHours(now, now.Add(-3*time.Hour), 4) {
		t.Fatal("3h-old entry must pass a 4h limit")
	}
	if WithinHours(now, now.Add(-5*time.Hour), 4) {
		t.Fatal("5h-old entry must fail a 4h limit")
	}
	if WithinHours(now, now, 0) {
		t.Fatal("zero limit must never match")
	}
}
