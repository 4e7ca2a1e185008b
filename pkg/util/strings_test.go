package util

import "testing"

func TestParseIntDefault(t *testing.T) {
	if got := ParseIntDefault("42", 0); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := ParseIntDefault("", 7); got != 7 {
		t.Fatalf("expected default, got %d", got)
	}
	if got := ParseIntDefault("abc", 7); got != 7 {
		t.Fatalf("expected default on garbage, got %d", got)
	}
}

func TestParseFloatDefault(t *testing.T) {
	if got := ParseFloatDefault("3.14", 0); got != 3.14 {
		t.Fatalf("expected 3.14, got %v", got)
	}
	if got := ParseFloatDefault("-", 0); got != 0 {
		t.Fatalf("suspended marker must parse to default, got %v", got)
	}
	if got := ParseFloatDefault("", 1.5); got != 1.5 {
		t.Fatalf("expected default, got %v", got)
	}
}
