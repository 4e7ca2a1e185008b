package retry

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"
)

func captureSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var slept []time.Duration
	orig := sleep
	sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	t.Cleanup(func() { sleep = orig })
	return &slept
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	captureSleeps(t)

	calls := 0
	op := func() (string, error) {
		calls++
		if calls < 4 {
			return "", errors.New("boom")
		}
		return "ok", nil
	}

	got, err := Do(context.Background(), op, Options{MaxAttempts: 4, BaseDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("unexpected value %q", got)
	}
	if calls != 4 {
		t.Fatalf("expected 4 calls, got %d", calls)
	}
}

func TestDoExhaustionReturnsLastError(t *testing.T) {
	captureSleeps(t)

	calls := 0
	op := func() (int, error) {
		calls++
		return 0, fmt.Errorf("failure %d", calls)
	}

	_, err := Do(context.Background(), op, Options{MaxAttempts: 3, BaseDelay: time.Millisecond})
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if err == nil || err.Error() != "failure 3" {
		t.Fatalf("expected last error preserved, got %v", err)
	}
}

func TestDoSilentReturnsZeroValue(t *testing.T) {
	captureSleeps(t)

	calls := 0
	op := func() (*int, error) {
		calls++
		return nil, errors.New("always")
	}

	v, err := Do(context.Background(), op, Options{MaxAttempts: 3, BaseDelay: time.Millisecond, Silent: true})
	if err != nil {
		t.Fatalf("silent mode must not return an error, got %v", err)
	}
	if v != nil {
		t.Fatalf("expected zero value, got %v", v)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDoBackoffNonNetwork(t *testing.T) {
	slept := captureSleeps(t)

	op := func() (int, error) { return 0, errors.New("plain") }
	base := 100 * time.Millisecond
	_, _ = Do(context.Background(), op, Options{MaxAttempts: 4, BaseDelay: base})

	want := []time.Duration{base, 2 * base, 3 * base}
	if len(*slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %d", len(want), len(*slept))
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("sleep %d: expected %v, got %v", i, d, (*slept)[i])
		}
	}
}

func TestDoBackoffNetwork(t *testing.T) {
	slept := captureSleeps(t)

	op := func() (int, error) { return 0, syscall.ECONNRESET }
	base := 100 * time.Millisecond
	_, _ = Do(context.Background(), op, Options{MaxAttempts: 3, BaseDelay: base})

	want := []time.Duration{2 * base, 4 * base}
	if len(*slept) != len(want) {
		t.Fatalf("expected %d sleeps, got %d", len(want), len(*slept))
	}
	for i, d := range want {
		if (*slept)[i] != d {
			t.Errorf("sleep %d: expected %v, got %v", i, d, (*slept)[i])
		}
	}
}

func TestDoNoSleepAfterFinalAttempt(t *testing.T) {
	slept := captureSleeps(t)

	op := func() (int, error) { return 0, errors.New("x") }
	_, _ = Do(context.Background(), op, Options{MaxAttempts: 1, BaseDelay: time.Second})

	if len(*slept) != 0 {
		t.Fatalf("expected no sleeps for single attempt, got %d", len(*slept))
	}
}

func TestIsNetworkError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("plain"), false},
		{syscall.ECONNREFUSED, true},
		{syscall.ECONNABORTED, true},
		{fmt.Errorf("wrap: %w", syscall.ECONNRESET), true},
		{context.DeadlineExceeded, true},
	}
	for _, c := range cases {
		if got := IsNetworkError(c.err); got != c.want {
			t.Errorf("IsNetworkError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
