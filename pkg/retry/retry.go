package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"syscall"
	"time"
)

// Options controls a retried operation.
type Options struct {
	MaxAttempts int           // total calls, not extra retries
	BaseDelay   time.Duration // unit delay, scaled per attempt
	Silent      bool          // on exhaustion return zero value instead of the error
}

// DefaultOptions mirrors the provider-fetch defaults used across the scanner.
func DefaultOptions() Options {
	return Options{MaxAttempts: 5, BaseDelay: time.Second}
}

// sleep is swappable in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls op up to MaxAttempts times. Network-class failures back off
// BaseDelay*(attempt+1)*2, everything else BaseDelay*(attempt+1), with
// attempt zero-based for the call that just failed. No sleep follows the
// final attempt. An error-free empty result is a valid outcome and is
// never retried.
func Do[T any](ctx context.Context, op func() (T, error), opts Options) (T, error) {
	var zero T
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		v, err := op()
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == opts.MaxAttempts-1 {
			break
		}
		mult := time.Duration(1)
		if IsNetworkError(err) {
			mult = 2
		}
		wait := opts.BaseDelay * time.Duration(attempt+1) * mult
		if serr := sleep(ctx, wait); serr != nil {
			lastErr = serr
			break
		}
	}

	if opts.Silent {
		return zero, nil
	}
	return zero, lastErr
}

// IsNetworkError classifies transient transport faults: refused/reset/
// aborted connections, timeouts and truncated transfers.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return IsNetworkError(uerr.Err)
	}
	var operr *net.OpError
	return errors.As(err, &operr)
}
