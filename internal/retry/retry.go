// Package retry runs remote calls under a bounded attempt budget with a
// fixed or growing delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// HTTPError is a non-2xx response from a remote service. Clients wrap their
// SDK or transport errors in it so the policy can classify them.
type HTTPError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("received status code %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("received status code %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

// Policy describes how often and how patiently a call is retried.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// Delay is the wait after the first failure.
	Delay time.Duration
	// Backoff multiplies the delay after every failure. 1 keeps it fixed.
	Backoff float64
	// MaxDelay caps the grown delay. Zero means no cap.
	MaxDelay time.Duration
	// Retryable overrides the default classification when set.
	Retryable func(error) bool
	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Result reports how a call under a policy went
type Result struct {
	Attempts int
	Err      error
	Duration time.Duration
}

// Do calls op until it succeeds, fails permanently, or the attempt budget is spent.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) Result {
	start := time.Now()

	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.Backoff <= 0 {
		p.Backoff = 1
	}
	if p.Retryable == nil {
		p.Retryable = IsRetryable
	}
	if p.Sleep == nil {
		p.Sleep = SleepWithContext
	}

	res := Result{}
	delay := p.Delay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		res.Attempts = attempt

		if err := ctx.Err(); err != nil {
			res.Err = err
			break
		}

		err := op(ctx)
		if err == nil {
			res.Err = nil
			break
		}
		res.Err = err

		if !p.Retryable(err) || ctx.Err() != nil {
			slog.Debug("Not retrying", "attempt", attempt, "err", err)
			break
		}
		if attempt == p.MaxAttempts {
			break
		}

		slog.Warn("Call failed, retrying", "attempt", attempt, "max_attempts", p.MaxAttempts, "delay", delay, "err", err)
		if err := p.Sleep(ctx, delay); err != nil {
			res.Err = err
			break
		}

		delay = time.Duration(float64(delay) * p.Backoff)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	res.Duration = time.Since(start)
	return res
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, Result) {
	var value T
	res := Do(ctx, p, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	return value, res
}

// IsRetryable is the default classification: rate limits, server errors,
// timeouts and dropped connections are transient; other client errors and
// cancellation are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return RetryableStatus(httpErr.StatusCode)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, indicator := range transientIndicators {
		if strings.Contains(msg, indicator) {
			return true
		}
	}
	return false
}

var transientIndicators = []string{
	"rate limit",
	"too many requests",
	"overloaded",
	"throttl",
	"timeout",
	"connection refused",
	"connection reset",
	"broken pipe",
	"eof",
	"temporarily unavailable",
}

// RetryableStatus reports whether an HTTP status is worth another attempt
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return code >= 500 && code <= 599
}

// SleepWithContext sleeps for d or until ctx is cancelled
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
