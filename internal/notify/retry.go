package notify

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// retryPolicy retries notification posts on network errors, 429 and 5xx.
// Other 4xx responses are returned immediately with the body intact.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      float64
}

// Notifications are sent once at the end of a run, so the budget is small.
var defaultRetryPolicy = retryPolicy{
	maxAttempts: 3,
	baseDelay:   500 * time.Millisecond,
	maxDelay:    5 * time.Second,
	jitter:      0.25,
}

func (p retryPolicy) do(ctx context.Context, client *http.Client, build func() (*http.Request, error)) (*http.Response, error) {
	attempts := p.maxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := range attempts {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		var retryAfter time.Duration
		resp, err := client.Do(req)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			resp.Body.Close()
		default:
			return resp, nil
		}

		if attempt == attempts-1 {
			break
		}
		delay := p.backoff(attempt, retryAfter)
		slog.Debug("notify: retrying", "attempt", attempt+1, "max", attempts, "delay", delay, "err", lastErr)
		if err := sleepWithContext(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

func (p retryPolicy) backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return min(retryAfter, p.maxDelay)
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	delay += delay * p.jitter * (rand.Float64()*2 - 1)
	if delay < 0 {
		delay = float64(p.baseDelay)
	}
	return time.Duration(delay)
}

// parseRetryAfter accepts delta-seconds or an HTTP-date; 0 when absent.
func parseRetryAfter(val string) time.Duration {
	val = strings.TrimSpace(val)
	if val == "" {
		return 0
	}
	if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := time.Parse(time.RFC1123, val); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
