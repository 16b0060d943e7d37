package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/loadshift/loadshift/core/forecast"
	"github.com/loadshift/loadshift/core/logger"
)

// upstream proxies a single path to the real intensity API. Attempts go
// through a circuit breaker so a dead upstream stops costing a full retry
// loop per request.
type upstream struct {
	host    string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	retries int
	backoff time.Duration
	log     logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func newUpstream(cfg Config, log logger.Logger) *upstream {
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "carbon-upstream",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	return &upstream{
		host:    strings.TrimSuffix(cfg.UpstreamHost, "/"),
		http:    &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		breaker: cb,
		retries: cfg.Retries,
		backoff: time.Duration(cfg.BackoffSeconds) * time.Second,
		log:     log,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fetch retrieves the given API path with bounded retry and a doubling
// delay. An open breaker short-circuits the remaining attempts.
func (u *upstream) fetch(ctx context.Context, path string) ([]byte, error) {
	url := u.host + path
	delay := u.backoff
	var lastErr error
	for attempt := 1; attempt <= u.retries; attempt++ {
		body, err := u.breaker.Execute(func() ([]byte, error) {
			return u.getOnce(ctx, url)
		})
		if err == nil {
			return body, nil
		}
		lastErr = err
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			break
		}
		if attempt == u.retries {
			break
		}
		u.log.Warnf("upstream fetch %s failed: %v; retrying in %s", url, err, delay)
		if err := u.sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
	return nil, &forecast.UpstreamError{URL: url, Attempts: u.retries, Err: lastErr}
}

func (u *upstream) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := u.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
