// Package carbonapi fetches 48-hour forecasts from the National Grid carbon
// intensity API (or a mirror exposing the same path space).
package carbonapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/loadshift/loadshift/core/forecast"
	"github.com/loadshift/loadshift/core/logger"
	"github.com/loadshift/loadshift/core/metrics"
	"github.com/loadshift/loadshift/core/timeslot"
)

// Config holds the client settings.
type Config struct {
	BaseHost       string `json:"base_host"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Retries        int    `json:"retries"`
	BackoffSeconds int    `json:"backoff_seconds"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.BaseHost == "" {
		c.BaseHost = "https://api.carbonintensity.org.uk"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
	if c.Retries <= 0 {
		c.Retries = 3
	}
	if c.BackoffSeconds <= 0 {
		c.BackoffSeconds = 1
	}
}

// Client fetches forecast windows with bounded retry. Transport and HTTP
// failures are retried with a doubling delay; exhaustion yields an
// UpstreamError, which callers treat as fatal.
type Client struct {
	baseHost string
	http     *http.Client
	retries  int
	backoff  time.Duration
	sink     metrics.FetchRecorder
	log      logger.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Client. sink may be nil.
func New(cfg Config, sink metrics.FetchRecorder, log logger.Logger) *Client {
	cfg.SetDefaults()
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Client{
		baseHost: strings.TrimSuffix(cfg.BaseHost, "/"),
		http:     &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		retries:  cfg.Retries,
		backoff:  time.Duration(cfg.BackoffSeconds) * time.Second,
		sink:     sink,
		log:      log,
		sleep:    sleepContext,
	}
}

// SetSleep overrides the backoff sleep, for tests.
func (c *Client) SetSleep(fn func(ctx context.Context, d time.Duration) error) { c.sleep = fn }

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

// Fetch retrieves the forecast window for src starting at the half-hour
// floor of now.
func (c *Client) Fetch(ctx context.Context, src forecast.Source, now time.Time) (forecast.Window, error) {
	url := c.baseHost + src.Path(timeslot.Floor(now))
	started := time.Now()

	body, attempts, err := c.get(ctx, url)
	if recErr := c.sink.RecordFetch(metrics.FetchEvent{
		Source:   src.String(),
		Attempts: attempts,
		Success:  err == nil,
		Duration: time.Since(started),
		Time:     now,
	}); recErr != nil {
		c.log.Errorf("record fetch: %v", recErr)
	}
	if err != nil {
		return nil, err
	}
	return forecast.DecodeWindow(body, src, now)
}

// get performs the retry loop: up to retries attempts with a doubling delay
// between them.
func (c *Client) get(ctx context.Context, url string) ([]byte, int, error) {
	delay := c.backoff
	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		c.log.Debugf("fetching %s (attempt %d/%d)", url, attempt, c.retries)
		body, err := c.getOnce(ctx, url)
		if err == nil {
			return body, attempt, nil
		}
		var perr *forecast.ParseError
		if errors.As(err, &perr) {
			// Shape/charset problems will not be fixed by retrying.
			return nil, attempt, err
		}
		lastErr = err
		if attempt == c.retries {
			break
		}
		c.log.Warnf("fetch %s failed: %v; retrying in %s", url, err, delay)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, attempt, err
		}
		delay *= 2
	}
	return nil, c.retries, &forecast.UpstreamError{URL: url, Attempts: c.retries, Err: lastErr}
}

func (c *Client) getOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if err := checkCharset(resp.Header.Get("Content-Type")); err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}

// checkCharset rejects charsets other than UTF-8. JSON is interchanged as
// UTF-8 (RFC 8259); an absent parameter defaults to it.
func checkCharset(contentType string) error {
	if contentType == "" {
		return nil
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil // a broken header is not worth failing the fetch over
	}
	switch strings.ToLower(params["charset"]) {
	case "", "utf-8", "us-ascii":
		return nil
	default:
		return &forecast.ParseError{Reason: "unsupported charset " + params["charset"]}
	}
}
