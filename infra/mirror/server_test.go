package mirror

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadshift/loadshift/infra/logger"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func TestCacheKey(t *testing.T) {
	cases := []struct {
		path string
		key  string
		ok   bool
	}{
		{"/intensity/2024-03-01T12:00Z/fw48h", "0", true},
		{"/regional/intensity/2024-03-01T12:00Z/fw48h/regionid/5", "5", true},
		{"/regional/intensity/2024-03-01T12:00Z/fw48h/postcode/NW1", "NW1", true},
		{"/intensity/2024-03-01T12:00Z/fw24h", "", false},
		{"/generation", "", false},
	}
	for _, c := range cases {
		key, ok := CacheKey(c.path)
		if ok != c.ok || key != c.key {
			t.Fatalf("CacheKey(%q) = %q, %v; want %q, %v", c.path, key, ok, c.key, c.ok)
		}
	}
}

func newTestServer(t *testing.T, upstreamURL string) *Server {
	t.Helper()
	s, err := New(Config{
		UpstreamHost:   upstreamURL,
		Retries:        1,
		BackoffSeconds: 1,
	}, prometheus.NewRegistry(), logger.NopLogger{})
	require.NoError(t, err)
	s.Cache().SetClock(fixedClock{t: time.Date(2024, 3, 1, 12, 10, 0, 0, time.UTC)})
	return s
}

func TestServeCachedForecast(t *testing.T) {
	var calls int32
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprintf(w, `{"data":[{"from":"2024-03-01T12:00Z"}]}`)
	}))
	defer up.Close()

	s := newTestServer(t, up.URL)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var bodies []string
	for i := 0; i < 3; i++ {
		resp, err := http.Get(ts.URL + "/intensity/2024-03-01T12:00Z/fw48h")
		require.NoError(t, err)
		b, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		bodies = append(bodies, string(b))
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "one upstream fetch per slot")
	for _, b := range bodies {
		assert.Equal(t, `{"data":[{"from":"2024-03-01T12:00Z"}]}`, b)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	var calls int32
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		fmt.Fprint(w, r.URL.Path)
	}))
	defer up.Close()

	s := newTestServer(t, up.URL)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	paths := []string{
		"/intensity/2024-03-01T12:00Z/fw48h",
		"/regional/intensity/2024-03-01T12:00Z/fw48h/regionid/5",
		"/regional/intensity/2024-03-01T12:00Z/fw48h/postcode/NW1",
	}
	for _, p := range paths {
		resp, err := http.Get(ts.URL + p)
		require.NoError(t, err)
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, p, string(b))
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, 3, s.Cache().Len())
}

func TestUnknownRequest(t *testing.T) {
	s := newTestServer(t, "http://127.0.0.1:1")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/generation")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Unknown GET request", string(b))
}

func TestUpstreamFailure(t *testing.T) {
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer up.Close()

	s := newTestServer(t, up.URL)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/intensity/2024-03-01T12:00Z/fw48h")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(b), "upstream fetch failed")
	assert.Equal(t, 0, s.Cache().Len(), "failed fetches are not cached")
}

func TestUpstreamRetriesWithDoublingDelay(t *testing.T) {
	var calls int32
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "ok")
	}))
	defer up.Close()

	cfg := Config{UpstreamHost: up.URL, Retries: 3, BackoffSeconds: 1}
	cfg.SetDefaults()
	u := newUpstream(cfg, logger.NopLogger{})
	var delays []time.Duration
	u.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	body, err := u.fetch(context.Background(), "/intensity/2024-03-01T12:00Z/fw48h")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "https://api.carbonintensity.org.uk", cfg.UpstreamHost)
	assert.Equal(t, 3, cfg.Retries)
	assert.Equal(t, 240, cfg.IdleTTLMinutes)
	assert.Equal(t, 30, cfg.SweepIntervalMinutes)
	require.NoError(t, cfg.Validate())

	cfg.Listen = "nonsense"
	assert.Error(t, cfg.Validate())
}
