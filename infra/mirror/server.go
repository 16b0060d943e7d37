// Package mirror serves cached copies of the carbon intensity forecast API
// so a fleet of schedulers hits the upstream at most once per half hour per
// forecast source.
package mirror

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loadshift/loadshift/core/cache"
	"github.com/loadshift/loadshift/core/logger"
)

// Config holds the mirror service settings.
type Config struct {
	Listen               string `json:"listen"`
	UpstreamHost         string `json:"upstream_host"`
	TimeoutSeconds       int    `json:"timeout_seconds"`
	Retries              int    `json:"retries"`
	BackoffSeconds       int    `json:"backoff_seconds"`
	IdleTTLMinutes       int    `json:"idle_ttl_minutes"`
	SweepIntervalMinutes int    `json:"sweep_interval_minutes"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.UpstreamHost == "" {
		c.UpstreamHost = "https://api.carbonintensity.org.uk"
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
	if c.IdleTTLMinutes <= 0 {
		c.IdleTTLMinutes = 240
	}
	if c.SweepIntervalMinutes <= 0 {
		c.SweepIntervalMinutes = 30
	}
}

// Validate checks the listen address is usable.
func (c *Config) Validate() error {
	_, port, err := net.SplitHostPort(c.Listen)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if _, err := strconv.Atoi(port); err != nil {
		return fmt.Errorf("listen address %q has a non-numeric port", c.Listen)
	}
	return nil
}

// CacheKey maps a forecast API path onto the cache key shared by every
// request for the same source. Paths outside the fw48h forecast space have
// no key. National requests are three segments long and share key "0";
// regional and postcode requests key on the trailing segment.
func CacheKey(path string) (string, bool) {
	if !strings.Contains(path, "fw48h") {
		return "", false
	}
	segs := strings.Split(path, "/")
	if len(segs) > 0 && segs[0] == "" {
		segs = segs[1:]
	}
	if len(segs) == 3 {
		return "0", true
	}
	return segs[len(segs)-1], true
}

// Server answers forecast requests from the shared cache, refreshing from
// the upstream API when the cached window's half-hour slot has passed.
type Server struct {
	cfg      Config
	cache    *cache.Store
	upstream *upstream
	metrics  *serverMetrics
	log      logger.Logger
}

// New creates a Server. reg may be nil to use the default Prometheus
// registerer.
func New(cfg Config, reg prometheus.Registerer, log logger.Logger) (*Server, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	m, err := newServerMetrics(reg)
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:      cfg,
		cache:    cache.New(time.Duration(cfg.IdleTTLMinutes)*time.Minute, log),
		upstream: newUpstream(cfg, log),
		metrics:  m,
		log:      log,
	}, nil
}

// Cache exposes the underlying store, for tests.
func (s *Server) Cache() *cache.Store { return s.cache }

// Handler builds the HTTP routing. Every GET goes through the catch-all so
// the mirror mimics the upstream path space exactly.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/*", s.handleGet)
	return r
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key, ok := CacheKey(r.URL.Path)
	if !ok {
		s.metrics.requests.WithLabelValues("unknown").Inc()
		s.log.Debugf("no cache key for %s", r.URL.Path)
		fmt.Fprint(w, "Unknown GET request")
		return
	}

	body, hit, err := s.cache.GetOrRefresh(r.Context(), key, func(ctx context.Context) ([]byte, error) {
		b, ferr := s.upstream.fetch(ctx, r.URL.Path)
		s.metrics.upstreams.WithLabelValues(strconv.FormatBool(ferr == nil)).Inc()
		return b, ferr
	})
	s.metrics.keys.Set(float64(s.cache.Len()))
	if err != nil {
		s.metrics.requests.WithLabelValues("upstream_error").Inc()
		s.log.Errorf("refresh key %s: %v", key, err)
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprintf(w, "upstream fetch failed: %v", err)
		return
	}

	outcome := "refresh"
	if hit {
		outcome = "hit"
	}
	s.metrics.requests.WithLabelValues(outcome).Inc()
	s.log.Debugf("served key %s (%s, %d bytes)", key, outcome, len(body))
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// Run serves until ctx is cancelled, then shuts down gracefully. The idle
// janitor runs for the same lifetime.
func (s *Server) Run(ctx context.Context) error {
	go s.cache.StartJanitor(ctx, time.Duration(s.cfg.SweepIntervalMinutes)*time.Minute)

	srv := &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("mirror listening on %s", s.cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mirror shutdown: %w", err)
	}
	s.log.Infof("mirror stopped")
	return nil
}
