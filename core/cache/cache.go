// Package cache implements the keyed, time-bucketed forecast store shared by
// the mirror service. An entry is fresh for the half-hour bucket it was
// fetched in; a stale or missing entry triggers exactly one upstream fetch
// per key, shared by all concurrent callers.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/loadshift/loadshift/core/logger"
	"github.com/loadshift/loadshift/core/timeslot"
)

// Clock abstracts time.Now for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// FetchFunc obtains a fresh upstream body for a key.
type FetchFunc func(ctx context.Context) ([]byte, error)

type entry struct {
	fetched    time.Time
	lastAccess time.Time
	body       []byte
}

// Store maps cache keys to the last fetched response body. Entries idle for
// longer than idleTTL are removed by Sweep.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	group   singleflight.Group
	clock   Clock
	idleTTL time.Duration
	log     logger.Logger
}

// New creates a Store. Entries untouched for idleTTL are eligible for
// eviction; idleTTL <= 0 disables eviction.
func New(idleTTL time.Duration, log logger.Logger) *Store {
	return &Store{
		entries: make(map[string]*entry),
		clock:   realClock{},
		idleTTL: idleTTL,
		log:     log,
	}
}

// SetClock overrides the clock, for tests.
func (s *Store) SetClock(c Clock) { s.clock = c }

// Len returns the number of cached keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// lookup returns the cached body if it is fresh for the bucket of now.
func (s *Store) lookup(key string, now time.Time) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !timeslot.SameBucket(e.fetched, now) {
		return nil, false
	}
	e.lastAccess = now
	return e.body, true
}

// GetOrRefresh returns the body cached for key, fetching a fresh copy when
// the entry is absent or was fetched in an earlier half-hour bucket.
// Concurrent callers for the same stale key share a single fetch.
//
// Hit reports whether the cached copy was served without an upstream call.
func (s *Store) GetOrRefresh(ctx context.Context, key string, fetch FetchFunc) (body []byte, hit bool, err error) {
	now := s.clock.Now()
	if body, ok := s.lookup(key, now); ok {
		return body, true, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		// A concurrent flight may have refreshed the entry already.
		if body, ok := s.lookup(key, s.clock.Now()); ok {
			return body, nil
		}
		body, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		fetched := s.clock.Now()
		s.mu.Lock()
		s.entries[key] = &entry{fetched: fetched, lastAccess: fetched, body: body}
		s.mu.Unlock()
		return body, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}

// Sweep evicts entries whose last access is older than the idle TTL and
// returns the number removed.
func (s *Store) Sweep(now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.entries {
		if now.Sub(e.lastAccess) > s.idleTTL {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps the store on the given interval until ctx is
// cancelled.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(s.clock.Now()); n > 0 {
				s.log.Infof("evicted %d idle cache entries", n)
			}
		}
	}
}
