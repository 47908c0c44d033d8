package aggregate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kptv/faststreams/internal/catalog"
	"github.com/kptv/faststreams/internal/metrics"
)

// Store caches the latest aggregation result with a TTL. Reads never block
// while a usable result exists: a stale result is served as-is and a refresh
// is kicked off behind it. Only the very first read, before any cycle has
// completed, waits for one.
type Store struct {
	scheduler *Scheduler
	ttl       time.Duration
	log       *slog.Logger

	mu         sync.Mutex
	result     *catalog.Result
	refreshing bool
	done       chan struct{} // closed when the in-flight refresh finishes

	// now is swappable for TTL tests.
	now func() time.Time
}

func NewStore(scheduler *Scheduler, ttl time.Duration, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		scheduler: scheduler,
		ttl:       ttl,
		log:       log,
		now:       time.Now,
	}
}

// Get returns the current result. A fresh result is returned directly; a
// stale one is returned immediately with a background refresh started. With
// no result at all, Get blocks until the first cycle completes.
func (s *Store) Get(ctx context.Context) (*catalog.Result, error) {
	s.mu.Lock()
	if s.result != nil {
		res := s.result
		age := s.now().Sub(res.CompletedAt)
		if age > s.ttl && !s.refreshing {
			s.startRefreshLocked("expired")
		}
		s.mu.Unlock()
		metrics.CacheAge.Set(age.Seconds())
		return res, nil
	}
	// No result yet. Join or start the first refresh and wait for it.
	if !s.refreshing {
		s.startRefreshLocked("cold")
	}
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil, errAllFailed
	}
	return s.result, nil
}

var errAllFailed = &cycleError{}

type cycleError struct{}

func (*cycleError) Error() string { return "no aggregation result available" }

// ForceRefresh runs a cycle now and waits for it. Concurrent callers share
// one cycle.
func (s *Store) ForceRefresh(ctx context.Context) (*catalog.Result, error) {
	s.mu.Lock()
	if !s.refreshing {
		s.startRefreshLocked("forced")
	}
	done := s.done
	s.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil, errAllFailed
	}
	return s.result, nil
}

// Clear drops the cached result. The next Get blocks on a fresh cycle.
func (s *Store) Clear() {
	s.mu.Lock()
	s.result = nil
	s.mu.Unlock()
}

// Current returns the cached result without triggering anything. Used by
// status output.
func (s *Store) Current() (*catalog.Result, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil, 0
	}
	return s.result, s.now().Sub(s.result.CompletedAt)
}

// TTL returns the configured cache duration.
func (s *Store) TTL() time.Duration { return s.ttl }

// startRefreshLocked launches a refresh cycle. Caller holds s.mu. A failed
// cycle keeps the previous result; serving yesterday's lineup beats serving
// nothing.
func (s *Store) startRefreshLocked(trigger string) {
	s.refreshing = true
	s.done = make(chan struct{})
	metrics.Refreshes.WithLabelValues(trigger).Inc()
	go func() {
		res, err := s.scheduler.RunCycle(context.Background())
		s.mu.Lock()
		if err != nil {
			s.log.Error("refresh cycle failed", "trigger", trigger, "error", err)
		} else {
			s.result = res
		}
		s.refreshing = false
		close(s.done)
		s.mu.Unlock()
	}()
}

// Run keeps the cache warm in the background: every checkInterval it starts
// a refresh once the result has burned through three quarters of its TTL,
// so clients rarely see a stale read at all. Run blocks until ctx ends.
func (s *Store) Run(ctx context.Context, checkInterval time.Duration) {
	if checkInterval <= 0 {
		checkInterval = 5 * time.Minute
	}
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			needs := s.result != nil &&
				s.now().Sub(s.result.CompletedAt) > s.ttl*3/4 &&
				!s.refreshing
			if needs {
				s.startRefreshLocked("background")
			}
			s.mu.Unlock()
		}
	}
}

// Warm runs the first cycle after an optional delay. Intended to be called
// in its own goroutine at startup.
func (s *Store) Warm(ctx context.Context, delay time.Duration) {
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
	if _, err := s.Get(ctx); err != nil {
		s.log.Error("cache warm failed", "error", err)
	}
}
