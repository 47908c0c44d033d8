// Package aggregate runs the fan-out aggregation cycle and caches its
// result. A cycle fetches every enabled provider under a bounded worker
// pool, normalizes and deduplicates the union, then resolves guide data.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kptv/faststreams/internal/catalog"
	"github.com/kptv/faststreams/internal/epg"
	"github.com/kptv/faststreams/internal/metrics"
	"github.com/kptv/faststreams/internal/provider"
)

// Scheduler fans out to providers and assembles aggregation results.
type Scheduler struct {
	adapters []provider.Adapter
	filters  *catalog.FilterSet
	resolver *epg.Resolver
	log      *slog.Logger

	maxWorkers      int64
	providerTimeout time.Duration
}

func NewScheduler(adapters []provider.Adapter, filters *catalog.FilterSet, resolver *epg.Resolver, maxWorkers int, providerTimeout time.Duration, log *slog.Logger) *Scheduler {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		adapters:        adapters,
		filters:         filters,
		resolver:        resolver,
		log:             log,
		maxWorkers:      int64(maxWorkers),
		providerTimeout: providerTimeout,
	}
}

type fetchOutcome struct {
	records []catalog.Record
	native  map[string][]catalog.Programme
	err     error
	elapsed time.Duration
}

// RunCycle executes one full aggregation cycle. It fails only when every
// provider fails; partial failure produces a result from the survivors.
func (s *Scheduler) RunCycle(ctx context.Context) (*catalog.Result, error) {
	if len(s.adapters) == 0 {
		return nil, errors.New("no providers enabled")
	}
	start := time.Now()
	outcomes := s.fetchAll(ctx)

	var channels []catalog.Channel
	native := map[string][]catalog.Programme{}
	stats := make([]catalog.ProviderStat, 0, len(s.adapters))
	failures := 0

	// Merge in adapter order so dedup priority follows enable order.
	for i, a := range s.adapters {
		o := outcomes[i]
		stat := catalog.ProviderStat{Provider: a.Name(), Elapsed: o.elapsed}
		if o.err != nil {
			failures++
			stat.Failed = true
			stat.Reason = o.err.Error()
			stats = append(stats, stat)
			metrics.RecordProvider(a.Name(), 0, o.elapsed, failKind(o.err))
			s.log.Warn("provider failed", "provider", a.Name(), "elapsed", o.elapsed, "error", o.err)
			continue
		}
		filters := s.filters
		if cs, ok := a.(provider.CountryScoped); ok {
			filters = filters.WithCountries(cs.Countries())
		}
		normalized, dropped := catalog.Normalize(o.records, a.Name(), filters)
		stat.Channels = len(normalized)
		stat.Dropped = dropped
		stats = append(stats, stat)
		channels = append(channels, normalized...)
		for id, progs := range o.native {
			native[id] = progs
		}
		metrics.RecordProvider(a.Name(), len(normalized), o.elapsed, "")
		s.log.Info("provider fetched", "provider", a.Name(), "channels", len(normalized), "dropped", dropped, "elapsed", o.elapsed)
	}

	if failures == len(s.adapters) {
		return nil, fmt.Errorf("all %d providers failed", failures)
	}

	channels = catalog.Dedupe(channels)
	catalog.AssignNumbers(channels)

	epgMap := map[string]catalog.EpgEntry{}
	if s.resolver != nil {
		epgMap = s.resolver.Resolve(ctx, channels, native)
	}

	res := &catalog.Result{
		Channels:    channels,
		EPG:         epgMap,
		Stats:       stats,
		EPGMatched:  len(epgMap),
		EPGTotal:    len(channels),
		CompletedAt: time.Now(),
	}
	metrics.ObserveCycle(time.Since(start))
	metrics.SetCoverage(res.EPGMatched, res.EPGTotal)
	s.log.Info("cycle complete",
		"channels", len(channels),
		"providers_ok", len(s.adapters)-failures,
		"providers_failed", failures,
		"epg_coverage", fmt.Sprintf("%.1f%%", res.Coverage()*100),
		"elapsed", time.Since(start))
	return res, nil
}

// fetchAll runs every adapter under the worker pool, each with its own
// timeout. A provider that overruns is abandoned; its goroutine drains in
// the background without blocking the cycle.
func (s *Scheduler) fetchAll(ctx context.Context) []fetchOutcome {
	sem := semaphore.NewWeighted(s.maxWorkers)
	outcomes := make([]fetchOutcome, len(s.adapters))
	done := make(chan int, len(s.adapters))

	for i, a := range s.adapters {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = fetchOutcome{err: err}
			done <- i
			continue
		}
		go func(i int, a provider.Adapter) {
			defer sem.Release(1)
			defer func() { done <- i }()
			outcomes[i] = s.fetchOne(ctx, a)
		}(i, a)
	}
	for range s.adapters {
		<-done
	}
	return outcomes
}

func (s *Scheduler) fetchOne(ctx context.Context, a provider.Adapter) fetchOutcome {
	fctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	start := time.Now()

	type payload struct {
		records []catalog.Record
		native  map[string][]catalog.Programme
		err     error
	}
	ch := make(chan payload, 1)
	go func() {
		records, err := a.FetchChannels(fctx)
		var native map[string][]catalog.Programme
		if err == nil {
			if ne, ok := a.(provider.NativeEPG); ok {
				guide, gerr := ne.FetchNativeEPG(fctx)
				if gerr != nil {
					// Guide failure downgrades to fallback resolution,
					// never fails the channel fetch.
					s.log.Warn("native guide failed", "provider", a.Name(), "error", gerr)
				} else {
					native = guide
				}
			}
		}
		ch <- payload{records: records, native: native, err: err}
	}()

	select {
	case p := <-ch:
		return fetchOutcome{records: p.records, native: p.native, err: provider.Classify(a.Name(), p.err), elapsed: time.Since(start)}
	case <-fctx.Done():
		return fetchOutcome{
			err:     provider.Classify(a.Name(), fctx.Err()),
			elapsed: time.Since(start),
		}
	}
}

func failKind(err error) string {
	var fe *provider.FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return provider.KindNetwork
}
