package epg

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/kptv/faststreams/internal/catalog"
)

// Resolver attaches guide data to aggregated channels. Each channel walks a
// tier ladder: a native guide from its own provider first, then the external
// fallback sources for that provider in tier order. A channel stops at the
// first tier that yields programmes; channels no tier covers stay
// unresolved and simply carry no guide.
type Resolver struct {
	fetcher *Fetcher
	sources []Source
	store   *MapStore // nil when persistence is disabled
	log     *slog.Logger

	// maxSourceFetches bounds concurrent guide downloads during a cycle.
	maxSourceFetches int64
}

func NewResolver(fetcher *Fetcher, sources []Source, store *MapStore, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		fetcher:          fetcher,
		sources:          sources,
		store:            store,
		log:              log,
		maxSourceFetches: 3,
	}
}

// Resolve maps every channel to an EPG entry. nativeGuides carries the
// schedules from providers that publish their own, keyed by canonical
// channel ID.
func (r *Resolver) Resolve(ctx context.Context, channels []catalog.Channel, nativeGuides map[string][]catalog.Programme) map[string]catalog.EpgEntry {
	out := make(map[string]catalog.EpgEntry, len(channels))

	// Native tier first. These are authoritative for their channels.
	remaining := make([]catalog.Channel, 0, len(channels))
	for _, ch := range channels {
		if progs, ok := nativeGuides[ch.ID]; ok && len(progs) > 0 {
			out[ch.ID] = catalog.EpgEntry{
				ChannelID:  ch.ID,
				Tier:       catalog.TierNative,
				ExternalID: ch.ID,
				Programmes: progs,
			}
			continue
		}
		remaining = append(remaining, ch)
	}
	if len(remaining) == 0 {
		return out
	}

	// Group the rest by provider so each provider's source ladder is walked
	// once, and prefetch the distinct guides with bounded parallelism.
	byProvider := map[string][]catalog.Channel{}
	for _, ch := range remaining {
		byProvider[ch.Provider] = append(byProvider[ch.Provider], ch)
	}
	r.prefetch(ctx, byProvider)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for provider, chans := range byProvider {
		ladder := SourcesFor(r.sources, provider)
		if len(ladder) == 0 {
			continue
		}
		wg.Add(1)
		go func(provider string, chans []catalog.Channel, ladder []Source) {
			defer wg.Done()
			entries := r.resolveProvider(ctx, provider, chans, ladder)
			mu.Lock()
			for id, e := range entries {
				out[id] = e
			}
			mu.Unlock()
		}(provider, chans, ladder)
	}
	wg.Wait()
	return out
}

// prefetch warms the fetcher cache for every distinct source URL that will
// be consulted, bounded by maxSourceFetches.
func (r *Resolver) prefetch(ctx context.Context, byProvider map[string][]catalog.Channel) {
	urls := map[string]bool{}
	for provider := range byProvider {
		for _, s := range SourcesFor(r.sources, provider) {
			urls[s.URL] = true
		}
	}
	sem := semaphore.NewWeighted(r.maxSourceFetches)
	var wg sync.WaitGroup
	for url := range urls {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			defer sem.Release(1)
			if _, err := r.fetcher.Fetch(ctx, url); err != nil {
				r.log.Warn("guide source fetch failed", "url", url, "error", err)
			}
		}(url)
	}
	wg.Wait()
}

// resolveProvider walks one provider's channels down the source ladder. A
// channel is taken by the first tier that matches it and has programmes for
// the matched guide channel.
func (r *Resolver) resolveProvider(ctx context.Context, provider string, chans []catalog.Channel, ladder []Source) map[string]catalog.EpgEntry {
	out := map[string]catalog.EpgEntry{}
	pending := chans
	for tierIdx, src := range ladder {
		if len(pending) == 0 {
			break
		}
		guide, err := r.fetcher.Fetch(ctx, src.URL)
		if err != nil {
			continue
		}
		idx := NewIndex(provider, guide)
		tier := catalog.TierFallback(tierIdx + 1)
		var next []catalog.Channel
		for _, ch := range pending {
			guideID, method, ok := r.match(idx, ch)
			if ok {
				progs := guide.Programmes[guideID]
				if len(progs) > 0 {
					out[ch.ID] = catalog.EpgEntry{
						ChannelID:  ch.ID,
						Tier:       tier,
						ExternalID: guideID,
						Method:     method,
						Programmes: progs,
					}
					r.pin(ch.ID, guideID, method)
					continue
				}
			}
			next = append(next, ch)
		}
		pending = next
	}
	return out
}

// match runs the matcher chain for one channel against one guide index:
// pinned mapping, guide ID, exact normalized name, then fuzzy.
func (r *Resolver) match(idx *Index, ch catalog.Channel) (guideID, method string, ok bool) {
	if r.store != nil {
		if pinned, found := r.store.Get(ch.ID); found {
			if _, exists := idx.byID[strings.ToLower(pinned)]; exists {
				return pinned, MethodPinned, true
			}
		}
	}
	localID := strings.TrimPrefix(ch.ID, ch.Provider+"-")
	candidateID := ch.EPGID
	if candidateID == "" {
		candidateID = ch.ID
	}
	if guideID, found := idx.MatchID(candidateID, localID); found {
		return guideID, MethodIDPrefix, true
	}
	if guideID, found := idx.MatchName(ch.Name); found {
		return guideID, MethodNameExact, true
	}
	if guideID, found := idx.MatchFuzzy(ch.Name); found {
		return guideID, MethodFuzzy, true
	}
	return "", "", false
}

// pin persists a non-pinned match so later cycles skip the name heuristics.
func (r *Resolver) pin(channelID, guideID, method string) {
	if r.store == nil || method == MethodPinned {
		return
	}
	if err := r.store.Put(channelID, guideID, method); err != nil {
		r.log.Warn("pin mapping failed", "channel", channelID, "error", err)
	}
}
