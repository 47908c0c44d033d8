package epg

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kptv/faststreams/internal/httpclient"
)

// Source is one external XMLTV feed covering one provider. Lower tiers are
// tried first.
type Source struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"`
	URL      string `yaml:"url"`
	Tier     int    `yaml:"tier"`
}

// DefaultSources is the built-in fallback table. Tier 1 is the mjh.nz
// mirrors, tier 2 the BuddyChewChew scrapers, tier 3 the epgshare01 rippers.
var DefaultSources = []Source{
	{Name: "mjh", Provider: "pluto", URL: "https://i.mjh.nz/PlutoTV/all.xml.gz", Tier: 1},
	{Name: "mjh", Provider: "plex", URL: "https://i.mjh.nz/Plex/all.xml.gz", Tier: 1},
	{Name: "mjh", Provider: "samsung", URL: "https://i.mjh.nz/SamsungTVPlus/all.xml.gz", Tier: 1},
	{Name: "mjh", Provider: "stirr", URL: "https://i.mjh.nz/Stirr/all.xml.gz", Tier: 1},
	{Name: "mjh", Provider: "distrotv", URL: "https://i.mjh.nz/DStv/za.xml.gz", Tier: 1},
	{Name: "buddychewchew", Provider: "tubi", URL: "https://raw.githubusercontent.com/BuddyChewChew/tubi-scraper/main/tubi_epg.xml", Tier: 2},
	{Name: "buddychewchew", Provider: "xumo", URL: "https://raw.githubusercontent.com/BuddyChewChew/xumo-playlist-generator/main/playlists/xumo_epg.xml.gz", Tier: 2},
	{Name: "epgshare01", Provider: "plex", URL: "https://epgshare01.online/epgshare01/epg_ripper_PLEX1.xml.gz", Tier: 3},
	{Name: "epgshare01", Provider: "lg", URL: "https://epgshare01.online/epgshare01/epg_ripper_US2.xml.gz", Tier: 3},
	{Name: "epgshare01", Provider: "distrotv", URL: "https://epgshare01.online/epgshare01/epg_ripper_DISTROTV1.xml.gz", Tier: 3},
}

// LoadSources returns the fallback source table, replaced wholesale by the
// YAML file at path when one is configured.
func LoadSources(path string) ([]Source, error) {
	if path == "" {
		return DefaultSources, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("epg sources file: %w", err)
	}
	var doc struct {
		Sources []Source `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("epg sources file %s: %w", path, err)
	}
	if len(doc.Sources) == 0 {
		return nil, fmt.Errorf("epg sources file %s: no sources", path)
	}
	for i, s := range doc.Sources {
		if s.Provider == "" || s.URL == "" {
			return nil, fmt.Errorf("epg sources file %s: source %d missing provider or url", path, i)
		}
		if s.Tier == 0 {
			doc.Sources[i].Tier = 1
		}
	}
	return doc.Sources, nil
}

// SourcesFor returns the sources covering a provider, lowest tier first.
func SourcesFor(sources []Source, provider string) []Source {
	var out []Source
	for _, s := range sources {
		if s.Provider == provider {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}

// Fetcher downloads and parses XMLTV sources with a per-URL sub-cache, so a
// feed shared by several providers is fetched once per TTL regardless of how
// many channels need it.
type Fetcher struct {
	client *http.Client
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]*fetchEntry
}

type fetchEntry struct {
	done      chan struct{}
	guide     *Guide
	err       error
	fetchedAt time.Time
}

func NewFetcher(ttl time.Duration) *Fetcher {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Fetcher{
		client:  httpclient.WithTimeout(2 * time.Minute),
		ttl:     ttl,
		entries: map[string]*fetchEntry{},
	}
}

// Fetch returns the parsed guide for url, from cache when fresh. Concurrent
// callers for the same URL share one download.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Guide, error) {
	f.mu.Lock()
	e, ok := f.entries[url]
	if ok {
		select {
		case <-e.done:
			if e.err == nil && time.Since(e.fetchedAt) < f.ttl {
				f.mu.Unlock()
				return e.guide, nil
			}
			// expired or failed, refetch below
		default:
			// fetch in flight, wait for it
			f.mu.Unlock()
			select {
			case <-e.done:
				return e.guide, e.err
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	e = &fetchEntry{done: make(chan struct{})}
	f.entries[url] = e
	f.mu.Unlock()

	e.guide, e.err = f.fetch(ctx, url)
	e.fetchedAt = time.Now()
	close(e.done)
	return e.guide, e.err
}

func (f *Fetcher) fetch(ctx context.Context, url string) (*Guide, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	resp, err := httpclient.DoWithRetry(ctx, f.client, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: HTTP %d", url, resp.StatusCode)
	}
	guide, err := ParseXMLTV(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	return guide, nil
}

// Clear drops all cached guides.
func (f *Fetcher) Clear() {
	f.mu.Lock()
	f.entries = map[string]*fetchEntry{}
	f.mu.Unlock()
}
