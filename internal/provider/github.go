package provider

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/kptv/faststreams/internal/catalog"
	"github.com/kptv/faststreams/internal/config"
	"github.com/kptv/faststreams/internal/httpclient"
)

// gitRepo is the shared machinery for adapters that read community playlist
// repositories through the GitHub contents API: list the playlist directory,
// keep the files matching the country filter, and fetch each playlist.
type gitRepo struct {
	name      string
	apiURL    string // contents API URL for the playlist directory
	extension string // ".m3u" or ".m3u8"
	countries []string
	token     string
	client    *http.Client

	// trimPrefix/trimSuffix cut the filename down to its country token for
	// group labels ("playlist_canada.m3u8" -> "Canada").
	trimPrefix string
}

type gitDirEntry struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	DownloadURL string `json:"download_url"`
}

func (g *gitRepo) countrySet() map[string]struct{} {
	set := make(map[string]struct{}, len(g.countries))
	for _, cc := range g.countries {
		set[cc] = struct{}{}
	}
	return set
}

func (g *gitRepo) headers() map[string]string {
	h := map[string]string{"Accept": "application/vnd.github.v3+json"}
	if g.token != "" {
		h["Authorization"] = "token " + g.token
	}
	return h
}

// matchesCountry reports whether a playlist filename belongs to one of the
// configured countries. With no filter everything matches. Repo filenames
// spell countries inconsistently, so every alias of each code is tried.
func (g *gitRepo) matchesCountry(filename string) bool {
	if len(g.countries) == 0 {
		return true
	}
	base := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(filename, g.trimPrefix), g.extension))
	if i := strings.IndexByte(base, '_'); i >= 0 {
		base = base[:i]
	}
	for _, code := range g.countries {
		for _, alias := range config.CountryAliases(code) {
			if base == alias || strings.Contains(strings.ToLower(filename), alias) {
				return true
			}
		}
	}
	return false
}

func (g *gitRepo) fetch(ctx context.Context) ([]catalog.Record, error) {
	var entries []gitDirEntry
	if err := getJSON(ctx, g.client, g.apiURL, g.headers(), &entries); err != nil {
		return nil, Classify(g.name, err)
	}
	var files []gitDirEntry
	for _, e := range entries {
		if e.Type == "file" && strings.HasSuffix(e.Name, g.extension) && e.DownloadURL != "" && g.matchesCountry(e.Name) {
			files = append(files, e)
		}
	}
	if len(files) == 0 {
		return nil, Classify(g.name, parseErr("no %s playlists match countries %v", g.extension, g.countries))
	}

	// Playlists are fetched with bounded parallelism; a single bad file is
	// skipped rather than failing the repo.
	sem := semaphore.NewWeighted(5)
	results := make([][]catalog.Record, len(files))
	errs := make([]error, len(files))
	done := make(chan int, len(files))
	for i, f := range files {
		if err := sem.Acquire(ctx, 1); err != nil {
			return nil, Classify(g.name, err)
		}
		go func(i int, f gitDirEntry) {
			defer sem.Release(1)
			defer func() { done <- i }()
			recs, err := FetchM3U(ctx, g.client, f.DownloadURL, nil)
			if err != nil {
				errs[i] = err
				return
			}
			source := g.sourceLabel(f.Name)
			for j := range recs {
				rec := &recs[j]
				if rec.Group == "" {
					rec.Group = source
				}
				if rec.EPGID == "" {
					rec.ID = g.name + "-" + stableID(rec.StreamURL, rec.Name)
				}
			}
			results[i] = recs
		}(i, f)
	}
	for range files {
		<-done
	}

	var records []catalog.Record
	var lastErr error
	for i := range files {
		if errs[i] != nil {
			lastErr = errs[i]
			continue
		}
		records = append(records, results[i]...)
	}
	if len(records) == 0 {
		if lastErr != nil {
			return nil, Classify(g.name, lastErr)
		}
		return nil, Classify(g.name, parseErr("all %d playlists were empty", len(files)))
	}
	return records, nil
}

func (g *gitRepo) sourceLabel(filename string) string {
	base := strings.TrimSuffix(strings.TrimPrefix(filename, g.trimPrefix), g.extension)
	words := strings.Split(base, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// GitIPTV reads the iptv-org/iptv streams directory.
type GitIPTV struct {
	repo gitRepo
}

func NewGitIPTV(countries []string, token string) *GitIPTV {
	return &GitIPTV{repo: gitRepo{
		name:      "git_iptv",
		apiURL:    "https://api.github.com/repos/iptv-org/iptv/contents/streams",
		extension: ".m3u",
		countries: countries,
		token:     token,
		client:    httpclient.Default(),
	}}
}

func (g *GitIPTV) Name() string { return "git_iptv" }

func (g *GitIPTV) Countries() map[string]struct{} { return g.repo.countrySet() }

func (g *GitIPTV) FetchChannels(ctx context.Context) ([]catalog.Record, error) {
	return g.repo.fetch(ctx)
}

// GitFreeTV reads the Free-TV/IPTV playlists directory.
type GitFreeTV struct {
	repo gitRepo
}

func NewGitFreeTV(countries []string, token string) *GitFreeTV {
	return &GitFreeTV{repo: gitRepo{
		name:       "git_freetv",
		apiURL:     "https://api.github.com/repos/Free-TV/IPTV/contents/playlists",
		extension:  ".m3u8",
		countries:  countries,
		token:      token,
		client:     httpclient.Default(),
		trimPrefix: "playlist_",
	}}
}

func (g *GitFreeTV) Name() string { return "git_freetv" }

func (g *GitFreeTV) Countries() map[string]struct{} { return g.repo.countrySet() }

func (g *GitFreeTV) FetchChannels(ctx context.Context) ([]catalog.Record, error) {
	return g.repo.fetch(ctx)
}
