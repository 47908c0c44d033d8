// Package provider implements one adapter per upstream streaming platform.
// Each adapter fetches that platform's channel list (and, where the platform
// publishes one, its native guide) and returns raw records; normalization,
// filtering, and deduplication happen downstream. Adapters share no mutable
// state and are safe to invoke concurrently with each other.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kptv/faststreams/internal/catalog"
	"github.com/kptv/faststreams/internal/config"
	"github.com/kptv/faststreams/internal/httpclient"
)

// Adapter fetches raw channel records from one upstream service.
type Adapter interface {
	Name() string
	FetchChannels(ctx context.Context) ([]catalog.Record, error)
}

// NativeEPG is implemented by adapters whose upstream also publishes guide
// data. The returned map is keyed by canonical channel ID (provider-prefixed).
type NativeEPG interface {
	FetchNativeEPG(ctx context.Context) (map[string][]catalog.Programme, error)
}

// CountryScoped is implemented by adapters that fetch per-country upstream
// playlists. The scheduler re-applies the returned alpha-2 set during
// normalization, since a matched playlist can still carry rows tagged with
// other countries.
type CountryScoped interface {
	Countries() map[string]struct{}
}

// Failure kinds, recorded in cycle statistics.
const (
	KindTimeout = "timeout"
	KindNetwork = "network"
	KindParse   = "parse"
)

// FetchError is a typed provider failure carrying the failure kind for stats.
type FetchError struct {
	Provider string
	Kind     string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Classify wraps err as a FetchError for the named provider, inferring the
// kind from the error chain. A nil err returns nil.
func Classify(providerName string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	kind := KindNetwork
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	} else if errors.Is(err, errParse) {
		kind = KindParse
	}
	return &FetchError{Provider: providerName, Kind: kind, Err: err}
}

// errParse tags decode/scrape failures so Classify files them under KindParse.
var errParse = errors.New("parse error")

func parseErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errParse}, args...)...)
}

// All constructs every enabled adapter in fixed priority order. The order is
// also the dedup tie-break order: earlier providers win.
func All(cfg *config.Config) []Adapter {
	candidates := []Adapter{
		NewXumo(),
		NewTubi(),
		NewPluto(cfg.PlutoRegion),
		NewPlex(cfg.PlexRegion),
		NewSamsung(cfg.SamsungRegion),
		NewDistroTV(),
		NewLG(cfg.LGCountry),
		NewGitIPTV(cfg.GitCountry, cfg.GithubToken),
		NewGitFreeTV(cfg.GitCountry, cfg.GithubToken),
		NewStirr(),
	}
	out := make([]Adapter, 0, len(candidates))
	for _, a := range candidates {
		if cfg.ProviderEnabled(a.Name()) {
			out = append(out, a)
		}
	}
	return out
}

// getJSON issues a GET through the retrying client and decodes the body into v.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, v any) error {
	body, err := getBody(ctx, client, url, headers)
	if err != nil {
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return parseErr("decode %s: %v", url, err)
	}
	return nil
}

// postJSON issues a bodyless POST and decodes the response into v. A few
// upstreams mint anonymous tokens this way.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	for k, hv := range headers {
		req.Header.Set(k, hv)
	}
	resp, err := httpclient.DoWithRetry(ctx, client, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return err
	}
	defer drainClose(resp)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s: HTTP %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return parseErr("decode %s: %v", url, err)
	}
	return nil
}

// getBody issues a GET through the retrying client and returns the body
// reader for a 200 response. Caller closes.
func getBody(ctx context.Context, client *http.Client, url string, headers map[string]string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", httpclient.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := httpclient.DoWithRetry(ctx, client, req, httpclient.DefaultRetryPolicy)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		drainClose(resp)
		return nil, fmt.Errorf("%s: HTTP %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

func drainClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
