package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kptv/faststreams/internal/aggregate"
	"github.com/kptv/faststreams/internal/catalog"
	"github.com/kptv/faststreams/internal/epg"
	"github.com/kptv/faststreams/internal/provider"
)

type stubAdapter struct {
	name    string
	records []catalog.Record
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) FetchChannels(ctx context.Context) ([]catalog.Record, error) {
	return s.records, nil
}

type stubNativeAdapter struct {
	stubAdapter
	guide map[string][]catalog.Programme
}

func (s *stubNativeAdapter) FetchNativeEPG(ctx context.Context) (map[string][]catalog.Programme, error) {
	return s.guide, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	start := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	adapter := &stubNativeAdapter{
		stubAdapter: stubAdapter{
			name: "pluto",
			records: []catalog.Record{
				{ID: "1", Name: "CNN, Live", Group: "News", StreamURL: "http://host/1.m3u8", Logo: "http://logo/1.png", Number: 5},
				{ID: "2", Name: "MTV", Group: "Music", StreamURL: "http://host/2.m3u8"},
			},
		},
		guide: map[string][]catalog.Programme{
			"pluto-1": {{Title: "News & Weather", Desc: "Top <stories>", Start: start, Stop: start.Add(time.Hour)}},
		},
	}
	fetcher := epg.NewFetcher(time.Hour)
	resolver := epg.NewResolver(fetcher, nil, nil, nil)
	sched := aggregate.NewScheduler([]provider.Adapter{adapter}, nil, resolver, 5, time.Second, nil)
	store := aggregate.NewStore(sched, time.Hour, nil)
	return New(store, fetcher, nil, "", nil)
}

func get(t *testing.T, s *Server, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHandlePlaylist(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/playlist.m3u", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "mpegurl")

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "#EXTM3U url-tvg="))
	assert.Contains(t, body, `tvg-id="pluto-1"`)
	assert.Contains(t, body, `tvg-chno="5"`)
	assert.Contains(t, body, "http://host/1.m3u8")
	// commas in names would break EXTINF parsing
	assert.Contains(t, body, "CNN  Live")
	assert.NotContains(t, body, "CNN, Live")
}

func TestHandleEPGEncodings(t *testing.T) {
	s := newTestServer(t)

	plain := get(t, s, "/epg", nil)
	require.Equal(t, http.StatusOK, plain.Code)
	assert.Empty(t, plain.Header().Get("Content-Encoding"))
	assert.Equal(t, "Accept-Encoding", plain.Header().Get("Vary"))
	assert.Contains(t, plain.Body.String(), `<channel id="pluto-1">`)
	assert.Contains(t, plain.Body.String(), "News &amp; Weather")
	assert.Contains(t, plain.Body.String(), "Top &lt;stories&gt;")

	gzResp := get(t, s, "/epg.xml", http.Header{"Accept-Encoding": {"gzip"}})
	require.Equal(t, "gzip", gzResp.Header().Get("Content-Encoding"))
	gr, err := gzip.NewReader(gzResp.Body)
	require.NoError(t, err)
	unzipped, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, plain.Body.Bytes(), unzipped)

	brResp := get(t, s, "/epg", http.Header{"Accept-Encoding": {"br, gzip"}})
	require.Equal(t, "br", brResp.Header().Get("Content-Encoding"))
	decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(brResp.Body.Bytes())))
	require.NoError(t, err)
	assert.Equal(t, plain.Body.Bytes(), decoded)
}

func TestHandleChannels(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/channels", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Channels   []catalog.Channel `json:"channels"`
		Count      int               `json:"count"`
		EPGMatched int               `json:"epg_matched"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, 1, out.EPGMatched)
	assert.Equal(t, "pluto-1", out.Channels[0].ID)
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer(t)
	// warm the cache so status has something to report
	get(t, s, "/channels", nil)

	jsonResp := get(t, s, "/status?format=json", nil)
	require.Equal(t, http.StatusOK, jsonResp.Code)
	var payload statusPayload
	require.NoError(t, json.Unmarshal(jsonResp.Body.Bytes(), &payload))
	assert.True(t, payload.HasResult)
	assert.Equal(t, 2, payload.Channels)
	require.Len(t, payload.Providers, 1)
	assert.Equal(t, "pluto", payload.Providers[0].Provider)

	htmlResp := get(t, s, "/status", nil)
	assert.Contains(t, htmlResp.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, htmlResp.Body.String(), "pluto")
}

func TestHandleDebug(t *testing.T) {
	s := newTestServer(t)
	get(t, s, "/channels", nil)

	w := get(t, s, "/debug", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var out struct {
		HasResult bool           `json:"has_result"`
		Tiers     map[string]int `json:"tiers"`
		Rows      []struct {
			ChannelID string `json:"channel_id"`
			Resolved  bool   `json:"resolved"`
			Tier      string `json:"tier"`
		} `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.True(t, out.HasResult)
	assert.Equal(t, 1, out.Tiers[catalog.TierNative])
	require.Len(t, out.Rows, 2)
	assert.True(t, out.Rows[0].Resolved)
	assert.False(t, out.Rows[1].Resolved)
}

func TestHandleDebugNoResult(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/debug", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"has_result": false`)
}

func TestHandleRefresh(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"refreshed": true`)
}

func TestHandleClearCache(t *testing.T) {
	s := newTestServer(t)
	get(t, s, "/channels", nil)
	w := get(t, s, "/clear_cache", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cleared": true`)
}

func TestHandlePlaylistPerHostBase(t *testing.T) {
	// No configured base URL: each host gets playlist links pointing back
	// at itself, not at whichever host asked first.
	s := newTestServer(t)
	for _, host := range []string{"http://lan-ip:7777", "http://public.example"} {
		req := httptest.NewRequest(http.MethodGet, host+"/playlist", nil)
		w := httptest.NewRecorder()
		s.Router().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `url-tvg="`+host+`/epg"`)
	}
}

func TestHandleDeleteMapping(t *testing.T) {
	pins, err := epg.OpenMapStore(filepath.Join(t.TempDir(), "pins.db"))
	require.NoError(t, err)
	defer pins.Close()
	require.NoError(t, pins.Put("pluto-1", "cnn.us", "name_exact"))

	s := newTestServer(t)
	s.pins = pins

	get(t, s, "/channels", nil) // warm so /debug has a result
	dbg := get(t, s, "/debug", nil)
	assert.Contains(t, dbg.Body.String(), `"pinned_mappings": 1`)

	req := httptest.NewRequest(http.MethodDelete, "/epg_mappings/pluto-1", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted": "pluto-1"`)

	_, found := pins.Get("pluto-1")
	assert.False(t, found)
}

func TestHandleDeleteMappingWithoutStore(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodDelete, "/epg_mappings/pluto-1", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleHealthz(t *testing.T) {
	s := newTestServer(t)
	w := get(t, s, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok\n", w.Body.String())
}

func TestExternalBase(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "http://aggregator.example:7777/playlist", nil)
	assert.Equal(t, "http://aggregator.example:7777", s.externalBase(req))

	s.baseURL = "https://public.example"
	assert.Equal(t, "https://public.example", s.externalBase(req))
}
