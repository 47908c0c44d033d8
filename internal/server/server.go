// Package server exposes the aggregated lineup over HTTP: playlist, guide,
// JSON listings, and operational endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kptv/faststreams/internal/aggregate"
	"github.com/kptv/faststreams/internal/catalog"
	"github.com/kptv/faststreams/internal/epg"
)

type Server struct {
	store   *aggregate.Store
	fetcher *epg.Fetcher
	pins    *epg.MapStore // nil when no mapping store is configured
	baseURL string
	log     *slog.Logger
	render  renderCache

	startedAt time.Time
}

func New(store *aggregate.Store, fetcher *epg.Fetcher, pins *epg.MapStore, baseURL string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:     store,
		fetcher:   fetcher,
		pins:      pins,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		log:       log,
		startedAt: time.Now(),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/playlist", s.handlePlaylist).Methods(http.MethodGet)
	r.HandleFunc("/playlist.m3u", s.handlePlaylist).Methods(http.MethodGet)
	r.HandleFunc("/epg", s.handleEPG).Methods(http.MethodGet)
	r.HandleFunc("/epg.xml", s.handleEPG).Methods(http.MethodGet)
	r.HandleFunc("/channels", s.handleChannels).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/debug", s.handleDebug).Methods(http.MethodGet)
	r.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/clear_cache", s.handleClearCache).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/epg_mappings/{channel_id}", s.handleDeleteMapping).Methods(http.MethodDelete)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.Use(s.logMiddleware)
	return r
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func (s *Server) result(w http.ResponseWriter, r *http.Request) *catalog.Result {
	res, err := s.store.Get(r.Context())
	if err != nil {
		http.Error(w, "aggregation unavailable: "+err.Error(), http.StatusServiceUnavailable)
		return nil
	}
	return res
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request) {
	res := s.result(w, r)
	if res == nil {
		return
	}
	w.Header().Set("Content-Type", "audio/x-mpegurl; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(s.render.M3U(res, s.externalBase(r)))
}

// handleEPG serves the combined XMLTV guide, negotiated against
// Accept-Encoding: brotli when the client takes it, gzip next, plain
// otherwise.
func (s *Server) handleEPG(w http.ResponseWriter, r *http.Request) {
	res := s.result(w, r)
	if res == nil {
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Vary", "Accept-Encoding")
	accept := r.Header.Get("Accept-Encoding")
	switch {
	case strings.Contains(accept, "br"):
		w.Header().Set("Content-Encoding", "br")
		w.Write(s.render.XMLTVBrotli(res))
	case strings.Contains(accept, "gzip"):
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(s.render.XMLTVGzip(res))
	default:
		w.Write(s.render.XMLTV(res))
	}
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	res := s.result(w, r)
	if res == nil {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channels":     res.Channels,
		"count":        len(res.Channels),
		"epg_matched":  res.EPGMatched,
		"epg_total":    res.EPGTotal,
		"completed_at": res.CompletedAt,
	})
}

type statusPayload struct {
	Uptime       string                 `json:"uptime"`
	CacheAge     string                 `json:"cache_age"`
	CacheTTL     string                 `json:"cache_ttl"`
	Channels     int                    `json:"channels"`
	EPGMatched   int                    `json:"epg_matched"`
	EPGTotal     int                    `json:"epg_total"`
	EPGCoverage  string                 `json:"epg_coverage"`
	Providers    []catalog.ProviderStat `json:"providers"`
	LastCycle    time.Time              `json:"last_cycle"`
	HasResult    bool                   `json:"has_result"`
}

func (s *Server) statusPayload() statusPayload {
	out := statusPayload{
		Uptime:   time.Since(s.startedAt).Round(time.Second).String(),
		CacheTTL: s.store.TTL().String(),
	}
	res, age := s.store.Current()
	if res == nil {
		return out
	}
	out.HasResult = true
	out.CacheAge = age.Round(time.Second).String()
	out.Channels = len(res.Channels)
	out.EPGMatched = res.EPGMatched
	out.EPGTotal = res.EPGTotal
	out.EPGCoverage = fmt.Sprintf("%.1f%%", res.Coverage()*100)
	out.Providers = res.Stats
	out.LastCycle = res.CompletedAt
	return out
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := s.statusPayload()
	if r.URL.Query().Get("format") == "json" || strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, http.StatusOK, payload)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	writeStatusHTML(w, payload)
}

// handleDebug dumps the per-channel guide resolution so operators can see
// which tier and method matched each channel, and which stayed unresolved.
func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	res, _ := s.store.Current()
	if res == nil {
		writeJSON(w, http.StatusOK, map[string]any{"has_result": false})
		return
	}
	type row struct {
		ChannelID  string `json:"channel_id"`
		Name       string `json:"name"`
		Provider   string `json:"provider"`
		Tier       string `json:"tier,omitempty"`
		Method     string `json:"method,omitempty"`
		ExternalID string `json:"external_id,omitempty"`
		Resolved   bool   `json:"resolved"`
	}
	rows := make([]row, 0, len(res.Channels))
	methods := map[string]int{}
	tiers := map[string]int{}
	for _, ch := range res.Channels {
		rw := row{ChannelID: ch.ID, Name: ch.Name, Provider: ch.Provider}
		if e, ok := res.EPG[ch.ID]; ok {
			rw.Resolved = true
			rw.Tier = e.Tier
			rw.Method = e.Method
			rw.ExternalID = e.ExternalID
			tiers[e.Tier]++
			if e.Method != "" {
				methods[e.Method]++
			}
		}
		rows = append(rows, rw)
	}
	payload := map[string]any{
		"has_result": true,
		"stats":      res.Stats,
		"tiers":      tiers,
		"methods":    methods,
		"rows":       rows,
	}
	if s.pins != nil {
		if n, err := s.pins.Count(); err == nil {
			payload["pinned_mappings"] = n
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleDeleteMapping clears a pinned guide mapping so the next cycle
// re-resolves that channel from scratch.
func (s *Server) handleDeleteMapping(w http.ResponseWriter, r *http.Request) {
	if s.pins == nil {
		http.Error(w, "no mapping store configured", http.StatusNotFound)
		return
	}
	channelID := mux.Vars(r)["channel_id"]
	if err := s.pins.Delete(channelID); err != nil {
		http.Error(w, "delete mapping: "+err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Info("mapping cleared", "channel", channelID)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": channelID})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.ForceRefresh(r.Context())
	if err != nil {
		http.Error(w, "refresh failed: "+err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"refreshed":    true,
		"channels":     len(res.Channels),
		"completed_at": res.CompletedAt,
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	s.store.Clear()
	if s.fetcher != nil {
		s.fetcher.Clear()
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// externalBase resolves the base URL advertised in playlists: the configured
// one when set, otherwise reconstructed from the request.
func (s *Server) externalBase(r *http.Request) string {
	if s.baseURL != "" {
		return s.baseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// ListenAndServe runs the HTTP server until ctx ends, then drains with a
// short grace period.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("listening", "addr", addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
