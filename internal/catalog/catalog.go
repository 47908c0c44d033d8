// Package catalog holds the canonical channel model produced by one
// aggregation cycle: normalized channels, their resolved guide entries, and
// per-provider fetch statistics. A Result is immutable once published; each
// cycle builds a wholly new one.
package catalog

import (
	"strconv"
	"time"
)

// Record is one raw channel row as returned by a provider adapter, before
// filtering and canonicalization. Adapters fill whatever fields the upstream
// exposes; Normalize decides what survives.
type Record struct {
	ID        string // provider-local channel ID
	Name      string
	Group     string
	StreamURL string
	Logo      string
	Country   string // ISO 3166-1 alpha-2, lower-case, when known
	Language  string
	Number    int    // provider-native channel number, 0 = unassigned
	EPGID     string // channel ID in the provider's own guide, when published
}

// Channel is the canonical unit of content. The ID is stable within a run:
// provider name + "-" + provider-local ID, never regenerated across refreshes.
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Group     string `json:"group,omitempty"`
	StreamURL string `json:"stream_url"`
	Provider  string `json:"provider"`
	Logo      string `json:"logo,omitempty"`
	Country   string `json:"country,omitempty"`
	Language  string `json:"language,omitempty"`
	Number    int    `json:"channel_number,omitempty"`
	EPGID     string `json:"epg_id,omitempty"`
}

// Programme is one guide entry for a channel.
type Programme struct {
	Title string    `json:"title"`
	Desc  string    `json:"description,omitempty"`
	Start time.Time `json:"start"`
	Stop  time.Time `json:"stop"`
}

// TierNative marks guide data sourced from the provider's own API.
const TierNative = "native"

// TierFallback returns the tier label for the k-th fallback source (1-based).
func TierFallback(k int) string {
	return "fallback-" + strconv.Itoa(k)
}

// EpgEntry links one channel to its resolved guide data. At most one entry
// exists per channel per cycle; Tier records where the data came from.
type EpgEntry struct {
	ChannelID  string      `json:"channel_id"`
	Tier       string      `json:"tier"`
	ExternalID string      `json:"external_id,omitempty"`
	Method     string      `json:"method,omitempty"` // how the mapping was found
	Programmes []Programme `json:"programmes,omitempty"`
}

// ProviderStat records one provider's contribution to a cycle.
type ProviderStat struct {
	Provider string        `json:"provider"`
	Channels int           `json:"channels"`
	Dropped  int           `json:"dropped,omitempty"` // malformed or filtered records
	Failed   bool          `json:"failed"`
	Reason   string        `json:"reason,omitempty"`
	Elapsed  time.Duration `json:"elapsed_ms"`
}

// Result is the unit stored in the cache: the finished output of one
// aggregation cycle. Readers share the pointer; nothing mutates a Result
// after publication.
type Result struct {
	Channels    []Channel           `json:"channels"`
	EPG         map[string]EpgEntry `json:"epg"`
	Stats       []ProviderStat      `json:"stats"`
	EPGMatched  int                 `json:"epg_matched"`
	EPGTotal    int                 `json:"epg_total"`
	CompletedAt time.Time           `json:"completed_at"`
}

// Coverage returns the matched/total EPG ratio for the cycle, 0 when no
// channels were seen.
func (r *Result) Coverage() float64 {
	if r.EPGTotal == 0 {
		return 0
	}
	return float64(r.EPGMatched) / float64(r.EPGTotal)
}

// Empty returns a degraded zero-channel Result for serving when no cycle has
// ever succeeded. Handlers prefer this over surfacing an error to playlist
// consumers.
func Empty() *Result {
	return &Result{
		Channels: []Channel{},
		EPG:      map[string]EpgEntry{},
	}
}
