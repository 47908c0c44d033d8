package provider

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kptv/faststreams/internal/catalog"
	"github.com/kptv/faststreams/internal/httpclient"
)

const (
	distroFeedURL = "https://tv.jsrdn.com/tv_v5/getfeed.php"
	distroEPGURL  = "https://tv.jsrdn.com/epg/query.php"
)

// DistroTV fetches the DistroTV live feed. The feed is shared between the
// channel list and the native guide, so it is cached briefly on the adapter.
type DistroTV struct {
	client *http.Client

	mu        sync.Mutex
	shows     map[string]distroShow
	fetchedAt time.Time
}

func NewDistroTV() *DistroTV {
	return &DistroTV{client: httpclient.Default()}
}

func (d *DistroTV) Name() string { return "distrotv" }

var distroHeaders = map[string]string{
	"User-Agent": "Dalvik/2.1.0 (Linux; U; Android 9; AFTT Build/STT9.221129.002) GTV/AFTT DistroTV/2.0.9",
}

type distroShow struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Title       string `json:"title"`
	Genre       string `json:"genre"`
	Description string `json:"description"`
	ImgLogo     string `json:"img_logo"`
	Seasons     []struct {
		Episodes []struct {
			ID      int64 `json:"id"`
			Content struct {
				URL string `json:"url"`
			} `json:"content"`
		} `json:"episodes"`
	} `json:"seasons"`
}

func (d *DistroTV) loadFeed(ctx context.Context) (map[string]distroShow, error) {
	d.mu.Lock()
	if d.shows != nil && time.Since(d.fetchedAt) < 10*time.Minute {
		shows := d.shows
		d.mu.Unlock()
		return shows, nil
	}
	d.mu.Unlock()

	var feed struct {
		Shows map[string]distroShow `json:"shows"`
	}
	if err := getJSON(ctx, d.client, distroFeedURL, distroHeaders, &feed); err != nil {
		return nil, err
	}
	live := make(map[string]distroShow, len(feed.Shows))
	for k, s := range feed.Shows {
		if s.Type == "live" {
			live[k] = s
		}
	}
	if len(live) == 0 {
		return nil, parseErr("no live shows in feed")
	}
	d.mu.Lock()
	d.shows = live
	d.fetchedAt = time.Now()
	d.mu.Unlock()
	return live, nil
}

func (d *DistroTV) FetchChannels(ctx context.Context) ([]catalog.Record, error) {
	shows, err := d.loadFeed(ctx)
	if err != nil {
		return nil, Classify("distrotv", err)
	}
	keys := make([]string, 0, len(shows))
	for k := range shows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var records []catalog.Record
	for _, k := range keys {
		show := shows[k]
		streamURL, _ := distroStream(show)
		title := strings.TrimSpace(show.Title)
		if show.Name == "" || title == "" || streamURL == "" {
			continue
		}
		group := show.Genre
		if group == "" {
			group = "DistroTV"
		}
		records = append(records, catalog.Record{
			ID:        show.Name,
			Name:      title,
			Group:     group,
			StreamURL: streamURL,
			Logo:      show.ImgLogo,
			Language:  "en",
		})
	}
	return records, nil
}

// FetchNativeEPG queries the DistroTV guide for every live episode ID and
// keys the slots by canonical channel ID.
func (d *DistroTV) FetchNativeEPG(ctx context.Context) (map[string][]catalog.Programme, error) {
	shows, err := d.loadFeed(ctx)
	if err != nil {
		return nil, Classify("distrotv", err)
	}
	// episode ID -> channel name
	episodes := map[string]string{}
	var ids []string
	for _, show := range shows {
		_, episodeID := distroStream(show)
		if episodeID == "" || show.Name == "" {
			continue
		}
		episodes[episodeID] = show.Name
		ids = append(ids, episodeID)
	}
	if len(ids) == 0 {
		return nil, Classify("distrotv", parseErr("no episode IDs for guide query"))
	}
	sort.Strings(ids)

	var data struct {
		EPG map[string]struct {
			Slots []struct {
				Title       string `json:"title"`
				Description string `json:"description"`
				Start       string `json:"start"`
				End         string `json:"end"`
			} `json:"slots"`
		} `json:"epg"`
	}
	if err := getJSON(ctx, d.client, distroEPGURL+"?id="+strings.Join(ids, ","), distroHeaders, &data); err != nil {
		return nil, Classify("distrotv", err)
	}

	const slotLayout = "2006-01-02 15:04:05"
	guide := make(map[string][]catalog.Programme)
	for episodeID, name := range episodes {
		entry, ok := data.EPG[episodeID]
		if !ok {
			continue
		}
		var progs []catalog.Programme
		for _, slot := range entry.Slots {
			title := strings.TrimSpace(slot.Title)
			if title == "" {
				continue
			}
			start, err1 := time.ParseInLocation(slotLayout, slot.Start, time.UTC)
			stop, err2 := time.ParseInLocation(slotLayout, slot.End, time.UTC)
			if err1 != nil || err2 != nil {
				continue
			}
			progs = append(progs, catalog.Programme{
				Title: title,
				Desc:  strings.TrimSpace(slot.Description),
				Start: start,
				Stop:  stop,
			})
		}
		if len(progs) > 0 {
			guide["distrotv-"+name] = progs
		}
	}
	return guide, nil
}

// distroStream digs the live stream URL and episode ID out of the feed's
// season/episode nesting. Query parameters on the URL are session junk.
func distroStream(show distroShow) (streamURL, episodeID string) {
	if len(show.Seasons) == 0 || len(show.Seasons[0].Episodes) == 0 {
		return "", ""
	}
	ep := show.Seasons[0].Episodes[0]
	url := ep.Content.URL
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	id := ""
	if ep.ID != 0 {
		id = strconv.FormatInt(ep.ID, 10)
	}
	return url, id
}
