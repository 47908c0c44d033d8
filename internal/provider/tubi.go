package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/kptv/faststreams/internal/catalog"
	"github.com/kptv/faststreams/internal/httpclient"
)

// Tubi scrapes the anonymous tubitv.com/live page for the linear lineup and
// reads stream URLs plus programme data from the oz programming API. Tubi is
// one of the two upstreams that ships its own guide, so the adapter also
// serves native EPG.
type Tubi struct {
	client *http.Client

	mu        sync.Mutex
	rows      []tubiRow
	fetchedAt time.Time
}

func NewTubi() *Tubi {
	return &Tubi{client: httpclient.Default()}
}

func (t *Tubi) Name() string { return "tubi" }

var tubiHeaders = map[string]string{
	"Accept":          "*/*",
	"Accept-Language": "en-US",
	"Origin":          "https://tubitv.com",
	"Referer":         "https://tubitv.com/",
}

// Container rails that duplicate channels already present elsewhere.
var tubiSkipSlugs = map[string]bool{
	"favorite_linear_channels":    true,
	"recommended_linear_channels": true,
	"featured_channels":           true,
	"recently_added_channels":     true,
}

type tubiContainer struct {
	ContainerSlug string        `json:"container_slug"`
	Name          string        `json:"name"`
	Contents      []json.Number `json:"contents"`
}

type tubiRow struct {
	ContentID json.Number `json:"content_id"`
	Title     string      `json:"title"`
	Images    struct {
		Thumbnail json.RawMessage `json:"thumbnail"`
	} `json:"images"`
	VideoResources []struct {
		Manifest struct {
			URL string `json:"url"`
		} `json:"manifest"`
	} `json:"video_resources"`
	Programs []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		StartTime   string `json:"start_time"`
		EndTime     string `json:"end_time"`
	} `json:"programs"`
}

func (t *Tubi) FetchChannels(ctx context.Context) ([]catalog.Record, error) {
	ids, groups, err := t.scrapeLineup(ctx)
	if err != nil {
		return nil, Classify("tubi", err)
	}
	rows, err := t.fetchProgramming(ctx, ids)
	if err != nil {
		return nil, Classify("tubi", err)
	}
	t.mu.Lock()
	t.rows = rows
	t.fetchedAt = time.Now()
	t.mu.Unlock()

	var records []catalog.Record
	for _, row := range rows {
		id := row.ContentID.String()
		if id == "" || row.Title == "" {
			continue
		}
		if len(row.VideoResources) == 0 || row.VideoResources[0].Manifest.URL == "" {
			continue
		}
		manifest := row.VideoResources[0].Manifest.URL
		if u, err := url.QueryUnescape(manifest); err == nil {
			manifest = u
		}
		records = append(records, catalog.Record{
			ID:        id,
			Name:      row.Title,
			Group:     firstOr(groups[id], "Tubi"),
			StreamURL: manifest + "&content_id=" + id,
			Logo:      tubiThumbnail(row.Images.Thumbnail),
			Country:   "us",
			Language:  "en",
		})
	}
	return records, nil
}

// FetchNativeEPG returns the programme schedule the programming API delivered
// alongside the lineup. Rows from the channel fetch are reused when recent so
// a cycle does not hit the API twice.
func (t *Tubi) FetchNativeEPG(ctx context.Context) (map[string][]catalog.Programme, error) {
	t.mu.Lock()
	rows := t.rows
	fresh := time.Since(t.fetchedAt) < 10*time.Minute
	t.mu.Unlock()
	if !fresh {
		ids, _, err := t.scrapeLineup(ctx)
		if err != nil {
			return nil, Classify("tubi", err)
		}
		rows, err = t.fetchProgramming(ctx, ids)
		if err != nil {
			return nil, Classify("tubi", err)
		}
	}
	guide := make(map[string][]catalog.Programme)
	for _, row := range rows {
		id := row.ContentID.String()
		if id == "" || len(row.Programs) == 0 {
			continue
		}
		var progs []catalog.Programme
		for _, pr := range row.Programs {
			start, err1 := time.Parse(time.RFC3339, pr.StartTime)
			stop, err2 := time.Parse(time.RFC3339, pr.EndTime)
			if err1 != nil || err2 != nil {
				continue
			}
			progs = append(progs, catalog.Programme{
				Title: pr.Title,
				Desc:  pr.Description,
				Start: start,
				Stop:  stop,
			})
		}
		if len(progs) > 0 {
			guide["tubi-"+id] = progs
		}
	}
	return guide, nil
}

// scrapeLineup pulls content IDs and group membership out of the
// window.__data bootstrap blob embedded in the live page.
func (t *Tubi) scrapeLineup(ctx context.Context) (ids []string, groups map[string][]string, err error) {
	body, err := getBody(ctx, t.client, "https://tubitv.com/live", tubiHeaders)
	if err != nil {
		return nil, nil, err
	}
	defer body.Close()

	script, err := findBootstrapScript(body)
	if err != nil {
		return nil, nil, err
	}
	blob := sanitizeBootstrapJSON(script)

	var data struct {
		EPG struct {
			ContentIDsByContainer map[string][]tubiContainer `json:"contentIdsByContainer"`
		} `json:"epg"`
	}
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return nil, nil, parseErr("window.__data blob: %v", err)
	}
	byContainer := data.EPG.ContentIDsByContainer
	if len(byContainer) == 0 {
		return nil, nil, parseErr("no contentIdsByContainer in live page")
	}

	seen := map[string]bool{}
	groups = map[string][]string{}
	for _, containers := range byContainer {
		for _, c := range containers {
			if tubiSkipSlugs[c.ContainerSlug] {
				continue
			}
			for _, n := range c.Contents {
				id := n.String()
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
				if c.Name != "" {
					groups[id] = append(groups[id], c.Name)
				}
			}
		}
	}
	return ids, groups, nil
}

func (t *Tubi) fetchProgramming(ctx context.Context, ids []string) ([]tubiRow, error) {
	const batchSize = 150
	var rows []tubiRow
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		q := url.Values{"content_id": {strings.Join(ids[start:end], ",")}}
		var page struct {
			Rows []tubiRow `json:"rows"`
		}
		if err := getJSON(ctx, t.client, "https://tubitv.com/oz/epg/programming?"+q.Encode(), tubiHeaders, &page); err != nil {
			return nil, err
		}
		rows = append(rows, page.Rows...)
	}
	if len(rows) == 0 {
		return nil, parseErr("programming API returned no rows for %d channels", len(ids))
	}
	return rows, nil
}

// findBootstrapScript walks the page DOM for the script whose text starts
// with the window.__data assignment and returns that text.
func findBootstrapScript(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", parseErr("live page HTML: %v", err)
	}
	var script string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if script != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "script" && n.FirstChild != nil {
			text := strings.TrimSpace(n.FirstChild.Data)
			if strings.HasPrefix(text, "window.__data") {
				script = text
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if script == "" {
		return "", parseErr("no window.__data script in live page")
	}
	return script, nil
}

var (
	undefinedRe = regexp.MustCompile(`\bundefined\b`)
	newDateRe   = regexp.MustCompile(`new\s+Date\("([^"]*)"\)`)
)

// sanitizeBootstrapJSON trims the assignment down to its object literal and
// rewrites the JavaScript-isms that break a strict JSON decoder.
func sanitizeBootstrapJSON(script string) string {
	start := strings.Index(script, "{")
	end := strings.LastIndex(script, "}")
	if start < 0 || end <= start {
		return script
	}
	blob := script[start : end+1]
	blob = undefinedRe.ReplaceAllString(blob, "null")
	blob = newDateRe.ReplaceAllString(blob, `"$1"`)
	return blob
}

func tubiThumbnail(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

func firstOr(list []string, fallback string) string {
	if len(list) > 0 {
		return list[0]
	}
	return fallback
}
