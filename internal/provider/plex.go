package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/kptv/faststreams/internal/catalog"
	"github.com/kptv/faststreams/internal/httpclient"
)

// plexRegionIP maps edge-region tokens to forwarded addresses. "local" means
// no spoofing.
var plexRegionIP = map[string]string{
	"local": "",
	"clt":   "108.82.206.181",
	"sea":   "159.148.218.183",
	"dfw":   "76.203.9.148",
	"nyc":   "85.254.181.50",
	"la":    "76.81.9.69",
}

// Plex fetches the Plex live TV lineup. An anonymous account mints an auth
// token, the EPG provider root lists the genre filters, and each genre is
// expanded into its channels.
type Plex struct {
	client   *http.Client
	region   string
	deviceID string

	mu         sync.Mutex
	token      string
	tokenUntil time.Time
}

func NewPlex(region string) *Plex {
	if _, ok := plexRegionIP[region]; !ok {
		region = "local"
	}
	return &Plex{
		client:   httpclient.Default(),
		region:   region,
		deviceID: randomHex(12),
	}
}

func (p *Plex) Name() string { return "plex" }

func (p *Plex) headers() map[string]string {
	h := map[string]string{
		"Accept":  "application/json, text/plain, */*",
		"Origin":  "https://app.plex.tv",
		"Referer": "https://app.plex.tv/",
	}
	if ip := plexRegionIP[p.region]; ip != "" {
		h["X-Forwarded-For"] = ip
	}
	return h
}

func (p *Plex) clientParams(token string) url.Values {
	q := url.Values{
		"X-Plex-Product":           {"Plex Web"},
		"X-Plex-Version":           {"4.145.0"},
		"X-Plex-Platform":          {"Chrome"},
		"X-Plex-Platform-Version":  {"132.0"},
		"X-Plex-Model":             {"standalone"},
		"X-Plex-Device":            {"OSX"},
		"X-Plex-Provider-Version":  {"7.2"},
		"X-Plex-Text-Format":       {"plain"},
		"X-Plex-Drm":               {"widevine"},
		"X-Plex-Language":          {"en"},
		"X-Plex-Client-Identifier": {p.deviceID},
	}
	if token != "" {
		q.Set("X-Plex-Token", token)
	}
	return q
}

// anonToken returns an anonymous account token, reusing the previous one
// while it is still young.
func (p *Plex) anonToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.token != "" && time.Now().Before(p.tokenUntil) {
		token := p.token
		p.mu.Unlock()
		return token, nil
	}
	p.mu.Unlock()

	var user struct {
		AuthToken string `json:"authToken"`
	}
	u := "https://clients.plex.tv/api/v2/users/anonymous?" + p.clientParams("").Encode()
	if err := postJSON(ctx, p.client, u, p.headers(), &user); err != nil {
		return "", err
	}
	if user.AuthToken == "" {
		return "", parseErr("anonymous user response missing authToken")
	}
	p.mu.Lock()
	p.token = user.AuthToken
	p.tokenUntil = time.Now().Add(6 * time.Hour)
	p.mu.Unlock()
	return user.AuthToken, nil
}

type plexChannel struct {
	ID    json.Number `json:"id"`
	Title string      `json:"title"`
	Thumb string      `json:"thumb"`
	Media []struct {
		DRM  bool `json:"drm"`
		Part []struct {
			Key string `json:"key"`
		} `json:"Part"`
	} `json:"Media"`
}

func (p *Plex) FetchChannels(ctx context.Context) ([]catalog.Record, error) {
	token, err := p.anonToken(ctx)
	if err != nil {
		return nil, Classify("plex", err)
	}
	params := p.clientParams(token).Encode()
	headers := p.headers()

	var root struct {
		MediaProvider struct {
			Feature []struct {
				GridChannelFilter []struct {
					Identifier string `json:"identifier"`
					Title      string `json:"title"`
				} `json:"GridChannelFilter"`
			} `json:"Feature"`
		} `json:"MediaProvider"`
	}
	if err := getJSON(ctx, p.client, "https://epg.provider.plex.tv/?"+params, headers, &root); err != nil {
		return nil, Classify("plex", err)
	}
	type genre struct{ id, name string }
	var genres []genre
	for _, f := range root.MediaProvider.Feature {
		for _, g := range f.GridChannelFilter {
			if g.Identifier != "" && g.Title != "" {
				genres = append(genres, genre{g.Identifier, g.Title})
			}
		}
		if len(genres) > 0 {
			break
		}
	}
	if len(genres) == 0 {
		return nil, Classify("plex", parseErr("no genre filters in provider root"))
	}

	var records []catalog.Record
	seen := map[string]bool{}
	for _, g := range genres {
		listURL := "https://epg.provider.plex.tv/lineups/plex/channels?genre=" + url.QueryEscape(g.id) + "&" + params
		var page struct {
			MediaContainer struct {
				Channel []plexChannel `json:"Channel"`
			} `json:"MediaContainer"`
		}
		// A single genre failing should not sink the lineup.
		if err := getJSON(ctx, p.client, listURL, headers, &page); err != nil {
			continue
		}
		for _, ch := range page.MediaContainer.Channel {
			id := ch.ID.String()
			if id == "" || ch.Title == "" || seen[id] {
				continue
			}
			key, drm := firstPartKey(ch)
			if drm || key == "" {
				continue
			}
			seen[id] = true
			records = append(records, catalog.Record{
				ID:        id,
				Name:      ch.Title,
				Group:     g.name,
				StreamURL: "https://epg.provider.plex.tv" + key + "?X-Plex-Token=" + token,
				Logo:      ch.Thumb,
				Language:  "en",
			})
		}
	}
	if len(records) == 0 {
		return nil, Classify("plex", parseErr("no playable channels across %d genres", len(genres)))
	}
	return records, nil
}

func firstPartKey(ch plexChannel) (key string, drm bool) {
	for _, m := range ch.Media {
		if m.DRM {
			return "", true
		}
		for _, part := range m.Part {
			if part.Key != "" {
				return part.Key, false
			}
		}
	}
	return "", false
}
