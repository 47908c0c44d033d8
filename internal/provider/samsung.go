package provider

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/kptv/faststreams/internal/catalog"
	"github.com/kptv/faststreams/internal/httpclient"
)

const samsungAppData = "https://i.mjh.nz/SamsungTVPlus/.channels.json.gz"

// Samsung fetches the Samsung TV Plus lineup from the mjh.nz mirror, which
// republishes the app's channel data as gzipped JSON per region.
type Samsung struct {
	client *http.Client
	region string
}

func NewSamsung(region string) *Samsung {
	if region == "" {
		region = "us"
	}
	return &Samsung{client: httpclient.Default(), region: region}
}

func (s *Samsung) Name() string { return "samsung" }

type samsungRegion struct {
	Name     string `json:"name"`
	Channels map[string]struct {
		Name       string      `json:"name"`
		Logo       string      `json:"logo"`
		Group      string      `json:"group"`
		Chno       json.Number `json:"chno"`
		LicenseURL string      `json:"license_url"`
	} `json:"channels"`
}

func (s *Samsung) FetchChannels(ctx context.Context) ([]catalog.Record, error) {
	body, err := getBody(ctx, s.client, samsungAppData, nil)
	if err != nil {
		return nil, Classify("samsung", err)
	}
	defer body.Close()
	gz, err := gzip.NewReader(body)
	if err != nil {
		return nil, Classify("samsung", parseErr("gzip: %v", err))
	}
	defer gz.Close()

	var data struct {
		Regions map[string]samsungRegion `json:"regions"`
	}
	if err := json.NewDecoder(gz).Decode(&data); err != nil {
		return nil, Classify("samsung", parseErr("decode app data: %v", err))
	}
	if len(data.Regions) == 0 {
		return nil, Classify("samsung", parseErr("no regions in app data"))
	}

	var regions []struct {
		code string
		samsungRegion
	}
	switch {
	case s.region == "all":
		codes := make([]string, 0, len(data.Regions))
		for code := range data.Regions {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			regions = append(regions, struct {
				code string
				samsungRegion
			}{code, data.Regions[code]})
		}
	default:
		r, ok := data.Regions[s.region]
		if !ok {
			r, ok = data.Regions["us"]
			if !ok {
				return nil, Classify("samsung", parseErr("region %q not in app data", s.region))
			}
		}
		regions = append(regions, struct {
			code string
			samsungRegion
		}{s.region, r})
	}

	var records []catalog.Record
	for _, region := range regions {
		ids := make([]string, 0, len(region.Channels))
		for id := range region.Channels {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			ch := region.Channels[id]
			if ch.Name == "" {
				continue
			}
			if ch.LicenseURL != "" {
				continue // DRM
			}
			number := 0
			if n, err := ch.Chno.Int64(); err == nil {
				number = int(n)
			}
			group := ch.Group
			if group == "" {
				group = "General"
			}
			records = append(records, catalog.Record{
				ID:        id,
				Name:      ch.Name,
				Group:     group,
				StreamURL: fmt.Sprintf("https://jmp2.uk/sam-%s.m3u8", id),
				Logo:      ch.Logo,
				Language:  "en",
				Number:    number,
				EPGID:     id,
			})
		}
	}
	return records, nil
}
