package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kptv/faststreams/internal/catalog"
	"github.com/kptv/faststreams/internal/httpclient"
)

// LG fetches LG Channels lineups from the apsattv.com mirrors, one playlist
// per country.
type LG struct {
	client    *http.Client
	countries []string
}

func NewLG(countries []string) *LG {
	if len(countries) == 0 {
		countries = []string{"us"}
	}
	return &LG{client: httpclient.Default(), countries: countries}
}

func (l *LG) Name() string { return "lg" }

// Countries returns the configured alpha-2 set for scoped normalization.
func (l *LG) Countries() map[string]struct{} {
	set := make(map[string]struct{}, len(l.countries))
	for _, cc := range l.countries {
		set[cc] = struct{}{}
	}
	return set
}

func (l *LG) FetchChannels(ctx context.Context) ([]catalog.Record, error) {
	var records []catalog.Record
	var lastErr error
	for _, cc := range l.countries {
		url := fmt.Sprintf("https://www.apsattv.com/%slg.m3u", cc)
		recs, err := FetchM3U(ctx, l.client, url, nil)
		if err != nil {
			// A missing country playlist should not sink the others.
			lastErr = err
			continue
		}
		for i := range recs {
			rec := &recs[i]
			rec.Country = cc
			if rec.Language == "" {
				rec.Language = countryLanguage(cc)
			}
			if rec.Group == "" {
				rec.Group = "LG " + strings.ToUpper(cc)
			}
			if rec.EPGID == "" {
				rec.ID = cc + "-" + slugify(rec.Name)
			}
		}
		records = append(records, recs...)
	}
	if len(records) == 0 {
		if lastErr != nil {
			return nil, Classify("lg", lastErr)
		}
		return nil, Classify("lg", parseErr("no channels for countries %v", l.countries))
	}
	return records, nil
}

func slugify(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "&", "and")
	return strings.Join(strings.Fields(name), "-")
}

// countryLanguage returns the dominant broadcast language for a country
// code. Unknown codes default to English.
func countryLanguage(cc string) string {
	switch cc {
	case "de":
		return "de"
	case "fr":
		return "fr"
	case "es", "mx", "ar", "cl", "co", "pe":
		return "es"
	case "it":
		return "it"
	case "br", "pt":
		return "pt"
	case "nl":
		return "nl"
	case "se":
		return "sv"
	case "no":
		return "no"
	case "dk":
		return "da"
	case "fi":
		return "fi"
	case "pl":
		return "pl"
	case "ru":
		return "ru"
	case "cn", "tw", "hk":
		return "zh"
	case "jp":
		return "ja"
	case "kr":
		return "ko"
	case "th":
		return "th"
	case "vn":
		return "vi"
	case "id":
		return "id"
	case "my":
		return "ms"
	case "in":
		return "hi"
	case "eg", "ae", "sa":
		return "ar"
	case "tr":
		return "tr"
	default:
		return "en"
	}
}
