package catalog

import (
	"regexp"
	"strings"
)

// FilterSet holds the compiled channel filters for one run. Regex fields are
// nil when the corresponding filter is not configured. Countries is the
// canonical ISO2 set; an empty set admits every country.
type FilterSet struct {
	NameInclude  *regexp.Regexp
	NameExclude  *regexp.Regexp
	GroupInclude *regexp.Regexp
	GroupExclude *regexp.Regexp
	Countries    map[string]struct{}
}

// WithCountries returns a copy of the filter set restricted to the given
// canonical country codes. An empty set returns the receiver unchanged.
func (f *FilterSet) WithCountries(countries map[string]struct{}) *FilterSet {
	if len(countries) == 0 {
		return f
	}
	out := FilterSet{Countries: countries}
	if f != nil {
		out.NameInclude = f.NameInclude
		out.NameExclude = f.NameExclude
		out.GroupInclude = f.GroupInclude
		out.GroupExclude = f.GroupExclude
	}
	return &out
}

// admit reports whether a channel with the given name/group/country survives
// the filter set. Country filtering only applies to records that carry a
// country code; country-less records pass.
func (f *FilterSet) admit(name, group, country string) bool {
	if f == nil {
		return true
	}
	if f.NameInclude != nil && !f.NameInclude.MatchString(name) {
		return false
	}
	if f.NameExclude != nil && f.NameExclude.MatchString(name) {
		return false
	}
	if f.GroupInclude != nil && !f.GroupInclude.MatchString(group) {
		return false
	}
	if f.GroupExclude != nil && f.GroupExclude.MatchString(group) {
		return false
	}
	if len(f.Countries) > 0 && country != "" {
		if _, ok := f.Countries[strings.ToLower(country)]; !ok {
			return false
		}
	}
	return true
}

// Normalize converts a provider's raw records into canonical Channels,
// dropping malformed rows (missing name or stream URL) and rows rejected by
// the filter set. The second return is the number of records dropped.
//
// Channel IDs are prefixed with the provider name unless the adapter already
// did so, keeping identity keys stable and collision-free across providers.
func Normalize(records []Record, provider string, filters *FilterSet) ([]Channel, int) {
	out := make([]Channel, 0, len(records))
	dropped := 0
	for _, r := range records {
		name := strings.TrimSpace(r.Name)
		streamURL := strings.TrimSpace(r.StreamURL)
		if name == "" || streamURL == "" {
			dropped++
			continue
		}
		if !filters.admit(name, r.Group, r.Country) {
			dropped++
			continue
		}
		id := strings.TrimSpace(r.ID)
		if id == "" {
			id = name
		}
		if !strings.HasPrefix(id, provider+"-") {
			id = provider + "-" + id
		}
		out = append(out, Channel{
			ID:        id,
			Name:      name,
			Group:     strings.TrimSpace(r.Group),
			StreamURL: streamURL,
			Provider:  provider,
			Logo:      r.Logo,
			Country:   strings.ToLower(strings.TrimSpace(r.Country)),
			Language:  r.Language,
			Number:    r.Number,
			EPGID:     r.EPGID,
		})
	}
	return out, dropped
}
