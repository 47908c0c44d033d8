package catalog

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDropsMalformed(t *testing.T) {
	records := []Record{
		{ID: "1", Name: "Good Channel", StreamURL: "http://x/1.m3u8"},
		{ID: "2", Name: "", StreamURL: "http://x/2.m3u8"},
		{ID: "3", Name: "No Stream"},
		{ID: "4", Name: "   ", StreamURL: "http://x/4.m3u8"},
	}
	channels, dropped := Normalize(records, "pluto", nil)
	require.Len(t, channels, 1)
	assert.Equal(t, 3, dropped)
	assert.Equal(t, "pluto-1", channels[0].ID)
	assert.Equal(t, "pluto", channels[0].Provider)
}

func TestNormalizeKeepsExistingPrefix(t *testing.T) {
	channels, _ := Normalize([]Record{
		{ID: "pluto-abc", Name: "One", StreamURL: "http://x"},
	}, "pluto", nil)
	require.Len(t, channels, 1)
	assert.Equal(t, "pluto-abc", channels[0].ID)
}

func TestNormalizeFilters(t *testing.T) {
	filters := &FilterSet{
		NameInclude:  regexp.MustCompile(`(?i)news`),
		GroupExclude: regexp.MustCompile(`(?i)shopping`),
		Countries:    map[string]struct{}{"us": {}},
	}
	records := []Record{
		{ID: "1", Name: "World News", Group: "News", StreamURL: "http://x/1", Country: "us"},
		{ID: "2", Name: "Movies Now", Group: "Movies", StreamURL: "http://x/2", Country: "us"},
		{ID: "3", Name: "News Shopping", Group: "Shopping", StreamURL: "http://x/3", Country: "us"},
		{ID: "4", Name: "UK News", Group: "News", StreamURL: "http://x/4", Country: "gb"},
		{ID: "5", Name: "Stateless News", Group: "News", StreamURL: "http://x/5"},
	}
	channels, dropped := Normalize(records, "p", filters)
	require.Len(t, channels, 2)
	assert.Equal(t, 3, dropped)
	assert.Equal(t, "p-1", channels[0].ID)
	// country-less records pass the country filter
	assert.Equal(t, "p-5", channels[1].ID)
}

func TestFilterSetWithCountries(t *testing.T) {
	base := &FilterSet{NameExclude: regexp.MustCompile(`(?i)shopping`)}
	scoped := base.WithCountries(map[string]struct{}{"us": {}})

	records := []Record{
		{ID: "1", Name: "Keep", StreamURL: "http://x/1", Country: "us"},
		{ID: "2", Name: "Drop", StreamURL: "http://x/2", Country: "ca"},
		{ID: "3", Name: "Stateless", StreamURL: "http://x/3"},
	}
	channels, dropped := Normalize(records, "lg", scoped)
	require.Len(t, channels, 2)
	assert.Equal(t, 1, dropped)

	// Regex filters carry over; the receiver stays unrestricted.
	assert.NotNil(t, scoped.NameExclude)
	assert.Nil(t, base.Countries)
	assert.Same(t, base, base.WithCountries(nil))

	var nilSet *FilterSet
	assert.NotNil(t, nilSet.WithCountries(map[string]struct{}{"us": {}}))
}

func TestIdentityKeyCollapsesCaseAndWhitespace(t *testing.T) {
	assert.Equal(t, IdentityKey("CNN  International", "News"), IdentityKey("cnn international", "NEWS"))
	assert.NotEqual(t, IdentityKey("CNN", "News"), IdentityKey("CNN", "Sports"))
}

func TestDedupeFirstSeenWins(t *testing.T) {
	in := []Channel{
		{ID: "pluto-1", Name: "CNN", Group: "News", Provider: "pluto"},
		{ID: "samsung-9", Name: "cnn", Group: "news", Provider: "samsung"},
		{ID: "pluto-2", Name: "MTV", Group: "Music", Provider: "pluto"},
	}
	out := Dedupe(in)
	require.Len(t, out, 2)
	assert.Equal(t, "pluto-1", out[0].ID)
	assert.Equal(t, "pluto-2", out[1].ID)
}

func TestDedupeIdempotent(t *testing.T) {
	in := []Channel{
		{ID: "a", Name: "One", Group: "G"},
		{ID: "b", Name: "One", Group: "G"},
		{ID: "c", Name: "Two", Group: "G"},
	}
	once := Dedupe(in)
	twice := Dedupe(once)
	assert.Equal(t, once, twice)
}

func TestAssignNumbersContinuesPastNative(t *testing.T) {
	channels := []Channel{
		{ID: "a", Name: "A", Number: 100},
		{ID: "b", Name: "B"},
		{ID: "c", Name: "C", Number: 7},
		{ID: "d", Name: "D"},
	}
	AssignNumbers(channels)
	assert.Equal(t, 100, channels[0].Number)
	assert.Equal(t, 101, channels[1].Number)
	assert.Equal(t, 7, channels[2].Number)
	assert.Equal(t, 102, channels[3].Number)
}

func TestResultCoverage(t *testing.T) {
	res := Result{EPGMatched: 3, EPGTotal: 4}
	assert.InDelta(t, 0.75, res.Coverage(), 1e-9)
	var empty Result
	assert.Zero(t, empty.Coverage())
}
