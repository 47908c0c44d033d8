package epg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGuide() *Guide {
	return &Guide{
		Channels: []GuideChannel{
			{ID: "pluto-cnn", DisplayNames: []string{"CNN International"}},
			{ID: "pluto-mtv", DisplayNames: []string{"MTV"}},
			{ID: "pluto-kids-a", DisplayNames: []string{"Cartoon Corner"}},
			{ID: "pluto-kids-b", DisplayNames: []string{"Cartoon Corner"}},
		},
	}
}

func TestMatchID(t *testing.T) {
	idx := NewIndex("pluto", testGuide())

	id, ok := idx.MatchID("pluto-cnn", "cnn")
	require.True(t, ok)
	assert.Equal(t, "pluto-cnn", id)

	// guide keys match case-insensitively
	id, ok = idx.MatchID("PLUTO-CNN", "CNN")
	require.True(t, ok)
	assert.Equal(t, "pluto-cnn", id)

	_, ok = idx.MatchID("pluto-missing", "missing")
	assert.False(t, ok)
}

func TestMatchIDPlexLineupSuffix(t *testing.T) {
	guide := &Guide{Channels: []GuideChannel{
		{ID: "us-5e20b730f2f8d5003d739db7-abcdef0123456789"},
	}}
	idx := NewIndex("plex", guide)

	id, ok := idx.MatchID("plex-abcdef0123456789", "abcdef0123456789")
	require.True(t, ok)
	assert.Equal(t, "us-5e20b730f2f8d5003d739db7-abcdef0123456789", id)

	// short local IDs never suffix-match
	_, ok = idx.MatchID("plex-short", "short")
	assert.False(t, ok)
}

func TestMatchName(t *testing.T) {
	idx := NewIndex("pluto", testGuide())

	id, ok := idx.MatchName("CNN International HD")
	require.True(t, ok, "noise tokens stripped before comparison")
	assert.Equal(t, "pluto-cnn", id)

	// two guide channels share this display name
	_, ok = idx.MatchName("Cartoon Corner")
	assert.False(t, ok)

	_, ok = idx.MatchName("Unknown Network")
	assert.False(t, ok)
}

func TestMatchFuzzy(t *testing.T) {
	idx := NewIndex("pluto", testGuide())

	id, ok := idx.MatchFuzzy("CNN Internatonal")
	require.True(t, ok)
	assert.Equal(t, "pluto-cnn", id)

	// short keys are too risky to fuzzy-match
	_, ok = idx.MatchFuzzy("MTV")
	assert.False(t, ok)

	_, ok = idx.MatchFuzzy("Completely Different Name")
	assert.False(t, ok)
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"CNN International HD": "cnninternational",
		"  MTV  ":              "mtv",
		"Comedy Central (US)":  "comedycentral",
		"ION Channel 4K":       "ion",
		"!!!":                  "",
		"":                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeName(in), in)
	}
	assert.Equal(t, NormalizeName("Discovery UK"), NormalizeName("discovery-hd"))
}

func TestSortedGuideIDs(t *testing.T) {
	idx := NewIndex("pluto", testGuide())
	ids := idx.SortedGuideIDs()
	require.Len(t, ids, 4)
	assert.Equal(t, "pluto-cnn", ids[0])
	assert.Equal(t, "pluto-mtv", ids[3])
}
