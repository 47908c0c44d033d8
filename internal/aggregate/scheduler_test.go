package aggregate

import (
	"context"
	"errors"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kptv/faststreams/internal/catalog"
	"github.com/kptv/faststreams/internal/epg"
	"github.com/kptv/faststreams/internal/provider"
)

type fakeAdapter struct {
	name    string
	records []catalog.Record
	delay   time.Duration
	calls   atomic.Int32
	fail    atomic.Bool
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) FetchChannels(ctx context.Context) ([]catalog.Record, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.fail.Load() {
		return nil, errors.New("upstream down")
	}
	return f.records, nil
}

type fakeNativeAdapter struct {
	fakeAdapter
	guide map[string][]catalog.Programme
}

func (f *fakeNativeAdapter) FetchNativeEPG(ctx context.Context) (map[string][]catalog.Programme, error) {
	return f.guide, nil
}

func rec(id, name string) catalog.Record {
	return catalog.Record{ID: id, Name: name, StreamURL: "http://host/" + id + ".m3u8"}
}

func mustRegex(t *testing.T, pattern string) *regexp.Regexp {
	t.Helper()
	re, err := regexp.Compile("(?i)" + pattern)
	require.NoError(t, err)
	return re
}

func testResolver() *epg.Resolver {
	return epg.NewResolver(epg.NewFetcher(time.Hour), nil, nil, nil)
}

func TestRunCyclePartialFailure(t *testing.T) {
	good := &fakeAdapter{name: "pluto", records: []catalog.Record{rec("1", "CNN"), rec("2", "MTV")}}
	bad := &fakeAdapter{name: "stirr"}
	bad.fail.Store(true)

	s := NewScheduler([]provider.Adapter{good, bad}, nil, testResolver(), 5, time.Second, nil)
	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Channels, 2)

	require.Len(t, res.Stats, 2)
	assert.Equal(t, "pluto", res.Stats[0].Provider)
	assert.False(t, res.Stats[0].Failed)
	assert.Equal(t, 2, res.Stats[0].Channels)
	assert.True(t, res.Stats[1].Failed)
	assert.Contains(t, res.Stats[1].Reason, "upstream down")
}

func TestRunCycleAllFail(t *testing.T) {
	a := &fakeAdapter{name: "pluto"}
	b := &fakeAdapter{name: "tubi"}
	a.fail.Store(true)
	b.fail.Store(true)

	s := NewScheduler([]provider.Adapter{a, b}, nil, testResolver(), 5, time.Second, nil)
	_, err := s.RunCycle(context.Background())
	assert.Error(t, err)
}

func TestRunCycleNoAdapters(t *testing.T) {
	s := NewScheduler(nil, nil, testResolver(), 5, time.Second, nil)
	_, err := s.RunCycle(context.Background())
	assert.Error(t, err)
}

func TestRunCycleDedupPriorityFollowsAdapterOrder(t *testing.T) {
	first := &fakeAdapter{name: "xumo", records: []catalog.Record{rec("a", "CNN")}}
	second := &fakeAdapter{name: "pluto", records: []catalog.Record{rec("b", "cnn"), rec("c", "MTV")}}

	s := NewScheduler([]provider.Adapter{first, second}, nil, testResolver(), 5, time.Second, nil)
	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Channels, 2)
	assert.Equal(t, "xumo-a", res.Channels[0].ID)
	assert.Equal(t, "pluto-c", res.Channels[1].ID)
}

func TestRunCycleProviderTimeout(t *testing.T) {
	slow := &fakeAdapter{name: "tubi", delay: 500 * time.Millisecond, records: []catalog.Record{rec("1", "Slow")}}
	fast := &fakeAdapter{name: "pluto", records: []catalog.Record{rec("2", "Fast")}}

	s := NewScheduler([]provider.Adapter{slow, fast}, nil, testResolver(), 5, 50*time.Millisecond, nil)
	start := time.Now()
	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond, "slow provider must be abandoned, not awaited")

	require.Len(t, res.Channels, 1)
	assert.Equal(t, "pluto-2", res.Channels[0].ID)
	var slowStat catalog.ProviderStat
	for _, st := range res.Stats {
		if st.Provider == "tubi" {
			slowStat = st
		}
	}
	assert.True(t, slowStat.Failed)
	assert.Contains(t, slowStat.Reason, "timeout")
}

func TestRunCycleNativeGuide(t *testing.T) {
	a := &fakeNativeAdapter{
		fakeAdapter: fakeAdapter{name: "tubi", records: []catalog.Record{rec("7", "Seven")}},
		guide: map[string][]catalog.Programme{
			"tubi-7": {{Title: "Now Showing", Start: time.Now(), Stop: time.Now().Add(time.Hour)}},
		},
	}
	s := NewScheduler([]provider.Adapter{a}, nil, testResolver(), 5, time.Second, nil)
	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	entry, ok := res.EPG["tubi-7"]
	require.True(t, ok)
	assert.Equal(t, catalog.TierNative, entry.Tier)
	assert.Equal(t, 1, res.EPGMatched)
	assert.Equal(t, 1, res.EPGTotal)
}

type fakeScopedAdapter struct {
	fakeAdapter
	countries map[string]struct{}
}

func (f *fakeScopedAdapter) Countries() map[string]struct{} { return f.countries }

func TestRunCycleScopesCountryFilterToAdapter(t *testing.T) {
	usRec := rec("1", "Local One")
	usRec.Country = "us"
	caRec := rec("2", "Stray Import")
	caRec.Country = "ca"
	scoped := &fakeScopedAdapter{
		fakeAdapter: fakeAdapter{name: "lg", records: []catalog.Record{usRec, caRec}},
		countries:   map[string]struct{}{"us": {}},
	}
	caGlobal := rec("3", "Canada Global")
	caGlobal.Country = "ca"
	plain := &fakeAdapter{name: "pluto", records: []catalog.Record{caGlobal}}

	s := NewScheduler([]provider.Adapter{scoped, plain}, nil, testResolver(), 5, time.Second, nil)
	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)

	// The scoped adapter drops its off-country row; other adapters are not
	// constrained by it.
	require.Len(t, res.Channels, 2)
	assert.Equal(t, "lg-1", res.Channels[0].ID)
	assert.Equal(t, "pluto-3", res.Channels[1].ID)
	assert.Equal(t, 1, res.Stats[0].Dropped)
	assert.Equal(t, 0, res.Stats[1].Dropped)
}

func TestRunCycleAppliesFilters(t *testing.T) {
	a := &fakeAdapter{name: "pluto", records: []catalog.Record{rec("1", "World News"), rec("2", "Shopping Hour")}}
	filters := &catalog.FilterSet{NameExclude: mustRegex(t, "shopping")}

	s := NewScheduler([]provider.Adapter{a}, filters, testResolver(), 5, time.Second, nil)
	res, err := s.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Channels, 1)
	assert.Equal(t, "pluto-1", res.Channels[0].ID)
	assert.Equal(t, 1, res.Stats[0].Dropped)
}
