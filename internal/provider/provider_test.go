package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kptv/faststreams/internal/config"
)

func TestClassifyKinds(t *testing.T) {
	assert.Nil(t, Classify("x", nil))

	var fe *FetchError
	err := Classify("pluto", context.DeadlineExceeded)
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindTimeout, fe.Kind)
	assert.Equal(t, "pluto", fe.Provider)

	err = Classify("tubi", parseErr("bad blob"))
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindParse, fe.Kind)

	err = Classify("xumo", errors.New("connection refused"))
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, KindNetwork, fe.Kind)
}

func TestClassifyDoesNotDoubleWrap(t *testing.T) {
	inner := Classify("pluto", errors.New("boom"))
	outer := Classify("pluto", inner)
	assert.Equal(t, inner, outer)
}

func TestAllOrderAndFilter(t *testing.T) {
	cfg := &config.Config{EnabledProviders: []string{"all"}}
	adapters := All(cfg)
	require.Len(t, adapters, 10)
	names := make([]string, len(adapters))
	for i, a := range adapters {
		names[i] = a.Name()
	}
	assert.Equal(t, []string{
		"xumo", "tubi", "pluto", "plex", "samsung",
		"distrotv", "lg", "git_iptv", "git_freetv", "stirr",
	}, names)

	cfg = &config.Config{EnabledProviders: []string{"tubi", "stirr"}}
	adapters = All(cfg)
	require.Len(t, adapters, 2)
	assert.Equal(t, "tubi", adapters[0].Name())
	assert.Equal(t, "stirr", adapters[1].Name())
}
