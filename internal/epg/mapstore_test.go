package epg

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.db")
	store, err := OpenMapStore(path)
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.Get("pluto-cnn")
	assert.False(t, ok)

	require.NoError(t, store.Put("pluto-cnn", "cnn.us", MethodFuzzy))
	external, ok := store.Get("pluto-cnn")
	require.True(t, ok)
	assert.Equal(t, "cnn.us", external)

	// upsert replaces
	require.NoError(t, store.Put("pluto-cnn", "cnn-intl.us", MethodNameExact))
	external, _ = store.Get("pluto-cnn")
	assert.Equal(t, "cnn-intl.us", external)

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.Delete("pluto-cnn"))
	_, ok = store.Get("pluto-cnn")
	assert.False(t, ok)
}

func TestMapStorePersistsAcrossOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.db")
	store, err := OpenMapStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put("samsung-1", "one.us", MethodIDPrefix))
	require.NoError(t, store.Close())

	store2, err := OpenMapStore(path)
	require.NoError(t, err)
	defer store2.Close()
	external, ok := store2.Get("samsung-1")
	require.True(t, ok)
	assert.Equal(t, "one.us", external)
}
