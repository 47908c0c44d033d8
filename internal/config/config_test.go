package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Port)
	assert.Equal(t, 7200*time.Second, cfg.CacheTTL)
	assert.Equal(t, 5, cfg.MaxWorkers)
	assert.Equal(t, 45*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, []string{"all"}, cfg.EnabledProviders)
	assert.True(t, cfg.WarmCacheOnStartup)
	assert.Equal(t, "us_west", cfg.PlutoRegion)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("CACHE_DURATION", "3600")
	t.Setenv("PROVIDER_TIMEOUT", "30s")
	t.Setenv("ENABLED_PROVIDERS", "Pluto, Tubi ,")
	t.Setenv("MAX_WORKERS", "3")
	t.Setenv("WARM_CACHE_ON_STARTUP", "no")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 30*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, []string{"pluto", "tubi"}, cfg.EnabledProviders)
	assert.Equal(t, 3, cfg.MaxWorkers)
	assert.False(t, cfg.WarmCacheOnStartup)

	assert.True(t, cfg.ProviderEnabled("pluto"))
	assert.False(t, cfg.ProviderEnabled("xumo"))
}

func TestLoadRejectsBadFilterRegex(t *testing.T) {
	t.Setenv("CHANNEL_NAME_INCLUDE", "[news")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHANNEL_NAME_INCLUDE")
}

func TestLoadRejectsUnknownCountry(t *testing.T) {
	t.Setenv("GIT_COUNTRY", "us,atlantis")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GIT_COUNTRY")
}

func TestLoadCanonicalizesCountryTokens(t *testing.T) {
	t.Setenv("GIT_COUNTRY", "usa, United Kingdom")
	t.Setenv("LG_COUNTRY", "united states")
	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"us", "gb"}, c.GitCountry)
	assert.Equal(t, []string{"us"}, c.LGCountry)
}

func TestFiltersCaseInsensitive(t *testing.T) {
	c := &Config{NameInclude: "news"}
	f, err := c.Filters()
	require.NoError(t, err)
	assert.True(t, f.NameInclude.MatchString("World NEWS"))
	assert.Nil(t, f.NameExclude)
}

func TestCanonicalCountry(t *testing.T) {
	for _, token := range []string{"us", "USA", " United States ", "america"} {
		code, err := CanonicalCountry(token)
		require.NoError(t, err, token)
		assert.Equal(t, "us", code)
	}
	code, err := CanonicalCountry("uk")
	require.NoError(t, err)
	assert.Equal(t, "gb", code)

	_, err = CanonicalCountry("narnia")
	assert.Error(t, err)
	_, err = CanonicalCountry("  ")
	assert.Error(t, err)
}

func TestCanonicalCountries(t *testing.T) {
	codes, err := CanonicalCountries([]string{"usa", "uk", "us"})
	require.NoError(t, err)
	assert.Equal(t, []string{"us", "gb"}, codes)

	codes, err = CanonicalCountries(nil)
	require.NoError(t, err)
	assert.Nil(t, codes)

	_, err = CanonicalCountries([]string{"atlantis"})
	assert.Error(t, err)
}

func TestCountrySet(t *testing.T) {
	set, err := CountrySet([]string{"usa", "uk", "us"})
	require.NoError(t, err)
	assert.Len(t, set, 2)
	_, ok := set["gb"]
	assert.True(t, ok)

	set, err = CountrySet(nil)
	require.NoError(t, err)
	assert.Nil(t, set)
}

func TestCountryAliases(t *testing.T) {
	assert.Contains(t, CountryAliases("gb"), "united kingdom")
	assert.Equal(t, []string{"zz"}, CountryAliases("zz"))
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	body := "# comment\nFOO_TEST_KEY=bar\nQUOTED_TEST_KEY=\"hello world\"\n\nbroken line\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("FOO_TEST_KEY", "")
	t.Setenv("QUOTED_TEST_KEY", "")

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "bar", os.Getenv("FOO_TEST_KEY"))
	assert.Equal(t, "hello world", os.Getenv("QUOTED_TEST_KEY"))

	// missing files are not an error
	assert.NoError(t, LoadEnvFile(filepath.Join(dir, "absent.env")))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("DUR_TEST_KEY", "90")
	assert.Equal(t, 90*time.Second, getEnvDuration("DUR_TEST_KEY", time.Minute))
	t.Setenv("DUR_TEST_KEY", "2h")
	assert.Equal(t, 2*time.Hour, getEnvDuration("DUR_TEST_KEY", time.Minute))
	t.Setenv("DUR_TEST_KEY", "junk")
	assert.Equal(t, time.Minute, getEnvDuration("DUR_TEST_KEY", time.Minute))
}
