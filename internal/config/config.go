// Package config loads runtime settings from environment variables (plus an
// optional .env file) and compiles the channel filter set. Malformed filter
// regexes and unrecognized country tokens fail at load, never per cycle.
package config

import (
	"fmt"
	"regexp"
	"time"

	"github.com/kptv/faststreams/internal/catalog"
)

// Config holds aggregator + server settings. Load from env; call
// LoadEnvFile(".env") before Load() to use a .env file.
type Config struct {
	Port     int
	BaseURL  string // external base URL advertised in playlist/guide links
	CacheTTL time.Duration

	EnabledProviders []string // lower-case provider names, or ["all"]

	// Worker pool
	MaxWorkers      int
	ProviderTimeout time.Duration

	// Startup cache warming
	WarmCacheOnStartup bool
	StartupDelay       time.Duration

	// Filters (raw patterns; compiled by Filters)
	NameInclude  string
	NameExclude  string
	GroupInclude string
	GroupExclude string

	// Country filters for country-scoped providers
	GitCountry []string
	LGCountry  []string

	// Provider regions
	PlutoRegion   string
	SamsungRegion string
	PlexRegion    string

	GithubToken string

	// EPG resolution
	EPGSourceTTL time.Duration // sub-cache TTL for external guide fetches
	MapStorePath string        // sqlite path for pinned EPG mappings; "" disables
	SourcesFile  string        // optional YAML overriding the fallback source table
}

// Load reads config from environment. Defaults mirror the service's
// documented env surface: PORT 7777, CACHE_DURATION 7200s, MAX_WORKERS 5,
// PROVIDER_TIMEOUT 45s.
func Load() (*Config, error) {
	c := &Config{
		Port:               getEnvInt("PORT", 7777),
		BaseURL:            getEnv("BASE_URL", ""),
		CacheTTL:           getEnvDuration("CACHE_DURATION", 7200*time.Second),
		EnabledProviders:   getEnvList("ENABLED_PROVIDERS"),
		MaxWorkers:         getEnvInt("MAX_WORKERS", 5),
		ProviderTimeout:    getEnvDuration("PROVIDER_TIMEOUT", 45*time.Second),
		WarmCacheOnStartup: getEnvBool("WARM_CACHE_ON_STARTUP", true),
		StartupDelay:       getEnvDuration("STARTUP_CACHE_DELAY", 10*time.Second),
		NameInclude:        getEnv("CHANNEL_NAME_INCLUDE", ""),
		NameExclude:        getEnv("CHANNEL_NAME_EXCLUDE", ""),
		GroupInclude:       getEnv("GROUP_INCLUDE", ""),
		GroupExclude:       getEnv("GROUP_EXCLUDE", ""),
		GitCountry:         getEnvList("GIT_COUNTRY"),
		LGCountry:          getEnvList("LG_COUNTRY"),
		PlutoRegion:        getEnv("PLUTO_REGION", "us_west"),
		SamsungRegion:      getEnv("SAMSUNG_REGION", "us"),
		PlexRegion:         getEnv("PLEX_REGION", "local"),
		GithubToken:        getEnv("GITHUB_TOKEN", ""),
		EPGSourceTTL:       getEnvDuration("EPG_SOURCE_TTL", time.Hour),
		MapStorePath:       getEnv("EPG_MAP_STORE", ""),
		SourcesFile:        getEnv("EPG_SOURCES_FILE", ""),
	}
	if len(c.EnabledProviders) == 0 {
		c.EnabledProviders = []string{"all"}
	}
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 5
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 45 * time.Second
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 7200 * time.Second
	}
	// Validate early so a bad filter is visible at startup, not as a
	// silently empty playlist.
	if _, err := c.Filters(); err != nil {
		return nil, err
	}
	// Country tokens are replaced by their alpha-2 codes here so consumers
	// compare codes, never raw spellings: "usa" and "united states" must
	// select the same playlists as "us".
	var err error
	if c.GitCountry, err = CanonicalCountries(c.GitCountry); err != nil {
		return nil, fmt.Errorf("GIT_COUNTRY: %w", err)
	}
	if c.LGCountry, err = CanonicalCountries(c.LGCountry); err != nil {
		return nil, fmt.Errorf("LG_COUNTRY: %w", err)
	}
	return c, nil
}

// ProviderEnabled reports whether the named provider should be constructed.
func (c *Config) ProviderEnabled(name string) bool {
	for _, p := range c.EnabledProviders {
		if p == "all" || p == name {
			return true
		}
	}
	return false
}

// Filters compiles the regex filter set. Patterns are matched
// case-insensitively, as substring searches.
func (c *Config) Filters() (*catalog.FilterSet, error) {
	f := &catalog.FilterSet{}
	var err error
	if f.NameInclude, err = compileFilter(c.NameInclude); err != nil {
		return nil, fmt.Errorf("CHANNEL_NAME_INCLUDE: %w", err)
	}
	if f.NameExclude, err = compileFilter(c.NameExclude); err != nil {
		return nil, fmt.Errorf("CHANNEL_NAME_EXCLUDE: %w", err)
	}
	if f.GroupInclude, err = compileFilter(c.GroupInclude); err != nil {
		return nil, fmt.Errorf("GROUP_INCLUDE: %w", err)
	}
	if f.GroupExclude, err = compileFilter(c.GroupExclude); err != nil {
		return nil, fmt.Errorf("GROUP_EXCLUDE: %w", err)
	}
	return f, nil
}

func compileFilter(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		return nil, nil
	}
	return regexp.Compile("(?i)" + pattern)
}
