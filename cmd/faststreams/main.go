// Command faststreams aggregates free ad-supported streaming lineups into a
// single playlist and guide. It fans out to the enabled providers on a
// schedule, merges and dedupes their channels, resolves EPG data through
// native and fallback sources, and serves M3U/XMLTV/JSON over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kptv/faststreams/internal/aggregate"
	"github.com/kptv/faststreams/internal/config"
	"github.com/kptv/faststreams/internal/epg"
	"github.com/kptv/faststreams/internal/provider"
	"github.com/kptv/faststreams/internal/server"
)

func main() {
	envFile := flag.String("env", "", "optional .env file to load before reading configuration")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	log := newLogger(*logLevel)
	slog.SetDefault(log)

	if *envFile != "" {
		if err := config.LoadEnvFile(*envFile); err != nil {
			log.Error("load env file", "path", *envFile, "error", err)
			os.Exit(1)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	filters, err := cfg.Filters()
	if err != nil {
		log.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	adapters := provider.All(cfg)
	if len(adapters) == 0 {
		log.Error("no providers enabled", "enabled", cfg.EnabledProviders)
		os.Exit(1)
	}
	names := make([]string, len(adapters))
	for i, a := range adapters {
		names[i] = a.Name()
	}
	log.Info("providers enabled", "providers", strings.Join(names, ","))

	sources, err := epg.LoadSources(cfg.SourcesFile)
	if err != nil {
		log.Error("epg sources invalid", "error", err)
		os.Exit(1)
	}
	var mapStore *epg.MapStore
	if cfg.MapStorePath != "" {
		mapStore, err = epg.OpenMapStore(cfg.MapStorePath)
		if err != nil {
			log.Error("open epg map store", "path", cfg.MapStorePath, "error", err)
			os.Exit(1)
		}
		defer mapStore.Close()
	}

	fetcher := epg.NewFetcher(cfg.EPGSourceTTL)
	resolver := epg.NewResolver(fetcher, sources, mapStore, log)
	scheduler := aggregate.NewScheduler(adapters, filters, resolver, cfg.MaxWorkers, cfg.ProviderTimeout, log)
	store := aggregate.NewStore(scheduler, cfg.CacheTTL, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go store.Run(ctx, 5*time.Minute)
	if cfg.WarmCacheOnStartup {
		go store.Warm(ctx, cfg.StartupDelay)
	}

	srv := server.New(store, fetcher, mapStore, cfg.BaseURL, log)
	addr := fmt.Sprintf(":%d", cfg.Port)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
