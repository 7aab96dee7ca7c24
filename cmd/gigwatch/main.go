package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sydlexius/gigwatch/internal/config"
	"github.com/sydlexius/gigwatch/internal/events"
	"github.com/sydlexius/gigwatch/internal/httpx"
	"github.com/sydlexius/gigwatch/internal/logging"
	"github.com/sydlexius/gigwatch/internal/report"
	"github.com/sydlexius/gigwatch/internal/shorturl"
	"github.com/sydlexius/gigwatch/internal/spotify"
	"github.com/sydlexius/gigwatch/internal/store"
	"github.com/sydlexius/gigwatch/internal/tracker"
)

const usage = `usage: gigwatch <command> [args]

commands:
  track-artist <spotify-artist-id>      resolve and track one artist
  track-playlist <spotify-playlist-id>  track every artist on a playlist
  refresh                               re-fetch events for all tracked artists
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(command string, args []string) error {
	// Load configuration
	configPath := os.Getenv("GW_CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Set up structured logging
	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close() //nolint:errcheck
	slog.SetDefault(logger)

	// Error reporting
	reporter, err := report.NewSentry(cfg.Reporting.SentryDSN)
	if err != nil {
		return fmt.Errorf("initializing error reporting: %w", err)
	}
	defer report.Flush(2 * time.Second)

	// Open database and run migrations
	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("closing database", "error", err)
		}
	}()

	if err := st.Migrate(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("database ready", slog.String("path", cfg.Database.Path))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One client per upstream, shared across the whole run
	mbClient := newUpstreamClient("musicbrainz", cfg.MusicBrainz, cfg.HTTP, logger)
	skClient := newUpstreamClient("songkick", cfg.Songkick, cfg.HTTP, logger)
	bitClient := newUpstreamClient("bandsintown", cfg.Bandsintown, cfg.HTTP, logger)

	shortener := shorturl.New(st, cfg.Shortener.BaseURL, logger)
	resolver := events.NewResolver(mbClient, skClient, bitClient, logger)
	service := events.NewService(skClient, bitClient, shortener, reporter, cfg.Matching.FuzzyThreshold, logger)
	spotifyClient := spotify.New(ctx, cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, logger)

	trk := tracker.New(spotifyClient, resolver, service, st, reporter,
		cfg.Tracker.ArtistsPerMinute, cfg.Tracker.Concurrency, logger)

	switch command {
	case "track-artist":
		if len(args) != 1 {
			return fmt.Errorf("track-artist requires exactly one Spotify artist ID")
		}
		record, err := trk.Track(ctx, args[0])
		if err != nil {
			return err
		}
		logger.Info("artist tracked",
			slog.String("artist", record.Name),
			slog.String("songkick_url", record.SongkickURL),
			slog.String("bandsintown_url", record.BandsintownURL))
		return nil

	case "track-playlist":
		if len(args) != 1 {
			return fmt.Errorf("track-playlist requires exactly one Spotify playlist ID")
		}
		stats, err := trk.TrackPlaylist(ctx, args[0])
		if err != nil {
			return err
		}
		logStats(logger, "playlist tracked", stats)
		return nil

	case "refresh":
		if len(args) != 0 {
			return fmt.Errorf("refresh takes no arguments")
		}
		stats, err := trk.RefreshAll(ctx)
		if err != nil {
			return err
		}
		logStats(logger, "refresh complete", stats)
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func logStats(logger *slog.Logger, msg string, stats tracker.Stats) {
	logger.Info(msg,
		slog.Int("artists", stats.Artists),
		slog.Int("succeeded", stats.Succeeded),
		slog.Int("failed", stats.Failed),
		slog.Duration("elapsed", stats.Elapsed))
}

func newUpstreamClient(name string, upstream config.UpstreamConfig, httpCfg config.HTTPConfig, logger *slog.Logger) *httpx.Client {
	return httpx.New(httpx.Options{
		Name:         name,
		BaseURL:      upstream.BaseURL,
		ThrottleCode: upstream.ThrottleCode,
		Retries:      upstream.Retries,
		Delay:        time.Duration(upstream.DelaySeconds * float64(time.Second)),
		Timeout:      time.Duration(upstream.TimeoutSeconds) * time.Second,
		UserAgent:    httpCfg.UserAgent,
		ProxyURL:     httpCfg.ProxyURL,
	}, logger)
}
