// Package tracker orchestrates the full pipeline for tracked artists:
// resolve the artist's identity through MusicBrainz, locate them on the
// event sources, extract their events, and persist the results.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sydlexius/gigwatch/internal/events"
	"github.com/sydlexius/gigwatch/internal/match"
	"github.com/sydlexius/gigwatch/internal/report"
	"github.com/sydlexius/gigwatch/internal/spotify"
	"github.com/sydlexius/gigwatch/internal/store"
)

// Stats summarizes a refresh run.
type Stats struct {
	Artists   int
	Succeeded int
	Failed    int
	Events    int
	Elapsed   time.Duration
}

// Tracker resolves and refreshes tracked artists.
type Tracker struct {
	spotify     *spotify.Client
	resolver    *events.Resolver
	service     *events.Service
	store       *store.Store
	reporter    report.Reporter
	logger      *slog.Logger
	limiter     *rate.Limiter
	concurrency int
}

// New creates a Tracker. artistsPerMinute caps how fast refresh runs walk
// the tracked artist list; concurrency caps how many artists are processed
// at once within that budget.
func New(spotifyClient *spotify.Client, resolver *events.Resolver, service *events.Service, st *store.Store, reporter report.Reporter, artistsPerMinute, concurrency int, logger *slog.Logger) *Tracker {
	if artistsPerMinute <= 0 {
		artistsPerMinute = 60
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if reporter == nil {
		reporter = report.Noop{}
	}
	return &Tracker{
		spotify:     spotifyClient,
		resolver:    resolver,
		service:     service,
		store:       st,
		reporter:    reporter,
		logger:      logger.With(slog.String("component", "tracker")),
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(artistsPerMinute)), 1),
		concurrency: concurrency,
	}
}

// Track resolves a Spotify artist's event source identity, fetches their
// upcoming events, and persists everything. MusicBrainz is consulted first:
// when it links both source pages directly, the locators are skipped
// entirely and the identity carries MusicBrainz-level accuracy. Otherwise
// the locators search with the MusicBrainz alias names as alternatives,
// using advanced matching heuristics only when MusicBrainz knew nothing
// about the artist.
func (t *Tracker) Track(ctx context.Context, spotifyArtistID string) (*store.EventArtist, error) {
	spotifyArtist, err := t.spotify.Artist(ctx, spotifyArtistID)
	if err != nil {
		return nil, fmt.Errorf("fetching Spotify artist: %w", err)
	}

	t.logger.Info("tracking artist",
		slog.String("spotify_artist_id", spotifyArtistID),
		slog.String("name", spotifyArtist.Name))

	mbArtist, err := t.resolver.Find(ctx, spotifyArtist.ID, spotifyArtist.Name)
	if err != nil {
		t.logger.Warn("MusicBrainz resolution failed, proceeding without it",
			slog.String("artist", spotifyArtist.Name), slog.String("error", err.Error()))
		t.reporter.CaptureException(err)
		mbArtist = nil
	}

	artist := t.resolveIdentity(ctx, spotifyArtist.Name, mbArtist)

	record := &store.EventArtist{
		SpotifyArtistID:     spotifyArtist.ID,
		Name:                spotifyArtist.Name,
		SongkickURL:         artist.SongkickURL,
		BandsintownURL:      artist.BandsintownURL,
		SongkickAccuracy:    artist.SongkickAccuracy,
		BandsintownAccuracy: artist.BandsintownAccuracy,
	}
	if mbArtist != nil {
		record.MusicBrainzID = mbArtist.ID
	}
	if err := t.store.SaveEventArtist(ctx, record); err != nil {
		return nil, err
	}

	if err := t.refreshEvents(ctx, record, artist); err != nil {
		return record, err
	}
	return record, nil
}

// resolveIdentity builds the event source identity for an artist, applying
// the MusicBrainz-first policy.
func (t *Tracker) resolveIdentity(ctx context.Context, name string, mbArtist *events.MusicBrainzArtist) *events.Artist {
	if mbArtist != nil && mbArtist.SongkickURL != "" && mbArtist.BandsintownURL != "" {
		t.logger.Info("MusicBrainz links both event sources, skipping search",
			slog.String("artist", name), slog.String("musicbrainz_id", mbArtist.ID))
		return &events.Artist{
			Name:                name,
			AlternativeNames:    mbArtist.Names,
			SongkickURL:         mbArtist.SongkickURL,
			BandsintownURL:      mbArtist.BandsintownURL,
			SongkickAccuracy:    match.AccuracyMusicBrainz,
			BandsintownAccuracy: match.AccuracyMusicBrainz,
		}
	}

	var altNames []string
	advanced := true
	if mbArtist != nil {
		altNames = mbArtist.Names
		advanced = false
	}

	artist, err := t.service.Find(ctx, name, altNames, advanced)
	if err != nil {
		// Only ErrEmptyArtistName reaches here; per-source failures are
		// absorbed into an identity with missing URLs.
		t.logger.Error("artist search failed", slog.String("artist", name), slog.String("error", err.Error()))
		t.reporter.CaptureException(err)
		return &events.Artist{Name: name, AlternativeNames: altNames}
	}

	if mbArtist != nil {
		if artist.SongkickURL == "" && mbArtist.SongkickURL != "" {
			artist.SongkickURL = mbArtist.SongkickURL
			artist.SongkickAccuracy = match.AccuracyMusicBrainz
		}
		if artist.BandsintownURL == "" && mbArtist.BandsintownURL != "" {
			artist.BandsintownURL = mbArtist.BandsintownURL
			artist.BandsintownAccuracy = match.AccuracyMusicBrainz
		}
	}
	return artist
}

// TrackPlaylist tracks every distinct artist on a Spotify playlist. Artist
// failures are isolated: one artist failing never stops the rest.
func (t *Tracker) TrackPlaylist(ctx context.Context, playlistID string) (Stats, error) {
	artists, err := t.spotify.PlaylistArtists(ctx, playlistID)
	if err != nil {
		return Stats{}, fmt.Errorf("fetching playlist artists: %w", err)
	}

	start := time.Now()
	stats := Stats{Artists: len(artists)}
	for _, a := range artists {
		if err := t.limiter.Wait(ctx); err != nil {
			return stats, err
		}
		if _, err := t.Track(ctx, a.ID); err != nil {
			t.logger.Error("failed to track artist",
				slog.String("artist", a.Name), slog.String("error", err.Error()))
			t.reporter.CaptureException(err)
			stats.Failed++
			continue
		}
		stats.Succeeded++
	}
	stats.Elapsed = time.Since(start)
	return stats, nil
}

// RefreshAll re-fetches events for every tracked artist, pacing the walk
// with the configured rate limit and processing up to the configured number
// of artists concurrently.
func (t *Tracker) RefreshAll(ctx context.Context) (Stats, error) {
	artists, err := t.store.ListEventArtists(ctx)
	if err != nil {
		return Stats{}, err
	}

	start := time.Now()
	stats := Stats{Artists: len(artists)}
	t.logger.Info("refreshing tracked artists", slog.Int("artists", len(artists)))

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, t.concurrency)
	)
	for _, a := range artists {
		if err := t.limiter.Wait(ctx); err != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(a store.EventArtist) {
			defer wg.Done()
			defer func() { <-sem }()

			n, err := t.refreshArtist(ctx, &a)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				t.logger.Error("failed to refresh artist",
					slog.String("artist", a.Name), slog.String("error", err.Error()))
				t.reporter.CaptureException(err)
				stats.Failed++
				return
			}
			stats.Succeeded++
			stats.Events += n
		}(a)
	}
	wg.Wait()

	stats.Elapsed = time.Since(start)
	t.logger.Info("refresh finished",
		slog.Int("artists", stats.Artists),
		slog.Int("succeeded", stats.Succeeded),
		slog.Int("failed", stats.Failed),
		slog.Int("events", stats.Events),
		slog.Duration("elapsed", stats.Elapsed))
	return stats, ctx.Err()
}

func (t *Tracker) refreshArtist(ctx context.Context, record *store.EventArtist) (int, error) {
	artist := &events.Artist{
		Name:                record.Name,
		SongkickURL:         record.SongkickURL,
		BandsintownURL:      record.BandsintownURL,
		SongkickAccuracy:    record.SongkickAccuracy,
		BandsintownAccuracy: record.BandsintownAccuracy,
	}

	stored, err := t.store.EventsForArtist(ctx, record.ID)
	if err != nil {
		return 0, err
	}
	artist.Events = stored

	if err := t.refreshEvents(ctx, record, artist); err != nil {
		return 0, err
	}
	return len(artist.Events), nil
}

func (t *Tracker) refreshEvents(ctx context.Context, record *store.EventArtist, artist *events.Artist) error {
	if err := t.service.FetchEvents(ctx, artist); err != nil {
		return fmt.Errorf("fetching events for %q: %w", artist.Name, err)
	}

	for _, e := range artist.Events {
		if err := t.store.UpsertEvent(ctx, record.ID, e); err != nil {
			return fmt.Errorf("saving event %s: %w", e.URL, err)
		}
	}

	t.logger.Info("refreshed events",
		slog.String("artist", artist.Name), slog.Int("events", len(artist.Events)))
	return nil
}
