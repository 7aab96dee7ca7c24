package events

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/sydlexius/gigwatch/internal/httpx"
	"github.com/sydlexius/gigwatch/internal/match"
	"github.com/sydlexius/gigwatch/internal/report"
)

// Shortener is the URL-shortening collaborator. Shorten is idempotent:
// repeated calls with the same URL return the same short URL.
type Shortener interface {
	Shorten(ctx context.Context, longURL string) (string, error)
}

// Artist is the in-memory reconciliation record unifying one artist's
// identity across the event sources during a single resolution pass.
type Artist struct {
	Name                string
	AlternativeNames    []string
	SongkickURL         string
	BandsintownURL      string
	SongkickAccuracy    match.Accuracy
	BandsintownAccuracy match.Accuracy
	Events              []Event
}

// Location is a resolved artist page on one source.
type Location struct {
	URL      string
	Accuracy match.Accuracy
}

// Service locates artists on the event sources and extracts their events.
type Service struct {
	songkick       *httpx.Client
	bandsintown    *httpx.Client
	shortener      Shortener
	reporter       report.Reporter
	logger         *slog.Logger
	fuzzyThreshold int
}

// NewService creates an event source Service. The clients carry the
// per-upstream retry and throttle configuration; one client per upstream is
// shared across all calls.
func NewService(songkick, bandsintown *httpx.Client, shortener Shortener, reporter report.Reporter, fuzzyThreshold int, logger *slog.Logger) *Service {
	if reporter == nil {
		reporter = report.Noop{}
	}
	return &Service{
		songkick:       songkick,
		bandsintown:    bandsintown,
		shortener:      shortener,
		reporter:       reporter,
		logger:         logger.With(slog.String("component", "events")),
		fuzzyThreshold: fuzzyThreshold,
	}
}

// Find searches for the artist on Songkick and Bandsintown concurrently and
// returns a profile reflecting whichever sources succeeded. A failure in
// one source never fails the other; both outcomes are logged independently.
func (s *Service) Find(ctx context.Context, name string, alternativeNames []string, useAdvancedHeuristics bool) (*Artist, error) {
	if name == "" {
		return nil, ErrEmptyArtistName
	}

	alternativeNames = slices.DeleteFunc(slices.Clone(alternativeNames), func(n string) bool {
		return n == name
	})

	s.logger.Info("searching for artist in event sources",
		slog.String("artist", name),
		slog.Int("alternative_names", len(alternativeNames)))

	artist := &Artist{Name: name, AlternativeNames: alternativeNames}

	var (
		wg                       sync.WaitGroup
		songkickLoc              Location
		bandsintownLoc           Location
		songkickErr, bandsintErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		songkickLoc, songkickErr = s.LocateSongkick(ctx, name, alternativeNames, useAdvancedHeuristics)
	}()
	go func() {
		defer wg.Done()
		bandsintownLoc, bandsintErr = s.LocateBandsintown(ctx, name, alternativeNames, useAdvancedHeuristics)
	}()
	wg.Wait()

	if songkickErr != nil {
		s.logger.Warn("artist not found in Songkick", slog.String("artist", name), slog.String("error", songkickErr.Error()))
	} else {
		artist.SongkickURL = songkickLoc.URL
		artist.SongkickAccuracy = songkickLoc.Accuracy
		s.logger.Debug("artist found in Songkick",
			slog.String("url", songkickLoc.URL),
			slog.String("accuracy", songkickLoc.Accuracy.String()))
	}

	if bandsintErr != nil {
		s.logger.Warn("artist not found in Bandsintown", slog.String("artist", name), slog.String("error", bandsintErr.Error()))
	} else {
		artist.BandsintownURL = bandsintownLoc.URL
		artist.BandsintownAccuracy = bandsintownLoc.Accuracy
		s.logger.Debug("artist found in Bandsintown",
			slog.String("url", bandsintownLoc.URL),
			slog.String("accuracy", bandsintownLoc.Accuracy.String()))
	}

	return artist, nil
}

// FetchEvents refreshes artist.Events from every source whose URL is set.
// Newly extracted events are merged into the existing set keyed by
// canonical URL; an existing event is replaced only while it lacks both
// ticket and stream URLs. Individual event extraction failures are logged
// and dropped without failing the batch.
func (s *Service) FetchEvents(ctx context.Context, artist *Artist) error {
	merged := make(map[string]Event, len(artist.Events))
	for _, e := range artist.Events {
		merged[e.URL] = e
	}

	if artist.SongkickURL != "" {
		fetched, err := s.fetchSongkickEvents(ctx, artist.SongkickURL, merged)
		if err != nil {
			return err
		}
		for _, e := range fetched {
			merged[e.URL] = e
		}
	}

	if artist.BandsintownURL != "" {
		fetched, err := s.fetchBandsintownEvents(ctx, artist.BandsintownURL, merged)
		if err != nil {
			return err
		}
		for _, e := range fetched {
			merged[e.URL] = e
		}
	}

	events := make([]Event, 0, len(merged))
	for _, e := range merged {
		events = append(events, e)
	}
	slices.SortFunc(events, func(a, b Event) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmpString(a.URL, b.URL)
	})

	artist.Events = events
	return nil
}

func cmpString(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// pickMatch selects the matching strategy for the locators.
func (s *Service) pickMatch(name string, candidates []match.Candidate, advanced bool) (match.Match, bool) {
	if advanced {
		return match.FindBestAdvanced(name, candidates, s.fuzzyThreshold)
	}
	return match.FindBestSimple(name, candidates)
}
