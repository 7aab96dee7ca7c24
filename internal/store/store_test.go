package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sydlexius/gigwatch/internal/events"
	"github.com/sydlexius/gigwatch/internal/match"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "gigwatch.db"), testLogger())
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	if err := s.Migrate(); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return s
}

func testArtist(t *testing.T, s *Store) *EventArtist {
	t.Helper()
	a := &EventArtist{
		SpotifyArtistID:     "spotify-1",
		Name:                "Ghost",
		MusicBrainzID:       "mbid-1",
		SongkickURL:         "https://www.songkick.com/artists/5-ghost",
		BandsintownURL:      "https://www.bandsintown.com/a/123",
		SongkickAccuracy:    match.AccuracyExact,
		BandsintownAccuracy: match.AccuracyExactAlnum,
	}
	if err := s.SaveEventArtist(context.Background(), a); err != nil {
		t.Fatalf("SaveEventArtist: %v", err)
	}
	return a
}

func TestSaveEventArtistRoundtrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	a := testArtist(t, s)
	if a.ID == "" {
		t.Fatal("expected an ID to be assigned")
	}

	got, err := s.EventArtistBySpotifyID(ctx, "spotify-1")
	if err != nil {
		t.Fatalf("EventArtistBySpotifyID: %v", err)
	}
	if got == nil {
		t.Fatal("expected a stored artist")
	}
	if got.Name != "Ghost" || got.MusicBrainzID != "mbid-1" {
		t.Errorf("unexpected artist: %+v", got)
	}
	if got.SongkickAccuracy != match.AccuracyExact {
		t.Errorf("accuracy tier not preserved: %d", got.SongkickAccuracy)
	}

	if missing, err := s.EventArtistBySpotifyID(ctx, "nope"); err != nil || missing != nil {
		t.Errorf("expected nil for unknown artist, got %+v, %v", missing, err)
	}
}

func TestSaveEventArtistUpdatesInPlace(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	a := testArtist(t, s)
	firstID := a.ID

	a2 := &EventArtist{
		SpotifyArtistID:  "spotify-1",
		Name:             "Ghost",
		SongkickURL:      "https://www.songkick.com/artists/5-ghost-bc",
		SongkickAccuracy: match.AccuracyMusicBrainz,
	}
	if err := s.SaveEventArtist(ctx, a2); err != nil {
		t.Fatalf("SaveEventArtist: %v", err)
	}
	if a2.ID != firstID {
		t.Errorf("update must keep the same ID, got %s and %s", firstID, a2.ID)
	}

	all, err := s.ListEventArtists(ctx)
	if err != nil {
		t.Fatalf("ListEventArtists: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 artist, got %d", len(all))
	}
	if all[0].SongkickURL != "https://www.songkick.com/artists/5-ghost-bc" {
		t.Errorf("URL not updated: %q", all[0].SongkickURL)
	}
}

func concertEvent(url string) events.Event {
	lat, lon := 52.49, 13.42
	return events.Event{
		Source: events.SourceSongkick,
		URL:    url,
		Type:   events.TypeConcert,
		Date:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		Venue: &events.Venue{
			Name:    "Huxleys",
			City:    "Berlin",
			Country: "Germany",
			Lat:     &lat,
			Lon:     &lon,
		},
	}
}

func TestUpsertEventCreatesFullUpdate(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	a := testArtist(t, s)

	if err := s.UpsertEvent(ctx, a.ID, concertEvent("https://sk.test/concerts/1")); err != nil {
		t.Fatalf("UpsertEvent: %v", err)
	}

	updates, err := s.UnnotifiedUpdates(ctx)
	if err != nil {
		t.Fatalf("UnnotifiedUpdates: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updates))
	}
	if updates[0].Type != UpdateFull {
		t.Errorf("expected full update, got %s", updates[0].Type)
	}
	if updates[0].Changes != nil {
		t.Errorf("full updates carry no changes, got %v", updates[0].Changes)
	}
}

func TestUpsertEventUnchangedAddsNoUpdate(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	a := testArtist(t, s)

	e := concertEvent("https://sk.test/concerts/1")
	if err := s.UpsertEvent(ctx, a.ID, e); err != nil {
		t.Fatalf("UpsertEvent: %v", err)
	}
	if err := s.UpsertEvent(ctx, a.ID, e); err != nil {
		t.Fatalf("UpsertEvent: %v", err)
	}

	updates, err := s.UnnotifiedUpdates(ctx)
	if err != nil {
		t.Fatalf("UnnotifiedUpdates: %v", err)
	}
	if len(updates) != 1 {
		t.Errorf("unchanged re-save must not add updates, got %d", len(updates))
	}
}

func TestUpsertEventRecordsPartialUpdate(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	a := testArtist(t, s)

	e := concertEvent("https://sk.test/concerts/1")
	if err := s.UpsertEvent(ctx, a.ID, e); err != nil {
		t.Fatalf("UpsertEvent: %v", err)
	}

	e.TicketURLs = []string{"https://sho.rt/abc"}
	if err := s.UpsertEvent(ctx, a.ID, e); err != nil {
		t.Fatalf("UpsertEvent: %v", err)
	}

	updates, err := s.UnnotifiedUpdates(ctx)
	if err != nil {
		t.Fatalf("UnnotifiedUpdates: %v", err)
	}
	if len(updates) != 2 {
		t.Fatalf("expected full + partial updates, got %d", len(updates))
	}
	var partial *EventUpdate
	for i := range updates {
		if updates[i].Type == UpdatePartial {
			partial = &updates[i]
		}
	}
	if partial == nil {
		t.Fatal("expected a partial update")
	}
	if _, ok := partial.Changes["tickets_urls"]; !ok {
		t.Errorf("expected tickets_urls in changes, got %v", partial.Changes)
	}

	if err := s.MarkUpdateNotified(ctx, partial.ID); err != nil {
		t.Fatalf("MarkUpdateNotified: %v", err)
	}
	remaining, err := s.UnnotifiedUpdates(ctx)
	if err != nil {
		t.Fatalf("UnnotifiedUpdates: %v", err)
	}
	if len(remaining) != 1 {
		t.Errorf("expected 1 remaining unnotified update, got %d", len(remaining))
	}
}

func TestEventsForArtistRoundtrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	a := testArtist(t, s)

	concert := concertEvent("https://sk.test/concerts/1")
	concert.TicketURLs = []string{"https://sho.rt/t1", "https://sho.rt/t2"}

	stream := events.Event{
		Source:     events.SourceBandsintown,
		URL:        "https://bit.test/e/7",
		Type:       events.TypeLiveStream,
		Date:       time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		StreamURLs: []string{"https://sho.rt/s1"},
	}

	for _, e := range []events.Event{concert, stream} {
		if err := s.UpsertEvent(ctx, a.ID, e); err != nil {
			t.Fatalf("UpsertEvent: %v", err)
		}
	}

	got, err := s.EventsForArtist(ctx, a.ID)
	if err != nil {
		t.Fatalf("EventsForArtist: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}

	// Ordered by date: the stream comes first.
	if got[0].Type != events.TypeLiveStream {
		t.Errorf("expected live stream first, got %s", got[0].Type)
	}
	if got[0].Venue != nil {
		t.Errorf("live stream must have no venue, got %+v", got[0].Venue)
	}
	if len(got[0].StreamURLs) != 1 || got[0].StreamURLs[0] != "https://sho.rt/s1" {
		t.Errorf("stream URLs not preserved: %v", got[0].StreamURLs)
	}

	c := got[1]
	if c.Venue == nil || c.Venue.Name != "Huxleys" || c.Venue.Country != "Germany" {
		t.Fatalf("venue not preserved: %+v", c.Venue)
	}
	if c.Venue.Lat == nil || *c.Venue.Lat != 52.49 {
		t.Errorf("latitude not preserved: %v", c.Venue.Lat)
	}
	if len(c.TicketURLs) != 2 {
		t.Errorf("ticket URLs not preserved: %v", c.TicketURLs)
	}
	if c.DateKey() != "2026-09-01" {
		t.Errorf("date not preserved: %s", c.DateKey())
	}
}

func TestShortURLStore(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if _, ok, err := s.ShortURLHash(ctx, "https://a.example.com"); err != nil || ok {
		t.Fatalf("expected no mapping, got ok=%v err=%v", ok, err)
	}

	if err := s.InsertShortURL(ctx, "https://a.example.com", "abc123"); err != nil {
		t.Fatalf("InsertShortURL: %v", err)
	}

	hash, ok, err := s.ShortURLHash(ctx, "https://a.example.com")
	if err != nil || !ok || hash != "abc123" {
		t.Fatalf("ShortURLHash = %q, %v, %v", hash, ok, err)
	}

	longURL, ok, err := s.LongURL(ctx, "abc123")
	if err != nil || !ok || longURL != "https://a.example.com" {
		t.Fatalf("LongURL = %q, %v, %v", longURL, ok, err)
	}

	// Both columns are unique.
	if err := s.InsertShortURL(ctx, "https://a.example.com", "other"); err == nil {
		t.Error("duplicate URL must be rejected")
	}
	if err := s.InsertShortURL(ctx, "https://b.example.com", "abc123"); err == nil {
		t.Error("duplicate hash must be rejected")
	}
}
