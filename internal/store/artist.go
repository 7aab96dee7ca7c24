package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/gigwatch/internal/match"
)

// EventArtist is a tracked artist with its resolved event source identity.
type EventArtist struct {
	ID                  string
	SpotifyArtistID     string
	Name                string
	MusicBrainzID       string
	SongkickURL         string
	BandsintownURL      string
	SongkickAccuracy    match.Accuracy
	BandsintownAccuracy match.Accuracy
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// SaveEventArtist inserts the artist or, when one already exists for the
// same Spotify artist, updates its resolved identity in place. The ID field
// is populated on return.
func (s *Store) SaveEventArtist(ctx context.Context, a *EventArtist) error {
	existing, err := s.EventArtistBySpotifyID(ctx, a.SpotifyArtistID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if existing == nil {
		a.ID = uuid.New().String()
		a.CreatedAt = now
		a.UpdatedAt = now
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO event_artists (id, spotify_artist_id, name, musicbrainz_id, songkick_url,
				bandsintown_url, songkick_match_accuracy, bandsintown_match_accuracy, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, a.SpotifyArtistID, a.Name, nullable(a.MusicBrainzID), nullable(a.SongkickURL),
			nullable(a.BandsintownURL), int(a.SongkickAccuracy), int(a.BandsintownAccuracy),
			now.Format(time.RFC3339), now.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("inserting event artist: %w", err)
		}
		return nil
	}

	a.ID = existing.ID
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = now
	_, err = s.db.ExecContext(ctx, `
		UPDATE event_artists SET name = ?, musicbrainz_id = ?, songkick_url = ?, bandsintown_url = ?,
			songkick_match_accuracy = ?, bandsintown_match_accuracy = ?, updated_at = ?
		WHERE id = ?
	`, a.Name, nullable(a.MusicBrainzID), nullable(a.SongkickURL), nullable(a.BandsintownURL),
		int(a.SongkickAccuracy), int(a.BandsintownAccuracy), now.Format(time.RFC3339), a.ID)
	if err != nil {
		return fmt.Errorf("updating event artist: %w", err)
	}
	return nil
}

// EventArtistBySpotifyID returns the tracked artist for a Spotify artist
// ID, or nil when none exists.
func (s *Store) EventArtistBySpotifyID(ctx context.Context, spotifyArtistID string) (*EventArtist, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, spotify_artist_id, name, musicbrainz_id, songkick_url, bandsintown_url,
			songkick_match_accuracy, bandsintown_match_accuracy, created_at, updated_at
		FROM event_artists WHERE spotify_artist_id = ?
	`, spotifyArtistID)

	a, err := scanEventArtist(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// ListEventArtists returns all tracked artists ordered by name.
func (s *Store) ListEventArtists(ctx context.Context) ([]EventArtist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, spotify_artist_id, name, musicbrainz_id, songkick_url, bandsintown_url,
			songkick_match_accuracy, bandsintown_match_accuracy, created_at, updated_at
		FROM event_artists ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("listing event artists: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var artists []EventArtist
	for rows.Next() {
		a, err := scanEventArtist(rows)
		if err != nil {
			return nil, err
		}
		artists = append(artists, *a)
	}
	return artists, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEventArtist(row scanner) (*EventArtist, error) {
	var (
		a                      EventArtist
		mbID, skURL, bitURL    sql.NullString
		skAcc, bitAcc          int
		createdAt, updatedAt   string
	)
	err := row.Scan(&a.ID, &a.SpotifyArtistID, &a.Name, &mbID, &skURL, &bitURL,
		&skAcc, &bitAcc, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning event artist: %w", err)
	}

	a.MusicBrainzID = mbID.String
	a.SongkickURL = skURL.String
	a.BandsintownURL = bitURL.String
	a.SongkickAccuracy = match.Accuracy(skAcc)
	a.BandsintownAccuracy = match.Accuracy(bitAcc)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &a, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
