package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ShortURLHash returns the hash mapped to longURL, if one exists.
func (s *Store) ShortURLHash(ctx context.Context, longURL string) (string, bool, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT hash FROM short_urls WHERE url = ?`, longURL).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("looking up short URL: %w", err)
	}
	return hash, true, nil
}

// InsertShortURL saves a new URL-to-hash mapping.
func (s *Store) InsertShortURL(ctx context.Context, longURL, hash string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO short_urls (id, url, hash, created_at) VALUES (?, ?, ?, ?)
	`, uuid.New().String(), longURL, hash, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting short URL: %w", err)
	}
	return nil
}

// LongURL returns the URL mapped to hash, if one exists.
func (s *Store) LongURL(ctx context.Context, hash string) (string, bool, error) {
	var longURL string
	err := s.db.QueryRowContext(ctx, `SELECT url FROM short_urls WHERE hash = ?`, hash).Scan(&longURL)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("looking up long URL: %w", err)
	}
	return longURL, true, nil
}
