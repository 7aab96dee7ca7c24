// Package shorturl turns long outbound URLs (ticket shops, streaming
// pages) into stable short links served under a configured base URL.
package shorturl

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

const (
	base36     = "0123456789abcdefghijklmnopqrstuvwxyz"
	hashLength = 7
)

// Store persists URL-to-hash mappings. Both columns are unique.
type Store interface {
	ShortURLHash(ctx context.Context, longURL string) (hash string, ok bool, err error)
	InsertShortURL(ctx context.Context, longURL, hash string) error
	LongURL(ctx context.Context, hash string) (longURL string, ok bool, err error)
}

// Service is a get-or-create URL shortener. Shortening the same URL twice
// returns the same short link.
type Service struct {
	store   Store
	baseURL string
	logger  *slog.Logger
}

// New creates a shortener serving links under baseURL.
func New(store Store, baseURL string, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With(slog.String("component", "shorturl")),
	}
}

// Shorten returns the full short URL for longURL, creating a mapping if one
// doesn't exist yet.
func (s *Service) Shorten(ctx context.Context, longURL string) (string, error) {
	hash, ok, err := s.store.ShortURLHash(ctx, longURL)
	if err != nil {
		return "", fmt.Errorf("looking up short URL: %w", err)
	}
	if !ok {
		hash = newHash()
		if err := s.store.InsertShortURL(ctx, longURL, hash); err != nil {
			return "", fmt.Errorf("saving short URL: %w", err)
		}
		s.logger.Debug("created short URL", slog.String("hash", hash), slog.String("url", longURL))
	}
	return s.baseURL + "/" + hash, nil
}

// Expand resolves a hash back to its long URL.
func (s *Service) Expand(ctx context.Context, hash string) (string, bool, error) {
	return s.store.LongURL(ctx, hash)
}

// newHash derives an alphanumeric hash from a fresh UUID. Hashing the
// string form instead of the raw bytes keeps the digest well mixed even
// for mostly-zero UUIDs.
func newHash() string {
	h := fnv.New64a()
	h.Write([]byte(uuid.NewString())) //nolint:errcheck
	v := h.Sum64()

	buf := make([]byte, 0, hashLength)
	for v > 0 && len(buf) < hashLength {
		buf = append(buf, base36[v%36])
		v /= 36
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return string(buf)
}
