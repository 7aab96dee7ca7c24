package shorturl

import (
	"context"
	"log/slog"
	"os"
	"testing"
)

type memStore struct {
	byURL  map[string]string
	byHash map[string]string
}

func newMemStore() *memStore {
	return &memStore{byURL: make(map[string]string), byHash: make(map[string]string)}
}

func (m *memStore) ShortURLHash(_ context.Context, longURL string) (string, bool, error) {
	hash, ok := m.byURL[longURL]
	return hash, ok, nil
}

func (m *memStore) InsertShortURL(_ context.Context, longURL, hash string) error {
	m.byURL[longURL] = hash
	m.byHash[hash] = longURL
	return nil
}

func (m *memStore) LongURL(_ context.Context, hash string) (string, bool, error) {
	longURL, ok := m.byHash[hash]
	return longURL, ok, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestShortenIsIdempotent(t *testing.T) {
	svc := New(newMemStore(), "https://sho.rt/", testLogger())

	first, err := svc.Shorten(context.Background(), "https://tickets.example.com/1?ref=abc")
	if err != nil {
		t.Fatalf("Shorten: %v", err)
	}
	second, err := svc.Shorten(context.Background(), "https://tickets.example.com/1?ref=abc")
	if err != nil {
		t.Fatalf("Shorten: %v", err)
	}
	if first != second {
		t.Errorf("same URL must shorten to the same link: %q vs %q", first, second)
	}
}

func TestShortenFormat(t *testing.T) {
	store := newMemStore()
	svc := New(store, "https://sho.rt", testLogger())

	short, err := svc.Shorten(context.Background(), "https://tickets.example.com/1")
	if err != nil {
		t.Fatalf("Shorten: %v", err)
	}

	hash, ok := store.byURL["https://tickets.example.com/1"]
	if !ok {
		t.Fatal("mapping not persisted")
	}
	if want := "https://sho.rt/" + hash; short != want {
		t.Errorf("expected %q, got %q", want, short)
	}
	if len(hash) == 0 || len(hash) > hashLength {
		t.Errorf("unexpected hash length %d", len(hash))
	}
	for _, r := range hash {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z') {
			t.Errorf("hash contains non-base36 character %q", r)
		}
	}
}

func TestDistinctURLsGetDistinctHashes(t *testing.T) {
	store := newMemStore()
	svc := New(store, "https://sho.rt", testLogger())

	a, _ := svc.Shorten(context.Background(), "https://a.example.com")
	b, _ := svc.Shorten(context.Background(), "https://b.example.com")
	if a == b {
		t.Errorf("distinct URLs must get distinct short links, both %q", a)
	}
}

func TestExpand(t *testing.T) {
	store := newMemStore()
	svc := New(store, "https://sho.rt", testLogger())

	if _, err := svc.Shorten(context.Background(), "https://a.example.com"); err != nil {
		t.Fatalf("Shorten: %v", err)
	}
	hash := store.byURL["https://a.example.com"]

	longURL, ok, err := svc.Expand(context.Background(), hash)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if !ok || longURL != "https://a.example.com" {
		t.Errorf("Expand(%q) = %q, %v", hash, longURL, ok)
	}

	if _, ok, _ := svc.Expand(context.Background(), "nothere"); ok {
		t.Error("unknown hash must not resolve")
	}
}
