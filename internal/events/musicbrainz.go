package events

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/sydlexius/gigwatch/internal/httpx"
	"github.com/sydlexius/gigwatch/internal/match"
)

// MusicBrainzArtist is the authoritative identity record for an artist:
// its canonical and alias names plus the event source URLs MusicBrainz
// links to, already resolved through any upstream redirects.
type MusicBrainzArtist struct {
	ID             string
	Names          []string
	SongkickURL    string
	BandsintownURL string
}

// Resolver looks up artists in the MusicBrainz database. The songkick and
// bandsintown clients are used to resolve linked relation URLs through
// redirects so the stored URLs are canonical.
type Resolver struct {
	mb          *httpx.Client
	songkick    *httpx.Client
	bandsintown *httpx.Client
	logger      *slog.Logger
}

// NewResolver creates a MusicBrainz resolver.
func NewResolver(mb, songkick, bandsintown *httpx.Client, logger *slog.Logger) *Resolver {
	return &Resolver{
		mb:          mb,
		songkick:    songkick,
		bandsintown: bandsintown,
		logger:      logger.With(slog.String("component", "musicbrainz")),
	}
}

type mbURLLookup struct {
	Relations []struct {
		Artist *struct {
			ID string `json:"id"`
		} `json:"artist"`
	} `json:"relations"`
}

type mbArtistSearch struct {
	Artists []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Aliases []struct {
			Name string `json:"name"`
		} `json:"aliases"`
	} `json:"artists"`
}

type mbArtist struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Aliases []struct {
		Name    string `json:"name"`
		Primary *bool  `json:"primary"`
	} `json:"aliases"`
	Relations []struct {
		Type string `json:"type"`
		URL  *struct {
			Resource string `json:"resource"`
		} `json:"url"`
	} `json:"relations"`
}

// Find resolves a Spotify artist to its MusicBrainz record. It first looks
// for a URL relation to the artist's Spotify page; if that lookup fails it
// falls back to a name search. Returns (nil, nil) when neither path finds a
// match.
func (r *Resolver) Find(ctx context.Context, spotifyArtistID, name string) (*MusicBrainzArtist, error) {
	artist, err := r.findBySpotifyURL(ctx, spotifyArtistID)
	if err != nil {
		r.logger.Warn("MusicBrainz lookup by Spotify URL failed, falling back to name search",
			slog.String("spotify_artist_id", spotifyArtistID),
			slog.String("error", err.Error()))
	} else if artist != nil {
		return artist, nil
	}

	return r.findByName(ctx, name)
}

func (r *Resolver) findBySpotifyURL(ctx context.Context, spotifyArtistID string) (*MusicBrainzArtist, error) {
	resource := "https://open.spotify.com/artist/" + spotifyArtistID
	var lookup mbURLLookup
	err := r.mb.GetJSON(ctx, "url", url.Values{
		"resource": {resource},
		"inc":      {"artist-rels"},
		"fmt":      {"json"},
	}, &lookup)
	if err != nil {
		return nil, musicbrainzErrorf(err, "looking up URL relation for %s", resource)
	}

	for _, rel := range lookup.Relations {
		if rel.Artist != nil && rel.Artist.ID != "" {
			return r.fromArtistID(ctx, rel.Artist.ID)
		}
	}
	return nil, nil
}

// findByName searches MusicBrainz by artist name and returns the first
// result whose normalized primary name or alias equals the normalized query.
func (r *Resolver) findByName(ctx context.Context, name string) (*MusicBrainzArtist, error) {
	var search mbArtistSearch
	err := r.mb.GetJSON(ctx, "artist", url.Values{
		"query": {fmt.Sprintf("artist:%q", name)},
		"limit": {"100"},
		"fmt":   {"json"},
	}, &search)
	if err != nil {
		return nil, musicbrainzErrorf(err, "searching for artist %q", name)
	}

	want := match.Normalize(name)
	for _, a := range search.Artists {
		if match.Normalize(a.Name) == want {
			return r.fromArtistID(ctx, a.ID)
		}
		for _, alias := range a.Aliases {
			if match.Normalize(alias.Name) == want {
				return r.fromArtistID(ctx, a.ID)
			}
		}
	}
	return nil, nil
}

// fromArtistID fetches the full artist record with aliases and URL
// relations. Names are ordered transliterated forms first, then the
// original forms, with order-preserving deduplication.
func (r *Resolver) fromArtistID(ctx context.Context, id string) (*MusicBrainzArtist, error) {
	var a mbArtist
	err := r.mb.GetJSON(ctx, "artist/"+id, url.Values{
		"inc": {"aliases url-rels"},
		"fmt": {"json"},
	}, &a)
	if err != nil {
		return nil, musicbrainzErrorf(err, "fetching artist %s", id)
	}

	originals := []string{a.Name}
	for _, alias := range a.Aliases {
		if alias.Primary != nil && *alias.Primary {
			originals = append(originals, alias.Name)
		}
	}

	var names []string
	seen := make(map[string]struct{}, len(originals)*2)
	add := func(n string) {
		if n == "" {
			return
		}
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	for _, n := range originals {
		add(match.ReplaceUnicode(n))
	}
	for _, n := range originals {
		add(n)
	}

	artist := &MusicBrainzArtist{ID: a.ID, Names: names}

	for _, rel := range a.Relations {
		if rel.URL == nil {
			continue
		}
		switch rel.Type {
		case "songkick":
			resolved, err := r.songkick.ResolveRedirect(ctx, rel.URL.Resource)
			if err != nil {
				return nil, musicbrainzErrorf(
					songkickErrorf(err, "resolving linked artist page %s", rel.URL.Resource),
					"resolving Songkick relation for artist %s", id)
			}
			artist.SongkickURL = resolved
		case "bandsintown":
			resolved, err := r.bandsintown.ResolveRedirect(ctx, rel.URL.Resource)
			if err != nil {
				return nil, musicbrainzErrorf(
					bandsintownErrorf(err, "resolving linked artist page %s", rel.URL.Resource),
					"resolving Bandsintown relation for artist %s", id)
			}
			artist.BandsintownURL = resolved
		}
	}

	return artist, nil
}
