// Package spotify is a minimal Spotify Web API client covering the lookups
// the tracker needs: single artists and the distinct artists of a playlist.
// It authenticates with the client credentials flow, so only public data is
// reachable.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"golang.org/x/oauth2/clientcredentials"
)

const (
	apiBaseURL = "https://api.spotify.com/v1"
	tokenURL   = "https://accounts.spotify.com/api/token" //nolint:gosec

	pageLimit = 50
)

// Artist is a Spotify artist.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client calls the Spotify Web API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// New creates a Spotify client with the given application credentials.
func New(ctx context.Context, clientID, clientSecret string, logger *slog.Logger) *Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}
	return &Client{
		httpClient: cfg.Client(ctx),
		baseURL:    apiBaseURL,
		logger:     logger.With(slog.String("component", "spotify")),
	}
}

// NewWithBaseURL creates a client against a custom API base URL without
// OAuth, for tests.
func NewWithBaseURL(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: http.DefaultClient,
		baseURL:    baseURL,
		logger:     logger.With(slog.String("component", "spotify")),
	}
}

// Artist returns the artist with the given Spotify ID.
func (c *Client) Artist(ctx context.Context, id string) (*Artist, error) {
	var artist Artist
	if err := c.getJSON(ctx, "/artists/"+id, nil, &artist); err != nil {
		return nil, fmt.Errorf("fetching artist %s: %w", id, err)
	}
	return &artist, nil
}

type playlistTracksPage struct {
	Items []struct {
		Track struct {
			Artists []Artist `json:"artists"`
		} `json:"track"`
	} `json:"items"`
	Next string `json:"next"`
}

// PlaylistArtists returns the distinct artists appearing on a playlist, in
// order of first appearance.
func (c *Client) PlaylistArtists(ctx context.Context, playlistID string) ([]Artist, error) {
	seen := make(map[string]struct{})
	var artists []Artist

	params := url.Values{
		"limit":  {fmt.Sprint(pageLimit)},
		"fields": {"items(track(artists(id,name))),next"},
	}
	next := c.baseURL + "/playlists/" + playlistID + "/tracks?" + params.Encode()

	for next != "" {
		var page playlistTracksPage
		if err := c.getJSONURL(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("fetching playlist %s tracks: %w", playlistID, err)
		}

		for _, item := range page.Items {
			for _, a := range item.Track.Artists {
				if a.ID == "" {
					continue
				}
				if _, ok := seen[a.ID]; ok {
					continue
				}
				seen[a.ID] = struct{}{}
				artists = append(artists, a)
			}
		}
		next = page.Next
	}

	c.logger.Debug("fetched playlist artists",
		slog.String("playlist_id", playlistID), slog.Int("artists", len(artists)))
	return artists, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, v any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return c.getJSONURL(ctx, u, v)
}

func (c *Client) getJSONURL(ctx context.Context, u string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}
	return nil
}
