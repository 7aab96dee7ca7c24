package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sync"

	"github.com/sydlexius/gigwatch/internal/country"
	"github.com/sydlexius/gigwatch/internal/httpx"
	"github.com/sydlexius/gigwatch/internal/match"
)

const (
	songkickEventsXPath     = "//div[@id='calendar-summary' and contains(@class, 'upcoming')]/ol/li/div[@class='microformat']/script/text()"
	songkickTicketsXPath    = "//a[contains(@class, 'buy-ticket-link')]/@href"
	songkickLiveStreamXPath = "//div[contains(@class, 'live-stream-link')]/a/@href"
)

type songkickSearchResponse struct {
	Data struct {
		Attributes struct {
			SearchResults struct {
				Artists []struct {
					Document struct {
						PrimaryKeyID json.Number `json:"primary_key_id"`
						Name         string      `json:"name"`
					} `json:"document"`
				} `json:"artists"`
			} `json:"search_results"`
		} `json:"attributes"`
	} `json:"data"`
}

// jsonLDEvent is the subset of the schema.org event markup both sources
// embed in their pages.
type jsonLDEvent struct {
	URL       string         `json:"url"`
	StartDate string         `json:"startDate"`
	Location  jsonLDLocation `json:"location"`
}

type jsonLDLocation struct {
	Type    string `json:"@type"`
	Name    string `json:"name"`
	Address struct {
		PostalCode      string `json:"postalCode"`
		StreetAddress   string `json:"streetAddress"`
		AddressLocality string `json:"addressLocality"`
		AddressCountry  string `json:"addressCountry"`
	} `json:"address"`
	Geo struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	} `json:"geo"`
}

// venueFromJSONLD builds a Venue from the markup's location block. Returns
// nil when the venue has no name, which the sources use for placeholder
// locations.
func (s *Service) venueFromJSONLD(loc jsonLDLocation) *Venue {
	if loc.Name == "" {
		s.logger.Warn("venue data is incomplete, dropping venue", slog.String("venue", loc.Type))
		return nil
	}
	return &Venue{
		Name:     loc.Name,
		Postcode: loc.Address.PostalCode,
		Address:  loc.Address.StreetAddress,
		City:     loc.Address.AddressLocality,
		Country:  country.Normalize(loc.Address.AddressCountry),
		Lat:      loc.Geo.Latitude,
		Lon:      loc.Geo.Longitude,
	}
}

// searchSongkick queries Songkick's universal search and picks the best
// candidate. Returns ok=false when nothing qualifies.
func (s *Service) searchSongkick(ctx context.Context, name string, advanced bool) (match.Match, bool, error) {
	var resp songkickSearchResponse
	err := s.songkick.GetJSON(ctx, "api/universal_search", url.Values{"query": {name}}, &resp)
	if err != nil {
		return match.Match{}, false, err
	}

	results := resp.Data.Attributes.SearchResults.Artists
	candidates := make([]match.Candidate, 0, len(results))
	for _, a := range results {
		candidates = append(candidates, match.Candidate{
			ID:   a.Document.PrimaryKeyID.String(),
			Name: a.Document.Name,
		})
	}
	if len(candidates) == 0 {
		return match.Match{}, false, nil
	}

	m, ok := s.pickMatch(name, candidates, advanced)
	return m, ok, nil
}

// LocateSongkick finds the artist's Songkick page, trying the primary name
// first and each alternative in order. Search failures for one name are
// reported and the next name is tried. The returned URL is the calendar
// redirect target, so it is the canonical artist page.
func (s *Service) LocateSongkick(ctx context.Context, name string, alternativeNames []string, advanced bool) (Location, error) {
	var (
		found match.Match
		ok    bool
	)
	for _, n := range append([]string{name}, alternativeNames...) {
		s.logger.Info("searching for artist in Songkick", slog.String("name", n))

		m, matched, err := s.searchSongkick(ctx, n, advanced)
		if err != nil {
			s.logger.Error("Songkick search failed, trying next name",
				slog.String("name", n), slog.String("error", err.Error()))
			s.reporter.CaptureException(err)
			continue
		}
		if !matched {
			s.logger.Warn("artist not found in Songkick, trying next name", slog.String("name", n))
			continue
		}
		found, ok = m, true
		break
	}
	if !ok {
		return Location{}, songkickErrorf(nil, "artist %q not found in Songkick using any of the names", name)
	}

	calendarPath := "artists/" + found.ID + "/calendar"
	artistURL, err := s.songkick.ResolveRedirect(ctx, calendarPath)
	if err != nil {
		return Location{}, songkickErrorf(err, "fetching artist URL for %q", name)
	}

	s.logger.Info("found artist in Songkick", slog.String("name", name), slog.String("url", artistURL))
	return Location{URL: artistURL, Accuracy: found.Accuracy}, nil
}

// fetchSongkickEvents scrapes the artist's upcoming calendar. Each calendar
// entry embeds a JSON-LD script holding a single-element array; entries
// with any other shape are reported and skipped. Events already present in
// existing with ticket or stream URLs are not refetched.
func (s *Service) fetchSongkickEvents(ctx context.Context, artistURL string, existing map[string]Event) ([]Event, error) {
	result, err := s.songkick.Get(ctx, artistURL, httpx.GetOptions{XPath: songkickEventsXPath})
	if err != nil {
		return nil, songkickErrorf(err, "fetching events from %s", artistURL)
	}

	var pending []jsonLDEvent
	for _, block := range result.Nodes {
		var entries []jsonLDEvent
		if err := json.Unmarshal([]byte(block), &entries); err != nil {
			s.logger.Error("failed to parse event data", slog.String("error", err.Error()))
			s.reporter.CaptureMessage("failed to parse Songkick event data: " + err.Error())
			continue
		}
		if len(entries) != 1 {
			s.logger.Error("event data list does not have exactly one item", slog.Int("items", len(entries)))
			s.reporter.CaptureMessage("Songkick event data list does not have exactly one item")
			continue
		}

		entry := entries[0]
		eventURL := stripQuery(entry.URL)
		if !shouldFetchEvent(s.logger, eventURL, SourceSongkick, existing) {
			s.logger.Info("event already exists with ticket or stream URLs, skipping", slog.String("url", eventURL))
			continue
		}
		pending = append(pending, entry)
	}

	return s.gatherEvents(ctx, pending, s.extractSongkickEvent), nil
}

// gatherEvents extracts each pending event concurrently. Failed extractions
// are logged and reported; the successful ones are returned.
func (s *Service) gatherEvents(ctx context.Context, pending []jsonLDEvent, extract func(context.Context, jsonLDEvent) (Event, error)) []Event {
	type outcome struct {
		event Event
		err   error
	}

	outcomes := make([]outcome, len(pending))
	var wg sync.WaitGroup
	for i, entry := range pending {
		wg.Add(1)
		i, entry := i, entry
		go func() {
			defer wg.Done()
			e, err := extract(ctx, entry)
			outcomes[i] = outcome{event: e, err: err}
		}()
	}
	wg.Wait()

	events := make([]Event, 0, len(pending))
	for _, o := range outcomes {
		if o.err != nil {
			s.logger.Error("failed to extract event", slog.String("error", o.err.Error()))
			s.reporter.CaptureException(o.err)
			continue
		}
		events = append(events, o.event)
	}
	return events
}

// extractSongkickEvent turns a calendar entry into an Event. The event type
// comes from the URL path segment; an unknown segment fails the event. The
// event page is fetched for ticket or stream links, each of which is
// included only when its redirect target resolves, then shortened.
func (s *Service) extractSongkickEvent(ctx context.Context, entry jsonLDEvent) (Event, error) {
	eventURL := stripQuery(entry.URL)

	eventType, err := songkickEventType(eventURL)
	if err != nil {
		return Event{}, err
	}

	date, err := parseEventDate(entry.StartDate)
	if err != nil {
		return Event{}, songkickErrorf(err, "parsing date for event %s", eventURL)
	}

	var venue *Venue
	if eventType != TypeLiveStream {
		venue = s.venueFromJSONLD(entry.Location)
	}

	linkXPath := songkickTicketsXPath
	if eventType == TypeLiveStream {
		linkXPath = songkickLiveStreamXPath
	}

	result, err := s.songkick.Get(ctx, eventURL, httpx.GetOptions{XPath: linkXPath})
	if err != nil {
		return Event{}, songkickErrorf(err, "fetching event page %s", eventURL)
	}

	urls := s.resolveAndShorten(ctx, result.Nodes)

	event := Event{
		Source: SourceSongkick,
		URL:    eventURL,
		Type:   eventType,
		Date:   date,
		Venue:  venue,
	}
	if eventType == TypeLiveStream {
		event.StreamURLs = urls
	} else {
		event.TicketURLs = urls
	}
	return event, nil
}

// resolveAndShorten follows each outbound link's redirect and shortens the
// target. Links whose redirect cannot be resolved, or that do not redirect
// at all, are dropped.
func (s *Service) resolveAndShorten(ctx context.Context, links []string) []string {
	type outcome struct {
		target string
		err    error
	}

	outcomes := make([]outcome, len(links))
	var wg sync.WaitGroup
	for i, link := range links {
		wg.Add(1)
		i, link := i, link
		go func() {
			defer wg.Done()
			result, err := s.songkick.Get(ctx, link, httpx.GetOptions{
				WantRedirectURL:     true,
				AllowRedirectStatus: true,
			})
			if err != nil {
				outcomes[i] = outcome{err: err}
				return
			}
			outcomes[i] = outcome{target: result.RedirectURL}
		}()
	}
	wg.Wait()

	var urls []string
	for _, o := range outcomes {
		if o.err != nil {
			s.logger.Error("failed to resolve outbound link", slog.String("error", o.err.Error()))
			s.reporter.CaptureException(o.err)
			continue
		}
		if o.target == "" {
			continue
		}
		short, err := s.shortener.Shorten(ctx, o.target)
		if err != nil {
			s.logger.Error("failed to shorten URL",
				slog.String("url", o.target), slog.String("error", err.Error()))
			s.reporter.CaptureException(err)
			continue
		}
		urls = append(urls, short)
	}
	return urls
}
