package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/sydlexius/gigwatch/internal/httpx"
	"github.com/sydlexius/gigwatch/internal/match"
)

const (
	bandsintownBaseURL         = "https://www.bandsintown.com"
	bandsintownWindowDataXPath = "//head/script[contains(text(),'window.__data=')]/text()"
)

type bandsintownSearchResponse struct {
	Artists []struct {
		ID   json.Number `json:"id"`
		Name string      `json:"name"`
	} `json:"artists"`
}

// bandsintownArtistPage is the slice of the window.__data blob we read off
// an artist page. The upcoming events are duplicated there as JSON-LD.
type bandsintownArtistPage struct {
	JSONLDContainer struct {
		EventsJSONLD []jsonLDEvent `json:"eventsJsonLd"`
	} `json:"jsonLdContainer"`
}

// bandsintownEventPage is the slice of the window.__data blob we read off
// an event page. Pointer fields distinguish absent keys from empty ones so
// layout drift can be reported.
type bandsintownEventPage struct {
	EventView *struct {
		Body *struct {
			HybridEventDetails *struct {
				StreamingURL string `json:"streamingUrl"`
			} `json:"hybridEventDetails"`
			DetailedTicketList *struct {
				TicketList []struct {
					DirectTicketURL string `json:"directTicketUrl"`
				} `json:"ticketList"`
			} `json:"detailedTicketList"`
		} `json:"body"`
	} `json:"eventView"`
}

// searchBandsintown queries Bandsintown's search suggestions and picks the
// best candidate. Returns ok=false when nothing qualifies.
func (s *Service) searchBandsintown(ctx context.Context, name string, advanced bool) (match.Match, bool, error) {
	var resp bandsintownSearchResponse
	err := s.bandsintown.GetJSON(ctx, "searchSuggestions", url.Values{"searchTerm": {name}}, &resp)
	if err != nil {
		return match.Match{}, false, err
	}

	candidates := make([]match.Candidate, 0, len(resp.Artists))
	for _, a := range resp.Artists {
		candidates = append(candidates, match.Candidate{ID: a.ID.String(), Name: a.Name})
	}
	if len(candidates) == 0 {
		return match.Match{}, false, nil
	}

	m, ok := s.pickMatch(name, candidates, advanced)
	return m, ok, nil
}

// LocateBandsintown finds the artist's Bandsintown page, trying the primary
// name first and each alternative in order. The /a/{id} URL is stable, so
// no redirect resolution is needed here.
func (s *Service) LocateBandsintown(ctx context.Context, name string, alternativeNames []string, advanced bool) (Location, error) {
	for _, n := range append([]string{name}, alternativeNames...) {
		s.logger.Info("searching for artist in Bandsintown", slog.String("name", n))

		m, matched, err := s.searchBandsintown(ctx, n, advanced)
		if err != nil {
			s.logger.Error("Bandsintown search failed, trying next name",
				slog.String("name", n), slog.String("error", err.Error()))
			s.reporter.CaptureException(err)
			continue
		}
		if !matched {
			s.logger.Warn("artist not found in Bandsintown, trying next name", slog.String("name", n))
			continue
		}

		artistURL := bandsintownBaseURL + "/a/" + m.ID
		s.logger.Info("found artist in Bandsintown", slog.String("name", name), slog.String("url", artistURL))
		return Location{URL: artistURL, Accuracy: m.Accuracy}, nil
	}
	return Location{}, bandsintownErrorf(nil, "artist %q not found in Bandsintown using any of the names", name)
}

// fetchWindowData fetches a Bandsintown page and returns the raw JSON
// assigned to window.__data. The page must carry exactly one such script.
func (s *Service) fetchWindowData(ctx context.Context, pageURL string) ([]byte, error) {
	result, err := s.bandsintown.Get(ctx, pageURL, httpx.GetOptions{XPath: bandsintownWindowDataXPath})
	if err != nil {
		return nil, bandsintownErrorf(err, "fetching data from %s", pageURL)
	}
	if len(result.Nodes) == 0 {
		return nil, bandsintownErrorf(nil, "no window.__data element found on %s", pageURL)
	}
	if len(result.Nodes) > 1 {
		return nil, bandsintownErrorf(nil, "multiple window.__data elements found on %s", pageURL)
	}

	_, raw, found := strings.Cut(result.Nodes[0], "window.__data=")
	if !found {
		return nil, bandsintownErrorf(nil, "failed to extract window.__data from %s", pageURL)
	}
	return []byte(raw), nil
}

// fetchBandsintownEvents scrapes the artist page's embedded event list and
// extracts each new event. Besides the canonical URL key, an event is also
// skipped when another event already exists on the same date, since the two
// sources list the same gig under different URLs.
func (s *Service) fetchBandsintownEvents(ctx context.Context, artistURL string, existing map[string]Event) ([]Event, error) {
	raw, err := s.fetchWindowData(ctx, artistURL)
	if err != nil {
		return nil, err
	}

	var page bandsintownArtistPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, bandsintownErrorf(err, "parsing window.__data on %s", artistURL)
	}

	existingDates := make(map[string]struct{}, len(existing))
	for _, e := range existing {
		existingDates[e.DateKey()] = struct{}{}
	}

	var pending []jsonLDEvent
	for _, entry := range page.JSONLDContainer.EventsJSONLD {
		eventURL := stripQuery(entry.URL)

		if !shouldFetchEvent(s.logger, eventURL, SourceBandsintown, existing) {
			s.logger.Info("event already exists with ticket or stream URLs, skipping", slog.String("url", eventURL))
			continue
		}

		date, err := parseEventDate(entry.StartDate)
		if err != nil {
			s.logger.Error("failed to parse event date",
				slog.String("url", eventURL), slog.String("error", err.Error()))
			s.reporter.CaptureException(bandsintownErrorf(err, "parsing date for event %s", eventURL))
			continue
		}
		if _, ok := existingDates[date.Format("2006-01-02")]; ok {
			s.logger.Warn("event on this date already exists, skipping",
				slog.String("url", eventURL), slog.String("date", date.Format("2006-01-02")))
			continue
		}

		pending = append(pending, entry)
	}

	return s.gatherEvents(ctx, pending, s.extractBandsintownEvent), nil
}

// extractBandsintownEvent turns an embedded event entry into an Event. A
// VirtualLocation entry becomes a live stream whose URL comes from the
// event page's hybrid event details; a physical event gets a venue, and its
// ticket URLs are read from the detailed ticket list only when the venue
// parsed.
func (s *Service) extractBandsintownEvent(ctx context.Context, entry jsonLDEvent) (Event, error) {
	eventURL := stripQuery(entry.URL)
	isStream := entry.Location.Type == "VirtualLocation"

	date, err := parseEventDate(entry.StartDate)
	if err != nil {
		return Event{}, bandsintownErrorf(err, "parsing date for event %s", eventURL)
	}

	raw, err := s.fetchWindowData(ctx, eventURL)
	if err != nil {
		return Event{}, err
	}

	var page bandsintownEventPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return Event{}, bandsintownErrorf(err, "parsing window.__data on %s", eventURL)
	}

	if page.EventView == nil {
		s.logger.Error("eventView key not found in window.__data", slog.String("url", eventURL))
		s.reporter.CaptureMessage("eventView key not found in window.__data on " + eventURL)
	} else if page.EventView.Body == nil {
		s.logger.Error("eventView.body key not found in window.__data", slog.String("url", eventURL))
		s.reporter.CaptureMessage("eventView.body key not found in window.__data on " + eventURL)
	}

	event := Event{
		Source: SourceBandsintown,
		URL:    eventURL,
		Date:   date,
	}

	if isStream {
		event.Type = TypeLiveStream
		if stream := s.bandsintownStreamURL(page, eventURL); stream != "" {
			short, err := s.shortener.Shorten(ctx, stream)
			if err != nil {
				return Event{}, bandsintownErrorf(err, "shortening stream URL for %s", eventURL)
			}
			event.StreamURLs = []string{short}
		}
		return event, nil
	}

	event.Type = TypeConcert
	event.Venue = s.venueFromJSONLD(entry.Location)
	if event.Venue != nil {
		tickets, err := s.bandsintownTicketURLs(ctx, page, eventURL)
		if err != nil {
			return Event{}, err
		}
		event.TicketURLs = tickets
	}
	return event, nil
}

func (s *Service) bandsintownStreamURL(page bandsintownEventPage, eventURL string) string {
	if page.EventView == nil || page.EventView.Body == nil {
		return ""
	}
	details := page.EventView.Body.HybridEventDetails
	if details == nil {
		s.logger.Warn("hybridEventDetails key not found in window.__data", slog.String("url", eventURL))
		return ""
	}
	if details.StreamingURL == "" {
		s.logger.Warn("streamingUrl key not found in window.__data", slog.String("url", eventURL))
	}
	return details.StreamingURL
}

func (s *Service) bandsintownTicketURLs(ctx context.Context, page bandsintownEventPage, eventURL string) ([]string, error) {
	if page.EventView == nil || page.EventView.Body == nil {
		return nil, nil
	}
	ticketList := page.EventView.Body.DetailedTicketList
	if ticketList == nil {
		s.logger.Warn("detailedTicketList key not found in window.__data", slog.String("url", eventURL))
		return nil, nil
	}

	var wg sync.WaitGroup
	shortened := make([]string, len(ticketList.TicketList))
	errs := make([]error, len(ticketList.TicketList))
	for i, ticket := range ticketList.TicketList {
		if ticket.DirectTicketURL == "" {
			s.logger.Warn("directTicketUrl not found in one of the ticket list entries",
				slog.String("url", eventURL))
			continue
		}
		wg.Add(1)
		i := i
		go func(target string) {
			defer wg.Done()
			shortened[i], errs[i] = s.shortener.Shorten(ctx, target)
		}(ticket.DirectTicketURL)
	}
	wg.Wait()

	var urls []string
	for i, u := range shortened {
		if errs[i] != nil {
			return nil, bandsintownErrorf(errs[i], "shortening ticket URL for %s", eventURL)
		}
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls, nil
}
