package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/sydlexius/gigwatch/internal/events"
)

// Update types recorded in the audit log.
const (
	UpdateFull    = "full"
	UpdatePartial = "partial"
)

// EventUpdate is an audit record of an event being created or changed,
// used to drive notifications. A full update marks a brand new event; a
// partial update carries the changed fields as JSON.
type EventUpdate struct {
	ID           string
	EventID      string
	Type         string
	Changes      map[string]FieldChange
	IsNotifiedOf bool
	CreatedAt    time.Time
}

// FieldChange records the old and new value of one changed field.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// UpsertEvent saves a fetched event for a tracked artist. A new event gets
// a full update record; an existing one gets a partial update record when
// its stream URLs, ticket URLs, or geolocation changed, and is left alone
// otherwise.
func (s *Store) UpsertEvent(ctx context.Context, artistID string, e events.Event) error {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, stream_urls, tickets_urls, geo_lat, geo_lon
		FROM events WHERE artist_id = ? AND source = ? AND source_url = ?
	`, artistID, string(e.Source), e.URL)

	var (
		id                   string
		oldStreams, oldTkts  sql.NullString
		oldLat, oldLon       sql.NullFloat64
	)
	err := row.Scan(&id, &oldStreams, &oldTkts, &oldLat, &oldLon)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return s.insertEvent(ctx, artistID, e)
	case err != nil:
		return fmt.Errorf("looking up event: %w", err)
	}

	return s.updateEvent(ctx, id, e, oldStreams.String, oldTkts.String, oldLat, oldLon)
}

func (s *Store) insertEvent(ctx context.Context, artistID string, e events.Event) error {
	now := time.Now().UTC().Format(time.RFC3339)
	id := uuid.New().String()

	streams, tickets, err := marshalURLs(e)
	if err != nil {
		return err
	}

	venue := venueColumns(e.Venue)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, artist_id, source, source_url, type, date, venue, postcode, address,
			city, country, geo_lat, geo_lon, stream_urls, tickets_urls, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, artistID, string(e.Source), e.URL, string(e.Type), e.DateKey(),
		venue.name, venue.postcode, venue.address, venue.city, venue.country, venue.lat, venue.lon,
		streams, tickets, now, now)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	s.logger.Debug("created event", slog.String("url", e.URL), slog.String("source", string(e.Source)))
	return s.insertEventUpdate(ctx, id, UpdateFull, nil)
}

func (s *Store) updateEvent(ctx context.Context, id string, e events.Event, oldStreams, oldTickets string, oldLat, oldLon sql.NullFloat64) error {
	streams, tickets, err := marshalURLs(e)
	if err != nil {
		return err
	}

	changes := make(map[string]FieldChange)
	if !jsonURLsEqual(oldStreams, e.StreamURLs) {
		changes["stream_urls"] = FieldChange{Old: oldStreams, New: e.StreamURLs}
	}
	if !jsonURLsEqual(oldTickets, e.TicketURLs) {
		changes["tickets_urls"] = FieldChange{Old: oldTickets, New: e.TicketURLs}
	}
	venue := venueColumns(e.Venue)
	if !geoEqual(oldLat, venue.lat) || !geoEqual(oldLon, venue.lon) {
		changes["geolocation"] = FieldChange{
			Old: []any{oldLat.Float64, oldLon.Float64},
			New: []any{venue.lat, venue.lon},
		}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		UPDATE events SET type = ?, date = ?, venue = ?, postcode = ?, address = ?, city = ?,
			country = ?, geo_lat = ?, geo_lon = ?, stream_urls = ?, tickets_urls = ?, updated_at = ?
		WHERE id = ?
	`, string(e.Type), e.DateKey(), venue.name, venue.postcode, venue.address, venue.city,
		venue.country, venue.lat, venue.lon, streams, tickets, now, id)
	if err != nil {
		return fmt.Errorf("updating event: %w", err)
	}

	if len(changes) == 0 {
		return nil
	}
	s.logger.Debug("event changed", slog.String("url", e.URL), slog.Int("changed_fields", len(changes)))
	return s.insertEventUpdate(ctx, id, UpdatePartial, changes)
}

func (s *Store) insertEventUpdate(ctx context.Context, eventID, updateType string, changes map[string]FieldChange) error {
	var changesJSON any
	if len(changes) > 0 {
		b, err := json.Marshal(changes)
		if err != nil {
			return fmt.Errorf("marshaling changes: %w", err)
		}
		changesJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_updates (id, event_id, type, changes, is_notified_of, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
	`, uuid.New().String(), eventID, updateType, changesJSON, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting event update: %w", err)
	}
	return nil
}

// EventsForArtist returns the artist's stored events ordered by date.
func (s *Store) EventsForArtist(ctx context.Context, artistID string) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, source_url, type, date, venue, postcode, address, city, country,
			geo_lat, geo_lon, stream_urls, tickets_urls
		FROM events WHERE artist_id = ? ORDER BY date, source_url
	`, artistID)
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []events.Event
	for rows.Next() {
		var (
			e                                     events.Event
			source, eventType, date              string
			venueName, postcode, address         sql.NullString
			city, countryName                    sql.NullString
			lat, lon                             sql.NullFloat64
			streams, tickets                     sql.NullString
		)
		err := rows.Scan(&source, &e.URL, &eventType, &date, &venueName, &postcode, &address,
			&city, &countryName, &lat, &lon, &streams, &tickets)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}

		e.Source = events.Source(source)
		e.Type = events.EventType(eventType)
		e.Date, err = time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("parsing event date: %w", err)
		}

		if venueName.Valid {
			v := &events.Venue{
				Name:     venueName.String,
				Postcode: postcode.String,
				Address:  address.String,
				City:     city.String,
				Country:  countryName.String,
			}
			if lat.Valid {
				v.Lat = &lat.Float64
			}
			if lon.Valid {
				v.Lon = &lon.Float64
			}
			e.Venue = v
		}

		if err := unmarshalURLs(streams, &e.StreamURLs); err != nil {
			return nil, err
		}
		if err := unmarshalURLs(tickets, &e.TicketURLs); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UnnotifiedUpdates returns update records not yet delivered, oldest first.
func (s *Store) UnnotifiedUpdates(ctx context.Context) ([]EventUpdate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_id, type, changes, is_notified_of, created_at
		FROM event_updates WHERE is_notified_of = 0 ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("listing event updates: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var updates []EventUpdate
	for rows.Next() {
		var (
			u         EventUpdate
			changes   sql.NullString
			createdAt string
		)
		if err := rows.Scan(&u.ID, &u.EventID, &u.Type, &changes, &u.IsNotifiedOf, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning event update: %w", err)
		}
		if changes.Valid {
			if err := json.Unmarshal([]byte(changes.String), &u.Changes); err != nil {
				return nil, fmt.Errorf("parsing changes: %w", err)
			}
		}
		u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

// MarkUpdateNotified flags an update record as delivered.
func (s *Store) MarkUpdateNotified(ctx context.Context, updateID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE event_updates SET is_notified_of = 1 WHERE id = ?
	`, updateID)
	if err != nil {
		return fmt.Errorf("marking update notified: %w", err)
	}
	return nil
}

type venueCols struct {
	name, postcode, address, city, country any
	lat, lon                               any
}

func venueColumns(v *events.Venue) venueCols {
	if v == nil {
		return venueCols{}
	}
	c := venueCols{
		name:     v.Name,
		postcode: nullable(v.Postcode),
		address:  nullable(v.Address),
		city:     nullable(v.City),
		country:  nullable(v.Country),
	}
	if v.Lat != nil {
		c.lat = *v.Lat
	}
	if v.Lon != nil {
		c.lon = *v.Lon
	}
	return c
}

func marshalURLs(e events.Event) (streams, tickets any, err error) {
	if len(e.StreamURLs) > 0 {
		b, err := json.Marshal(e.StreamURLs)
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling stream URLs: %w", err)
		}
		streams = string(b)
	}
	if len(e.TicketURLs) > 0 {
		b, err := json.Marshal(e.TicketURLs)
		if err != nil {
			return nil, nil, fmt.Errorf("marshaling ticket URLs: %w", err)
		}
		tickets = string(b)
	}
	return streams, tickets, nil
}

func unmarshalURLs(col sql.NullString, dst *[]string) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), dst); err != nil {
		return fmt.Errorf("parsing URL list: %w", err)
	}
	return nil
}

func jsonURLsEqual(stored string, urls []string) bool {
	var old []string
	if stored != "" {
		if err := json.Unmarshal([]byte(stored), &old); err != nil {
			return false
		}
	}
	return slices.Equal(old, urls)
}

func geoEqual(old sql.NullFloat64, newVal any) bool {
	f, ok := newVal.(float64)
	if !ok {
		return !old.Valid
	}
	return old.Valid && old.Float64 == f
}
