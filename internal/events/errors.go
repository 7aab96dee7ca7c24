package events

import (
	"errors"
	"fmt"
)

// ErrEmptyArtistName indicates invalid input to the reconciliation entry
// points.
var ErrEmptyArtistName = errors.New("artist name is empty")

// MusicBrainzError indicates a MusicBrainz resolution failure.
type MusicBrainzError struct {
	Message string
	Cause   error
}

func (e *MusicBrainzError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *MusicBrainzError) Unwrap() error { return e.Cause }

// SongkickError indicates a Songkick resolution or extraction failure.
type SongkickError struct {
	Message string
	Cause   error
}

func (e *SongkickError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SongkickError) Unwrap() error { return e.Cause }

// BandsintownError indicates a Bandsintown resolution or extraction failure.
type BandsintownError struct {
	Message string
	Cause   error
}

func (e *BandsintownError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *BandsintownError) Unwrap() error { return e.Cause }

func songkickErrorf(cause error, format string, args ...any) *SongkickError {
	return &SongkickError{Message: fmt.Sprintf(format, args...), Cause: cause}
}

func bandsintownErrorf(cause error, format string, args ...any) *BandsintownError {
	return &BandsintownError{Message: fmt.Sprintf(format, args...), Cause: cause}
}

func musicbrainzErrorf(cause error, format string, args ...any) *MusicBrainzError {
	return &MusicBrainzError{Message: fmt.Sprintf(format, args...), Cause: cause}
}
