// Package country normalizes free-text country strings from scraped venue
// data into canonical short names.
package country

import (
	"strings"

	"github.com/biter777/countries"
)

// Normalize resolves a raw country string ("USA", "United States of
// America", "DE", ...) to its canonical short name. It returns "" when the
// string doesn't resolve to a known country.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	cc := countries.ByName(raw)
	if cc == countries.Unknown {
		return ""
	}
	return cc.String()
}
