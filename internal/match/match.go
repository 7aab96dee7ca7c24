// Package match canonicalizes free-text artist names and selects the best
// candidate from a list of upstream search results under a tiered accuracy
// scheme.
package match

import (
	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"
)

// DefaultFuzzyThreshold is the minimum fuzzy similarity ratio (0-100) a
// candidate must reach to qualify.
const DefaultFuzzyThreshold = 85

// Accuracy is the ordered confidence tier of a name match. Higher values
// are more confident; callers compare tiers numerically to decide whether
// a re-match should supersede a previous one.
type Accuracy int

// Accuracy tiers. The transliteration tiers between ExactTransliterated
// and FuzzyReverseTransliterated are reserved for matchers that are not
// implemented yet; they must survive serialization unchanged.
const (
	AccuracyMusicBrainz                     Accuracy = 1100
	AccuracyExact                           Accuracy = 1000
	AccuracyExactAlnum                      Accuracy = 900
	AccuracyExactASCII                      Accuracy = 800
	AccuracyFuzzy                           Accuracy = 700
	AccuracyExactTransliterated             Accuracy = 600
	AccuracyExactAlnumTransliterated        Accuracy = 500
	AccuracyExactReverseTransliterated      Accuracy = 400
	AccuracyExactAlnumReverseTransliterated Accuracy = 300
	AccuracyFuzzyTransliterated             Accuracy = 200
	AccuracyFuzzyReverseTransliterated      Accuracy = 100
	AccuracyNoMatch                         Accuracy = 0
)

// String returns the tier name.
func (a Accuracy) String() string {
	switch a {
	case AccuracyMusicBrainz:
		return "musicbrainz"
	case AccuracyExact:
		return "exact"
	case AccuracyExactAlnum:
		return "exact_alnum"
	case AccuracyExactASCII:
		return "exact_ascii"
	case AccuracyFuzzy:
		return "fuzzy"
	case AccuracyExactTransliterated:
		return "exact_transliterated"
	case AccuracyExactAlnumTransliterated:
		return "exact_alnum_transliterated"
	case AccuracyExactReverseTransliterated:
		return "exact_reverse_transliterated"
	case AccuracyExactAlnumReverseTransliterated:
		return "exact_alnum_reverse_transliterated"
	case AccuracyFuzzyTransliterated:
		return "fuzzy_transliterated"
	case AccuracyFuzzyReverseTransliterated:
		return "fuzzy_reverse_transliterated"
	default:
		return "no_match"
	}
}

// Candidate is one (id, name) pair from an upstream search result.
type Candidate struct {
	ID   string
	Name string
}

// Match is a successful name match.
type Match struct {
	ID       string
	Accuracy Accuracy
}

// FindBestSimple matches name against candidates using exact comparisons
// only. Candidates are evaluated in their given order; the first hit wins.
// The second return value is false when no candidate qualifies.
func FindBestSimple(name string, candidates []Candidate) (Match, bool) {
	folded := Fold(name)
	foldedCandidates := make([]Candidate, len(candidates))
	for i, c := range candidates {
		foldedCandidates[i] = Candidate{ID: c.ID, Name: Fold(c.Name)}
	}

	for _, c := range foldedCandidates {
		if c.Name != "" && c.Name == folded {
			return Match{ID: c.ID, Accuracy: AccuracyExact}, true
		}
	}

	alnum := StripNonAlnum(folded)
	if alnum == "" {
		return Match{Accuracy: AccuracyNoMatch}, false
	}

	for _, c := range foldedCandidates {
		stripped := StripNonAlnum(c.Name)
		if stripped != "" && stripped == alnum {
			return Match{ID: c.ID, Accuracy: AccuracyExactAlnum}, true
		}
	}

	return Match{Accuracy: AccuracyNoMatch}, false
}

// FindBestAdvanced runs FindBestSimple first, then escalates through
// transliteration, non-ASCII stripping, and finally fuzzy similarity at the
// given threshold (DefaultFuzzyThreshold when threshold is zero or
// negative). Fuzzy matching is first-qualifying, not best-scoring: the scan
// stops at the first candidate whose ratio meets the threshold.
func FindBestAdvanced(name string, candidates []Candidate, threshold int) (Match, bool) {
	if m, ok := FindBestSimple(name, candidates); ok {
		return m, true
	}

	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}

	folded := Fold(name)
	foldedCandidates := make([]Candidate, len(candidates))
	for i, c := range candidates {
		foldedCandidates[i] = Candidate{ID: c.ID, Name: Fold(c.Name)}
	}

	if translit := Transliterate(folded); translit != "" {
		for _, c := range foldedCandidates {
			t := Transliterate(c.Name)
			if t != "" && t == translit {
				return Match{ID: c.ID, Accuracy: AccuracyExactASCII}, true
			}
		}
	}

	ascii := StripNonASCII(folded)
	if ascii == "" {
		return Match{Accuracy: AccuracyNoMatch}, false
	}

	for _, c := range foldedCandidates {
		stripped := StripNonASCII(c.Name)
		if stripped != "" && stripped == ascii {
			return Match{ID: c.ID, Accuracy: AccuracyExactASCII}, true
		}
	}

	for _, c := range foldedCandidates {
		if c.Name == "" {
			continue
		}
		if fuzzy.Ratio(folded, c.Name) >= threshold {
			return Match{ID: c.ID, Accuracy: AccuracyFuzzy}, true
		}
	}

	return Match{Accuracy: AccuracyNoMatch}, false
}
