package extractor

import (
	"strings"
)

// Validators are tables of pure predicates evaluated in a fixed priority
// order: the first reject rule that fires discards the candidate, then the
// first accept rule that fires keeps it. Candidates matching neither list are
// kept with reduced confidence by the caller.

type rule struct {
	name  string
	match func(surface string) bool
}

var pronouns = map[string]bool{
	"he": true, "she": true, "they": true, "him": true, "her": true,
	"his": true, "hers": true, "them": true, "their": true, "it": true,
	"its": true, "i": true, "you": true, "we": true, "me": true, "us": true,
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "but": true, "or": true,
	"then": true, "when": true, "while": true, "after": true, "before": true,
	"yes": true, "no": true, "oh": true, "well": true, "so": true,
}

// actionVerbs catch verb-led spans the capitalization heuristic mistakes for
// names ("Running Across The Field", "Looking Back").
var actionVerbs = map[string]bool{
	"running": true, "walking": true, "looking": true, "turning": true,
	"holding": true, "taking": true, "leaving": true, "coming": true,
	"going": true, "standing": true, "sitting": true, "waiting": true,
}

var honorifics = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "miss": true, "dr": true,
	"sir": true, "lady": true, "lord": true, "captain": true, "professor": true,
	"king": true, "queen": true, "prince": true, "princess": true,
}

var bodyParts = map[string]bool{
	"head": true, "hand": true, "hands": true, "eyes": true, "face": true,
	"heart": true, "arm": true, "arms": true, "back": true, "shoulder": true,
	"feet": true, "hair": true, "chest": true, "throat": true,
}

var placeWords = map[string]bool{
	"kingdom": true, "empire": true, "city": true, "town": true, "village": true,
	"forest": true, "mountain": true, "mountains": true, "river": true,
	"valley": true, "castle": true, "keep": true, "harbor": true, "harbour": true,
	"isle": true, "island": true, "bay": true, "sea": true, "desert": true,
	"realm": true, "province": true, "street": true, "road": true, "tavern": true,
}

func firstWord(surface string) string {
	fields := strings.Fields(strings.ToLower(surface))
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], ".,")
}

func containsPlaceWord(surface string) bool {
	for _, w := range strings.Fields(strings.ToLower(surface)) {
		if placeWords[strings.Trim(w, ".,")] {
			return true
		}
	}
	return false
}

// characterRejectRules discard spans that cannot be character names.
var characterRejectRules = []rule{
	{"pronoun", func(s string) bool {
		return pronouns[strings.ToLower(strings.TrimSpace(s))]
	}},
	{"stop word", func(s string) bool {
		return stopWords[strings.ToLower(strings.TrimSpace(s))]
	}},
	{"contraction", func(s string) bool {
		lower := strings.ToLower(s)
		return strings.Contains(lower, "'t") || strings.Contains(lower, "'ll") ||
			strings.Contains(lower, "'re") || strings.Contains(lower, "'ve")
	}},
	{"action phrase", func(s string) bool {
		return strings.Contains(s, " ") && actionVerbs[firstWord(s)]
	}},
	{"too short", func(s string) bool {
		return len([]rune(strings.TrimSpace(s))) < 2
	}},
}

// characterAcceptRules keep spans that look strongly like names.
var characterAcceptRules = []rule{
	{"titled name", func(s string) bool {
		return honorifics[strings.TrimSuffix(firstWord(s), ".")]
	}},
	{"multi-token proper noun", func(s string) bool {
		fields := strings.Fields(s)
		if len(fields) < 2 {
			return false
		}
		for _, f := range fields {
			r := []rune(f)[0]
			if !(r >= 'A' && r <= 'Z') && f != "of" && f != "the" {
				return false
			}
		}
		return true
	}},
	{"single capitalized token", func(s string) bool {
		fields := strings.Fields(s)
		if len(fields) != 1 {
			return false
		}
		r := []rune(fields[0])[0]
		return r >= 'A' && r <= 'Z'
	}},
}

// locationRejectRules discard place candidates that are body parts or other
// common-noun false positives.
var locationRejectRules = []rule{
	{"body part", func(s string) bool {
		return bodyParts[strings.ToLower(strings.TrimSpace(s))]
	}},
	{"pronoun", func(s string) bool {
		return pronouns[strings.ToLower(strings.TrimSpace(s))]
	}},
	{"lowercase common noun", func(s string) bool {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			return true
		}
		r := []rune(trimmed)[0]
		return !(r >= 'A' && r <= 'Z')
	}},
}

// locationAcceptRules apply the "looks like a real place" heuristic.
var locationAcceptRules = []rule{
	{"place keyword", func(s string) bool {
		return containsPlaceWord(s)
	}},
	{"the-prefixed name", func(s string) bool {
		fields := strings.Fields(s)
		return len(fields) >= 2 && strings.EqualFold(fields[0], "the")
	}},
	{"capitalized multi-word", func(s string) bool {
		fields := strings.Fields(s)
		if len(fields) < 2 {
			return false
		}
		capped := 0
		for _, f := range fields {
			r := []rune(f)[0]
			if r >= 'A' && r <= 'Z' {
				capped++
			}
		}
		return capped >= 2
	}},
}

// validationVerdict is the outcome of running a candidate through a rule
// table pair.
type validationVerdict int

const (
	verdictReject validationVerdict = iota
	verdictAccept
	verdictWeak // neither rejected nor strongly accepted
)

func runRules(surface string, rejects, accepts []rule) validationVerdict {
	for _, r := range rejects {
		if r.match(surface) {
			return verdictReject
		}
	}
	for _, r := range accepts {
		if r.match(surface) {
			return verdictAccept
		}
	}
	return verdictWeak
}

// ValidateCharacterName classifies a candidate character span.
func ValidateCharacterName(surface string) validationVerdict {
	return runRules(surface, characterRejectRules, characterAcceptRules)
}

// ValidateLocationName classifies a candidate location span.
func ValidateLocationName(surface string) validationVerdict {
	return runRules(surface, locationRejectRules, locationAcceptRules)
}
