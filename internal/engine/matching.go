package engine

import (
	"strings"
	"unicode"

	"github.com/ettle/strcase"
	"github.com/gertd/go-pluralize"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// synonyms is the small registry of known cross-naming synonyms (§4.3
// strategy 5), e.g. title<->name. Keys and values are both lowercase;
// lookups check both directions.
var synonyms = map[string]string{
	"title": "name",
	"name":  "title",
}

var pluralizeClient = pluralize.NewClient()

// matchStrategyName is returned alongside a match so callers can emit the
// debug note §4.3 requires for strategies 2-5 ("which strategy resolved").
type matchStrategyName string

const (
	strategyExact           matchStrategyName = "exact"
	strategyCaseInsensitive matchStrategyName = "case_insensitive"
	strategyNormalized      matchStrategyName = "normalized"
	strategyCaseStyle       matchStrategyName = "case_style"
	strategyPlural          matchStrategyName = "plural"
	strategySynonym         matchStrategyName = "synonym"
)

// matchResult is a successful property-name resolution.
type matchResult struct {
	Candidate string
	Strategy  matchStrategyName
}

// matchColumn tries to resolve expected against candidates using the
// ordered strategy chain from §4.3: exact match is preferred and
// terminal; strategies 2-5 exist only to tolerate historical drift. The
// caller-supplied cache, keyed by the expected name alone (not by side),
// makes repeated resolutions against the same cache stable: a cached
// result is returned without consulting candidates again.
func matchColumn(expected string, candidates []string, cache map[string]matchResult) (matchResult, bool) {
	if cached, ok := cache[expected]; ok {
		return cached, true
	}

	strategies := []func(string, []string) (matchResult, bool){
		matchExact,
		matchCaseInsensitive,
		matchNormalized,
		matchCaseStyle,
		matchPlural,
		matchSynonym,
	}

	for _, try := range strategies {
		if res, ok := try(expected, candidates); ok {
			cache[expected] = res
			return res, true
		}
	}

	return matchResult{}, false
}

func matchExact(expected string, candidates []string) (matchResult, bool) {
	for _, c := range candidates {
		if c == expected {
			return matchResult{Candidate: c, Strategy: strategyExact}, true
		}
	}

	return matchResult{}, false
}

func matchCaseInsensitive(expected string, candidates []string) (matchResult, bool) {
	lower := strings.ToLower(expected)

	for _, c := range candidates {
		if strings.ToLower(c) == lower {
			return matchResult{Candidate: c, Strategy: strategyCaseInsensitive}, true
		}
	}

	return matchResult{}, false
}

func matchNormalized(expected string, candidates []string) (matchResult, bool) {
	want := normalizeName(expected)

	for _, c := range candidates {
		if normalizeName(c) == want {
			return matchResult{Candidate: c, Strategy: strategyNormalized}, true
		}
	}

	return matchResult{}, false
}

// matchCaseStyle tolerates drift between naming conventions — "Row Key",
// "row_key", "rowKey" — by folding both sides to snake_case before
// comparing. Covers columns renamed by a remote-side integration that
// writes a different case style than the one the table was created with.
func matchCaseStyle(expected string, candidates []string) (matchResult, bool) {
	want := strcase.ToSnake(expected)

	for _, c := range candidates {
		if strcase.ToSnake(c) == want {
			return matchResult{Candidate: c, Strategy: strategyCaseStyle}, true
		}
	}

	return matchResult{}, false
}

func matchPlural(expected string, candidates []string) (matchResult, bool) {
	singular := pluralizeClient.Singular(strings.ToLower(expected))
	plural := pluralizeClient.Plural(strings.ToLower(expected))

	for _, c := range candidates {
		lc := strings.ToLower(c)
		if lc == singular || lc == plural {
			return matchResult{Candidate: c, Strategy: strategyPlural}, true
		}
	}

	return matchResult{}, false
}

func matchSynonym(expected string, candidates []string) (matchResult, bool) {
	lower := strings.ToLower(expected)

	syn, ok := synonyms[lower]
	if !ok {
		return matchResult{}, false
	}

	for _, c := range candidates {
		if strings.ToLower(c) == syn {
			return matchResult{Candidate: c, Strategy: strategySynonym}, true
		}
	}

	return matchResult{}, false
}

// normalizeName folds a property name to a comparison key: NFC-normalized,
// lowercased, punctuation stripped, whitespace collapsed. Used by
// Strategy 3.
func normalizeName(s string) string {
	s = norm.NFC.String(s)
	s = cases.Fold().String(s)

	var b strings.Builder

	lastWasSpace := false

	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if !lastWasSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}

			lastWasSpace = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// dropped entirely
		default:
			b.WriteRune(r)
			lastWasSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}
