package similarity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Capitalized words that open headlines without naming anything.
var sentenceStarters = wordSet(
	"breaking", "update", "updated", "developing", "exclusive", "watch", "live",
	"opinion", "analysis", "video", "photos", "new", "latest", "just", "now",
	"today", "after", "amid", "says", "said", "i", "im", "my", "me", "us",
)

// countryCodes are all-caps acronyms that collide with a sentenceStarters entry.
var countryCodes = wordSet("US")

func isCountryCode(w string) bool {
	_, ok := countryCodes[w]
	return ok
}

// ExtractEntities returns the proper-noun-like tokens of text: capitalized
// words and acronyms that are not stop words or headline openers. Tokens are
// lowercased, stemmed and deduplicated in order of first appearance.
func ExtractEntities(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\'' && r != '’'
	})

	seen := make(map[string]struct{})
	var entities []string
	for _, w := range words {
		w = trimPossessive(w)
		if utf8.RuneCountInString(w) < 2 {
			continue
		}
		first, _ := utf8.DecodeRuneInString(w)
		if !unicode.IsUpper(first) {
			continue
		}
		lower := strings.ToLower(w)
		if _, ok := stopWords[lower]; ok {
			continue
		}
		if _, ok := sentenceStarters[lower]; ok && !isCountryCode(w) {
			continue
		}
		stem := Stem(lower)
		if _, ok := seen[stem]; ok {
			continue
		}
		seen[stem] = struct{}{}
		entities = append(entities, stem)
	}
	return entities
}

func trimPossessive(w string) string {
	for _, suffix := range []string{"'s", "’s", "'", "’"} {
		w = strings.TrimSuffix(w, suffix)
	}
	return strings.Map(func(r rune) rune {
		if r == '\'' || r == '’' {
			return -1
		}
		return r
	}, w)
}

// SharedEntities returns the entities present in both lists, in the order of a.
func SharedEntities(a, b []string) []string {
	other := tokenSet(b)
	var shared []string
	for _, e := range a {
		if _, ok := other[e]; ok {
			shared = append(shared, e)
		}
	}
	return shared
}
