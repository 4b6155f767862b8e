package similarity

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const minStemLength = 3

var stopWords = wordSet(
	"a", "an", "the", "and", "or", "but", "nor", "in", "on", "at", "to", "for",
	"of", "with", "by", "from", "as", "is", "was", "are", "were", "be", "been",
	"being", "it", "its", "this", "that", "these", "those", "he", "she", "they",
	"them", "we", "you", "his", "her", "their", "our", "your", "has", "have",
	"had", "do", "does", "did", "will", "would", "can", "could", "should",
	"may", "might", "not", "no", "so", "if", "than", "then", "there", "here",
	"over", "into", "about", "up", "out", "off", "via", "vs", "who", "what",
	"when", "where", "why", "how", "which", "s", "t",
)

type suffixRule struct {
	suffix  string
	replace string
}

// Longest suffixes first; only the first applicable rule fires.
var suffixRules = []suffixRule{
	{"ations", ""},
	{"ments", ""},
	{"ation", ""},
	{"ings", ""},
	{"ment", ""},
	{"ious", ""},
	{"ions", ""},
	{"edly", ""},
	{"ies", "y"},
	{"ied", "y"},
	{"ing", ""},
	{"ion", ""},
	{"ous", ""},
	{"ers", ""},
	{"ed", ""},
	{"er", ""},
	{"ly", ""},
}

// Normalize lowercases text, strips punctuation, removes stop words and
// single-character tokens, and stems what is left.
func Normalize(text string) []string {
	return normalizeExcept(text, nil)
}

func normalizeExcept(text string, extra map[string]struct{}) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if utf8.RuneCountInString(f) < 2 {
			continue
		}
		if _, ok := stopWords[f]; ok {
			continue
		}
		if _, ok := extra[f]; ok {
			continue
		}
		out = append(out, Stem(f))
	}
	return out
}

// Stem strips one common English suffix so morphological variants compare
// equal ("seditious" and "sedition" both become "sedit"). The input is
// expected to be lowercase.
func Stem(word string) string {
	stem := word
	applied := false
	for _, rule := range suffixRules {
		if !strings.HasSuffix(stem, rule.suffix) {
			continue
		}
		candidate := strings.TrimSuffix(stem, rule.suffix) + rule.replace
		if utf8.RuneCountInString(candidate) < minStemLength {
			continue
		}
		stem = candidate
		applied = true
		break
	}
	if !applied {
		stem = stripPlural(stem)
	}
	if strings.HasSuffix(stem, "e") && utf8.RuneCountInString(stem) > minStemLength+1 {
		stem = strings.TrimSuffix(stem, "e")
	}
	return stem
}

func stripPlural(word string) string {
	if !strings.HasSuffix(word, "s") || utf8.RuneCountInString(word) <= minStemLength {
		return word
	}
	for _, keep := range []string{"ss", "us", "is"} {
		if strings.HasSuffix(word, keep) {
			return word
		}
	}
	for _, sibilant := range []string{"ches", "shes", "xes", "zes", "sses"} {
		if strings.HasSuffix(word, sibilant) {
			return strings.TrimSuffix(word, "es")
		}
	}
	return strings.TrimSuffix(word, "s")
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func wordSet(words ...string) map[string]struct{} {
	return tokenSet(words)
}
