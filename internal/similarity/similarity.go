// Package similarity scores how likely two news items describe the same story.
//
// All functions are pure. Scores are in [0,1]; identical URLs short-circuit to
// the maximum before any text is compared.
package similarity

import (
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// StrongEntityScore is returned when two or more entities are shared.
	StrongEntityScore = 0.8
	// SingleEntityBoost is added to the lexical score for one shared entity.
	SingleEntityBoost = 0.2

	minPrefixMatch = 5
	partialCredit  = 0.5
)

// Doc is the comparable view of a candidate or a history entry.
type Doc struct {
	URL      string
	Headline string
	Body     string
}

// Score is a combined similarity with the evidence behind it.
type Score struct {
	Value          float64
	SharedEntities []string
	ExactURL       bool
}

// LexicalSimilarity compares the normalized token sets of a and b.
// Identical stems count fully, stems sharing a long prefix count half,
// and the total is divided by the larger set. Texts with fewer than two
// meaningful tokens are too short to compare and score zero.
func LexicalSimilarity(a, b string) float64 {
	return tokenSimilarity(Normalize(a), Normalize(b))
}

func tokenSimilarity(ta, tb []string) float64 {
	sa, sb := tokenSet(ta), tokenSet(tb)
	if len(sa) < 2 || len(sb) < 2 {
		return 0
	}

	var exact int
	var restA, restB []string
	for t := range sa {
		if _, ok := sb[t]; ok {
			exact++
		} else {
			restA = append(restA, t)
		}
	}
	for t := range sb {
		if _, ok := sa[t]; !ok {
			restB = append(restB, t)
		}
	}
	sort.Strings(restA)
	sort.Strings(restB)

	var partial int
	used := make([]bool, len(restB))
	for _, x := range restA {
		for j, y := range restB {
			if !used[j] && sharePrefix(x, y, minPrefixMatch) {
				used[j] = true
				partial++
				break
			}
		}
	}

	denom := max(len(sa), len(sb))
	return clamp((float64(exact) + partialCredit*float64(partial)) / float64(denom))
}

func sharePrefix(a, b string, n int) bool {
	if utf8.RuneCountInString(a) < n || utf8.RuneCountInString(b) < n {
		return false
	}
	ra, rb := []rune(a), []rune(b)
	for i := 0; i < n; i++ {
		if ra[i] != rb[i] {
			return false
		}
	}
	return true
}

// EntityOverlapScore applies the shared-entity policy on top of the lexical
// score: two or more shared entities are a strong same-story signal, a single
// one only nudges the lexical score upward.
func EntityOverlapScore(a, b Doc) float64 {
	shared := SharedEntities(ExtractEntities(a.Headline), ExtractEntities(b.Headline))
	return entityScore(len(shared), lexical(a, b))
}

func entityScore(shared int, lex float64) float64 {
	switch {
	case shared >= 2:
		return StrongEntityScore
	case shared == 1:
		return clamp(lex + SingleEntityBoost)
	default:
		return lex
	}
}

// lexical compares headlines, and bodies too when both sides have one.
func lexical(a, b Doc) float64 {
	score := LexicalSimilarity(a.Headline, b.Headline)
	if strings.TrimSpace(a.Body) != "" && strings.TrimSpace(b.Body) != "" {
		score = max(score, LexicalSimilarity(a.Body, b.Body))
	}
	return score
}

// CombinedSimilarity merges entity overlap and lexical similarity. The result
// is never below what entity overlap alone indicates.
func CombinedSimilarity(a, b Doc) Score {
	if SameURL(a.URL, b.URL) {
		return Score{Value: 1, ExactURL: true}
	}

	lex := lexical(a, b)
	shared := SharedEntities(ExtractEntities(a.Headline), ExtractEntities(b.Headline))
	return Score{
		Value:          clamp(max(lex, entityScore(len(shared), lex))),
		SharedEntities: shared,
	}
}

// SameURL reports whether both URLs are present and identical after trimming.
func SameURL(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && a == b
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
