package similarity

import "regexp"

var (
	urlExpr     = regexp.MustCompile(`(?i)\bhttps?://\S+|\bwww\.\S+`)
	hashtagExpr = regexp.MustCompile(`#[\p{L}\p{N}_]+`)
	mentionExpr = regexp.MustCompile(`@[\p{L}\p{N}_.]+`)
)

// Persona vocabulary shared by almost every post; it says nothing about the story.
var personaWords = wordSet(
	"cat", "cats", "mew", "mews", "meow", "meows", "purr", "purrs", "purring",
	"paw", "paws", "fur", "furry", "whisker", "whiskers", "perch", "perched",
	"kitty", "feline", "mewscast",
)

// ContentSimilarity compares two generated posts. Links, hashtags, mentions
// and persona vocabulary are removed before the lexical comparison.
func ContentSimilarity(a, b string) float64 {
	return tokenSimilarity(normalizeExcept(stripMarkup(a), personaWords), normalizeExcept(stripMarkup(b), personaWords))
}

func stripMarkup(text string) string {
	text = urlExpr.ReplaceAllString(text, " ")
	text = hashtagExpr.ReplaceAllString(text, " ")
	return mentionExpr.ReplaceAllString(text, " ")
}
