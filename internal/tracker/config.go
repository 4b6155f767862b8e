package tracker

import "time"

// Config holds the deduplication policy consumed by the tracker.
type Config struct {
	Enabled          bool
	URLDeduplication bool

	RecencyWindow      time.Duration
	ClusterThreshold   float64
	DuplicateThreshold float64
	// ClusterLimit caps the cluster size; zero keeps every member.
	ClusterLimit int

	Retention time.Duration
	AutoPrune bool

	ContentCooldown  time.Duration
	ContentThreshold float64
	// SourceCooldown rejects a candidate whose source was posted within it; zero disables.
	SourceCooldown time.Duration

	ExcerptLength int

	// KeywordClasses maps a class name to the title keywords that mark an update.
	KeywordClasses map[string][]string
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Enabled:            true,
		URLDeduplication:   true,
		RecencyWindow:      48 * time.Hour,
		ClusterThreshold:   0.25,
		DuplicateThreshold: 0.40,
		Retention:          720 * time.Hour,
		AutoPrune:          true,
		ContentCooldown:    72 * time.Hour,
		ContentThreshold:   0.65,
		ExcerptLength:      500,
		KeywordClasses:     DefaultKeywordClasses(),
	}
}

// DefaultKeywordClasses returns the built-in update indicators, grouped by the
// kind of development they signal.
func DefaultKeywordClasses() map[string][]string {
	return map[string][]string{
		"update":    {"update", "updated", "updates", "developing", "breaking", "latest", "now", "just in"},
		"aftermath": {"aftermath", "following", "amid", "in wake of"},
		"reaction":  {"reacts", "reaction", "responds", "response", "says", "said", "fires back", "slams"},
		"legal":     {"charged", "arrested", "sentenced", "indicted", "resigns", "convicted"},
		"statement": {"announces", "announced", "statement", "confirms", "confirmed", "denies", "denied"},
		"reversal":  {"walkback", "walks back", "walked back", "reverses", "reversal", "backs down", "overturned", "u-turn"},
	}
}
