package domain

import "time"

// DecisionStatus enumerates tracker verdicts for a candidate.
type DecisionStatus string

const (
	StatusFresh     DecisionStatus = "fresh"
	StatusDuplicate DecisionStatus = "duplicate"
	StatusUpdate    DecisionStatus = "update"
)

// DecisionReason explains which classifier rule produced a decision.
type DecisionReason string

const (
	ReasonDisabled       DecisionReason = "disabled"
	ReasonExactURL       DecisionReason = "exact_url"
	ReasonSourceCooldown DecisionReason = "source_cooldown"
	ReasonMalformed      DecisionReason = "malformed"
	ReasonNoCluster      DecisionReason = "no_cluster"
	ReasonUpdateKeyword  DecisionReason = "update_keyword"
	ReasonSimilarStory   DecisionReason = "similar_story"
	ReasonWeakCluster    DecisionReason = "weak_cluster"
)

// ClusterMember is a history entry judged related to a candidate.
type ClusterMember struct {
	Post           PostRecord
	Score          float64
	SharedEntities []string
}

// Decision is the tracker verdict for one candidate.
type Decision struct {
	Status         DecisionStatus
	Reason         DecisionReason
	MatchedKeyword string
	KeywordClass   string

	// Cluster holds every related entry, highest score first.
	Cluster []ClusterMember
	// Related is set for updates only: the cluster ordered most recent first.
	Related []ClusterMember
}

// IsDuplicate reports whether the candidate must not be published.
func (d Decision) IsDuplicate() bool { return d.Status == StatusDuplicate }

// IsUpdate reports whether the candidate should be framed as an update.
func (d Decision) IsUpdate() bool { return d.Status == StatusUpdate }

// PriorPost is the slice of a previous post handed to content generation.
type PriorPost struct {
	Title          string
	ContentExcerpt string
	PostedAt       time.Time
}

// PreviousContext returns the prior posts a generator must reference for an update.
// Fresh and duplicate decisions carry no context.
func (d Decision) PreviousContext() []PriorPost {
	if d.Status != StatusUpdate || len(d.Related) == 0 {
		return nil
	}
	out := make([]PriorPost, 0, len(d.Related))
	for _, m := range d.Related {
		title := m.Post.Title
		if title == "" {
			title = m.Post.Topic
		}
		out = append(out, PriorPost{
			Title:          title,
			ContentExcerpt: m.Post.ContentExcerpt,
			PostedAt:       m.Post.PostedAt,
		})
	}
	return out
}

// ContentVerdict is the result of comparing generated post text with history.
type ContentVerdict struct {
	Duplicate bool
	Score     float64
	Match     *PostRecord
}
