package tracker

import (
	"sort"
	"time"

	"github.com/bryanweaver/mewscast/internal/domain"
	"github.com/bryanweaver/mewscast/internal/similarity"
)

// FindCluster returns the history entries that plausibly cover the same story
// as candidate: posted inside the recency window, scoring strictly above the
// cluster threshold, highest score first with ties broken most recent first.
func FindCluster(candidate domain.NewsItem, history []domain.PostRecord, now time.Time, cfg Config) []domain.ClusterMember {
	if candidate.Malformed() {
		return nil
	}

	doc := docFromItem(candidate, cfg.ExcerptLength)
	cutoff := now.Add(-cfg.RecencyWindow)

	var cluster []domain.ClusterMember
	for _, post := range history {
		if post.PostedAt.Before(cutoff) {
			continue
		}
		score := similarity.CombinedSimilarity(doc, docFromPost(post))
		if score.Value <= cfg.ClusterThreshold {
			continue
		}
		cluster = append(cluster, domain.ClusterMember{
			Post:           post.Clone(),
			Score:          score.Value,
			SharedEntities: score.SharedEntities,
		})
	}

	sort.SliceStable(cluster, func(i, j int) bool {
		if cluster[i].Score != cluster[j].Score {
			return cluster[i].Score > cluster[j].Score
		}
		return cluster[i].Post.PostedAt.After(cluster[j].Post.PostedAt)
	})

	if cfg.ClusterLimit > 0 && len(cluster) > cfg.ClusterLimit {
		cluster = cluster[:cfg.ClusterLimit]
	}
	return cluster
}

// mostRecentFirst returns a copy of cluster ordered by posting time, newest first.
func mostRecentFirst(cluster []domain.ClusterMember) []domain.ClusterMember {
	out := make([]domain.ClusterMember, len(cluster))
	copy(out, cluster)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Post.PostedAt.After(out[j].Post.PostedAt)
	})
	return out
}

func docFromItem(item domain.NewsItem, excerpt int) similarity.Doc {
	return similarity.Doc{
		URL:      item.URL,
		Headline: item.Headline(),
		Body:     truncateRunes(item.Content, excerpt),
	}
}

func docFromPost(post domain.PostRecord) similarity.Doc {
	return similarity.Doc{
		URL:      post.URL,
		Headline: post.Headline(),
		Body:     post.ContentExcerpt,
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
