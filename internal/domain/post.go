package domain

import (
	"maps"
	"time"
)

// Well-known platform keys used in PostRecord.PlatformIDs.
const (
	PlatformX        = "x"
	PlatformBluesky  = "bluesky"
	PlatformTelegram = "telegram"
)

// ReplyKey returns the PlatformIDs key holding the source-reply id for a platform.
func ReplyKey(platform string) string {
	return platform + "_reply"
}

// PostRecord is one successfully published post kept in history.
type PostRecord struct {
	ID             string
	Topic          string
	Title          string
	Source         string
	URL            string
	ContentExcerpt string
	PostText       string
	PostedAt       time.Time
	PlatformIDs    map[string]string
}

// Headline joins topic and title into the text used for story comparison.
func (p PostRecord) Headline() string {
	return joinNonEmpty(p.Topic, p.Title)
}

// Clone returns a copy that shares no mutable state with p.
func (p PostRecord) Clone() PostRecord {
	if p.PlatformIDs != nil {
		p.PlatformIDs = maps.Clone(p.PlatformIDs)
	}
	return p
}

// CloneAll deep-copies a slice of records.
func CloneAll(posts []PostRecord) []PostRecord {
	if posts == nil {
		return nil
	}
	out := make([]PostRecord, len(posts))
	for i, p := range posts {
		out[i] = p.Clone()
	}
	return out
}
