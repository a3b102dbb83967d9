package models

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"time"
)

// Event is one in-game event window extracted from a detail body.
type Event struct {
	Title string    `bson:"title" json:"title"`
	Start time.Time `bson:"start" json:"start"`
	End   time.Time `bson:"end" json:"end"`
}

// DataVersion is one ingested (source, detail) observation. A post accumulates
// these append-only; the last entry is the current view of the post.
type DataVersion struct {
	Source     SourceKind        `bson:"source" json:"source"`
	ID         int32             `bson:"id" json:"id"`
	URL        string            `bson:"url" json:"url"`
	Title      string            `bson:"title" json:"title"`
	Tags       []string          `bson:"tags" json:"tags"`
	CreateTime *time.Time        `bson:"create_time,omitempty" json:"create_time,omitempty"`
	UpdateTime *time.Time        `bson:"update_time,omitempty" json:"update_time,omitempty"`
	ArchiveURL string            `bson:"archive_url,omitempty" json:"archive_url,omitempty"`
	Extra      map[string]string `bson:"extra,omitempty" json:"extra,omitempty"`
}

// Post is the canonical archive record for one logical upstream post,
// possibly observed on several surfaces.
//
// MappedTitle is computed once from the first DataVersion and never mutated.
// Data is append-only. Events always reflects the most recent DataVersion's
// detail. History, when set, points at a superseded post by id.
type Post struct {
	ID          string        `bson:"_id" json:"id"`
	MappedTitle string        `bson:"mapped_title" json:"mapped_title"`
	Region      string        `bson:"region" json:"region"`
	Events      []Event       `bson:"events" json:"events"`
	HistoryID   string        `bson:"history,omitempty" json:"history,omitempty"`
	Data        []DataVersion `bson:"data" json:"data"`
}

// DefaultRegion is the only region this deployment watches.
const DefaultRegion = "TW"

// NewPost creates a post from its first observation. The id is a digest of
// the mapped title and the creation instant: stable, unique, never reused.
func NewPost(region string, dv DataVersion, now time.Time) *Post {
	mapped := MapTitle(dv.Title)
	sum := sha1.Sum([]byte(fmt.Sprintf("%s/%s/%d", region, mapped, now.UnixNano())))
	return &Post{
		ID:          hex.EncodeToString(sum[:]),
		MappedTitle: mapped,
		Region:      region,
		Data:        []DataVersion{dv},
	}
}

// Append records a further observation. Appending, never in-place rewriting,
// keeps sequential updates of the same (source, id) distinguishable.
func (p *Post) Append(dv DataVersion) {
	p.Data = append(p.Data, dv)
}

// Latest returns the most recent DataVersion. A post always has at least one.
func (p *Post) Latest() DataVersion {
	return p.Data[len(p.Data)-1]
}

// HasSource reports whether any DataVersion came from the given surface.
func (p *Post) HasSource(s SourceKind) bool {
	for _, dv := range p.Data {
		if dv.Source == s {
			return true
		}
	}
	return false
}

// FindData returns the most recent DataVersion with the given (source, id),
// or nil.
func (p *Post) FindData(s SourceKind, id int32) *DataVersion {
	for i := len(p.Data) - 1; i >= 0; i-- {
		if p.Data[i].Source == s && p.Data[i].ID == id {
			return &p.Data[i]
		}
	}
	return nil
}

// LatestUpdateTime returns the newest update time across all DataVersions,
// zero when none carries one. Used for the recent-title attachment window.
func (p *Post) LatestUpdateTime() time.Time {
	var latest time.Time
	for _, dv := range p.Data {
		if dv.UpdateTime != nil && dv.UpdateTime.After(latest) {
			latest = *dv.UpdateTime
		}
	}
	return latest
}

// Audit is the advisory row written after a successful send or edit. The post
// is canonical; a missing audit row only costs an edit falling back to a
// fresh send.
type Audit struct {
	Recipient  string    `bson:"recipient" json:"recipient"`
	ChatID     int64     `bson:"chat_id" json:"chat_id"`
	MessageID  int       `bson:"message_id" json:"message_id"`
	PostID     string    `bson:"post_id" json:"post_id"`
	Timestamp  time.Time `bson:"timestamp" json:"timestamp"`
	ArchiveURL string    `bson:"archive_url,omitempty" json:"archive_url,omitempty"`
}
