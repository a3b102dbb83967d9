package models

import "time"

// Metadata is the lightweight listing record produced by a source stream.
// It carries just enough to decide whether the item is worth a detail fetch;
// Extra preserves source-specific fields needed for the re-fetch itself.
type Metadata struct {
	Source     SourceKind        `bson:"source" json:"source"`
	ID         int32             `bson:"id" json:"id"`
	Title      string            `bson:"title" json:"title"`
	UpdateTime time.Time         `bson:"update_time" json:"update_time"`
	Extra      map[string]string `bson:"extra,omitempty" json:"extra,omitempty"`
}

// IsUpdate reports whether m supersedes prior: same identifier and either a
// different title or a strictly newer update time.
func (m Metadata) IsUpdate(prior Metadata) bool {
	if m.ID != prior.ID {
		return false
	}
	return m.Title != prior.Title || m.UpdateTime.After(prior.UpdateTime)
}

// FindState classifies a Metadata against its stored counterpart.
type FindState int

const (
	// StateNew means no stored counterpart exists.
	StateNew FindState = iota
	// StateUpdated means a counterpart exists and the incoming record
	// supersedes it.
	StateUpdated
	// StateSame means a counterpart exists and nothing changed.
	StateSame
)

func (s FindState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateUpdated:
		return "updated"
	case StateSame:
		return "same"
	}
	return "unknown"
}

// FindResult pairs an incoming Metadata with its stored counterpart.
// Prior is nil exactly when State is StateNew.
type FindResult struct {
	Item  Metadata
	Prior *Metadata
	State FindState
}

// Classify builds the FindResult for an incoming record against an optional
// stored one.
func Classify(item Metadata, prior *Metadata) FindResult {
	switch {
	case prior == nil:
		return FindResult{Item: item, State: StateNew}
	case item.IsUpdate(*prior):
		return FindResult{Item: item, Prior: prior, State: StateUpdated}
	default:
		return FindResult{Item: item, Prior: prior, State: StateSame}
	}
}
