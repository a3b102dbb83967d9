package pipeline

import (
	"github.com/redive-tools/newswatch/pkg/models"
)

// Action is what the reconciliation decider wants done with one item.
type Action int

const (
	// ActionNone drops the item; nothing in the archive or the chat changes.
	ActionNone Action = iota
	// ActionStoreOnly appends the observation to the matching post without
	// publishing; a second surface confirming a known announcement.
	ActionStoreOnly
	// ActionSend opens a new post and publishes it.
	ActionSend
	// ActionEdit updates an already published post and its chat message.
	ActionEdit
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionStoreOnly:
		return "store_only"
	case ActionSend:
		return "send"
	case ActionEdit:
		return "edit"
	}
	return "unknown"
}

// Decide reconciles one classified record against its matching post (nil when
// the archive has none):
//
//   - no matching post: a fresh announcement, publish it.
//   - post exists but has never seen this surface: attach silently.
//   - post knows the surface but not this id, or the record is strictly
//     newer than the stored version: the published message is stale, edit.
//   - otherwise the archive already holds this exact version: drop.
func Decide(src models.SourceKind, result models.FindResult, post *models.Post) Action {
	if post == nil {
		return ActionSend
	}
	if !post.HasSource(src) {
		return ActionStoreOnly
	}

	stored := post.FindData(src, result.Item.ID)
	if stored == nil {
		return ActionEdit
	}
	if newerThan(result.Item, stored) {
		return ActionEdit
	}
	return ActionNone
}

func newerThan(item models.Metadata, stored *models.DataVersion) bool {
	if stored.UpdateTime == nil {
		return !item.UpdateTime.IsZero()
	}
	return item.UpdateTime.After(*stored.UpdateTime)
}
