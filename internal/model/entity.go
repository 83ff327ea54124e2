// Package model contains the entity definitions shared by the store, the query
// engine and every consumer of the drive.
package model

import (
	"time"
)

// Kind discriminates files from folders. A named string type keeps callers
// from passing arbitrary strings where a kind is expected.
type Kind string

const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	return k == KindFile || k == KindFolder
}

// MediaType is the coarse content class of a file. Folders never carry one.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaDocument MediaType = "document"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaArchive  MediaType = "archive"
	MediaOther    MediaType = "other"
)

// Valid reports whether m is one of the known media types.
func (m MediaType) Valid() bool {
	switch m {
	case MediaImage, MediaDocument, MediaVideo, MediaAudio, MediaArchive, MediaOther:
		return true
	}
	return false
}

// RetentionDays is how long a trashed entity stays restorable.
const RetentionDays = 30

// Entity is the canonical File/Folder record. Every field is a value type so a
// plain struct copy is a full, independent copy; snapshots rely on that.
type Entity struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Kind      Kind      `json:"kind"`
	MediaType MediaType `json:"mediaType,omitempty"`
	SizeBytes int64     `json:"sizeBytes,omitempty"`
	// ParentID is empty for root-level entities.
	ParentID     string    `json:"parentId,omitempty"`
	OwnerID      string    `json:"ownerId"`
	CreatedAt    time.Time `json:"createdAt"`
	ModifiedAt   time.Time `json:"modifiedAt"`
	LastOpenedAt time.Time `json:"lastOpenedAt"`
	Starred      bool      `json:"starred"`
	Shared       bool      `json:"shared"`
	// TrashedAt is the zero time while the entity is active.
	TrashedAt time.Time `json:"trashedAt"`
	// TrashedWith names the entity whose trash command trashed this one. It is
	// the entity's own id for a directly trashed item and the folder's id for
	// cascaded descendants.
	TrashedWith string `json:"trashedWith,omitempty"`
}

// IsFolder reports whether the entity is a folder.
func (e Entity) IsFolder() bool { return e.Kind == KindFolder }

// Trashed reports whether the entity currently sits in the trash.
func (e Entity) Trashed() bool { return !e.TrashedAt.IsZero() }

// Opened reports whether the entity was ever explicitly opened.
func (e Entity) Opened() bool { return !e.LastOpenedAt.IsZero() }

// DaysUntilPurge returns how many whole days remain before the entity becomes
// eligible for purge. Active entities report the full window.
func (e Entity) DaysUntilPurge(now time.Time) int {
	if !e.Trashed() {
		return RetentionDays
	}
	return DaysUntilPurge(e.TrashedAt, now)
}

// DaysUntilPurge computes retention − elapsed whole days, floored at 0. A clock
// that reads earlier than trashedAt counts as zero days elapsed.
func DaysUntilPurge(trashedAt, now time.Time) int {
	elapsed := now.Sub(trashedAt)
	if elapsed < 0 {
		return RetentionDays
	}
	days := int(elapsed / (24 * time.Hour))
	if days >= RetentionDays {
		return 0
	}
	return RetentionDays - days
}

// PurgeAt is the instant the entity's retention window closes.
func PurgeAt(trashedAt time.Time) time.Time {
	return trashedAt.Add(RetentionDays * 24 * time.Hour)
}
