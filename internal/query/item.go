package query

import (
	"time"

	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/model"
)

// Item is the read shape every view hands to its consumer. Location and Path
// are derived from parent references on read and never stored.
type Item struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Kind           model.Kind      `json:"kind"`
	MediaType      model.MediaType `json:"mediaType,omitempty"`
	SizeBytes      *int64          `json:"sizeBytes,omitempty"`
	Modified       time.Time       `json:"modified"`
	LastOpenedAt   *time.Time      `json:"lastOpenedAt,omitempty"`
	Starred        bool            `json:"starred"`
	Shared         bool            `json:"shared"`
	TrashedAt      *time.Time      `json:"trashedAt,omitempty"`
	DaysUntilPurge *int            `json:"daysUntilPurge,omitempty"`
	ParentID       string          `json:"parentId,omitempty"`
	Location       string          `json:"location"`
	Path           string          `json:"path"`
	OwnerID        string          `json:"ownerId"`
	Owner          string          `json:"owner"`
}

func newItem(snap *drive.Snapshot, e model.Entity, owners Directory) Item {
	item := Item{
		ID:        e.ID,
		Name:      e.Name,
		Kind:      e.Kind,
		MediaType: e.MediaType,
		Modified:  e.ModifiedAt,
		Starred:   e.Starred,
		Shared:    e.Shared,
		ParentID:  e.ParentID,
		Location:  snap.Location(e.ID),
		OwnerID:   e.OwnerID,
		Owner:     displayName(owners, e.OwnerID),
	}
	if item.Location != "" {
		item.Path = item.Location + "/" + e.Name
	} else {
		item.Path = e.Name
	}
	if e.Kind == model.KindFile {
		size := e.SizeBytes
		item.SizeBytes = &size
	}
	if e.Opened() {
		opened := e.LastOpenedAt
		item.LastOpenedAt = &opened
	}
	if e.Trashed() {
		trashed := e.TrashedAt
		item.TrashedAt = &trashed
	}
	return item
}

func (i Item) size() int64 {
	if i.SizeBytes == nil {
		return 0
	}
	return *i.SizeBytes
}

func (i Item) lastOpened() time.Time {
	if i.LastOpenedAt == nil {
		return time.Time{}
	}
	return *i.LastOpenedAt
}

func (i Item) trashedAt() time.Time {
	if i.TrashedAt == nil {
		return time.Time{}
	}
	return *i.TrashedAt
}

// Directory resolves owner ids to display names for the Shared view.
type Directory interface {
	DisplayName(ownerID string) (string, bool)
}

// DirectoryMap is a static Directory.
type DirectoryMap map[string]string

// DisplayName implements Directory.
func (m DirectoryMap) DisplayName(ownerID string) (string, bool) {
	name, ok := m[ownerID]
	return name, ok
}

func displayName(owners Directory, ownerID string) string {
	if owners != nil {
		if name, ok := owners.DisplayName(ownerID); ok && name != "" {
			return name
		}
	}
	return ownerID
}
