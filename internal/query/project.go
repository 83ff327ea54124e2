// Package query projects drive snapshots into the shapes each view renders.
// The functions here are pure: same snapshot, same arguments, same output.
package query

import (
	"time"

	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/model"
)

// Projector holds the policy knobs shared by every view. It has no state.
type Projector struct {
	Owners Directory
	// RecentIncludeFolders lets opened folders appear in Recent next to files.
	RecentIncludeFolders bool
}

// ActiveChildren lists the active entities directly under parentID ("" for
// root), matching name or location. Default order: name ascending.
func (p Projector) ActiveChildren(snap *drive.Snapshot, parentID string, f Filter) []Item {
	needle := normalize(f.Text)
	items := make([]Item, 0)
	for _, e := range snap.Entities() {
		if e.ParentID != parentID || e.Trashed() {
			continue
		}
		item := newItem(snap, e, p.Owners)
		if !matches(needle, item.Name, item.Location) {
			continue
		}
		items = append(items, item)
	}
	key, dir := f.order(SortName, Asc)
	sortItems(items, key, dir)
	return items
}

// Recent lists active entities that were opened at least once, newest open
// first, truncated to limit when limit > 0.
func (p Projector) Recent(snap *drive.Snapshot, limit int, f Filter) []Item {
	items := p.collect(snap, f, func(e model.Entity) bool {
		if !e.Opened() {
			return false
		}
		return p.RecentIncludeFolders || !e.IsFolder()
	}, func(i Item) []string { return []string{i.Name, i.Location} })
	key, dir := f.order(SortLastOpened, Desc)
	sortItems(items, key, dir)
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

// Shared lists active, shared entities owned by someone other than viewerID,
// matching name or owner display name. Default order: modified descending.
func (p Projector) Shared(snap *drive.Snapshot, viewerID string, f Filter) []Item {
	items := p.collect(snap, f, func(e model.Entity) bool {
		return e.Shared && e.OwnerID != viewerID
	}, func(i Item) []string { return []string{i.Name, i.Owner} })
	key, dir := f.order(SortModified, Desc)
	sortItems(items, key, dir)
	return items
}

// Starred lists active, starred entities. Default order: name ascending.
func (p Projector) Starred(snap *drive.Snapshot, f Filter) []Item {
	items := p.collect(snap, f, func(e model.Entity) bool {
		return e.Starred
	}, func(i Item) []string { return []string{i.Name, i.Location} })
	key, dir := f.order(SortName, Asc)
	sortItems(items, key, dir)
	return items
}

// Trash lists trashed entities annotated with days until purge. Anything whose
// window has closed at now is left out even if no sweep ran yet. Default
// order: trashed descending.
func (p Projector) Trash(snap *drive.Snapshot, now time.Time, f Filter) []Item {
	needle := normalize(f.Text)
	items := make([]Item, 0)
	for _, e := range snap.Entities() {
		if !e.Trashed() {
			continue
		}
		days := model.DaysUntilPurge(e.TrashedAt, now)
		if days == 0 {
			continue
		}
		item := newItem(snap, e, p.Owners)
		if !matches(needle, item.Name, item.Location) {
			continue
		}
		item.DaysUntilPurge = &days
		items = append(items, item)
	}
	key, dir := f.order(SortTrashed, Desc)
	sortItems(items, key, dir)
	return items
}

// collect gathers active entities accepted by keep and matching the filter
// text against the fields returned by search.
func (p Projector) collect(snap *drive.Snapshot, f Filter, keep func(model.Entity) bool, search func(Item) []string) []Item {
	needle := normalize(f.Text)
	items := make([]Item, 0)
	for _, e := range snap.Entities() {
		if e.Trashed() || !keep(e) {
			continue
		}
		item := newItem(snap, e, p.Owners)
		if !matches(needle, search(item)...) {
			continue
		}
		items = append(items, item)
	}
	return items
}
