package query

import (
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/model"
)

// Source is the read side of the store the engine projects from.
type Source interface {
	Snapshot() *drive.Snapshot
	Revision() uint64
}

type view string

const (
	viewChildren view = "children"
	viewRecent   view = "recent"
	viewShared   view = "shared"
	viewStarred  view = "starred"
)

type cacheKey struct {
	revision uint64
	view     view
	arg      string
	limit    int
	filter   Filter
}

// Engine answers listing requests against the current store state. Results
// for the time-independent views are memoized per revision; Trash depends on
// the clock and is always recomputed.
type Engine struct {
	source    Source
	projector Projector
	now       func() time.Time
	cache     *lru.Cache[cacheKey, []Item]
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineClock overrides the clock used for the Trash view.
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds an engine over source. cacheSize <= 0 disables memoization.
func NewEngine(source Source, projector Projector, cacheSize int, opts ...EngineOption) (*Engine, error) {
	e := &Engine{source: source, projector: projector, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	if cacheSize > 0 {
		cache, err := lru.New[cacheKey, []Item](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create view cache: %w", err)
		}
		e.cache = cache
	}
	return e, nil
}

// ListActiveChildren lists the active children of parentID ("" for root).
func (e *Engine) ListActiveChildren(parentID string, f Filter) ([]Item, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if parentID != "" {
		// Children of a missing or trashed folder are not browsable.
		snap := e.source.Snapshot()
		parent, ok := snap.Get(parentID)
		if !ok || parent.Trashed() {
			return nil, &drive.Error{Kind: drive.KindNotFound, Op: "list", ID: parentID, Message: "folder not found"}
		}
		if !parent.IsFolder() {
			return nil, &drive.Error{Kind: drive.KindValidation, Op: "list", ID: parentID, Message: "not a folder"}
		}
	}
	return e.memo(cacheKey{view: viewChildren, arg: parentID, filter: f}, func(snap *drive.Snapshot) []Item {
		return e.projector.ActiveChildren(snap, parentID, f)
	}), nil
}

// ListRecent lists recently opened entities, at most limit when limit > 0.
func (e *Engine) ListRecent(limit int, f Filter) ([]Item, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return e.memo(cacheKey{view: viewRecent, limit: limit, filter: f}, func(snap *drive.Snapshot) []Item {
		return e.projector.Recent(snap, limit, f)
	}), nil
}

// ListShared lists entities other owners shared with viewerID.
func (e *Engine) ListShared(viewerID string, f Filter) ([]Item, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return e.memo(cacheKey{view: viewShared, arg: viewerID, filter: f}, func(snap *drive.Snapshot) []Item {
		return e.projector.Shared(snap, viewerID, f)
	}), nil
}

// ListStarred lists starred active entities.
func (e *Engine) ListStarred(f Filter) ([]Item, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return e.memo(cacheKey{view: viewStarred, filter: f}, func(snap *drive.Snapshot) []Item {
		return e.projector.Starred(snap, f)
	}), nil
}

// ListTrash lists trashed entities as of the engine clock. It does not sweep;
// callers that need expired items gone from the store go through retention.
func (e *Engine) ListTrash(f Filter) ([]Item, error) {
	return e.ListTrashAt(e.now(), f)
}

// ListTrashAt is ListTrash evaluated at an explicit instant.
func (e *Engine) ListTrashAt(now time.Time, f Filter) ([]Item, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return e.projector.Trash(e.source.Snapshot(), now, f), nil
}

// Describe renders one entity in the same read shape the views use, against
// the current snapshot. Trashed entities carry DaysUntilPurge as of the engine
// clock.
func (e *Engine) Describe(ent model.Entity) Item {
	item := newItem(e.source.Snapshot(), ent, e.projector.Owners)
	if ent.Trashed() {
		days := model.DaysUntilPurge(ent.TrashedAt, e.now())
		item.DaysUntilPurge = &days
	}
	return item
}

func (e *Engine) memo(key cacheKey, build func(*drive.Snapshot) []Item) []Item {
	if e.cache == nil {
		return build(e.source.Snapshot())
	}
	key.revision = e.source.Revision()
	if items, ok := e.cache.Get(key); ok {
		return clone(items)
	}
	snap := e.source.Snapshot()
	items := build(snap)
	key.revision = snap.Revision
	e.cache.Add(key, items)
	return clone(items)
}

// clone copies items deeply enough that callers cannot reach cached values
// through the pointer fields.
func clone(items []Item) []Item {
	out := make([]Item, len(items))
	for i, item := range items {
		item.SizeBytes = copyPtr(item.SizeBytes)
		item.LastOpenedAt = copyPtr(item.LastOpenedAt)
		item.TrashedAt = copyPtr(item.TrashedAt)
		item.DaysUntilPurge = copyPtr(item.DaysUntilPurge)
		out[i] = item
	}
	return out
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
