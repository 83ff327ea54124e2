package drive

import (
	"sort"

	"github.com/vityasyyy/dalam-kemasan/internal/model"
)

// Snapshot is an immutable, point-in-time copy of the store. Readers hold it
// without any lock; writers never touch it after creation.
type Snapshot struct {
	Revision uint64
	entities map[string]model.Entity
}

// NewSnapshot builds a snapshot from a flat entity list, as produced by the
// persistence adapters. Later duplicates of an id win.
func NewSnapshot(revision uint64, entities []model.Entity) *Snapshot {
	m := make(map[string]model.Entity, len(entities))
	for _, e := range entities {
		m[e.ID] = e
	}
	return &Snapshot{Revision: revision, entities: m}
}

// Get returns the entity with the given id.
func (s *Snapshot) Get(id string) (model.Entity, bool) {
	e, ok := s.entities[id]
	return e, ok
}

// Len returns the number of entities in the snapshot.
func (s *Snapshot) Len() int { return len(s.entities) }

// Entities returns every entity ordered by id.
func (s *Snapshot) Entities() []model.Entity {
	out := make([]model.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Location returns the slash-joined names of id's ancestors, derived on read.
func (s *Snapshot) Location(id string) string {
	return location(s.entities, id)
}

// Path returns Location plus the entity's own name.
func (s *Snapshot) Path(id string) string {
	e, ok := s.entities[id]
	if !ok {
		return ""
	}
	if loc := s.Location(id); loc != "" {
		return loc + "/" + e.Name
	}
	return e.Name
}

// HasTrashedAncestor reports whether any folder above id is in the trash.
func (s *Snapshot) HasTrashedAncestor(id string) bool {
	chain, err := ancestors(s.entities, id)
	if err != nil {
		return false
	}
	for _, ancestorID := range chain {
		if s.entities[ancestorID].Trashed() {
			return true
		}
	}
	return false
}
