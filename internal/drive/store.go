// Package drive owns the file/folder metadata and every command that mutates
// it. All writes go through one critical section so cascades never interleave;
// readers work on immutable snapshots.
package drive

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vityasyyy/dalam-kemasan/internal/logger"
	"github.com/vityasyyy/dalam-kemasan/internal/model"
)

// CreateInput carries the arguments of Create. MediaType and SizeBytes only
// apply to files.
type CreateInput struct {
	Kind      model.Kind
	Name      string
	ParentID  string
	OwnerID   string
	MediaType model.MediaType
	SizeBytes int64
}

// Store is the single source of truth for entities. RWMutex lets snapshot
// readers proceed together while commands take the write lock one at a time.
type Store struct {
	mu       sync.RWMutex
	entities map[string]model.Entity
	revision uint64
	halted   error

	now   func() time.Time
	newID func() string

	subMu   sync.Mutex
	subs    map[int]chan uint64
	nextSub int
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now for timestamps the store assigns itself.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// NewStore constructs an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		entities: make(map[string]model.Entity),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
		subs:     make(map[int]chan uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Revision returns the current revision. It grows by one per state change.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.revision
}

// Get returns a copy of one entity.
func (s *Store) Get(id string) (model.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[id]
	if !ok {
		return model.Entity{}, notFoundError("get", id)
	}
	return e, nil
}

// Snapshot copies the current state. Entity is a pure value type, so copying
// the map is enough to detach the snapshot from later writes.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := make(map[string]model.Entity, len(s.entities))
	for id, e := range s.entities {
		m[id] = e
	}
	return &Snapshot{Revision: s.revision, entities: m}
}

// Subscribe returns a channel that receives the new revision after every state
// change, plus a cancel func. Slow subscribers miss intermediate revisions but
// always see a later one.
func (s *Store) Subscribe() (<-chan uint64, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan uint64, 1)
	s.subs[id] = ch
	return ch, func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

func (s *Store) publish(revision uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- revision:
		default:
			// Drop the stale pending value and keep the newest one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- revision:
			default:
			}
		}
	}
}

// begin takes the write lock and refuses to proceed on a halted store. The
// returned func releases the lock and publishes the revision if it changed.
func (s *Store) begin() (func(), error) {
	s.mu.Lock()
	if s.halted != nil {
		s.mu.Unlock()
		return nil, ErrHalted
	}
	start := s.revision
	return func() {
		rev := s.revision
		s.mu.Unlock()
		if rev != start {
			s.publish(rev)
		}
	}, nil
}

// fail records an invariant violation and halts further mutation. Callers
// hold the write lock.
func (s *Store) fail(op string, err error) error {
	if errors.Is(err, ErrInvariant) {
		s.halted = err
		logger.LogError(err, "drive store halted", map[string]interface{}{"op": op})
	}
	return err
}

func (s *Store) bump() { s.revision++ }

// Create adds a new file or folder under ParentID ("" for root).
func (s *Store) Create(in CreateInput) (model.Entity, error) {
	const op = "create"
	done, err := s.begin()
	if err != nil {
		return model.Entity{}, err
	}
	defer done()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return model.Entity{}, validationError(op, "", "name must not be empty")
	}
	if !in.Kind.Valid() {
		return model.Entity{}, validationError(op, "", fmt.Sprintf("unknown kind %q", in.Kind))
	}
	if strings.TrimSpace(in.OwnerID) == "" {
		return model.Entity{}, validationError(op, "", "owner must not be empty")
	}
	mediaType := in.MediaType
	switch in.Kind {
	case model.KindFolder:
		if mediaType != "" || in.SizeBytes != 0 {
			return model.Entity{}, validationError(op, "", "folders carry no media type or size")
		}
	case model.KindFile:
		if in.SizeBytes < 0 {
			return model.Entity{}, validationError(op, "", "size must not be negative")
		}
		if mediaType == "" {
			mediaType = model.MediaTypeFromName(name)
		}
		if !mediaType.Valid() {
			return model.Entity{}, validationError(op, "", fmt.Sprintf("unknown media type %q", mediaType))
		}
	}
	if err := s.checkTargetFolder(op, "", in.ParentID); err != nil {
		return model.Entity{}, err
	}

	id := s.newID()
	if _, exists := s.entities[id]; exists || id == "" {
		return model.Entity{}, conflictError(op, id, "identifier already in use")
	}
	now := s.now()
	e := model.Entity{
		ID:         id,
		Name:       name,
		Kind:       in.Kind,
		MediaType:  mediaType,
		SizeBytes:  in.SizeBytes,
		ParentID:   in.ParentID,
		OwnerID:    in.OwnerID,
		CreatedAt:  now,
		ModifiedAt: now,
	}
	s.entities[id] = e
	s.bump()
	return e, nil
}

// checkTargetFolder validates that parentID may receive children: it is root,
// or an existing, active folder.
func (s *Store) checkTargetFolder(op, id, parentID string) error {
	if parentID == "" {
		return nil
	}
	parent, ok := s.entities[parentID]
	if !ok {
		return validationError(op, id, fmt.Sprintf("parent %s does not exist", parentID))
	}
	if !parent.IsFolder() {
		return validationError(op, id, fmt.Sprintf("parent %s is not a folder", parentID))
	}
	if parent.Trashed() {
		return validationError(op, id, fmt.Sprintf("parent %s is in the trash", parentID))
	}
	return nil
}

// Rename changes the entity's display name.
func (s *Store) Rename(id, name string) (model.Entity, error) {
	const op = "rename"
	done, err := s.begin()
	if err != nil {
		return model.Entity{}, err
	}
	defer done()

	e, ok := s.entities[id]
	if !ok {
		return model.Entity{}, notFoundError(op, id)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Entity{}, validationError(op, id, "name must not be empty")
	}
	if e.Name == name {
		return e, nil
	}
	e.Name = name
	e.ModifiedAt = s.modifiedAfter(e)
	s.entities[id] = e
	s.bump()
	return e, nil
}

// modifiedAfter returns a modification time that never precedes CreatedAt,
// even when the injected clock runs backwards.
func (s *Store) modifiedAfter(e model.Entity) time.Time {
	now := s.now()
	if now.Before(e.CreatedAt) {
		return e.CreatedAt
	}
	return now
}

// Move re-parents an active entity. A failed check leaves the tree untouched.
func (s *Store) Move(id, parentID string) (model.Entity, error) {
	const op = "move"
	done, err := s.begin()
	if err != nil {
		return model.Entity{}, err
	}
	defer done()

	e, ok := s.entities[id]
	if !ok {
		return model.Entity{}, notFoundError(op, id)
	}
	if e.Trashed() {
		return model.Entity{}, conflictError(op, id, "cannot move an item that is in the trash")
	}
	if parentID == id {
		return model.Entity{}, validationError(op, id, "cannot move an item into itself")
	}
	if err := s.checkTargetFolder(op, id, parentID); err != nil {
		return model.Entity{}, err
	}
	if parentID != "" {
		chain, err := ancestors(s.entities, parentID)
		if err != nil {
			return model.Entity{}, s.fail(op, err)
		}
		for _, ancestorID := range chain {
			if ancestorID == id {
				return model.Entity{}, validationError(op, id, "cannot move a folder into its own descendant")
			}
		}
	}
	if e.ParentID == parentID {
		return e, nil
	}
	e.ParentID = parentID
	e.ModifiedAt = s.modifiedAfter(e)
	s.entities[id] = e
	s.bump()
	return e, nil
}

// SetStarred sets the starred flag. Trash state does not matter.
func (s *Store) SetStarred(id string, value bool) (model.Entity, error) {
	return s.setFlag("set-starred", id, func(e *model.Entity) bool {
		if e.Starred == value {
			return false
		}
		e.Starred = value
		return true
	})
}

// SetShared sets the shared flag.
func (s *Store) SetShared(id string, value bool) (model.Entity, error) {
	return s.setFlag("set-shared", id, func(e *model.Entity) bool {
		if e.Shared == value {
			return false
		}
		e.Shared = value
		return true
	})
}

func (s *Store) setFlag(op, id string, apply func(*model.Entity) bool) (model.Entity, error) {
	done, err := s.begin()
	if err != nil {
		return model.Entity{}, err
	}
	defer done()

	e, ok := s.entities[id]
	if !ok {
		return model.Entity{}, notFoundError(op, id)
	}
	if apply(&e) {
		s.entities[id] = e
		s.bump()
	}
	return e, nil
}

// TouchOpened records an explicit open; the Recent view orders by it.
func (s *Store) TouchOpened(id string, now time.Time) (model.Entity, error) {
	const op = "open"
	done, err := s.begin()
	if err != nil {
		return model.Entity{}, err
	}
	defer done()

	e, ok := s.entities[id]
	if !ok {
		return model.Entity{}, notFoundError(op, id)
	}
	if e.Trashed() {
		return model.Entity{}, conflictError(op, id, "cannot open an item that is in the trash")
	}
	if e.LastOpenedAt.Equal(now) {
		return e, nil
	}
	e.LastOpenedAt = now
	s.entities[id] = e
	s.bump()
	return e, nil
}

// Trash soft-deletes the entity. For a folder every descendant that is not
// already trashed receives the same timestamp and batch.
func (s *Store) Trash(id string, now time.Time) (model.Entity, error) {
	const op = "trash"
	done, err := s.begin()
	if err != nil {
		return model.Entity{}, err
	}
	defer done()

	e, ok := s.entities[id]
	if !ok {
		return model.Entity{}, notFoundError(op, id)
	}
	if e.Trashed() {
		return model.Entity{}, conflictError(op, id, "item is already in the trash")
	}
	if now.IsZero() {
		return model.Entity{}, validationError(op, id, "trash time must be set")
	}

	var batch []string
	if e.IsFolder() {
		below, err := descendants(childrenIndex(s.entities), id)
		if err != nil {
			return model.Entity{}, s.fail(op, err)
		}
		batch = below
	}
	batch = append(batch, id)
	for _, memberID := range batch {
		member := s.entities[memberID]
		if member.Trashed() {
			continue
		}
		member.TrashedAt = now
		member.TrashedWith = id
		s.entities[memberID] = member
	}
	s.bump()
	return s.entities[id], nil
}

// Restore brings back the entity and exactly the descendants that were
// trashed by the same command. Items trashed on their own stay in the trash.
func (s *Store) Restore(id string) (model.Entity, error) {
	const op = "restore"
	done, err := s.begin()
	if err != nil {
		return model.Entity{}, err
	}
	defer done()

	e, err := s.restoreLocked(op, id)
	if err != nil {
		return model.Entity{}, err
	}
	s.bump()
	return e, nil
}

func (s *Store) restoreLocked(op, id string) (model.Entity, error) {
	e, ok := s.entities[id]
	if !ok {
		return model.Entity{}, notFoundError(op, id)
	}
	if !e.Trashed() {
		return model.Entity{}, conflictError(op, id, "item is not in the trash")
	}
	chain, err := ancestors(s.entities, id)
	if err != nil {
		return model.Entity{}, s.fail(op, err)
	}
	for _, ancestorID := range chain {
		if s.entities[ancestorID].Trashed() {
			return model.Entity{}, conflictError(op, id, fmt.Sprintf("containing folder %s is in the trash", ancestorID))
		}
	}

	batch := e.TrashedWith
	if batch == "" {
		batch = id
	}
	trashedAt := e.TrashedAt
	members := []string{id}
	if e.IsFolder() {
		below, err := descendants(childrenIndex(s.entities), id)
		if err != nil {
			return model.Entity{}, s.fail(op, err)
		}
		members = append(members, below...)
	}
	for _, memberID := range members {
		member := s.entities[memberID]
		if !member.Trashed() || !member.TrashedAt.Equal(trashedAt) {
			continue
		}
		if memberID != id && member.TrashedWith != batch {
			continue
		}
		member.TrashedAt = time.Time{}
		member.TrashedWith = ""
		s.entities[memberID] = member
	}
	return s.entities[id], nil
}

// Purge permanently removes the entity and its descendants, children first.
func (s *Store) Purge(id string) ([]string, error) {
	const op = "purge"
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	if _, ok := s.entities[id]; !ok {
		return nil, notFoundError(op, id)
	}
	removed, err := s.purgeLocked(id)
	if err != nil {
		return nil, s.fail(op, err)
	}
	s.bump()
	return removed, nil
}

// purgeLocked deletes id and everything below it leaf-first. An id that is
// already gone is a no-op.
func (s *Store) purgeLocked(id string) ([]string, error) {
	if _, ok := s.entities[id]; !ok {
		return nil, nil
	}
	below, err := descendants(childrenIndex(s.entities), id)
	if err != nil {
		return nil, err
	}
	removed := append(below, id)
	for _, memberID := range removed {
		delete(s.entities, memberID)
	}
	return removed, nil
}

// PurgeExpired removes every trashed entity whose retention window has closed
// at now, deepest entities first. Running it twice at the same instant changes
// nothing the second time.
func (s *Store) PurgeExpired(now time.Time) ([]string, error) {
	const op = "purge-expired"
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	type candidate struct {
		id    string
		depth int
	}
	var expired []candidate
	for id, e := range s.entities {
		if !e.Trashed() || model.DaysUntilPurge(e.TrashedAt, now) > 0 {
			continue
		}
		chain, err := ancestors(s.entities, id)
		if err != nil {
			return nil, s.fail(op, err)
		}
		expired = append(expired, candidate{id: id, depth: len(chain)})
	}
	if len(expired) == 0 {
		return nil, nil
	}
	sort.Slice(expired, func(i, j int) bool {
		if expired[i].depth != expired[j].depth {
			return expired[i].depth > expired[j].depth
		}
		return expired[i].id < expired[j].id
	})

	var purged []string
	for _, c := range expired {
		removed, err := s.purgeLocked(c.id)
		if err != nil {
			return purged, s.fail(op, err)
		}
		purged = append(purged, removed...)
	}
	s.bump()
	return purged, nil
}

// EmptyTrash purges everything in the trash.
func (s *Store) EmptyTrash() ([]string, error) {
	const op = "empty-trash"
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	var purged []string
	for _, id := range s.sortedIDs() {
		e, ok := s.entities[id]
		if !ok || !e.Trashed() {
			continue
		}
		removed, err := s.purgeLocked(id)
		if err != nil {
			return purged, s.fail(op, err)
		}
		purged = append(purged, removed...)
	}
	if len(purged) > 0 {
		s.bump()
	}
	return purged, nil
}

// RestoreAll restores every trashed entity. Each pass restores the trashed
// items whose containing folder is already active, until none remain.
func (s *Store) RestoreAll() ([]string, error) {
	const op = "restore-all"
	done, err := s.begin()
	if err != nil {
		return nil, err
	}
	defer done()

	var restored []string
	for {
		progress := false
		for _, id := range s.sortedIDs() {
			e := s.entities[id]
			if !e.Trashed() {
				continue
			}
			if parent, ok := s.entities[e.ParentID]; ok && parent.Trashed() {
				continue
			}
			if _, err := s.restoreLocked(op, id); err != nil {
				if errors.Is(err, ErrInvariant) {
					return restored, err
				}
				continue
			}
			restored = append(restored, id)
			progress = true
		}
		if !progress {
			break
		}
	}
	if len(restored) > 0 {
		s.bump()
	}
	return restored, nil
}

func (s *Store) sortedIDs() []string {
	ids := make([]string, 0, len(s.entities))
	for id := range s.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Load replaces the store's content with a persisted snapshot after checking
// its tree invariants. A rejected snapshot leaves the store unchanged. A
// successful load also clears a previous halt.
func (s *Store) Load(snap *Snapshot) error {
	const op = "load"
	if snap == nil {
		return validationError(op, "", "snapshot is nil")
	}
	if err := validateTree(snap.entities); err != nil {
		return err
	}

	s.mu.Lock()
	m := make(map[string]model.Entity, len(snap.entities))
	for id, e := range snap.entities {
		m[id] = e
	}
	s.entities = m
	s.halted = nil
	if snap.Revision > s.revision {
		s.revision = snap.Revision
	} else {
		s.revision++
	}
	rev := s.revision
	s.mu.Unlock()
	s.publish(rev)
	return nil
}

func validateTree(entities map[string]model.Entity) error {
	const op = "load"
	for id, e := range entities {
		switch {
		case id == "" || e.ID != id:
			return validationError(op, id, "entity id mismatch")
		case strings.TrimSpace(e.Name) == "":
			return validationError(op, id, "name must not be empty")
		case !e.Kind.Valid():
			return validationError(op, id, fmt.Sprintf("unknown kind %q", e.Kind))
		case e.SizeBytes < 0:
			return validationError(op, id, "size must not be negative")
		case e.ModifiedAt.Before(e.CreatedAt):
			return validationError(op, id, "modified before created")
		case e.IsFolder() && (e.MediaType != "" || e.SizeBytes != 0):
			return validationError(op, id, "folders carry no media type or size")
		case !e.IsFolder() && !e.MediaType.Valid():
			return validationError(op, id, fmt.Sprintf("unknown media type %q", e.MediaType))
		case !e.Trashed() && e.TrashedWith != "":
			return validationError(op, id, "active item carries a trash batch")
		}
		if e.ParentID == "" {
			continue
		}
		parent, ok := entities[e.ParentID]
		if !ok || !parent.IsFolder() {
			return validationError(op, id, fmt.Sprintf("parent %s is missing or not a folder", e.ParentID))
		}
		chain, err := ancestors(entities, id)
		if err != nil {
			return validationError(op, id, err.Error())
		}
		if !e.Trashed() {
			for _, ancestorID := range chain {
				if entities[ancestorID].Trashed() {
					return validationError(op, id, "active item below a trashed folder")
				}
			}
		}
	}
	return nil
}
