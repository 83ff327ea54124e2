package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/model"
	"github.com/vityasyyy/dalam-kemasan/internal/snapshot"
)

var entityColumns = []string{
	"id", "name", "kind", "media_type", "size_bytes", "parent_id", "owner_id",
	"created_at", "modified_at", "last_opened_at", "starred", "shared",
	"trashed_at", "trashed_with",
}

// entityRecord mirrors a drive_entities row. Optional columns are pointers so
// empty strings and zero times round-trip as NULL.
type entityRecord struct {
	ID           string
	Name         string
	Kind         string
	MediaType    *string
	SizeBytes    int64
	ParentID     *string
	OwnerID      string
	CreatedAt    time.Time
	ModifiedAt   time.Time
	LastOpenedAt *time.Time
	Starred      bool
	Shared       bool
	TrashedAt    *time.Time
	TrashedWith  *string
}

func toRecord(e model.Entity) entityRecord {
	return entityRecord{
		ID:           e.ID,
		Name:         e.Name,
		Kind:         string(e.Kind),
		MediaType:    nullString(string(e.MediaType)),
		SizeBytes:    e.SizeBytes,
		ParentID:     nullString(e.ParentID),
		OwnerID:      e.OwnerID,
		CreatedAt:    e.CreatedAt,
		ModifiedAt:   e.ModifiedAt,
		LastOpenedAt: nullTime(e.LastOpenedAt),
		Starred:      e.Starred,
		Shared:       e.Shared,
		TrashedAt:    nullTime(e.TrashedAt),
		TrashedWith:  nullString(e.TrashedWith),
	}
}

func (r entityRecord) values() []any {
	return []any{
		r.ID, r.Name, r.Kind, r.MediaType, r.SizeBytes, r.ParentID, r.OwnerID,
		r.CreatedAt, r.ModifiedAt, r.LastOpenedAt, r.Starred, r.Shared,
		r.TrashedAt, r.TrashedWith,
	}
}

func (r entityRecord) entity() model.Entity {
	return model.Entity{
		ID:           r.ID,
		Name:         r.Name,
		Kind:         model.Kind(r.Kind),
		MediaType:    model.MediaType(deref(r.MediaType)),
		SizeBytes:    r.SizeBytes,
		ParentID:     deref(r.ParentID),
		OwnerID:      r.OwnerID,
		CreatedAt:    r.CreatedAt.UTC(),
		ModifiedAt:   r.ModifiedAt.UTC(),
		LastOpenedAt: derefTime(r.LastOpenedAt),
		Starred:      r.Starred,
		Shared:       r.Shared,
		TrashedAt:    derefTime(r.TrashedAt),
		TrashedWith:  deref(r.TrashedWith),
	}
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

// SnapshotRepository stores the drive in Postgres: one row per entity plus
// the revision in drive_meta. Saves replace the whole set in one transaction.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

var _ snapshot.Repository = (*SnapshotRepository)(nil)

// NewSnapshotRepository constructs a repository.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Load reads the stored snapshot from a consistent read-only transaction.
func (r *SnapshotRepository) Load(ctx context.Context) (*drive.Snapshot, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin load: %w", err)
	}
	defer tx.Rollback(ctx)

	var revision int64
	if err := tx.QueryRow(ctx, `SELECT revision FROM drive_meta WHERE id = 1`).Scan(&revision); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, snapshot.ErrNoSnapshot
		}
		return nil, fmt.Errorf("select revision: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT id, name, kind, media_type, size_bytes, parent_id, owner_id,
			created_at, modified_at, last_opened_at, starred, shared,
			trashed_at, trashed_with
		FROM drive_entities ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select entities: %w", err)
	}
	entities, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Entity, error) {
		var rec entityRecord
		err := row.Scan(&rec.ID, &rec.Name, &rec.Kind, &rec.MediaType, &rec.SizeBytes, &rec.ParentID, &rec.OwnerID,
			&rec.CreatedAt, &rec.ModifiedAt, &rec.LastOpenedAt, &rec.Starred, &rec.Shared,
			&rec.TrashedAt, &rec.TrashedWith)
		return rec.entity(), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan entities: %w", err)
	}
	return drive.NewSnapshot(uint64(revision), entities), nil
}

// Save replaces the stored entity set with snap. The drive_meta row is locked
// for the duration so concurrent savers serialize on it; a saver whose
// revision is not newer than the stored one gets snapshot.ErrStale.
func (r *SnapshotRepository) Save(ctx context.Context, snap *drive.Snapshot) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	if _, err := tx.Exec(ctx, `
		INSERT INTO drive_meta (id, revision, saved_at) VALUES (1, -1, $1)
		ON CONFLICT (id) DO NOTHING`, now); err != nil {
		return fmt.Errorf("seed drive_meta: %w", err)
	}
	var stored int64
	if err := tx.QueryRow(ctx, `SELECT revision FROM drive_meta WHERE id = 1 FOR UPDATE`).Scan(&stored); err != nil {
		return fmt.Errorf("lock drive_meta: %w", err)
	}
	// -1 marks the row seeded by this transaction.
	if stored >= 0 && uint64(stored) >= snap.Revision {
		return fmt.Errorf("save revision %d over %d: %w", snap.Revision, stored, snapshot.ErrStale)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM drive_entities`); err != nil {
		return fmt.Errorf("clear entities: %w", err)
	}
	entities := snap.Entities()
	rows := make([][]any, 0, len(entities))
	for _, e := range entities {
		rows = append(rows, toRecord(e).values())
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{"drive_entities"}, entityColumns, pgx.CopyFromRows(rows)); err != nil {
		return fmt.Errorf("copy entities: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE drive_meta SET revision = $1, saved_at = $2 WHERE id = 1`, int64(snap.Revision), now); err != nil {
		return fmt.Errorf("update drive_meta: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}
