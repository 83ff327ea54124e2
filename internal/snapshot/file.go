package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vityasyyy/dalam-kemasan/internal/drive"
)

// FileRepository keeps the snapshot in a single local file, replaced
// atomically on every save.
type FileRepository struct {
	mu    sync.Mutex
	path  string
	codec Codec
}

// NewFileRepository builds a repository writing to path.
func NewFileRepository(path string, codec Codec) *FileRepository {
	return &FileRepository{path: path, codec: codec}
}

// Load reads the stored snapshot.
func (r *FileRepository) Load(ctx context.Context) (*drive.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	return r.codec.Decode(data)
}

// Save writes snap unless the file already holds the same or a newer revision.
func (r *FileRepository) Save(ctx context.Context, snap *drive.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if current, err := os.ReadFile(r.path); err == nil {
		stored, err := r.codec.Revision(current)
		if err != nil {
			return err
		}
		if stored >= snap.Revision {
			return fmt.Errorf("save revision %d over %d: %w", snap.Revision, stored, ErrStale)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read snapshot file: %w", err)
	}

	data, err := r.codec.Encode(snap, time.Now())
	if err != nil {
		return err
	}
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replace snapshot file: %w", err)
	}
	return nil
}
