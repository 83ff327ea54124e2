// Package snapshot persists drive snapshots. A Repository stores the whole
// entity set under one revision; adapters exist for a local file, Postgres
// (internal/repository) and S3-compatible object storage (internal/s3storage).
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/model"
	"github.com/vityasyyy/dalam-kemasan/internal/signing"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FormatVersion is written into every encoded snapshot.
const FormatVersion = 1

var (
	// ErrNoSnapshot is returned by Load when nothing has been saved yet.
	ErrNoSnapshot = errors.New("no snapshot stored")
	// ErrStale is returned by Save when the stored revision is not older than
	// the one being saved.
	ErrStale = errors.New("stored snapshot is newer")
	// ErrTampered is returned when a sealed snapshot fails verification.
	ErrTampered = errors.New("snapshot seal mismatch")
)

// Repository loads and saves whole snapshots. Saving a revision that is not
// newer than the stored one fails with ErrStale, so a writer holding older
// state never overwrites newer state.
type Repository interface {
	Load(ctx context.Context) (*drive.Snapshot, error)
	Save(ctx context.Context, snap *drive.Snapshot) error
}

type body struct {
	Version  int            `json:"version"`
	Revision uint64         `json:"revision"`
	SavedAt  time.Time      `json:"savedAt"`
	Entities []model.Entity `json:"entities"`
}

type envelope struct {
	Revision uint64              `json:"revision"`
	Seal     string              `json:"seal,omitempty"`
	Body     jsoniter.RawMessage `json:"body"`
}

// Codec turns snapshots into bytes and back. With a Signer every encoded
// snapshot is sealed and every decoded one must carry a valid seal.
type Codec struct {
	Signer *signing.Signer
}

// Encode serializes snap.
func (c Codec) Encode(snap *drive.Snapshot, savedAt time.Time) ([]byte, error) {
	raw, err := json.Marshal(body{
		Version:  FormatVersion,
		Revision: snap.Revision,
		SavedAt:  savedAt.UTC(),
		Entities: snap.Entities(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	data, err := json.Marshal(envelope{
		Revision: snap.Revision,
		Seal:     c.Signer.Sign(snap.Revision, raw),
		Body:     raw,
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses data produced by Encode.
func (c Codec) Decode(data []byte) (*drive.Snapshot, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if c.Signer != nil && !c.Signer.Validate(env.Revision, env.Body, env.Seal) {
		return nil, ErrTampered
	}
	var b body
	if err := json.Unmarshal(env.Body, &b); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if b.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", b.Version)
	}
	if b.Revision != env.Revision {
		return nil, ErrTampered
	}
	return drive.NewSnapshot(b.Revision, b.Entities), nil
}

// Revision reads only the revision of an encoded snapshot.
func (c Codec) Revision(data []byte) (uint64, error) {
	rev := json.Get(data, "revision")
	if err := rev.LastError(); err != nil {
		return 0, fmt.Errorf("read snapshot revision: %w", err)
	}
	return rev.ToUint64(), nil
}
