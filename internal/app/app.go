// Package app wires configuration into a running drive: persistence backend,
// store, query engine and retention scheduler. The server, worker and CLI all
// start from here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/vityasyyy/dalam-kemasan/internal/config"
	"github.com/vityasyyy/dalam-kemasan/internal/database"
	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/logger"
	"github.com/vityasyyy/dalam-kemasan/internal/query"
	"github.com/vityasyyy/dalam-kemasan/internal/repository"
	"github.com/vityasyyy/dalam-kemasan/internal/retention"
	"github.com/vityasyyy/dalam-kemasan/internal/s3storage"
	"github.com/vityasyyy/dalam-kemasan/internal/signing"
	"github.com/vityasyyy/dalam-kemasan/internal/snapshot"
)

// Drive bundles the in-process components built from one Config.
type Drive struct {
	Config    *config.Config
	Store     *drive.Store
	Engine    *query.Engine
	Retention *retention.Scheduler
	// Repo is nil for the memory backend.
	Repo snapshot.Repository

	closers []func()
}

// Open builds a Drive and loads the persisted snapshot, if any.
func Open(ctx context.Context, cfg *config.Config, opts ...drive.Option) (*Drive, error) {
	repo, closeRepo, err := OpenRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	d := &Drive{Config: cfg, Repo: repo}
	if closeRepo != nil {
		d.closers = append(d.closers, closeRepo)
	}

	d.Store = drive.NewStore(opts...)
	if repo != nil {
		snap, err := repo.Load(ctx)
		switch {
		case errors.Is(err, snapshot.ErrNoSnapshot):
			logger.Log.Info().Str("backend", cfg.Backend).Msg("no snapshot stored, starting empty")
		case err != nil:
			d.Close()
			return nil, fmt.Errorf("load snapshot: %w", err)
		default:
			if err := d.Store.Load(snap); err != nil {
				d.Close()
				return nil, fmt.Errorf("apply snapshot: %w", err)
			}
			logger.Log.Info().Str("backend", cfg.Backend).Uint64("revision", snap.Revision).Int("entities", snap.Len()).Msg("snapshot loaded")
		}
	}

	projector := query.Projector{
		Owners:               query.DirectoryMap(cfg.Owners),
		RecentIncludeFolders: cfg.Views.RecentIncludeFolders,
	}
	d.Engine, err = query.NewEngine(d.Store, projector, cfg.Views.CacheSize)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Retention = retention.New(d.Store, d.Engine, cfg.Retention.SweepInterval, nil)
	return d, nil
}

// Save persists the current state. It is a no-op for the memory backend.
func (d *Drive) Save(ctx context.Context) error {
	if d.Repo == nil {
		return nil
	}
	return d.Repo.Save(ctx, d.Store.Snapshot())
}

// Close releases backend connections.
func (d *Drive) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}

// OpenRepository builds the snapshot repository selected by cfg.Backend. The
// returned close func may be nil.
func OpenRepository(ctx context.Context, cfg *config.Config) (snapshot.Repository, func(), error) {
	codec := snapshot.Codec{Signer: signing.NewSigner([]byte(cfg.SealSecret))}
	switch cfg.Backend {
	case config.BackendMemory:
		return nil, nil, nil
	case config.BackendFile:
		return snapshot.NewFileRepository(cfg.SnapshotPath, codec), nil, nil
	case config.BackendPostgres:
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := database.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repository.NewSnapshotRepository(pool), pool.Close, nil
	case config.BackendS3:
		store, err := s3storage.New(cfg, codec)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
