// Package processing runs the background write-behind loop that persists the
// store after it changes.
package processing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/logger"
	"github.com/vityasyyy/dalam-kemasan/internal/snapshot"
)

// Source is the part of the store the persister needs.
type Source interface {
	Snapshot() *drive.Snapshot
	Subscribe() (<-chan uint64, func())
}

// Processor saves a fresh snapshot every time the store reports a new
// revision. Bursts collapse: the store's notification channel only keeps the
// newest revision, and a save always takes the current snapshot.
type Processor struct {
	source  Source
	repo    snapshot.Repository
	timeout time.Duration

	mu    sync.Mutex
	saved uint64
	done  chan struct{}
}

// New builds a Processor. timeout bounds each save.
func New(source Source, repo snapshot.Repository, timeout time.Duration) *Processor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Processor{source: source, repo: repo, timeout: timeout, done: make(chan struct{})}
}

// Start launches the loop. Stop it by cancelling ctx; Wait blocks until the
// final flush finished.
func (p *Processor) Start(ctx context.Context) {
	updates, cancel := p.source.Subscribe()
	go func() {
		defer close(p.done)
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				// Flush whatever changed since the last save.
				flushCtx, stop := context.WithTimeout(context.Background(), p.timeout)
				_ = p.Flush(flushCtx)
				stop()
				return
			case <-updates:
				saveCtx, stop := context.WithTimeout(ctx, p.timeout)
				_ = p.Flush(saveCtx)
				stop()
			}
		}
	}()
}

// Wait blocks until the loop started by Start has exited.
func (p *Processor) Wait() { <-p.done }

// Flush saves the current snapshot if it is newer than the last one saved.
func (p *Processor) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.source.Snapshot()
	if snap.Revision <= p.saved {
		return nil
	}
	if err := p.repo.Save(ctx, snap); err != nil {
		if errors.Is(err, snapshot.ErrStale) {
			logger.Log.Warn().Uint64("revision", snap.Revision).Msg("persisted snapshot is newer, skipping save")
			return err
		}
		logger.LogError(err, "snapshot save failed", map[string]interface{}{"revision": snap.Revision})
		return err
	}
	p.saved = snap.Revision
	logger.Log.Debug().Uint64("revision", snap.Revision).Int("entities", snap.Len()).Msg("snapshot saved")
	return nil
}

// MarkSaved records a revision known to be persisted already, e.g. the one
// just loaded at startup.
func (p *Processor) MarkSaved(revision uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if revision > p.saved {
		p.saved = revision
	}
}
