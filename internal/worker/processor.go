package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/logger"
	"github.com/vityasyyy/dalam-kemasan/internal/queue"
	"github.com/vityasyyy/dalam-kemasan/internal/retention"
	"github.com/vityasyyy/dalam-kemasan/internal/snapshot"
)

// Processor is plugged into the asynq worker loop. It sweeps the persisted
// snapshot directly: load, purge expired trash, save.
type Processor struct {
	repo snapshot.Repository
	now  func() time.Time
}

// NewProcessor constructs a worker processor.
func NewProcessor(repo snapshot.Repository, now func() time.Time) *Processor {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Processor{repo: repo, now: now}
}

// Handler registers the sweep job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.SweepTrashTask, p.handleSweep)
	return mux
}

func (p *Processor) handleSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodeSweep(task)
	if err != nil {
		// A malformed payload will never decode; do not retry it.
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	at := payload.At
	if at.IsZero() {
		at = p.now()
	}
	purged, err := p.Sweep(ctx, at)
	if err != nil {
		if errors.Is(err, snapshot.ErrStale) {
			// The server saved a newer revision meanwhile and sweeps on its own.
			logger.Log.Info().Msg("snapshot changed during sweep, leaving it to the next run")
			return nil
		}
		logger.LogError(err, "sweep task failed", map[string]interface{}{"task": task.Type()})
		return err
	}
	logger.Log.Info().Int("purged", len(purged)).Time("at", at).Msg("sweep task finished")
	return nil
}

// Sweep loads the stored snapshot, purges everything expired at now and saves
// the result when anything changed.
func (p *Processor) Sweep(ctx context.Context, now time.Time) ([]string, error) {
	snap, err := p.repo.Load(ctx)
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	store := drive.NewStore()
	if err := store.Load(snap); err != nil {
		return nil, fmt.Errorf("apply snapshot: %w", err)
	}
	purged, err := retention.New(store, nil, 0, func() time.Time { return now }).Sweep(now)
	if err != nil {
		return nil, err
	}
	if len(purged) == 0 {
		return nil, nil
	}
	if err := p.repo.Save(ctx, store.Snapshot()); err != nil {
		return nil, err
	}
	return purged, nil
}
