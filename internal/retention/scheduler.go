// Package retention enforces the trash window: anything trashed for
// model.RetentionDays or longer is purged, on a timer and before every trash
// listing.
package retention

import (
	"context"
	"errors"
	"time"

	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/logger"
	"github.com/vityasyyy/dalam-kemasan/internal/query"
)

// DefaultInterval is used when the scheduler is built with a non-positive
// interval.
const DefaultInterval = time.Hour

// Purger is the store capability the scheduler drives.
type Purger interface {
	PurgeExpired(now time.Time) ([]string, error)
}

// TrashLister renders the trash at a given instant.
type TrashLister interface {
	ListTrashAt(now time.Time, f query.Filter) ([]query.Item, error)
}

// Scheduler sweeps expired trash. Sweeps are serialized by the store's
// critical section, so overlapping timer and request sweeps are harmless.
type Scheduler struct {
	store    Purger
	lister   TrashLister
	interval time.Duration
	now      func() time.Time
}

// New builds a Scheduler. lister may be nil when only timed sweeps are needed.
func New(store Purger, lister TrashLister, interval time.Duration, now func() time.Time) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{store: store, lister: lister, interval: interval, now: now}
}

// Sweep purges everything whose retention window has closed at now and
// returns the purged ids, deepest first. An entity that vanished during the
// sweep is not an error.
func (s *Scheduler) Sweep(now time.Time) ([]string, error) {
	purged, err := s.store.PurgeExpired(now)
	if err != nil && !errors.Is(err, drive.ErrNotFound) {
		logger.LogError(err, "trash sweep failed", map[string]interface{}{"at": now})
		return purged, err
	}
	if len(purged) > 0 {
		logger.Log.Info().Int("purged", len(purged)).Time("at", now).Msg("expired trash purged")
	}
	return purged, nil
}

// ListTrash sweeps first, then lists the trash at the same instant, so nothing
// past its window is ever shown.
func (s *Scheduler) ListTrash(f query.Filter) ([]query.Item, error) {
	if s.lister == nil {
		return nil, errors.New("retention scheduler has no trash lister")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	if _, err := s.Sweep(now); err != nil {
		return nil, err
	}
	return s.lister.ListTrashAt(now, f)
}

// Start runs a sweep immediately and then once per interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	logger.Log.Info().Dur("interval", s.interval).Msg("retention scheduler started")
	if _, err := s.Sweep(s.now()); errors.Is(err, drive.ErrHalted) {
		logger.Log.Warn().Msg("store halted, retention scheduler not running")
		return
	}
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info().Msg("retention scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(s.now()); errors.Is(err, drive.ErrHalted) {
				// Nothing will succeed until the store is reloaded.
				logger.Log.Warn().Msg("store halted, retention scheduler stopped")
				return
			}
		}
	}
}
