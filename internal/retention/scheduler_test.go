package retention

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/logger"
	"github.com/vityasyyy/dalam-kemasan/internal/model"
	"github.com/vityasyyy/dalam-kemasan/internal/query"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	store     *drive.Store
	clock     *clock
	scheduler *Scheduler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	logger.SetOutput(io.Discard)
	c := &clock{now: t0}
	n := 0
	store := drive.NewStore(drive.WithClock(c.Now), drive.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("id%02d", n)
	}))
	engine, err := query.NewEngine(store, query.Projector{}, 8, query.WithEngineClock(c.Now))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return fixture{store: store, clock: c, scheduler: New(store, engine, time.Hour, c.Now)}
}

func (f fixture) create(t *testing.T, kind model.Kind, name, parent string) model.Entity {
	t.Helper()
	e, err := f.store.Create(drive.CreateInput{Kind: kind, Name: name, ParentID: parent, OwnerID: "alice"})
	if err != nil {
		t.Fatalf("create %s: %v", name, err)
	}
	return e
}

func itemIDs(items []query.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func TestFolderCascadeExpiresTogether(t *testing.T) {
	f := newFixture(t)
	projects := f.create(t, model.KindFolder, "Projects", "")
	plan := f.create(t, model.KindFile, "a.txt", projects.ID)
	if _, err := f.store.Trash(projects.ID, t0); err != nil {
		t.Fatalf("trash: %v", err)
	}

	f.clock.Set(t0.Add(29 * day))
	items, err := f.scheduler.ListTrash(query.Filter{})
	if err != nil {
		t.Fatalf("ListTrash: %v", err)
	}
	if diff := cmp.Diff([]string{projects.ID, plan.ID}, itemIDs(items)); diff != "" {
		t.Fatalf("trash mismatch (-want +got):\n%s", diff)
	}
	for _, item := range items {
		if item.DaysUntilPurge == nil || *item.DaysUntilPurge != 1 {
			t.Fatalf("%s: days until purge = %v", item.ID, item.DaysUntilPurge)
		}
	}
	if items[1].Location != "Projects" {
		t.Fatalf("child location = %q", items[1].Location)
	}

	f.clock.Set(t0.Add(30 * day))
	items, err = f.scheduler.ListTrash(query.Filter{})
	if err != nil {
		t.Fatalf("ListTrash: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty trash, got %v", itemIDs(items))
	}
	if f.store.Snapshot().Len() != 0 {
		t.Fatalf("expired entities were not purged")
	}
}

func TestSweepIsIdempotentAndLeafFirst(t *testing.T) {
	f := newFixture(t)
	a := f.create(t, model.KindFolder, "a", "")
	b := f.create(t, model.KindFolder, "b", a.ID)
	c := f.create(t, model.KindFile, "c.txt", b.ID)
	keep := f.create(t, model.KindFile, "keep.txt", "")
	if _, err := f.store.Trash(a.ID, t0); err != nil {
		t.Fatalf("trash: %v", err)
	}

	now := t0.Add(31 * day)
	purged, err := f.scheduler.Sweep(now)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if diff := cmp.Diff([]string{c.ID, b.ID, a.ID}, purged); diff != "" {
		t.Fatalf("purge order mismatch (-want +got):\n%s", diff)
	}
	rev := f.store.Revision()
	purged, err = f.scheduler.Sweep(now)
	if err != nil || len(purged) != 0 {
		t.Fatalf("second sweep: %v %v", purged, err)
	}
	if f.store.Revision() != rev {
		t.Fatalf("no-op sweep bumped the revision")
	}
	if _, err := f.store.Get(keep.ID); err != nil {
		t.Fatalf("active entity lost: %v", err)
	}
}

func TestListTrashRejectsBadFilterWithoutSweeping(t *testing.T) {
	f := newFixture(t)
	x := f.create(t, model.KindFile, "x", "")
	if _, err := f.store.Trash(x.ID, t0); err != nil {
		t.Fatalf("trash: %v", err)
	}
	f.clock.Set(t0.Add(40 * day))
	if _, err := f.scheduler.ListTrash(query.Filter{SortDir: "sideways"}); err == nil {
		t.Fatalf("expected invalid filter to fail")
	}
	if _, err := f.store.Get(x.ID); err != nil {
		t.Fatalf("sweep ran for a rejected request: %v", err)
	}
}

func TestStartSweepsUntilCancelled(t *testing.T) {
	f := newFixture(t)
	x := f.create(t, model.KindFile, "x", "")
	if _, err := f.store.Trash(x.ID, t0); err != nil {
		t.Fatalf("trash: %v", err)
	}
	f.clock.Set(t0.Add(30 * day))

	updates, cancelSub := f.store.Subscribe()
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.scheduler.Start(ctx)

	select {
	case <-updates:
	case <-time.After(2 * time.Second):
		t.Fatalf("scheduler did not sweep on start")
	}
	if _, err := f.store.Get(x.ID); err == nil {
		t.Fatalf("expired entity still present")
	}
}

type haltedStore struct {
	mu    sync.Mutex
	calls int
}

func (h *haltedStore) PurgeExpired(time.Time) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return nil, drive.ErrHalted
}

func (h *haltedStore) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func TestStartStopsWhenStoreIsHalted(t *testing.T) {
	logger.SetOutput(io.Discard)
	store := &haltedStore{}
	s := New(store, nil, 5*time.Millisecond, func() time.Time { return t0 })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	time.Sleep(60 * time.Millisecond)
	if got := store.Calls(); got != 1 {
		t.Fatalf("expected the loop to stop after the first halted sweep, swept %d times", got)
	}
}
