package query

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/vityasyyy/dalam-kemasan/internal/drive"
	"github.com/vityasyyy/dalam-kemasan/internal/model"
)

var t0 = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFixture(t *testing.T) (*drive.Store, *clock) {
	t.Helper()
	c := &clock{now: t0}
	n := 0
	s := drive.NewStore(drive.WithClock(c.Now), drive.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("e%03d", n)
	}))
	return s, c
}

func create(t *testing.T, s *drive.Store, kind model.Kind, name, parent, owner string, size int64) model.Entity {
	t.Helper()
	if owner == "" {
		owner = "alice"
	}
	e, err := s.Create(drive.CreateInput{Kind: kind, Name: name, ParentID: parent, OwnerID: owner, SizeBytes: size})
	if err != nil {
		t.Fatalf("create %q: %v", name, err)
	}
	return e
}

func ids(items []Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func TestActiveChildrenDefaultsAndSorting(t *testing.T) {
	s, c := newFixture(t)
	docs := create(t, s, model.KindFolder, "Documents", "", "", 0)
	b := create(t, s, model.KindFile, "beta.txt", docs.ID, "", 300)
	c.Advance(time.Minute)
	a := create(t, s, model.KindFile, "Alpha.txt", docs.ID, "", 100)
	c.Advance(time.Minute)
	g := create(t, s, model.KindFile, "gamma.txt", docs.ID, "", 200)

	p := Projector{}
	snap := s.Snapshot()

	got := p.ActiveChildren(snap, docs.ID, Filter{})
	if diff := cmp.Diff([]string{a.ID, b.ID, g.ID}, ids(got)); diff != "" {
		t.Fatalf("default order mismatch (-want +got):\n%s", diff)
	}
	if got[0].Location != "Documents" || got[0].Path != "Documents/Alpha.txt" {
		t.Fatalf("unexpected derived path: %q %q", got[0].Location, got[0].Path)
	}

	got = p.ActiveChildren(snap, docs.ID, Filter{SortKey: SortSize, SortDir: Desc})
	if diff := cmp.Diff([]string{b.ID, g.ID, a.ID}, ids(got)); diff != "" {
		t.Fatalf("size desc mismatch (-want +got):\n%s", diff)
	}

	got = p.ActiveChildren(snap, docs.ID, Filter{SortKey: SortModified})
	if diff := cmp.Diff([]string{b.ID, a.ID, g.ID}, ids(got)); diff != "" {
		t.Fatalf("modified asc mismatch (-want +got):\n%s", diff)
	}

	root := p.ActiveChildren(snap, "", Filter{})
	if diff := cmp.Diff([]string{docs.ID}, ids(root)); diff != "" {
		t.Fatalf("root listing mismatch (-want +got):\n%s", diff)
	}
	if root[0].SizeBytes != nil {
		t.Fatalf("folders should not report a size")
	}
}

func TestTiesBreakByID(t *testing.T) {
	s, _ := newFixture(t)
	x := create(t, s, model.KindFile, "same.txt", "", "", 5)
	y := create(t, s, model.KindFile, "SAME.txt", "", "", 5)
	p := Projector{}
	for _, f := range []Filter{{}, {SortKey: SortName, SortDir: Desc}, {SortKey: SortSize, SortDir: Desc}} {
		got := p.ActiveChildren(s.Snapshot(), "", f)
		if diff := cmp.Diff([]string{x.ID, y.ID}, ids(got)); diff != "" {
			t.Fatalf("filter %+v: tie order mismatch (-want +got):\n%s", f, diff)
		}
	}
}

func TestEmptyTextMatchesEverything(t *testing.T) {
	s, c := newFixture(t)
	docs := create(t, s, model.KindFolder, "Documents", "", "", 0)
	f := create(t, s, model.KindFile, "notes.md", docs.ID, "", 1)
	if _, err := s.SetStarred(f.ID, true); err != nil {
		t.Fatalf("star: %v", err)
	}
	if _, err := s.SetStarred(docs.ID, true); err != nil {
		t.Fatalf("star: %v", err)
	}
	if _, err := s.TouchOpened(f.ID, c.now); err != nil {
		t.Fatalf("open: %v", err)
	}
	p := Projector{}
	snap := s.Snapshot()
	if diff := cmp.Diff(p.Starred(snap, Filter{}), p.Starred(snap, Filter{Text: "   "})); diff != "" {
		t.Fatalf("blank text changed Starred (-empty +blank):\n%s", diff)
	}
	if diff := cmp.Diff(p.Recent(snap, 0, Filter{}), p.Recent(snap, 0, Filter{Text: ""})); diff != "" {
		t.Fatalf("Recent differs (-a +b):\n%s", diff)
	}
}

func TestTextMatchesNameOrLocation(t *testing.T) {
	s, _ := newFixture(t)
	projects := create(t, s, model.KindFolder, "Projects", "", "", 0)
	plan := create(t, s, model.KindFile, "plan.txt", projects.ID, "", 1)
	other := create(t, s, model.KindFile, "other.txt", "", "", 1)
	for _, id := range []string{projects.ID, plan.ID, other.ID} {
		if _, err := s.SetStarred(id, true); err != nil {
			t.Fatalf("star: %v", err)
		}
	}
	got := Projector{}.Starred(s.Snapshot(), Filter{Text: "PROJ"})
	if diff := cmp.Diff([]string{plan.ID, projects.ID}, ids(got)); diff != "" {
		t.Fatalf("match mismatch (-want +got):\n%s", diff)
	}
}

func TestRecentOnlyOpenedAndLimited(t *testing.T) {
	s, c := newFixture(t)
	docs := create(t, s, model.KindFolder, "Documents", "", "", 0)
	a := create(t, s, model.KindFile, "a.txt", docs.ID, "", 1)
	b := create(t, s, model.KindFile, "b.txt", docs.ID, "", 1)
	create(t, s, model.KindFile, "never.txt", docs.ID, "", 1)
	c3 := create(t, s, model.KindFile, "c.txt", "", "", 1)

	for _, id := range []string{a.ID, docs.ID, b.ID, c3.ID} {
		c.Advance(time.Minute)
		if _, err := s.TouchOpened(id, c.now); err != nil {
			t.Fatalf("open %s: %v", id, err)
		}
	}
	if _, err := s.Trash(c3.ID, c.now); err != nil {
		t.Fatalf("trash: %v", err)
	}

	p := Projector{}
	got := p.Recent(s.Snapshot(), 0, Filter{})
	if diff := cmp.Diff([]string{b.ID, a.ID}, ids(got)); diff != "" {
		t.Fatalf("recent mismatch (-want +got):\n%s", diff)
	}

	p.RecentIncludeFolders = true
	got = p.Recent(s.Snapshot(), 2, Filter{})
	if diff := cmp.Diff([]string{b.ID, docs.ID}, ids(got)); diff != "" {
		t.Fatalf("recent with folders mismatch (-want +got):\n%s", diff)
	}
}

func TestSharedExcludesViewerAndMatchesOwner(t *testing.T) {
	s, c := newFixture(t)
	mine := create(t, s, model.KindFile, "mine.txt", "", "alice", 1)
	c.Advance(time.Minute)
	bobs := create(t, s, model.KindFile, "budget.xlsx", "", "bob", 1)
	c.Advance(time.Minute)
	carols := create(t, s, model.KindFile, "slides.key", "", "carol", 1)
	create(t, s, model.KindFile, "private.txt", "", "bob", 1)
	for _, id := range []string{mine.ID, bobs.ID, carols.ID} {
		if _, err := s.SetShared(id, true); err != nil {
			t.Fatalf("share: %v", err)
		}
	}

	p := Projector{Owners: DirectoryMap{"bob": "Bob Builder", "carol": "Carol"}}
	got := p.Shared(s.Snapshot(), "alice", Filter{})
	if diff := cmp.Diff([]string{carols.ID, bobs.ID}, ids(got)); diff != "" {
		t.Fatalf("shared mismatch (-want +got):\n%s", diff)
	}
	got = p.Shared(s.Snapshot(), "alice", Filter{Text: "builder"})
	if diff := cmp.Diff([]string{bobs.ID}, ids(got)); diff != "" {
		t.Fatalf("owner match mismatch (-want +got):\n%s", diff)
	}
	if got[0].Owner != "Bob Builder" {
		t.Fatalf("owner display name = %q", got[0].Owner)
	}
}

func TestStarredHidesTrashed(t *testing.T) {
	s, c := newFixture(t)
	a := create(t, s, model.KindFile, "a.txt", "", "", 1)
	if _, err := s.SetStarred(a.ID, true); err != nil {
		t.Fatalf("star: %v", err)
	}
	if _, err := s.Trash(a.ID, c.now); err != nil {
		t.Fatalf("trash: %v", err)
	}
	if got := (Projector{}).Starred(s.Snapshot(), Filter{}); len(got) != 0 {
		t.Fatalf("trashed item listed as starred: %v", ids(got))
	}
	if _, err := s.Restore(a.ID); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := (Projector{}).Starred(s.Snapshot(), Filter{}); len(got) != 1 {
		t.Fatalf("star lost across trash: %v", ids(got))
	}
}

func TestTrashAnnotatesDaysAndHidesExpired(t *testing.T) {
	s, c := newFixture(t)
	old := create(t, s, model.KindFile, "old.txt", "", "", 1)
	recent := create(t, s, model.KindFile, "recent.txt", "", "", 1)
	if _, err := s.Trash(old.ID, c.now); err != nil {
		t.Fatalf("trash: %v", err)
	}
	if _, err := s.Trash(recent.ID, c.now.Add(10*24*time.Hour)); err != nil {
		t.Fatalf("trash: %v", err)
	}

	now := c.now.Add(12 * 24 * time.Hour)
	got := Projector{}.Trash(s.Snapshot(), now, Filter{})
	if diff := cmp.Diff([]string{recent.ID, old.ID}, ids(got)); diff != "" {
		t.Fatalf("trash order mismatch (-want +got):\n%s", diff)
	}
	if *got[0].DaysUntilPurge != 28 || *got[1].DaysUntilPurge != 18 {
		t.Fatalf("days = %d, %d", *got[0].DaysUntilPurge, *got[1].DaysUntilPurge)
	}

	now = c.now.Add(30 * 24 * time.Hour)
	got = Projector{}.Trash(s.Snapshot(), now, Filter{})
	if diff := cmp.Diff([]string{recent.ID}, ids(got)); diff != "" {
		t.Fatalf("expired item still listed (-want +got):\n%s", diff)
	}
}

func TestEngineValidatesFilterAndParent(t *testing.T) {
	s, c := newFixture(t)
	docs := create(t, s, model.KindFolder, "Documents", "", "", 0)
	f := create(t, s, model.KindFile, "a.txt", "", "", 1)
	e, err := NewEngine(s, Projector{}, 16)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := e.ListStarred(Filter{SortKey: "color"}); err == nil {
		t.Fatalf("expected unknown sort key to fail")
	}
	if _, err := e.ListActiveChildren(f.ID, Filter{}); !errors.Is(err, drive.ErrValidation) {
		t.Fatalf("listing a file: %v", err)
	}
	if _, err := s.Trash(docs.ID, c.now); err != nil {
		t.Fatalf("trash: %v", err)
	}
	if _, err := e.ListActiveChildren(docs.ID, Filter{}); !errors.Is(err, drive.ErrNotFound) {
		t.Fatalf("listing a trashed folder: %v", err)
	}
}

func TestEngineCacheFollowsRevision(t *testing.T) {
	s, _ := newFixture(t)
	a := create(t, s, model.KindFile, "a.txt", "", "", 1)
	e, err := NewEngine(s, Projector{}, 16)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	got, err := e.ListActiveChildren("", Filter{})
	if err != nil || len(got) != 1 {
		t.Fatalf("first listing: %v %v", ids(got), err)
	}
	got[0].Name = "mutated"

	again, _ := e.ListActiveChildren("", Filter{})
	if again[0].Name != "a.txt" {
		t.Fatalf("cached result was mutated through a returned slice")
	}

	if _, err := s.Rename(a.ID, "b.txt"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	again, _ = e.ListActiveChildren("", Filter{})
	if again[0].Name != "b.txt" {
		t.Fatalf("stale cached listing after rename: %q", again[0].Name)
	}
}

func TestEngineTrashUsesClock(t *testing.T) {
	s, c := newFixture(t)
	a := create(t, s, model.KindFile, "a.txt", "", "", 1)
	if _, err := s.Trash(a.ID, c.now); err != nil {
		t.Fatalf("trash: %v", err)
	}
	e, err := NewEngine(s, Projector{}, 0, WithEngineClock(c.Now))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	c.Advance(29*24*time.Hour + 23*time.Hour)
	got, _ := e.ListTrash(Filter{})
	if len(got) != 1 || *got[0].DaysUntilPurge != 1 {
		t.Fatalf("unexpected trash listing: %+v", got)
	}
	c.Advance(time.Hour)
	got, _ = e.ListTrash(Filter{})
	if len(got) != 0 {
		t.Fatalf("expired item still listed: %v", ids(got))
	}
}

func TestEngineCacheIsolatesPointerFields(t *testing.T) {
	s, c := newFixture(t)
	a := create(t, s, model.KindFile, "a.txt", "", "", 10)
	if _, err := s.TouchOpened(a.ID, c.now); err != nil {
		t.Fatalf("open: %v", err)
	}
	e, err := NewEngine(s, Projector{}, 16)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	got, _ := e.ListRecent(0, Filter{})
	*got[0].SizeBytes = 999
	*got[0].LastOpenedAt = t0.Add(time.Hour)

	again, _ := e.ListRecent(0, Filter{})
	if *again[0].SizeBytes != 10 || !again[0].LastOpenedAt.Equal(t0) {
		t.Fatalf("cached item changed through a returned pointer: size %d opened %v", *again[0].SizeBytes, *again[0].LastOpenedAt)
	}
}

func TestDescribeUsesViewShape(t *testing.T) {
	s, c := newFixture(t)
	projects := create(t, s, model.KindFolder, "Projects", "", "", 0)
	a := create(t, s, model.KindFile, "a.txt", projects.ID, "bob", 10)
	e, err := NewEngine(s, Projector{Owners: DirectoryMap{"bob": "Bob"}}, 0, WithEngineClock(c.Now))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	item := e.Describe(a)
	if item.Path != "Projects/a.txt" || item.Owner != "Bob" || item.TrashedAt != nil || item.DaysUntilPurge != nil {
		t.Fatalf("unexpected active item: %+v", item)
	}
	if folder := e.Describe(projects); folder.SizeBytes != nil {
		t.Fatalf("folder carries a size: %+v", folder)
	}

	trashed, err := s.Trash(a.ID, c.now)
	if err != nil {
		t.Fatalf("trash: %v", err)
	}
	c.Advance(24 * time.Hour)
	item = e.Describe(trashed)
	if item.TrashedAt == nil || !item.TrashedAt.Equal(t0) || item.DaysUntilPurge == nil || *item.DaysUntilPurge != 29 {
		t.Fatalf("unexpected trashed item: %+v", item)
	}
}
