package journal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mx-space/journal/internal/config"
	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/modules/remote/memory"
	"github.com/mx-space/journal/internal/pkg/fallback"
	"github.com/mx-space/journal/internal/pkg/localcache"
)

const testUser = "u1"

var errOffline = errors.New("dial tcp: connection refused")

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	clock  *clock
	remote *memory.Store
	cache  *localcache.Store
	local  *fallback.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	local, err := fallback.Open(":memory:")
	if err != nil {
		t.Fatalf("open fallback: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	clk := &clock{t: time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC)}
	return &fixture{
		clock:  clk,
		remote: memory.New(),
		cache:  localcache.New(localcache.NewMemoryBackend(), localcache.WithClock(clk.Now)),
		local:  local,
	}
}

func (f *fixture) orchestrator(opts ...func(*Options)) *Orchestrator {
	o := Options{
		UserID: testUser,
		Remote: f.remote,
		Cache:  f.cache,
		Local:  f.local,
		Clock:  f.clock.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return New(o)
}

func failAll(op string) error { return errOffline }

func seedEntry(t *testing.T, f *fixture, content string) models.JournalEntry {
	t.Helper()
	e := models.JournalEntry{Content: content, Date: "2024-01-06"}
	e.ID = models.NewID()
	e.UserID = testUser
	e.CreatedAt = f.clock.Now().Add(-24 * time.Hour)
	if err := f.remote.CreateEntry(context.Background(), &e); err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	return e
}

func TestLoadWithoutCacheFetchesAndCaches(t *testing.T) {
	f := newFixture(t)
	seeded := seedEntry(t, f, "hello")
	o := f.orchestrator()

	if err := o.LoadEntries(context.Background()); err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	state := o.Snapshot()
	if len(state.Entries) != 1 || state.Entries[0].ID != seeded.ID {
		t.Fatalf("entries = %#v", state.Entries)
	}
	if state.Loading[localcache.Entries] {
		t.Fatal("loading flag left on")
	}
	cached, _, ok, err := localcache.ReadAs[models.JournalEntry](context.Background(), f.cache, localcache.Entries, testUser)
	if err != nil || !ok || len(cached) != 1 {
		t.Fatalf("cache = %v ok=%v err=%v", cached, ok, err)
	}
}

func TestLoadStaleCacheHydratesAndRefreshesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stale := models.JournalEntry{Content: "cached"}
	stale.ID = "cached-1"
	if err := f.cache.Write(ctx, localcache.Entries, testUser, []models.JournalEntry{stale}); err != nil {
		t.Fatalf("cache write: %v", err)
	}
	f.clock.Advance(40 * time.Minute)
	fresh := seedEntry(t, f, "fresh")

	release := make(chan struct{})
	f.remote.FailWith(func(op string) error {
		if op == "ListEntries" {
			<-release
		}
		return nil
	})

	o := f.orchestrator()
	if err := o.LoadEntries(ctx); err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if got := o.Entries(); len(got) != 1 || got[0].ID != "cached-1" {
		t.Fatalf("hydrated entries = %#v", got)
	}
	if err := o.LoadEntries(ctx); err != nil {
		t.Fatalf("second LoadEntries: %v", err)
	}

	close(release)
	o.WaitBackground()

	if calls := f.remote.Calls("ListEntries"); calls != 1 {
		t.Fatalf("ListEntries calls = %d, want 1", calls)
	}
	if got := o.Entries(); len(got) != 1 || got[0].ID != fresh.ID {
		t.Fatalf("refreshed entries = %#v", got)
	}
}

// slowList lets a test write while an entries listing is in flight.
type slowList struct {
	*memory.Store
	listed  chan struct{}
	release chan struct{}
}

func (s *slowList) ListEntries(ctx context.Context, userID string) ([]models.JournalEntry, error) {
	out, err := s.Store.ListEntries(ctx, userID)
	close(s.listed)
	<-s.release
	return out, err
}

func TestBackgroundRefreshKeepsConcurrentWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cached := models.JournalEntry{Content: "cached"}
	cached.ID = "cached-1"
	if err := f.cache.Write(ctx, localcache.Entries, testUser, []models.JournalEntry{cached}); err != nil {
		t.Fatalf("cache write: %v", err)
	}
	f.clock.Advance(40 * time.Minute)

	slow := &slowList{Store: f.remote, listed: make(chan struct{}), release: make(chan struct{})}
	o := f.orchestrator(func(opts *Options) { opts.Remote = slow })
	if err := o.LoadEntries(ctx); err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	<-slow.listed

	created, err := o.CreateEntry(ctx, EntryInput{Content: "written mid-refresh"})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	close(slow.release)
	o.WaitBackground()

	if _, ok := o.Entry(created.ID); !ok {
		t.Fatal("created entry lost from state")
	}
	snapshot, _, ok, err := localcache.ReadAs[models.JournalEntry](ctx, f.cache, localcache.Entries, testUser)
	if err != nil || !ok {
		t.Fatalf("cache read ok=%v err=%v", ok, err)
	}
	found := false
	for _, e := range snapshot {
		found = found || e.ID == created.ID
	}
	if !found {
		t.Fatalf("created entry lost from cache: %#v", snapshot)
	}
}

func TestLoadFreshCacheSkipsNetwork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.cache.Write(ctx, localcache.WeeklySummaries, testUser, []models.WeeklySummary{}); err != nil {
		t.Fatalf("cache write: %v", err)
	}
	f.clock.Advance(5 * time.Minute)

	o := f.orchestrator()
	if err := o.LoadWeeklySummaries(ctx); err != nil {
		t.Fatalf("LoadWeeklySummaries: %v", err)
	}
	o.WaitBackground()
	if calls := f.remote.Calls("ListWeeklySummaries"); calls != 0 {
		t.Fatalf("ListWeeklySummaries calls = %d, want 0", calls)
	}
}

func TestLoadFallsBackToOfflineRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.FailWith(failAll)

	writer := f.orchestrator()
	created, err := writer.CreateEntry(ctx, EntryInput{Content: "written offline"})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	reader := f.orchestrator()
	if err := reader.LoadEntries(ctx); err != nil {
		t.Fatalf("LoadEntries: %v", err)
	}
	if got, ok := reader.Entry(created.ID); !ok || got.Content != "written offline" {
		t.Fatalf("offline entry missing: %#v", reader.Entries())
	}
}

func TestLoadUnavailableWithoutOfflineStore(t *testing.T) {
	f := newFixture(t)
	f.remote.FailWith(failAll)
	o := f.orchestrator(func(o *Options) { o.Local = nil })

	if err := o.LoadEntries(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestCreateEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.orchestrator()

	entry, err := o.CreateEntry(ctx, EntryInput{Title: " Day ", Content: "Ran 5k #Running", Mood: models.MoodHappy, Tags: []string{"Health"}})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if entry.Date != "2024-01-07" || entry.Title != "Day" {
		t.Fatalf("entry = %#v", entry)
	}
	if len(entry.Tags) != 2 || entry.Tags[0] != "health" || entry.Tags[1] != "running" {
		t.Fatalf("tags = %v", entry.Tags)
	}
	remoteEntries, _ := f.remote.ListEntries(ctx, testUser)
	if len(remoteEntries) != 1 {
		t.Fatalf("remote entries = %d", len(remoteEntries))
	}
	cached, _, ok, _ := localcache.ReadAs[models.JournalEntry](ctx, f.cache, localcache.Entries, testUser)
	if !ok || len(cached) != 1 || cached[0].ID != entry.ID {
		t.Fatalf("cache snapshot = %#v", cached)
	}
}

func TestCreateEntryValidation(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()
	ctx := context.Background()

	cases := []struct {
		in   EntryInput
		want error
	}{
		{EntryInput{Content: "  "}, ErrEmptyContent},
		{EntryInput{Content: "x", Mood: "elated"}, ErrInvalidMood},
		{EntryInput{Content: "x", Date: "07/01/2024"}, ErrInvalidDate},
	}
	for _, tc := range cases {
		if _, err := o.CreateEntry(ctx, tc.in); !errors.Is(err, tc.want) {
			t.Errorf("CreateEntry(%+v) = %v, want %v", tc.in, err, tc.want)
		}
	}
}

func TestCreateEntryRemoteFailureSavesOffline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.FailWith(failAll)
	o := f.orchestrator()

	entry, err := o.CreateEntry(ctx, EntryInput{Content: "on the train"})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if _, ok := o.Entry(entry.ID); !ok {
		t.Fatal("state not updated")
	}
	if n, _ := f.local.Count(ctx, testUser); n != 1 {
		t.Fatalf("offline records = %d, want 1", n)
	}
	if _, ok, _ := f.cache.Read(ctx, localcache.Entries, testUser); ok {
		t.Fatal("cache written after remote failure")
	}
}

func TestCreateEntryBothTiersFail(t *testing.T) {
	f := newFixture(t)
	f.remote.FailWith(failAll)
	o := f.orchestrator(func(o *Options) { o.Local = nil })

	_, err := o.CreateEntry(context.Background(), EntryInput{Content: "lost"})
	var perr *PersistError
	if !errors.As(err, &perr) || !errors.Is(err, errOffline) {
		t.Fatalf("err = %v, want PersistError", err)
	}
	if len(o.Entries()) != 0 {
		t.Fatal("state changed on failed write")
	}
}

func TestDeleteEntryCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.orchestrator()

	entry, err := o.CreateEntry(ctx, EntryInput{Content: "to delete"})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if _, err := o.SaveEntrySummary(ctx, models.EntrySummary{EntryID: entry.ID, Reflection: "r"}); err != nil {
		t.Fatalf("SaveEntrySummary: %v", err)
	}

	if err := o.DeleteEntry(ctx, entry.ID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if sums, _ := f.remote.ListEntrySummaries(ctx, testUser); len(sums) != 0 {
		t.Fatalf("remote summaries = %d", len(sums))
	}
	cached, _, _, _ := localcache.ReadAs[models.EntrySummary](ctx, f.cache, localcache.EntrySummaries, testUser)
	if len(cached) != 0 {
		t.Fatalf("cached summaries = %#v", cached)
	}
	if _, ok := o.EntrySummaryFor(entry.ID); ok {
		t.Fatal("summary left in state")
	}

	again, err := o.CreateEntry(ctx, EntryInput{Content: "to delete"})
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if _, ok := o.EntrySummaryFor(again.ID); ok {
		t.Fatal("old summary resurrected")
	}
	if err := o.DeleteEntry(ctx, "missing"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("delete missing = %v", err)
	}

	held, err := o.CreateEntry(ctx, EntryInput{Content: "held"})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	if _, err := o.SaveHoldStatus(ctx, models.EntryHoldStatus{EntryID: held.ID, Reason: models.HoldRateLimit, RetryCount: 1}); err != nil {
		t.Fatalf("SaveHoldStatus: %v", err)
	}
	if err := o.DeleteEntry(ctx, held.ID); err != nil {
		t.Fatalf("DeleteEntry held: %v", err)
	}
	if holds, _ := f.remote.ListHoldStatuses(ctx, testUser); len(holds) != 0 {
		t.Fatalf("remote holds = %d", len(holds))
	}
	cachedHolds, _, ok, _ := localcache.ReadAs[models.EntryHoldStatus](ctx, f.cache, localcache.HoldStatuses, testUser)
	if !ok || len(cachedHolds) != 0 {
		t.Fatalf("cached holds = %#v ok=%v", cachedHolds, ok)
	}
	if _, ok := o.HoldStatusFor(held.ID); ok {
		t.Fatal("hold left in state")
	}
}

func TestDeleteEntryCascadeFailureDoesNotFail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.orchestrator()
	entry, _ := o.CreateEntry(ctx, EntryInput{Content: "x"})
	if _, err := o.SaveHoldStatus(ctx, models.EntryHoldStatus{EntryID: entry.ID, Reason: models.HoldTimeout, RetryCount: 1}); err != nil {
		t.Fatalf("SaveHoldStatus: %v", err)
	}

	f.remote.FailWith(func(op string) error {
		if op == "RemoveHoldStatus" {
			return errOffline
		}
		return nil
	})
	if err := o.DeleteEntry(ctx, entry.ID); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if _, ok := o.HoldStatusFor(entry.ID); ok {
		t.Fatal("hold left in state")
	}
}

func TestUpdateEntryInvalidation(t *testing.T) {
	ctx := context.Background()
	newTitle := "renamed"
	newContent := "rewritten"

	cases := []struct {
		name     string
		policy   string
		patch    EntryPatch
		wantKept bool
	}{
		{"always on title edit", config.InvalidateAlways, EntryPatch{Title: &newTitle}, false},
		{"content policy on title edit", config.InvalidateOnContentChange, EntryPatch{Title: &newTitle}, true},
		{"content policy on content edit", config.InvalidateOnContentChange, EntryPatch{Content: &newContent}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			o := f.orchestrator(func(o *Options) { o.Invalidation = tc.policy })
			entry, _ := o.CreateEntry(ctx, EntryInput{Content: "original"})
			if _, err := o.SaveEntrySummary(ctx, models.EntrySummary{EntryID: entry.ID}); err != nil {
				t.Fatalf("SaveEntrySummary: %v", err)
			}

			if _, err := o.UpdateEntry(ctx, entry.ID, tc.patch); err != nil {
				t.Fatalf("UpdateEntry: %v", err)
			}
			_, kept := o.EntrySummaryFor(entry.ID)
			if kept != tc.wantKept {
				t.Fatalf("summary kept = %v, want %v", kept, tc.wantKept)
			}
			sums, _ := f.remote.ListEntrySummaries(ctx, testUser)
			if (len(sums) == 1) != tc.wantKept {
				t.Fatalf("remote summaries = %d", len(sums))
			}
		})
	}
}

func TestUpdateEntryRetagsContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.orchestrator()
	entry, _ := o.CreateEntry(ctx, EntryInput{Content: "#old note", Tags: []string{"pinned"}})

	content := "#new note"
	updated, err := o.UpdateEntry(ctx, entry.ID, EntryPatch{Content: &content})
	if err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	if len(updated.Tags) != 2 || updated.Tags[0] != "new" || updated.Tags[1] != "pinned" {
		t.Fatalf("tags = %v", updated.Tags)
	}
}

func TestSaveHoldStatusReusesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.orchestrator()
	entry, _ := o.CreateEntry(ctx, EntryInput{Content: "x"})

	first, err := o.SaveHoldStatus(ctx, models.EntryHoldStatus{EntryID: entry.ID, Reason: models.HoldRateLimit, RetryCount: 1})
	if err != nil {
		t.Fatalf("first hold: %v", err)
	}
	f.clock.Advance(time.Minute)
	second, err := o.SaveHoldStatus(ctx, models.EntryHoldStatus{EntryID: entry.ID, Reason: models.HoldTimeout, RetryCount: 2})
	if err != nil {
		t.Fatalf("second hold: %v", err)
	}
	if second.ID != first.ID || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("hold not reused: %#v vs %#v", first, second)
	}
	holds, _ := f.remote.ListHoldStatuses(ctx, testUser)
	if len(holds) != 1 || holds[0].RetryCount != 2 || holds[0].Reason != models.HoldTimeout {
		t.Fatalf("remote holds = %#v", holds)
	}
}

func TestSummaryAndHoldAreExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.orchestrator()
	entry, _ := o.CreateEntry(ctx, EntryInput{Content: "x"})

	if _, err := o.SaveHoldStatus(ctx, models.EntryHoldStatus{EntryID: entry.ID, RetryCount: 1}); err != nil {
		t.Fatalf("SaveHoldStatus: %v", err)
	}
	if _, err := o.SaveEntrySummary(ctx, models.EntrySummary{EntryID: entry.ID}); err != nil {
		t.Fatalf("SaveEntrySummary: %v", err)
	}
	if _, ok := o.HoldStatusFor(entry.ID); ok {
		t.Fatal("hold survived a summary")
	}
	if holds, _ := f.remote.ListHoldStatuses(ctx, testUser); len(holds) != 0 {
		t.Fatalf("remote holds = %d", len(holds))
	}
	if _, err := o.SaveEntrySummary(ctx, models.EntrySummary{EntryID: entry.ID}); err != nil {
		t.Fatalf("second SaveEntrySummary: %v", err)
	}
	if sums, _ := f.remote.ListEntrySummaries(ctx, testUser); len(sums) != 1 {
		t.Fatalf("remote summaries = %d, want 1", len(sums))
	}
}

func TestReconcileReplaysOfflineWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.orchestrator()

	f.remote.FailWith(failAll)
	entry, err := o.CreateEntry(ctx, EntryInput{Content: "offline"})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	f.remote.FailWith(nil)

	n, err := o.Reconcile(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Reconcile = %d, %v", n, err)
	}
	remoteEntries, _ := f.remote.ListEntries(ctx, testUser)
	if len(remoteEntries) != 1 || remoteEntries[0].ID != entry.ID {
		t.Fatalf("remote entries = %#v", remoteEntries)
	}
	if left, _ := f.local.Count(ctx, testUser); left != 0 {
		t.Fatalf("offline records left = %d", left)
	}
	if _, _, ok, _ := localcache.ReadAs[models.JournalEntry](ctx, f.cache, localcache.Entries, testUser); !ok {
		t.Fatal("cache not rewritten")
	}
}

func TestSubscribeReceivesState(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator()
	id, ch := o.Subscribe(8)
	defer o.Unsubscribe(id)

	if _, err := o.CreateEntry(context.Background(), EntryInput{Content: "x"}); err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	select {
	case state := <-ch:
		if len(state.Entries) != 1 {
			t.Fatalf("published entries = %d", len(state.Entries))
		}
	case <-time.After(time.Second):
		t.Fatal("no state published")
	}
}

func TestResetCacheDropsSnapshots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedEntry(t, f, "hello")
	o := f.orchestrator()
	if err := o.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if _, _, ok, _ := localcache.ReadAs[models.JournalEntry](ctx, f.cache, localcache.Entries, testUser); !ok {
		t.Fatal("entries not cached after load")
	}

	if err := o.ResetCache(ctx); err != nil {
		t.Fatalf("ResetCache: %v", err)
	}
	for _, c := range localcache.Collections {
		if _, ok, err := f.cache.Read(ctx, c, testUser); err != nil || ok {
			t.Fatalf("%s still cached (err=%v)", c, err)
		}
	}
	if len(o.Entries()) != 1 {
		t.Fatal("reset must not touch in-memory state")
	}
}
