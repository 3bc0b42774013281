package entrysummary

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/modules/analysis"
	"github.com/mx-space/journal/internal/modules/journal"
	"github.com/mx-space/journal/internal/modules/remote/memory"
	"github.com/mx-space/journal/internal/pkg/fallback"
)

// fakeAnalyzer returns scripted replies in order; the last one repeats.
type fakeAnalyzer struct {
	mu      sync.Mutex
	replies []error
	calls   int
	gate    chan struct{}
	lastErr string
}

func (f *fakeAnalyzer) AnalyzeIndividualEntry(ctx context.Context, entry models.JournalEntry) (*analysis.EntryAnalysis, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if len(f.replies) > 0 {
		i := f.calls
		if i >= len(f.replies) {
			i = len(f.replies) - 1
		}
		err = f.replies[i]
	}
	f.calls++
	if err != nil {
		f.lastErr = err.Error()
		return nil, err
	}
	f.lastErr = ""
	return &analysis.EntryAnalysis{KeyThemes: []string{"focus"}, Reflection: "about " + entry.Content}, nil
}

func (f *fakeAnalyzer) AnalyzeWeeklyEntries(context.Context, []models.JournalEntry) (*analysis.WeeklyAnalysis, error) {
	return nil, errors.New("not used")
}

func (f *fakeAnalyzer) LastError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *fakeAnalyzer) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTracker struct {
	mu       sync.Mutex
	busy     map[string]bool
	finished []error
}

func (t *fakeTracker) Begin(_ context.Context, key string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.busy[key] {
		return "", false, nil
	}
	t.busy[key] = true
	return key, true, nil
}

func (t *fakeTracker) Finish(_ context.Context, taskID string, failure error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.busy, taskID)
	t.finished = append(t.finished, failure)
	return nil
}

type fixture struct {
	remote   *memory.Store
	store    *journal.Orchestrator
	analyzer *fakeAnalyzer
	machine  *Machine
}

func newFixture(t *testing.T, replies ...error) *fixture {
	t.Helper()
	rs := memory.New()
	store := journal.New(journal.Options{UserID: "u1", Remote: rs})
	fa := &fakeAnalyzer{replies: replies}
	return &fixture{
		remote:   rs,
		store:    store,
		analyzer: fa,
		machine:  New(Options{Store: store, Analyzer: fa}),
	}
}

func (f *fixture) entry(t *testing.T, content string) models.JournalEntry {
	t.Helper()
	e, err := f.store.CreateEntry(context.Background(), journal.EntryInput{Content: content})
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}
	return e
}

func TestGenerateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.entry(t, "a good day")

	first, err := f.machine.Generate(ctx, e.ID)
	if err != nil || first.State != StateSummarized {
		t.Fatalf("first = %#v, %v", first, err)
	}
	second, err := f.machine.Generate(ctx, e.ID)
	if err != nil || second.State != StateSummarized || second.Summary.ID != first.Summary.ID {
		t.Fatalf("second = %#v, %v", second, err)
	}
	if f.analyzer.Calls() != 1 {
		t.Fatalf("analyzer calls = %d, want 1", f.analyzer.Calls())
	}
	sums, _ := f.remote.ListEntrySummaries(ctx, "u1")
	if len(sums) != 1 {
		t.Fatalf("summaries = %d, want 1", len(sums))
	}
	if f.machine.State(e.ID) != StateSummarized {
		t.Fatalf("state = %s", f.machine.State(e.ID))
	}
}

func TestRateLimitHoldAndRetry(t *testing.T) {
	f := newFixture(t, errors.New("429 Too Many Requests"))
	ctx := context.Background()
	e := f.entry(t, "busy")

	res, err := f.machine.Generate(ctx, e.ID)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.State != StateHeld || res.Hold.Reason != models.HoldRateLimit || res.Hold.RetryCount != 1 {
		t.Fatalf("first hold = %#v", res.Hold)
	}
	firstID := res.Hold.ID

	res, err = f.machine.Retry(ctx, e.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if res.Hold.RetryCount != 2 || res.Hold.ID != firstID {
		t.Fatalf("second hold = %#v", res.Hold)
	}
	holds, _ := f.remote.ListHoldStatuses(ctx, "u1")
	if len(holds) != 1 {
		t.Fatalf("holds = %d, want 1", len(holds))
	}
	if f.machine.State(e.ID) != StateHeld {
		t.Fatalf("state = %s", f.machine.State(e.ID))
	}
}

func TestRetryLimit(t *testing.T) {
	f := newFixture(t, errors.New("upstream timeout"))
	f.machine = New(Options{Store: f.store, Analyzer: f.analyzer, MaxRetries: 2})
	ctx := context.Background()
	e := f.entry(t, "x")

	if _, err := f.machine.Generate(ctx, e.ID); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, err := f.machine.Retry(ctx, e.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if _, err := f.machine.Retry(ctx, e.ID); !errors.Is(err, ErrRetryLimit) {
		t.Fatalf("third attempt err = %v, want ErrRetryLimit", err)
	}
	if f.analyzer.Calls() != 2 {
		t.Fatalf("analyzer calls = %d, want 2", f.analyzer.Calls())
	}
}

func TestSuccessClearsHold(t *testing.T) {
	f := newFixture(t, errors.New("fetch failed"), nil)
	ctx := context.Background()
	e := f.entry(t, "x")

	res, _ := f.machine.Generate(ctx, e.ID)
	if res.State != StateHeld || res.Hold.Reason != models.HoldAPIError {
		t.Fatalf("first = %#v", res)
	}
	res, err := f.machine.Retry(ctx, e.ID)
	if err != nil || res.State != StateSummarized {
		t.Fatalf("retry = %#v, %v", res, err)
	}
	if _, ok := f.store.HoldStatusFor(e.ID); ok {
		t.Fatal("hold not cleared")
	}
	holds, _ := f.remote.ListHoldStatuses(ctx, "u1")
	sums, _ := f.remote.ListEntrySummaries(ctx, "u1")
	if len(holds) != 0 || len(sums) != 1 {
		t.Fatalf("holds=%d summaries=%d", len(holds), len(sums))
	}
}

func TestConcurrentGenerateRunsOnce(t *testing.T) {
	f := newFixture(t)
	f.analyzer.gate = make(chan struct{})
	ctx := context.Background()
	e := f.entry(t, "x")

	var wg sync.WaitGroup
	results := make([]Result, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = f.machine.Generate(ctx, e.ID)
		}(i)
	}
	deadline := time.Now().Add(time.Second)
	for f.machine.State(e.ID) != StateGenerating && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(f.analyzer.gate)
	wg.Wait()

	if f.analyzer.Calls() != 1 {
		t.Fatalf("analyzer calls = %d, want 1", f.analyzer.Calls())
	}
	for i, r := range results {
		if r.State != StateSummarized {
			t.Fatalf("result %d = %#v", i, r)
		}
	}
}

func TestGenerateWithinAppliesLateResult(t *testing.T) {
	f := newFixture(t)
	f.analyzer.gate = make(chan struct{})
	ctx := context.Background()
	e := f.entry(t, "x")

	res, err := f.machine.GenerateWithin(ctx, e.ID, 10*time.Millisecond)
	if !errors.Is(err, ErrStillGenerating) || res.State != StateGenerating {
		t.Fatalf("res = %#v, err = %v", res, err)
	}
	close(f.analyzer.gate)
	f.machine.Wait()

	if f.machine.State(e.ID) != StateSummarized {
		t.Fatalf("state = %s, want summarized", f.machine.State(e.ID))
	}
}

func TestResultDroppedWhenEntryEdited(t *testing.T) {
	f := newFixture(t)
	f.analyzer.gate = make(chan struct{})
	ctx := context.Background()
	e := f.entry(t, "before")

	done := make(chan error, 1)
	go func() {
		_, err := f.machine.Generate(ctx, e.ID)
		done <- err
	}()
	deadline := time.Now().Add(time.Second)
	for f.machine.State(e.ID) != StateGenerating && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	after := "after"
	if _, err := f.store.UpdateEntry(ctx, e.ID, journal.EntryPatch{Content: &after}); err != nil {
		t.Fatalf("UpdateEntry: %v", err)
	}
	close(f.analyzer.gate)

	if err := <-done; !errors.Is(err, ErrEntryChanged) {
		t.Fatalf("err = %v, want ErrEntryChanged", err)
	}
	if _, ok := f.store.EntrySummaryFor(e.ID); ok {
		t.Fatal("stale summary saved")
	}
}

func TestTrackerRejectsForeignRun(t *testing.T) {
	f := newFixture(t)
	tracker := &fakeTracker{busy: map[string]bool{}}
	f.machine = New(Options{Store: f.store, Analyzer: f.analyzer, Tracker: tracker})
	ctx := context.Background()
	e := f.entry(t, "x")

	tracker.busy["u1:"+e.ID] = true
	if _, err := f.machine.Generate(ctx, e.ID); !errors.Is(err, ErrInProgress) {
		t.Fatalf("err = %v, want ErrInProgress", err)
	}
	delete(tracker.busy, "u1:"+e.ID)

	if res, err := f.machine.Generate(ctx, e.ID); err != nil || res.State != StateSummarized {
		t.Fatalf("res = %#v, err = %v", res, err)
	}
	if len(tracker.finished) != 1 || tracker.finished[0] != nil {
		t.Fatalf("finished = %v", tracker.finished)
	}
}

func TestRegenerate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	e := f.entry(t, "x")
	first, _ := f.machine.Generate(ctx, e.ID)

	second, err := f.machine.Regenerate(ctx, e.ID, 0)
	if err != nil || second.State != StateSummarized {
		t.Fatalf("second = %#v, %v", second, err)
	}
	if second.Summary.ID == first.Summary.ID {
		t.Fatal("summary not replaced")
	}
	if sums, _ := f.remote.ListEntrySummaries(ctx, "u1"); len(sums) != 1 {
		t.Fatalf("summaries = %d", len(sums))
	}
}

func TestRetryHeld(t *testing.T) {
	f := newFixture(t, errors.New("invalid AI response"), errors.New("invalid AI response"), nil)
	ctx := context.Background()
	a := f.entry(t, "a")
	b := f.entry(t, "b")
	f.machine.Generate(ctx, a.ID)
	f.machine.Generate(ctx, b.ID)

	report, err := f.machine.RetryHeld(ctx)
	if err != nil {
		t.Fatalf("RetryHeld: %v", err)
	}
	if report.Attempted != 2 || report.Summarized != 2 {
		t.Fatalf("report = %#v", report)
	}
	if len(f.store.HoldStatuses()) != 0 {
		t.Fatal("holds left")
	}
}

func TestUnknownEntry(t *testing.T) {
	f := newFixture(t)
	if _, err := f.machine.Generate(context.Background(), "nope"); !errors.Is(err, journal.ErrEntryNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func assertExclusive(t *testing.T, f *fixture, entryID, stage string) {
	t.Helper()
	ctx := context.Background()
	_, summarized := f.store.EntrySummaryFor(entryID)
	_, held := f.store.HoldStatusFor(entryID)
	if summarized && held {
		t.Fatalf("%s: state has both summary and hold", stage)
	}
	sums, _ := f.remote.ListEntrySummaries(ctx, "u1")
	holds, _ := f.remote.ListHoldStatuses(ctx, "u1")
	if len(sums) > 0 && len(holds) > 0 {
		t.Fatalf("%s: remote has %d summaries and %d holds", stage, len(sums), len(holds))
	}
}

func TestSummaryAfterFailedHoldRemovalStaysExclusive(t *testing.T) {
	local, err := fallback.Open(":memory:")
	if err != nil {
		t.Fatalf("open fallback: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	rs := memory.New()
	store := journal.New(journal.Options{UserID: "u1", Remote: rs, Local: local})
	fa := &fakeAnalyzer{replies: []error{&analysis.APIError{StatusCode: 429, Message: "slow down"}, nil}}
	f := &fixture{remote: rs, store: store, analyzer: fa, machine: New(Options{Store: store, Analyzer: fa})}
	ctx := context.Background()
	e := f.entry(t, "restless")

	if res, err := f.machine.Generate(ctx, e.ID); err != nil || res.State != StateHeld {
		t.Fatalf("Generate = %#v, %v", res, err)
	}

	rs.FailWith(func(op string) error {
		if op == "RemoveHoldStatus" {
			return errors.New("dial tcp: connection refused")
		}
		return nil
	})
	res, err := f.machine.Retry(ctx, e.ID)
	if err != nil || res.State != StateSummarized {
		t.Fatalf("Retry = %#v, %v", res, err)
	}
	assertExclusive(t, f, e.ID, "after offline save")

	if err := f.store.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	assertExclusive(t, f, e.ID, "after refresh")

	rs.FailWith(nil)
	if n, err := f.store.Reconcile(ctx); err != nil || n == 0 {
		t.Fatalf("Reconcile = %d, %v", n, err)
	}
	assertExclusive(t, f, e.ID, "after reconcile")
	if _, ok := f.store.EntrySummaryFor(e.ID); !ok {
		t.Fatal("summary not restored by reconcile")
	}
	if f.machine.State(e.ID) != StateSummarized {
		t.Fatalf("state = %s", f.machine.State(e.ID))
	}
}
