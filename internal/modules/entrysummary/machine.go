// Package entrysummary drives the per-entry summary lifecycle:
// none, generating, then summarized or held.
package entrysummary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/modules/analysis"
	"github.com/mx-space/journal/internal/modules/journal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type State string

const (
	StateNone       State = "none"
	StateGenerating State = "generating"
	StateSummarized State = "summarized"
	StateHeld       State = "held"
)

const (
	DefaultMaxRetries  = 5
	DefaultWaitTimeout = 45 * time.Second
)

var (
	ErrRetryLimit = errors.New("retry limit reached")
	// ErrStillGenerating is returned when the caller stopped waiting. The
	// generation keeps running and its result is still saved.
	ErrStillGenerating = errors.New("summary still generating")
	// ErrInProgress is returned when another process holds the entry.
	ErrInProgress = errors.New("summary generation already in progress")
	// ErrEntryChanged is returned when the entry was deleted or its content
	// edited while the analysis ran; the result is dropped.
	ErrEntryChanged = errors.New("entry changed during generation")
)

// Store is the state the machine reads and writes. *journal.Orchestrator
// implements it.
type Store interface {
	UserID() string
	Entry(id string) (models.JournalEntry, bool)
	EntrySummaryFor(entryID string) (models.EntrySummary, bool)
	HoldStatusFor(entryID string) (models.EntryHoldStatus, bool)
	HoldStatuses() []models.EntryHoldStatus
	SaveEntrySummary(ctx context.Context, s models.EntrySummary) (models.EntrySummary, error)
	DeleteEntrySummary(ctx context.Context, entryID string) error
	SaveHoldStatus(ctx context.Context, h models.EntryHoldStatus) (models.EntryHoldStatus, error)
}

var _ Store = (*journal.Orchestrator)(nil)

// Tracker marks generation work as in flight across processes.
type Tracker interface {
	Begin(ctx context.Context, key string) (taskID string, acquired bool, err error)
	Finish(ctx context.Context, taskID string, failure error) error
}

type Options struct {
	Store      Store
	Analyzer   analysis.Analyzer
	Tracker    Tracker
	MaxRetries int
	Clock      func() time.Time
	Logger     *zap.Logger
}

type Result struct {
	State   State                   `json:"state"`
	Summary *models.EntrySummary    `json:"summary,omitempty"`
	Hold    *models.EntryHoldStatus `json:"hold,omitempty"`
}

type Machine struct {
	store      Store
	analyzer   analysis.Analyzer
	tracker    Tracker
	maxRetries int
	now        func() time.Time
	logger     *zap.Logger

	group      singleflight.Group
	mu         sync.Mutex
	generating map[string]bool
	pending    sync.WaitGroup
}

func New(opts Options) *Machine {
	m := &Machine{
		store:      opts.Store,
		analyzer:   opts.Analyzer,
		tracker:    opts.Tracker,
		maxRetries: opts.MaxRetries,
		now:        opts.Clock,
		logger:     opts.Logger,
		generating: make(map[string]bool),
	}
	if m.maxRetries <= 0 {
		m.maxRetries = DefaultMaxRetries
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.logger = m.logger.Named("EntrySummary")
	return m
}

func (m *Machine) MaxRetries() int { return m.maxRetries }

// State reports where the entry is in its lifecycle.
func (m *Machine) State(entryID string) State {
	if _, ok := m.store.EntrySummaryFor(entryID); ok {
		return StateSummarized
	}
	m.mu.Lock()
	busy := m.generating[entryID]
	m.mu.Unlock()
	if busy {
		return StateGenerating
	}
	if _, ok := m.store.HoldStatusFor(entryID); ok {
		return StateHeld
	}
	return StateNone
}

// Generate summarises the entry unless it already has a summary. Analyzer
// failures end in StateHeld with a nil error.
func (m *Machine) Generate(ctx context.Context, entryID string) (Result, error) {
	return m.GenerateWithin(ctx, entryID, 0)
}

// GenerateWithin is Generate with a bound on how long the caller waits. A
// non-positive wait means no bound.
func (m *Machine) GenerateWithin(ctx context.Context, entryID string, wait time.Duration) (Result, error) {
	if _, ok := m.store.Entry(entryID); !ok {
		return Result{State: StateNone}, journal.ErrEntryNotFound
	}
	if s, ok := m.store.EntrySummaryFor(entryID); ok {
		return Result{State: StateSummarized, Summary: &s}, nil
	}

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	runCtx := context.WithoutCancel(ctx)
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		v, err, _ := m.group.Do(entryID, func() (interface{}, error) {
			return m.run(runCtx, entryID)
		})
		r, _ := v.(Result)
		done <- outcome{res: r, err: err}
	}()

	var timeout <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case out := <-done:
		return out.res, out.err
	case <-timeout:
		return Result{State: StateGenerating}, ErrStillGenerating
	case <-ctx.Done():
		return Result{State: StateGenerating}, ctx.Err()
	}
}

// Wait blocks until every detached generation has finished.
func (m *Machine) Wait() {
	m.pending.Wait()
}

// Retry generates again for a held entry, refusing once the hold has used up
// its retries.
func (m *Machine) Retry(ctx context.Context, entryID string) (Result, error) {
	return m.RetryWithin(ctx, entryID, 0)
}

func (m *Machine) RetryWithin(ctx context.Context, entryID string, wait time.Duration) (Result, error) {
	if hold, ok := m.store.HoldStatusFor(entryID); ok && hold.RetryCount >= m.maxRetries {
		return Result{State: StateHeld, Hold: &hold}, ErrRetryLimit
	}
	return m.GenerateWithin(ctx, entryID, wait)
}

// Regenerate drops the current summary and generates a new one.
func (m *Machine) Regenerate(ctx context.Context, entryID string, wait time.Duration) (Result, error) {
	if _, ok := m.store.Entry(entryID); !ok {
		return Result{State: StateNone}, journal.ErrEntryNotFound
	}
	if err := m.store.DeleteEntrySummary(ctx, entryID); err != nil {
		return Result{}, fmt.Errorf("drop summary: %w", err)
	}
	return m.GenerateWithin(ctx, entryID, wait)
}

func (m *Machine) run(ctx context.Context, entryID string) (Result, error) {
	entry, ok := m.store.Entry(entryID)
	if !ok {
		return Result{State: StateNone}, journal.ErrEntryNotFound
	}
	if s, ok := m.store.EntrySummaryFor(entryID); ok {
		return Result{State: StateSummarized, Summary: &s}, nil
	}

	if m.tracker != nil {
		taskID, acquired, err := m.tracker.Begin(ctx, m.store.UserID()+":"+entryID)
		switch {
		case err != nil:
			m.logger.Warn("task ledger unavailable", zap.String("entry", entryID), zap.Error(err))
		case !acquired:
			return Result{State: StateGenerating}, ErrInProgress
		default:
			var failure error
			defer func() {
				if err := m.tracker.Finish(ctx, taskID, failure); err != nil {
					m.logger.Warn("task ledger finish failed", zap.String("task", taskID), zap.Error(err))
				}
			}()
			res, err := m.attempt(ctx, entry)
			failure = err
			if err == nil && res.State == StateHeld && res.Hold != nil {
				failure = errors.New(res.Hold.ErrorMessage)
			}
			return res, err
		}
	}
	return m.attempt(ctx, entry)
}

func (m *Machine) attempt(ctx context.Context, entry models.JournalEntry) (Result, error) {
	m.setGenerating(entry.ID, true)
	defer m.setGenerating(entry.ID, false)

	start := m.now()
	out, aerr := m.analyzer.AnalyzeIndividualEntry(ctx, entry)

	current, ok := m.store.Entry(entry.ID)
	if !ok || current.Content != entry.Content {
		m.logger.Info("dropping analysis of changed entry", zap.String("entry", entry.ID))
		return Result{State: StateNone}, ErrEntryChanged
	}

	if aerr == nil {
		saved, err := m.store.SaveEntrySummary(ctx, models.EntrySummary{
			EntryID:           entry.ID,
			KeyThemes:         out.KeyThemes,
			EmotionalInsights: out.EmotionalInsights,
			PersonalGrowth:    out.PersonalGrowth,
			Patterns:          out.Patterns,
			Suggestions:       out.Suggestions,
			MotivationalNote:  out.MotivationalNote,
			Reflection:        out.Reflection,
		})
		if err != nil {
			return Result{}, err
		}
		m.logger.Info("entry summarized", zap.String("entry", entry.ID), zap.Duration("elapsed", m.now().Sub(start)))
		return Result{State: StateSummarized, Summary: &saved}, nil
	}

	reason, code := Classify(aerr, m.analyzer.LastError())
	retries := 1
	if prev, ok := m.store.HoldStatusFor(entry.ID); ok {
		retries = prev.RetryCount + 1
	}
	hold, err := m.store.SaveHoldStatus(ctx, models.EntryHoldStatus{
		EntryID:      entry.ID,
		Reason:       reason,
		ErrorMessage: aerr.Error(),
		ErrorCode:    code,
		RetryCount:   retries,
		LastAttempt:  m.now(),
	})
	if err != nil {
		return Result{}, err
	}
	m.logger.Warn("entry summary held",
		zap.String("entry", entry.ID),
		zap.String("reason", string(reason)),
		zap.Int("retry_count", retries),
		zap.Error(aerr))
	return Result{State: StateHeld, Hold: &hold}, nil
}

func (m *Machine) setGenerating(entryID string, on bool) {
	m.mu.Lock()
	if on {
		m.generating[entryID] = true
	} else {
		delete(m.generating, entryID)
	}
	m.mu.Unlock()
}
