// Package weekly decides when a weekly insight is due and produces it.
package weekly

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/modules/analysis"
	"github.com/mx-space/journal/internal/modules/journal"
	"github.com/mx-space/journal/internal/modules/streak"
	"go.uber.org/zap"
)

type Outcome string

const (
	OutcomeIneligible Outcome = "ineligible"
	OutcomeDuplicate  Outcome = "duplicate"
	OutcomeCreated    Outcome = "created"
)

// GenerationError wraps an analyzer failure. Nothing is persisted when it is
// returned.
type GenerationError struct {
	Entries int
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("weekly insight over %d entries: %v", e.Entries, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Store is the state the trigger reads and writes. *journal.Orchestrator
// implements it.
type Store interface {
	Entries() []models.JournalEntry
	WeeklySummaries() []models.WeeklySummary
	Location() *time.Location
	CreateWeeklySummary(ctx context.Context, s models.WeeklySummary) (models.WeeklySummary, error)
}

var _ Store = (*journal.Orchestrator)(nil)

type Result struct {
	Outcome     Outcome               `json:"outcome"`
	Summary     *models.WeeklySummary `json:"summary,omitempty"`
	Eligibility streak.Eligibility    `json:"eligibility"`
}

type Trigger struct {
	store    Store
	analyzer analysis.Analyzer
	logger   *zap.Logger
	mu       sync.Mutex
}

func New(store Store, analyzer analysis.Analyzer, logger *zap.Logger) *Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{store: store, analyzer: analyzer, logger: logger.Named("Weekly")}
}

// Eligibility reports whether a weekly insight may be generated now.
func (t *Trigger) Eligibility() streak.Eligibility {
	return streak.ComputeWeeklyEligibility(t.store.Entries(), t.store.WeeklySummaries(), t.store.Location())
}

// MaybeGenerateWeekly creates a weekly summary for the current window when it
// is eligible and not already covered. Calls are serialised.
func (t *Trigger) MaybeGenerateWeekly(ctx context.Context, now time.Time) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	loc := t.store.Location()
	summaries := t.store.WeeklySummaries()
	window := streak.Window(t.store.Entries(), summaries, loc)
	res := Result{Eligibility: streak.ComputeWeeklyEligibility(window, nil, loc)}
	if !res.Eligibility.Eligible {
		res.Outcome = OutcomeIneligible
		return res, nil
	}

	start, end := bounds(window)
	startDay, endDay := streak.DayKey(start, loc), streak.DayKey(end, loc)
	for _, s := range summaries {
		if streak.DayKey(s.WeekStart, loc) == startDay && streak.DayKey(s.WeekEnd, loc) == endDay {
			res.Outcome = OutcomeDuplicate
			return res, nil
		}
	}

	out, err := t.analyzer.AnalyzeWeeklyEntries(ctx, window)
	if err != nil {
		t.logger.Warn("weekly insight failed", zap.Int("entries", len(window)), zap.Error(err))
		return res, &GenerationError{Entries: len(window), Err: err}
	}

	saved, err := t.store.CreateWeeklySummary(ctx, models.WeeklySummary{
		WeekStart:           start,
		WeekEnd:             end,
		EntriesAnalyzed:     len(window),
		Themes:              out.Themes,
		EmotionalPatterns:   out.EmotionalPatterns,
		Achievements:        out.Achievements,
		Improvements:        out.Improvements,
		Suggestions:         out.Suggestions,
		MotivationalInsight: out.MotivationalInsight,
		ActionSteps:         out.ActionSteps,
		Base:                models.Base{CreatedAt: now},
	})
	if err != nil {
		return res, err
	}
	t.logger.Info("weekly insight created",
		zap.String("week_start", startDay),
		zap.String("week_end", endDay),
		zap.Int("entries", len(window)))
	res.Outcome = OutcomeCreated
	res.Summary = &saved
	return res, nil
}

func bounds(window []models.JournalEntry) (time.Time, time.Time) {
	start, end := window[0].CreatedAt, window[0].CreatedAt
	for _, e := range window[1:] {
		if e.CreatedAt.Before(start) {
			start = e.CreatedAt
		}
		if e.CreatedAt.After(end) {
			end = e.CreatedAt
		}
	}
	return start, end
}
