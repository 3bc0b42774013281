// Package memory is an in-process remote store. It backs the "memory" driver
// and lets tests inject failures per operation.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/modules/remote"
)

// Store holds records in maps keyed by id.
type Store struct {
	mu       sync.Mutex
	entries  map[string]models.JournalEntry
	weekly   map[string]models.WeeklySummary
	summary  map[string]models.EntrySummary
	holds    map[string]models.EntryHoldStatus
	calls    map[string]int
	failFunc func(op string) error
}

var _ remote.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		entries: make(map[string]models.JournalEntry),
		weekly:  make(map[string]models.WeeklySummary),
		summary: make(map[string]models.EntrySummary),
		holds:   make(map[string]models.EntryHoldStatus),
		calls:   make(map[string]int),
	}
}

// FailWith makes every operation consult fn first; a non-nil result is
// returned instead of performing the operation. nil clears the hook. fn runs
// under the store lock and must not call back into the store.
func (s *Store) FailWith(fn func(op string) error) {
	s.mu.Lock()
	s.failFunc = fn
	s.mu.Unlock()
}

// Calls returns how many times op was invoked, including failed calls.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// begin records the call and returns an injected failure, holding the lock
// on success. Callers must defer s.mu.Unlock() only when err is nil.
func (s *Store) begin(op string) error {
	s.mu.Lock()
	s.calls[op]++
	if s.failFunc != nil {
		if err := s.failFunc(op); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	return nil
}

func sortedByCreated[T any](items []T, created func(T) int64, id func(T) string) []T {
	sort.Slice(items, func(i, j int) bool {
		ci, cj := created(items[i]), created(items[j])
		if ci == cj {
			return id(items[i]) < id(items[j])
		}
		return ci < cj
	})
	return items
}

func (s *Store) ListEntries(_ context.Context, userID string) ([]models.JournalEntry, error) {
	if err := s.begin("ListEntries"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	out := make([]models.JournalEntry, 0)
	for _, e := range s.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return sortedByCreated(out,
		func(e models.JournalEntry) int64 { return e.CreatedAt.UnixNano() },
		func(e models.JournalEntry) string { return e.ID }), nil
}

func (s *Store) CreateEntry(_ context.Context, entry *models.JournalEntry) error {
	if err := s.begin("CreateEntry"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	entry.EnsureID()
	if _, exists := s.entries[entry.ID]; exists {
		return remote.ErrConflict
	}
	s.entries[entry.ID] = *entry
	return nil
}

func (s *Store) UpdateEntry(_ context.Context, entry *models.JournalEntry) error {
	if err := s.begin("UpdateEntry"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	current, ok := s.entries[entry.ID]
	if !ok || current.UserID != entry.UserID {
		return remote.ErrNotFound
	}
	s.entries[entry.ID] = *entry
	return nil
}

func (s *Store) DeleteEntry(_ context.Context, userID, id string) error {
	if err := s.begin("DeleteEntry"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	current, ok := s.entries[id]
	if !ok || current.UserID != userID {
		return remote.ErrNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *Store) ListWeeklySummaries(_ context.Context, userID string) ([]models.WeeklySummary, error) {
	if err := s.begin("ListWeeklySummaries"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	out := make([]models.WeeklySummary, 0)
	for _, w := range s.weekly {
		if w.UserID == userID {
			out = append(out, w)
		}
	}
	return sortedByCreated(out,
		func(w models.WeeklySummary) int64 { return w.CreatedAt.UnixNano() },
		func(w models.WeeklySummary) string { return w.ID }), nil
}

func (s *Store) CreateWeeklySummary(_ context.Context, summary *models.WeeklySummary) error {
	if err := s.begin("CreateWeeklySummary"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	summary.EnsureID()
	for _, w := range s.weekly {
		if w.ID == summary.ID || (w.UserID == summary.UserID && w.WeekStart.Equal(summary.WeekStart) && w.WeekEnd.Equal(summary.WeekEnd)) {
			return remote.ErrConflict
		}
	}
	s.weekly[summary.ID] = *summary
	return nil
}

func (s *Store) DeleteWeeklySummary(_ context.Context, userID, id string) error {
	if err := s.begin("DeleteWeeklySummary"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	current, ok := s.weekly[id]
	if !ok || current.UserID != userID {
		return remote.ErrNotFound
	}
	delete(s.weekly, id)
	return nil
}

func (s *Store) ListEntrySummaries(_ context.Context, userID string) ([]models.EntrySummary, error) {
	if err := s.begin("ListEntrySummaries"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	out := make([]models.EntrySummary, 0)
	for _, sum := range s.summary {
		if sum.UserID == userID {
			out = append(out, sum)
		}
	}
	return sortedByCreated(out,
		func(v models.EntrySummary) int64 { return v.CreatedAt.UnixNano() },
		func(v models.EntrySummary) string { return v.ID }), nil
}

func (s *Store) CreateEntrySummary(_ context.Context, summary *models.EntrySummary) error {
	if err := s.begin("CreateEntrySummary"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	summary.EnsureID()
	for _, existing := range s.summary {
		if existing.ID == summary.ID || (existing.UserID == summary.UserID && existing.EntryID == summary.EntryID) {
			return remote.ErrConflict
		}
	}
	s.summary[summary.ID] = *summary
	return nil
}

func (s *Store) DeleteEntrySummary(_ context.Context, userID, id string) error {
	if err := s.begin("DeleteEntrySummary"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	current, ok := s.summary[id]
	if !ok || current.UserID != userID {
		return remote.ErrNotFound
	}
	delete(s.summary, id)
	return nil
}

func (s *Store) RemoveEntrySummary(_ context.Context, userID, entryID string) error {
	if err := s.begin("RemoveEntrySummary"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for id, sum := range s.summary {
		if sum.UserID == userID && sum.EntryID == entryID {
			delete(s.summary, id)
		}
	}
	return nil
}

func (s *Store) ListHoldStatuses(_ context.Context, userID string) ([]models.EntryHoldStatus, error) {
	if err := s.begin("ListHoldStatuses"); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()
	out := make([]models.EntryHoldStatus, 0)
	for _, h := range s.holds {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	return sortedByCreated(out,
		func(v models.EntryHoldStatus) int64 { return v.CreatedAt.UnixNano() },
		func(v models.EntryHoldStatus) string { return v.ID }), nil
}

func (s *Store) CreateHoldStatus(_ context.Context, status *models.EntryHoldStatus) error {
	if err := s.begin("CreateHoldStatus"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	status.EnsureID()
	for _, existing := range s.holds {
		if existing.ID == status.ID || (existing.UserID == status.UserID && existing.EntryID == status.EntryID) {
			return remote.ErrConflict
		}
	}
	s.holds[status.ID] = *status
	return nil
}

func (s *Store) UpdateHoldStatus(_ context.Context, status *models.EntryHoldStatus) error {
	if err := s.begin("UpdateHoldStatus"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	current, ok := s.holds[status.ID]
	if !ok || current.UserID != status.UserID {
		return remote.ErrNotFound
	}
	s.holds[status.ID] = *status
	return nil
}

func (s *Store) DeleteHoldStatus(_ context.Context, userID, id string) error {
	if err := s.begin("DeleteHoldStatus"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	current, ok := s.holds[id]
	if !ok || current.UserID != userID {
		return remote.ErrNotFound
	}
	delete(s.holds, id)
	return nil
}

func (s *Store) RemoveHoldStatus(_ context.Context, userID, entryID string) error {
	if err := s.begin("RemoveHoldStatus"); err != nil {
		return err
	}
	defer s.mu.Unlock()
	for id, h := range s.holds {
		if h.UserID == userID && h.EntryID == entryID {
			delete(s.holds, id)
		}
	}
	return nil
}

func (s *Store) Close(context.Context) error { return nil }
