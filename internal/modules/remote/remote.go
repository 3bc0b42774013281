// Package remote defines the authoritative document store the journal syncs
// against. Adapters live in the subpackages.
package remote

import (
	"context"
	"errors"

	"github.com/mx-space/journal/internal/models"
)

var (
	// ErrNotFound is returned when the addressed record does not exist.
	ErrNotFound = errors.New("remote: record not found")
	// ErrConflict is returned when a create would violate a uniqueness rule.
	ErrConflict = errors.New("remote: record already exists")
)

// Store is the remote document store. Every list operation is scoped to one
// user; every mutation carries the owning user on the record.
type Store interface {
	ListEntries(ctx context.Context, userID string) ([]models.JournalEntry, error)
	CreateEntry(ctx context.Context, entry *models.JournalEntry) error
	UpdateEntry(ctx context.Context, entry *models.JournalEntry) error
	DeleteEntry(ctx context.Context, userID, id string) error

	ListWeeklySummaries(ctx context.Context, userID string) ([]models.WeeklySummary, error)
	CreateWeeklySummary(ctx context.Context, summary *models.WeeklySummary) error
	DeleteWeeklySummary(ctx context.Context, userID, id string) error

	ListEntrySummaries(ctx context.Context, userID string) ([]models.EntrySummary, error)
	CreateEntrySummary(ctx context.Context, summary *models.EntrySummary) error
	DeleteEntrySummary(ctx context.Context, userID, id string) error
	// RemoveEntrySummary deletes the summary of entryID, if any.
	RemoveEntrySummary(ctx context.Context, userID, entryID string) error

	ListHoldStatuses(ctx context.Context, userID string) ([]models.EntryHoldStatus, error)
	CreateHoldStatus(ctx context.Context, status *models.EntryHoldStatus) error
	UpdateHoldStatus(ctx context.Context, status *models.EntryHoldStatus) error
	DeleteHoldStatus(ctx context.Context, userID, id string) error
	// RemoveHoldStatus deletes the hold status of entryID, if any.
	RemoveHoldStatus(ctx context.Context, userID, entryID string) error

	Close(ctx context.Context) error
}
