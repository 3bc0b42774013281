package journal

import (
	"context"
	"errors"

	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/modules/remote"
	"github.com/mx-space/journal/internal/pkg/localcache"
	"go.uber.org/zap"
)

func summaryOf(entryID string) func(models.EntrySummary) bool {
	return func(s models.EntrySummary) bool { return s.EntryID == entryID }
}

func holdOf(entryID string) func(models.EntryHoldStatus) bool {
	return func(h models.EntryHoldStatus) bool { return h.EntryID == entryID }
}

// SaveEntrySummary replaces any summary of the entry with s and clears the
// entry's hold.
func (o *Orchestrator) SaveEntrySummary(ctx context.Context, s models.EntrySummary) (models.EntrySummary, error) {
	s.UserID = o.userID
	s.EnsureID()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = o.now()
	}
	if prev, has := o.EntrySummaryFor(s.EntryID); has && prev.ID != s.ID {
		o.dropOffline(ctx, localcache.EntrySummaries, prev.ID)
	}
	hold, held := o.HoldStatusFor(s.EntryID)

	err := o.commit(ctx, mutation{
		op:         "save entry summary",
		collection: localcache.EntrySummaries,
		id:         s.ID,
		value:      s,
		// The hold goes first and the summary is created last, so a
		// partial failure never leaves both on the remote store.
		remote: func(ctx context.Context) error {
			if err := o.remote.RemoveHoldStatus(ctx, o.userID, s.EntryID); err != nil {
				return err
			}
			if err := o.remote.RemoveEntrySummary(ctx, o.userID, s.EntryID); err != nil {
				return err
			}
			return o.remote.CreateEntrySummary(ctx, &s)
		},
		apply: func() {
			o.summaries = upsert(o.summaries, s, summaryOf(s.EntryID))
			o.holds = without(o.holds, holdOf(s.EntryID))
		},
		also: []localcache.Collection{localcache.HoldStatuses},
	})
	if err != nil {
		return models.EntrySummary{}, err
	}

	if held {
		o.dropOffline(ctx, localcache.HoldStatuses, hold.ID)
	}
	return s, nil
}

// DeleteEntrySummary removes the entry's summary, if any.
func (o *Orchestrator) DeleteEntrySummary(ctx context.Context, entryID string) error {
	existing, _ := o.EntrySummaryFor(entryID)
	return o.commit(ctx, mutation{
		op:         "delete entry summary",
		collection: localcache.EntrySummaries,
		id:         existing.ID,
		remote: func(ctx context.Context) error {
			return o.remote.RemoveEntrySummary(ctx, o.userID, entryID)
		},
		apply: func() {
			o.summaries = without(o.summaries, summaryOf(entryID))
		},
	})
}

// SaveHoldStatus writes the single hold record of an entry. An existing hold
// keeps its id and CreatedAt; the caller sets RetryCount.
func (o *Orchestrator) SaveHoldStatus(ctx context.Context, h models.EntryHoldStatus) (models.EntryHoldStatus, error) {
	h.UserID = o.userID
	prev, has := o.HoldStatusFor(h.EntryID)
	if has {
		h.ID = prev.ID
		h.CreatedAt = prev.CreatedAt
	} else {
		h.EnsureID()
		if h.CreatedAt.IsZero() {
			h.CreatedAt = o.now()
		}
	}

	err := o.commit(ctx, mutation{
		op:         "save hold status",
		collection: localcache.HoldStatuses,
		id:         h.ID,
		value:      h,
		remote: func(ctx context.Context) error {
			if err := o.remote.RemoveEntrySummary(ctx, o.userID, h.EntryID); err != nil {
				return err
			}
			if has {
				err := o.remote.UpdateHoldStatus(ctx, &h)
				if !errors.Is(err, remote.ErrNotFound) {
					return err
				}
			}
			err := o.remote.CreateHoldStatus(ctx, &h)
			if errors.Is(err, remote.ErrConflict) {
				if err := o.remote.RemoveHoldStatus(ctx, o.userID, h.EntryID); err != nil {
					return err
				}
				return o.remote.CreateHoldStatus(ctx, &h)
			}
			return err
		},
		apply: func() {
			o.holds = upsert(o.holds, h, holdOf(h.EntryID))
			o.summaries = without(o.summaries, summaryOf(h.EntryID))
		},
		also: []localcache.Collection{localcache.EntrySummaries},
	})
	if err != nil {
		return models.EntryHoldStatus{}, err
	}
	return h, nil
}

// RemoveHoldStatus clears the entry's hold, if any.
func (o *Orchestrator) RemoveHoldStatus(ctx context.Context, entryID string) error {
	existing, _ := o.HoldStatusFor(entryID)
	return o.commit(ctx, mutation{
		op:         "remove hold status",
		collection: localcache.HoldStatuses,
		id:         existing.ID,
		remote: func(ctx context.Context) error {
			return o.remote.RemoveHoldStatus(ctx, o.userID, entryID)
		},
		apply: func() {
			o.holds = without(o.holds, holdOf(entryID))
		},
	})
}

func (o *Orchestrator) CreateWeeklySummary(ctx context.Context, s models.WeeklySummary) (models.WeeklySummary, error) {
	s.UserID = o.userID
	s.EnsureID()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = o.now()
	}
	err := o.commit(ctx, mutation{
		op:         "create weekly summary",
		collection: localcache.WeeklySummaries,
		id:         s.ID,
		value:      s,
		remote: func(ctx context.Context) error {
			return o.remote.CreateWeeklySummary(ctx, &s)
		},
		apply: func() {
			o.weekly = append(o.weekly, s)
		},
	})
	if err != nil {
		return models.WeeklySummary{}, err
	}
	return s, nil
}

func (o *Orchestrator) dropOffline(ctx context.Context, c localcache.Collection, id string) {
	if o.local == nil || id == "" {
		return
	}
	if err := o.local.Delete(ctx, string(c), o.userID, id); err != nil {
		o.logger.Warn("clear offline copy failed", zap.String("collection", string(c)), zap.Error(err))
	}
}
