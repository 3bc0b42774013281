package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/modules/remote"
	"github.com/mx-space/journal/internal/pkg/localcache"
	"go.uber.org/zap"
)

// Reconcile pushes records saved offline to the remote store, removes the
// ones that landed and refreshes state and cache from the remote copy. It
// returns how many records were replayed.
func (o *Orchestrator) Reconcile(ctx context.Context) (int, error) {
	if o.local == nil {
		return 0, nil
	}

	var (
		replayed int
		errs     []error
	)
	for _, c := range localcache.Collections {
		records, err := o.local.List(ctx, string(c), o.userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("list offline %s: %w", c, err))
			continue
		}
		for _, rec := range records {
			if err := o.replay(ctx, c, rec.Payload); err != nil {
				o.logger.Warn("replay failed", zap.String("collection", string(c)), zap.String("id", rec.ID), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			if err := o.local.Delete(ctx, string(c), o.userID, rec.ID); err != nil {
				errs = append(errs, err)
				continue
			}
			replayed++
		}
	}

	if replayed > 0 {
		if err := o.Refresh(ctx); err != nil {
			errs = append(errs, err)
		}
		o.logger.Info("offline writes reconciled", zap.Int("count", replayed))
	}
	return replayed, errors.Join(errs...)
}

func (o *Orchestrator) replay(ctx context.Context, c localcache.Collection, payload json.RawMessage) error {
	switch c {
	case localcache.Entries:
		var entry models.JournalEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return err
		}
		entry.UserID = o.userID
		err := o.remote.UpdateEntry(ctx, &entry)
		if errors.Is(err, remote.ErrNotFound) {
			err = o.remote.CreateEntry(ctx, &entry)
		}
		return err

	case localcache.EntrySummaries:
		var s models.EntrySummary
		if err := json.Unmarshal(payload, &s); err != nil {
			return err
		}
		s.UserID = o.userID
		if err := o.remote.RemoveHoldStatus(ctx, o.userID, s.EntryID); err != nil {
			return err
		}
		if err := o.remote.RemoveEntrySummary(ctx, o.userID, s.EntryID); err != nil {
			return err
		}
		return o.remote.CreateEntrySummary(ctx, &s)

	case localcache.HoldStatuses:
		var h models.EntryHoldStatus
		if err := json.Unmarshal(payload, &h); err != nil {
			return err
		}
		h.UserID = o.userID
		if err := o.remote.RemoveEntrySummary(ctx, o.userID, h.EntryID); err != nil {
			return err
		}
		err := o.remote.UpdateHoldStatus(ctx, &h)
		if errors.Is(err, remote.ErrNotFound) {
			if err := o.remote.RemoveHoldStatus(ctx, o.userID, h.EntryID); err != nil {
				return err
			}
			err = o.remote.CreateHoldStatus(ctx, &h)
		}
		return err

	case localcache.WeeklySummaries:
		var s models.WeeklySummary
		if err := json.Unmarshal(payload, &s); err != nil {
			return err
		}
		s.UserID = o.userID
		err := o.remote.CreateWeeklySummary(ctx, &s)
		if errors.Is(err, remote.ErrConflict) {
			return nil
		}
		return err
	}
	return fmt.Errorf("unknown collection %q", c)
}
