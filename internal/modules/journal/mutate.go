package journal

import (
	"context"
	"fmt"
	"slices"

	"github.com/mx-space/journal/internal/pkg/localcache"
	"go.uber.org/zap"
)

// mutation is one write against a collection. value is nil for deletes.
type mutation struct {
	op         string
	collection localcache.Collection
	id         string
	value      interface{}
	remote     func(ctx context.Context) error

	// apply changes the in-memory state. It runs under o.mu.
	apply func()

	// also lists other collections apply touches, so their snapshots are
	// rewritten too.
	also []localcache.Collection
}

// commit writes remotely, falling back to the local store. State always
// follows a write that landed somewhere; the cache snapshot is rewritten only
// after a remote success.
func (o *Orchestrator) commit(ctx context.Context, m mutation) error {
	remoteErr := m.remote(ctx)
	if remoteErr == nil {
		o.mu.Lock()
		m.apply()
		o.bumpLocked(m)
		snapshots := o.snapshotsLocked(append([]localcache.Collection{m.collection}, m.also...))
		o.mu.Unlock()
		o.publish()

		if o.local != nil && m.id != "" {
			if err := o.local.Delete(ctx, string(m.collection), o.userID, m.id); err != nil {
				o.logger.Warn("clear offline copy failed", zap.String("op", m.op), zap.Error(err))
			}
		}
		for c, payload := range snapshots {
			if err := o.cache.Write(ctx, c, o.userID, payload); err != nil {
				o.logger.Warn("cache write failed", zap.String("collection", string(c)), zap.Error(err))
			}
		}
		return nil
	}

	o.logger.Warn("remote write failed, saving offline", zap.String("op", m.op), zap.String("id", m.id), zap.Error(remoteErr))
	localErr := o.writeLocal(ctx, m)
	if localErr != nil {
		return &PersistError{Op: m.op, Remote: remoteErr, Local: localErr}
	}

	o.mu.Lock()
	m.apply()
	o.bumpLocked(m)
	o.mu.Unlock()
	o.publish()
	return nil
}

func (o *Orchestrator) bumpLocked(m mutation) {
	o.versions[m.collection]++
	for _, c := range m.also {
		o.versions[c]++
	}
}

func (o *Orchestrator) writeLocal(ctx context.Context, m mutation) error {
	if o.local == nil {
		return fmt.Errorf("no offline store configured")
	}
	if m.value == nil {
		return o.local.Delete(ctx, string(m.collection), o.userID, m.id)
	}
	return o.local.Save(ctx, string(m.collection), o.userID, m.id, m.value)
}

func (o *Orchestrator) snapshotsLocked(collections []localcache.Collection) map[localcache.Collection]interface{} {
	out := make(map[localcache.Collection]interface{}, len(collections))
	for _, c := range collections {
		switch c {
		case localcache.Entries:
			out[c] = slices.Clone(o.entries)
		case localcache.WeeklySummaries:
			out[c] = slices.Clone(o.weekly)
		case localcache.EntrySummaries:
			out[c] = slices.Clone(o.summaries)
		case localcache.HoldStatuses:
			out[c] = slices.Clone(o.holds)
		}
	}
	return out
}
