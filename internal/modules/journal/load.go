package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/pkg/fallback"
	"github.com/mx-space/journal/internal/pkg/localcache"
	"go.uber.org/zap"
)

// collection binds one cached collection to its remote list call and its
// slot in the orchestrator state.
type collection[T any] struct {
	name localcache.Collection
	list func(ctx context.Context, o *Orchestrator) ([]T, error)
	get  func(o *Orchestrator) []T
	set  func(o *Orchestrator, values []T)
	id   func(T) string
}

var (
	entriesCollection = collection[models.JournalEntry]{
		name: localcache.Entries,
		list: func(ctx context.Context, o *Orchestrator) ([]models.JournalEntry, error) {
			return o.remote.ListEntries(ctx, o.userID)
		},
		get: func(o *Orchestrator) []models.JournalEntry { return o.entries },
		set: func(o *Orchestrator, v []models.JournalEntry) { o.entries = v },
		id:  func(v models.JournalEntry) string { return v.ID },
	}
	weeklyCollection = collection[models.WeeklySummary]{
		name: localcache.WeeklySummaries,
		list: func(ctx context.Context, o *Orchestrator) ([]models.WeeklySummary, error) {
			return o.remote.ListWeeklySummaries(ctx, o.userID)
		},
		get: func(o *Orchestrator) []models.WeeklySummary { return o.weekly },
		set: func(o *Orchestrator, v []models.WeeklySummary) { o.weekly = v },
		id:  func(v models.WeeklySummary) string { return v.ID },
	}
	summariesCollection = collection[models.EntrySummary]{
		name: localcache.EntrySummaries,
		list: func(ctx context.Context, o *Orchestrator) ([]models.EntrySummary, error) {
			return o.remote.ListEntrySummaries(ctx, o.userID)
		},
		get: func(o *Orchestrator) []models.EntrySummary { return o.summaries },
		set: func(o *Orchestrator, v []models.EntrySummary) { o.summaries = v },
		id:  func(v models.EntrySummary) string { return v.ID },
	}
	holdsCollection = collection[models.EntryHoldStatus]{
		name: localcache.HoldStatuses,
		list: func(ctx context.Context, o *Orchestrator) ([]models.EntryHoldStatus, error) {
			return o.remote.ListHoldStatuses(ctx, o.userID)
		},
		get: func(o *Orchestrator) []models.EntryHoldStatus { return o.holds },
		set: func(o *Orchestrator, v []models.EntryHoldStatus) { o.holds = v },
		id:  func(v models.EntryHoldStatus) string { return v.ID },
	}
)

func (o *Orchestrator) LoadEntries(ctx context.Context) error {
	return load(ctx, o, entriesCollection)
}

func (o *Orchestrator) LoadWeeklySummaries(ctx context.Context) error {
	return load(ctx, o, weeklyCollection)
}

func (o *Orchestrator) LoadEntrySummaries(ctx context.Context) error {
	return load(ctx, o, summariesCollection)
}

func (o *Orchestrator) LoadHoldStatuses(ctx context.Context) error {
	return load(ctx, o, holdsCollection)
}

// LoadAll loads every collection and joins their errors.
func (o *Orchestrator) LoadAll(ctx context.Context) error {
	return errors.Join(
		o.LoadEntries(ctx),
		o.LoadWeeklySummaries(ctx),
		o.LoadEntrySummaries(ctx),
		o.LoadHoldStatuses(ctx),
	)
}

// Refresh fetches every collection from the remote store regardless of cache
// age.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	return errors.Join(
		fetch(ctx, o, entriesCollection),
		fetch(ctx, o, weeklyCollection),
		fetch(ctx, o, summariesCollection),
		fetch(ctx, o, holdsCollection),
	)
}

// load publishes a cached snapshot without touching the network and, when it
// is stale, starts one background refresh. Without a cached snapshot it
// fetches synchronously with the loading flag raised.
func load[T any](ctx context.Context, o *Orchestrator, c collection[T]) error {
	version := o.version(c.name)
	values, item, ok, err := localcache.ReadAs[T](ctx, o.cache, c.name, o.userID)
	if err != nil {
		o.logger.Warn("unreadable cache snapshot", zap.String("collection", string(c.name)), zap.Error(err))
		ok = false
	}
	if ok {
		o.mu.Lock()
		if o.versions[c.name] == version {
			c.set(o, values)
		}
		o.mu.Unlock()
		o.publish()

		if o.cache.IsStale(c.name, item.Age) {
			refreshInBackground(ctx, o, c)
		}
		return nil
	}

	o.setLoading(c.name, true)
	defer o.setLoading(c.name, false)
	return fetch(ctx, o, c)
}

func refreshInBackground[T any](ctx context.Context, o *Orchestrator, c collection[T]) {
	o.mu.Lock()
	if o.refreshing[c.name] {
		o.mu.Unlock()
		return
	}
	o.refreshing[c.name] = true
	o.bg.Add(1)
	o.mu.Unlock()

	bgCtx := context.WithoutCancel(ctx)
	go func() {
		defer o.bg.Done()
		defer func() {
			o.mu.Lock()
			delete(o.refreshing, c.name)
			o.mu.Unlock()
		}()
		if err := fetch(bgCtx, o, c); err != nil {
			o.logger.Warn("background refresh failed", zap.String("collection", string(c.name)), zap.Error(err))
		}
	}()
}

// fetch replaces the collection with the remote copy. A copy listed before a
// local write landed is dropped; the write already refreshed state and cache.
// When the remote store fails, records saved offline are merged over the
// current state instead.
func fetch[T any](ctx context.Context, o *Orchestrator, c collection[T]) error {
	version := o.version(c.name)
	values, err := c.list(ctx, o)
	if err == nil {
		if values == nil {
			values = []T{}
		}
		o.mu.Lock()
		if o.versions[c.name] != version {
			o.mu.Unlock()
			o.logger.Debug("remote copy overtaken by a local write", zap.String("collection", string(c.name)))
			return nil
		}
		c.set(o, values)
		// Written under the lock so a later mutation's snapshot lands last.
		if err := o.cache.Write(ctx, c.name, o.userID, values); err != nil {
			o.logger.Warn("cache write failed", zap.String("collection", string(c.name)), zap.Error(err))
		}
		o.mu.Unlock()
		o.publish()
		return nil
	}

	o.logger.Warn("remote fetch failed, using offline copy", zap.String("collection", string(c.name)), zap.Error(err))
	if o.local == nil {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, c.name, err)
	}
	offline, lerr := fallback.ListAs[T](ctx, o.local, string(c.name), o.userID)
	if lerr != nil {
		return fmt.Errorf("%w: %s: remote: %v; local: %v", ErrUnavailable, c.name, err, lerr)
	}

	o.mu.Lock()
	merged := c.get(o)
	for _, v := range offline {
		id := c.id(v)
		merged = upsert(merged, v, func(cur T) bool { return c.id(cur) == id })
	}
	c.set(o, merged)
	o.mu.Unlock()
	o.publish()
	return nil
}

func (o *Orchestrator) setLoading(c localcache.Collection, on bool) {
	o.mu.Lock()
	if on {
		o.loading[c] = true
	} else {
		delete(o.loading, c)
	}
	o.mu.Unlock()
	o.publish()
}
