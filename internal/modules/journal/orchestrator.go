// Package journal keeps one user's journal state in sync between the local
// cache, the remote store and the offline fallback store.
package journal

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/mx-space/journal/internal/config"
	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/modules/remote"
	"github.com/mx-space/journal/internal/pkg/fallback"
	"github.com/mx-space/journal/internal/pkg/localcache"
	"go.uber.org/zap"
)

const defaultSubBufSize = 16

type Options struct {
	UserID   string
	Remote   remote.Store
	Cache    *localcache.Store
	Local    *fallback.Store
	Location *time.Location
	Clock    func() time.Time
	Logger   *zap.Logger

	// Invalidation is config.InvalidateAlways or config.InvalidateOnContentChange.
	Invalidation string
}

// State is a point-in-time copy of everything the session knows.
type State struct {
	Entries         []models.JournalEntry          `json:"entries"`
	WeeklySummaries []models.WeeklySummary         `json:"weekly_summaries"`
	EntrySummaries  []models.EntrySummary          `json:"entry_summaries"`
	HoldStatuses    []models.EntryHoldStatus       `json:"hold_statuses"`
	Loading         map[localcache.Collection]bool `json:"loading"`
}

// Orchestrator owns the in-memory state of one user's session.
type Orchestrator struct {
	userID       string
	remote       remote.Store
	cache        *localcache.Store
	local        *fallback.Store
	loc          *time.Location
	now          func() time.Time
	logger       *zap.Logger
	invalidation string

	mu         sync.RWMutex
	entries    []models.JournalEntry
	weekly     []models.WeeklySummary
	summaries  []models.EntrySummary
	holds      []models.EntryHoldStatus
	loading    map[localcache.Collection]bool
	refreshing map[localcache.Collection]bool
	// versions counts local writes per collection; loads started before a
	// write must not overwrite it.
	versions map[localcache.Collection]uint64

	bg  sync.WaitGroup
	hub *stateHub
}

// New returns an Orchestrator with empty state. Call LoadAll to hydrate it.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		userID:       opts.UserID,
		remote:       opts.Remote,
		cache:        opts.Cache,
		local:        opts.Local,
		loc:          opts.Location,
		now:          opts.Clock,
		logger:       opts.Logger,
		invalidation: opts.Invalidation,
		entries:      []models.JournalEntry{},
		weekly:       []models.WeeklySummary{},
		summaries:    []models.EntrySummary{},
		holds:        []models.EntryHoldStatus{},
		loading:      make(map[localcache.Collection]bool),
		refreshing:   make(map[localcache.Collection]bool),
		versions:     make(map[localcache.Collection]uint64),
		hub:          newStateHub(),
	}
	if o.loc == nil {
		o.loc = time.UTC
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.invalidation == "" {
		o.invalidation = config.InvalidateAlways
	}
	if o.cache == nil {
		o.cache = localcache.New(localcache.NewMemoryBackend())
	}
	o.logger = o.logger.Named("Journal").With(zap.String("user", o.userID))
	return o
}

func (o *Orchestrator) UserID() string { return o.userID }

func (o *Orchestrator) version(c localcache.Collection) uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.versions[c]
}

func (o *Orchestrator) Location() *time.Location { return o.loc }

func (o *Orchestrator) Now() time.Time { return o.now() }

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() State {
	loading := make(map[localcache.Collection]bool, len(o.loading))
	for c, v := range o.loading {
		if v {
			loading[c] = true
		}
	}
	return State{
		Entries:         slices.Clone(o.entries),
		WeeklySummaries: slices.Clone(o.weekly),
		EntrySummaries:  slices.Clone(o.summaries),
		HoldStatuses:    slices.Clone(o.holds),
		Loading:         loading,
	}
}

// Subscribe returns a channel receiving a State after every change. Slow
// subscribers miss intermediate states.
func (o *Orchestrator) Subscribe(buffer int) (int, <-chan State) {
	if buffer <= 0 {
		buffer = defaultSubBufSize
	}
	return o.hub.subscribe(buffer)
}

func (o *Orchestrator) Unsubscribe(id int) {
	o.hub.unsubscribe(id)
}

func (o *Orchestrator) publish() {
	o.hub.publish(o.Snapshot())
}

// WaitBackground blocks until in-flight background refreshes finish.
func (o *Orchestrator) WaitBackground() {
	o.bg.Wait()
}

func (o *Orchestrator) Entries() []models.JournalEntry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.entries)
}

func (o *Orchestrator) WeeklySummaries() []models.WeeklySummary {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.weekly)
}

func (o *Orchestrator) HoldStatuses() []models.EntryHoldStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.holds)
}

func (o *Orchestrator) Entry(id string) (models.JournalEntry, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return find(o.entries, func(e models.JournalEntry) bool { return e.ID == id })
}

func (o *Orchestrator) EntrySummaryFor(entryID string) (models.EntrySummary, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return find(o.summaries, func(s models.EntrySummary) bool { return s.EntryID == entryID })
}

func (o *Orchestrator) HoldStatusFor(entryID string) (models.EntryHoldStatus, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return find(o.holds, func(h models.EntryHoldStatus) bool { return h.EntryID == entryID })
}

// ResetCache drops every cached snapshot of this user.
func (o *Orchestrator) ResetCache(ctx context.Context) error {
	for _, c := range localcache.Collections {
		if err := o.cache.Invalidate(ctx, c, o.userID); err != nil {
			return err
		}
	}
	return nil
}

func find[T any](items []T, match func(T) bool) (T, bool) {
	for _, item := range items {
		if match(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// upsert replaces the first item matching or appends v.
func upsert[T any](items []T, v T, match func(T) bool) []T {
	for i := range items {
		if match(items[i]) {
			out := slices.Clone(items)
			out[i] = v
			return out
		}
	}
	return append(slices.Clone(items), v)
}

func without[T any](items []T, match func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if !match(item) {
			out = append(out, item)
		}
	}
	return out
}

type stateHub struct {
	mu          sync.RWMutex
	nextID      int
	subscribers map[int]chan State
}

func newStateHub() *stateHub {
	return &stateHub{subscribers: make(map[int]chan State)}
}

func (h *stateHub) subscribe(buffer int) (int, <-chan State) {
	ch := make(chan State, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subscribers[id] = ch
	h.mu.Unlock()

	return id, ch
}

func (h *stateHub) unsubscribe(id int) {
	h.mu.Lock()
	ch, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	if ok {
		close(ch)
	}
}

func (h *stateHub) publish(state State) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- state:
		default:
		}
	}
}
