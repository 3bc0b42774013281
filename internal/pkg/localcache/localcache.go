// Package localcache keeps the last known snapshot of each journal collection
// per user, together with the time it was written.
package localcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Collection names a cached snapshot.
type Collection string

const (
	Entries         Collection = "entries"
	WeeklySummaries Collection = "summaries"
	EntrySummaries  Collection = "entrySummaries"
	HoldStatuses    Collection = "holdStatuses"
)

// Collections lists every cached collection.
var Collections = []Collection{Entries, WeeklySummaries, EntrySummaries, HoldStatuses}

// DefaultStaleness returns the built-in staleness windows.
func DefaultStaleness() map[Collection]time.Duration {
	return map[Collection]time.Duration{
		Entries:         30 * time.Minute,
		EntrySummaries:  30 * time.Minute,
		WeeklySummaries: 10 * time.Minute,
		HoldStatuses:    30 * time.Minute,
	}
}

// ErrNotCached is returned by Backend.Get for missing keys.
var ErrNotCached = errors.New("localcache: not cached")

// Backend stores opaque values by key.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Item is a cached snapshot.
type Item struct {
	Payload   json.RawMessage
	WrittenAt time.Time
	Age       time.Duration
}

type envelope struct {
	Payload   json.RawMessage `json:"payload"`
	WrittenAt time.Time       `json:"written_at"`
}

// Store reads and writes snapshots through a Backend.
type Store struct {
	backend   Backend
	staleness map[Collection]time.Duration
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithStaleness overrides the staleness window of individual collections.
func WithStaleness(overrides map[Collection]time.Duration) Option {
	return func(s *Store) {
		for c, d := range overrides {
			if d > 0 {
				s.staleness[c] = d
			}
		}
	}
}

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns a Store over backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		staleness: DefaultStaleness(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key returns the physical key of a (collection, user) snapshot.
func Key(c Collection, userID string) string {
	return "journal:cache:" + userID + ":" + string(c)
}

// Read returns the snapshot for (c, userID). ok is false when nothing is cached.
func (s *Store) Read(ctx context.Context, c Collection, userID string) (item Item, ok bool, err error) {
	raw, err := s.backend.Get(ctx, Key(c, userID))
	if errors.Is(err, ErrNotCached) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, fmt.Errorf("read cache %s: %w", c, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Item{}, false, fmt.Errorf("decode cache %s: %w", c, err)
	}
	age := s.now().Sub(env.WrittenAt)
	if age < 0 {
		age = 0
	}
	return Item{Payload: env.Payload, WrittenAt: env.WrittenAt, Age: age}, true, nil
}

// Write replaces the snapshot for (c, userID) and stamps it with the current time.
func (s *Store) Write(ctx context.Context, c Collection, userID string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", c, err)
	}
	raw, err := json.Marshal(envelope{Payload: body, WrittenAt: s.now()})
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, Key(c, userID), raw); err != nil {
		return fmt.Errorf("write cache %s: %w", c, err)
	}
	return nil
}

// Invalidate drops the snapshot for (c, userID). Missing snapshots are not an error.
func (s *Store) Invalidate(ctx context.Context, c Collection, userID string) error {
	if err := s.backend.Delete(ctx, Key(c, userID)); err != nil && !errors.Is(err, ErrNotCached) {
		return fmt.Errorf("invalidate cache %s: %w", c, err)
	}
	return nil
}

// Staleness returns the staleness window of c.
func (s *Store) Staleness(c Collection) time.Duration {
	if d, ok := s.staleness[c]; ok {
		return d
	}
	return 30 * time.Minute
}

// IsStale reports whether a snapshot of the given age needs a refresh.
func (s *Store) IsStale(c Collection, age time.Duration) bool {
	return age > s.Staleness(c)
}

// ReadAs decodes the snapshot for (c, userID) into a list of T.
func ReadAs[T any](ctx context.Context, s *Store, c Collection, userID string) (values []T, item Item, ok bool, err error) {
	item, ok, err = s.Read(ctx, c, userID)
	if err != nil || !ok {
		return nil, item, ok, err
	}
	if err := json.Unmarshal(item.Payload, &values); err != nil {
		return nil, item, false, fmt.Errorf("decode cache %s payload: %w", c, err)
	}
	return values, item, true, nil
}
