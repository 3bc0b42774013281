// Package session keeps one hydrated journal session per user and exposes
// it over HTTP.
package session

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mx-space/journal/internal/modules/analysis"
	"github.com/mx-space/journal/internal/modules/entrysummary"
	"github.com/mx-space/journal/internal/modules/journal"
	"github.com/mx-space/journal/internal/modules/remote"
	"github.com/mx-space/journal/internal/modules/weekly"
	"github.com/mx-space/journal/internal/pkg/fallback"
	"github.com/mx-space/journal/internal/pkg/localcache"
	"go.uber.org/zap"
)

var ErrNoUser = errors.New("user id is required")

// Deps are shared by every session the registry creates.
type Deps struct {
	Remote       remote.Store
	Cache        *localcache.Store
	Local        *fallback.Store
	Analyzer     analysis.Analyzer
	Tracker      entrysummary.Tracker
	Location     *time.Location
	Invalidation string
	MaxRetries   int
	WaitTimeout  time.Duration
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Session bundles the per-user orchestrator with the machines that act on it.
type Session struct {
	Journal   *journal.Orchestrator
	Summaries *entrysummary.Machine
	Weekly    *weekly.Trigger

	mu     sync.Mutex
	loaded bool
}

// ensureLoaded hydrates the session once. A failed load is retried on the
// next call.
func (s *Session) ensureLoaded(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return nil
	}
	if err := s.Journal.LoadAll(ctx); err != nil {
		return err
	}
	s.loaded = true
	return nil
}

type Registry struct {
	deps   Deps
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(deps Deps) *Registry {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.WaitTimeout <= 0 {
		deps.WaitTimeout = entrysummary.DefaultWaitTimeout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Registry{
		deps:     deps,
		logger:   deps.Logger.Named("Session"),
		sessions: make(map[string]*Session),
	}
}

// WaitTimeout is how long HTTP callers wait for a summary before getting a
// "still generating" answer.
func (r *Registry) WaitTimeout() time.Duration { return r.deps.WaitTimeout }

// Location is the default zone for day bucketing.
func (r *Registry) Location() *time.Location { return r.deps.Location }

// Now reads the registry clock.
func (r *Registry) Now() time.Time { return r.deps.Clock() }

// Get returns the user's session, creating and hydrating it on first use. A
// session whose load failed stays registered and is loaded again next time.
func (r *Registry) Get(ctx context.Context, userID string) (*Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrNoUser
	}

	r.mu.Lock()
	s, ok := r.sessions[userID]
	if !ok {
		s = r.newSession(userID)
		r.sessions[userID] = s
		r.logger.Debug("session opened", zap.String("user", userID))
	}
	r.mu.Unlock()

	if err := s.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Registry) newSession(userID string) *Session {
	orch := journal.New(journal.Options{
		UserID:       userID,
		Remote:       r.deps.Remote,
		Cache:        r.deps.Cache,
		Local:        r.deps.Local,
		Location:     r.deps.Location,
		Clock:        r.deps.Clock,
		Logger:       r.deps.Logger,
		Invalidation: r.deps.Invalidation,
	})
	return &Session{
		Journal: orch,
		Summaries: entrysummary.New(entrysummary.Options{
			Store:      orch,
			Analyzer:   r.deps.Analyzer,
			Tracker:    r.deps.Tracker,
			MaxRetries: r.deps.MaxRetries,
			Clock:      r.deps.Clock,
			Logger:     r.deps.Logger,
		}),
		Weekly: weekly.New(orch, r.deps.Analyzer, r.deps.Logger),
	}
}

// Users lists the users with an open session, sorted.
func (r *Registry) Users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Each calls fn for every open session that finished loading, in user order.
// It stops at the first context cancellation.
func (r *Registry) Each(ctx context.Context, fn func(userID string, s *Session) error) error {
	var errs []error
	for _, id := range r.Users() {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.mu.Lock()
		s := r.sessions[id]
		r.mu.Unlock()
		if s == nil || !s.isLoaded() {
			continue
		}
		if err := fn(id, s); err != nil {
			r.logger.Warn("session task failed", zap.String("user", id), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) isLoaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// Close waits for detached generations and background refreshes of every
// session.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()
	for _, s := range sessions {
		s.Summaries.Wait()
		s.Journal.WaitBackground()
	}
}
