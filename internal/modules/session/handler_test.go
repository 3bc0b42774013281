package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/journal/internal/middleware"
	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/modules/analysis"
	"github.com/mx-space/journal/internal/modules/entrysummary"
	"github.com/mx-space/journal/internal/modules/remote/memory"
	"github.com/mx-space/journal/internal/modules/streak"
	"github.com/mx-space/journal/internal/modules/weekly"
	"github.com/mx-space/journal/internal/pkg/jwt"
	"github.com/mx-space/journal/internal/pkg/localcache"
)

type stubAnalyzer struct {
	mu  sync.Mutex
	err error
}

func (a *stubAnalyzer) AnalyzeIndividualEntry(_ context.Context, entry models.JournalEntry) (*analysis.EntryAnalysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return &analysis.EntryAnalysis{KeyThemes: []string{"rest"}, Reflection: entry.Content}, nil
}

func (a *stubAnalyzer) AnalyzeWeeklyEntries(context.Context, []models.JournalEntry) (*analysis.WeeklyAnalysis, error) {
	return &analysis.WeeklyAnalysis{Themes: []string{"routine"}}, nil
}

func (a *stubAnalyzer) LastError() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err == nil {
		return ""
	}
	return a.err.Error()
}

type server struct {
	router   *gin.Engine
	remote   *memory.Store
	analyzer *stubAnalyzer
	token    string
}

func newServer(t *testing.T, maxRetries int) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signer, err := jwt.NewSigner("test-secret", "journal")
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	token, err := signer.Sign("u1", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	now := time.Date(2024, 1, 7, 10, 0, 0, 0, time.UTC)
	srv := &server{remote: memory.New(), analyzer: &stubAnalyzer{}, token: token}
	reg := NewRegistry(Deps{
		Remote:      srv.remote,
		Cache:       localcache.New(localcache.NewMemoryBackend()),
		Analyzer:    srv.analyzer,
		MaxRetries:  maxRetries,
		WaitTimeout: 5 * time.Second,
		Clock:       func() time.Time { return now },
	})
	t.Cleanup(reg.Close)

	srv.router = gin.New()
	NewHandler(reg, nil).RegisterRoutes(srv.router.Group("/api/v1"), middleware.Auth(signer))
	return srv
}

func (s *server) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func (s *server) createEntry(t *testing.T, date, content string) models.JournalEntry {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/entries", map[string]string{"content": content, "date": date})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}
	var entry models.JournalEntry
	decode(t, rec, &entry)
	return entry
}

func TestRoutesRequireToken(t *testing.T) {
	srv := newServer(t, 0)
	srv.token = ""
	if rec := srv.do(t, http.MethodGet, "/state", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestEntryLifecycle(t *testing.T) {
	srv := newServer(t, 0)
	entry := srv.createEntry(t, "2024-01-06", "walked by the river #outside")
	if entry.ID == "" || entry.UserID != "u1" {
		t.Fatalf("entry = %+v", entry)
	}

	rec := srv.do(t, http.MethodPatch, "/entries/"+entry.ID, map[string]string{"title": "Saturday"})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d body=%s", rec.Code, rec.Body.String())
	}
	var updated models.JournalEntry
	decode(t, rec, &updated)
	if updated.Title != "Saturday" || updated.Content != entry.Content {
		t.Fatalf("updated = %+v", updated)
	}

	rec = srv.do(t, http.MethodGet, "/state", nil)
	var state struct {
		Entries []models.JournalEntry `json:"entries"`
	}
	decode(t, rec, &state)
	if len(state.Entries) != 1 || state.Entries[0].Title != "Saturday" {
		t.Fatalf("state entries = %+v", state.Entries)
	}

	if rec := srv.do(t, http.MethodDelete, "/entries/"+entry.ID, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodDelete, "/entries/"+entry.ID, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rec.Code)
	}
}

func TestCreateEntryRejectsInvalidInput(t *testing.T) {
	srv := newServer(t, 0)
	cases := map[string]map[string]string{
		"mood":    {"content": "x", "mood": "bored"},
		"date":    {"content": "x", "date": "06/01/2024"},
		"content": {"content": "   "},
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if rec := srv.do(t, http.MethodPost, "/entries", body); rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestGenerateSummary(t *testing.T) {
	srv := newServer(t, 0)
	entry := srv.createEntry(t, "2024-01-07", "slept well")

	rec := srv.do(t, http.MethodPost, "/entries/"+entry.ID+"/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d body=%s", rec.Code, rec.Body.String())
	}
	var res entrysummary.Result
	decode(t, rec, &res)
	if res.State != entrysummary.StateSummarized || res.Summary == nil {
		t.Fatalf("result = %+v", res)
	}

	rec = srv.do(t, http.MethodGet, "/entries/"+entry.ID+"/summary", nil)
	var view summaryView
	decode(t, rec, &view)
	if view.State != entrysummary.StateSummarized || view.Summary == nil || view.Hold != nil {
		t.Fatalf("view = %+v", view)
	}

	if rec := srv.do(t, http.MethodGet, "/entries/missing/summary", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing entry status = %d", rec.Code)
	}
}

func TestHeldSummaryHitsRetryLimit(t *testing.T) {
	srv := newServer(t, 1)
	srv.analyzer.err = &analysis.APIError{Provider: "openai", StatusCode: http.StatusTooManyRequests, Message: "Rate limit reached"}
	entry := srv.createEntry(t, "2024-01-07", "long day")

	rec := srv.do(t, http.MethodPost, "/entries/"+entry.ID+"/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("generate status = %d body=%s", rec.Code, rec.Body.String())
	}
	var res entrysummary.Result
	decode(t, rec, &res)
	if res.State != entrysummary.StateHeld || res.Hold == nil || res.Hold.Reason != models.HoldRateLimit {
		t.Fatalf("result = %+v", res)
	}

	rec = srv.do(t, http.MethodGet, "/holds", nil)
	var holds struct {
		Data []models.EntryHoldStatus `json:"data"`
	}
	decode(t, rec, &holds)
	if len(holds.Data) != 1 || holds.Data[0].EntryID != entry.ID {
		t.Fatalf("holds = %+v", holds.Data)
	}

	if rec := srv.do(t, http.MethodPost, "/entries/"+entry.ID+"/summary/retry", nil); rec.Code != http.StatusConflict {
		t.Fatalf("retry status = %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestStreaksAndEligibility(t *testing.T) {
	srv := newServer(t, 0)
	srv.createEntry(t, "2024-01-06", "one")
	srv.createEntry(t, "2024-01-07", "two")

	// Streaks follow creation time, and both entries were written today.
	rec := srv.do(t, http.MethodGet, "/streaks", nil)
	var s streak.Streaks
	decode(t, rec, &s)
	if s.CurrentStreak != 1 || s.LongestStreak != 1 || s.StreakStartDate != "2024-01-07" {
		t.Fatalf("streaks = %+v", s)
	}

	if rec := srv.do(t, http.MethodGet, "/streaks?tz=Nowhere/Atlantis", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad tz status = %d", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/weekly/eligibility?tz=%2B08:00", nil)
	var el streak.Eligibility
	decode(t, rec, &el)
	if el.Eligible || el.DaysInWindow != 2 || el.EntriesInWindow != 2 {
		t.Fatalf("eligibility = %+v", el)
	}

	rec = srv.do(t, http.MethodPost, "/weekly", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("weekly status = %d body=%s", rec.Code, rec.Body.String())
	}
	var wr weekly.Result
	decode(t, rec, &wr)
	if wr.Outcome != weekly.OutcomeIneligible {
		t.Fatalf("outcome = %s", wr.Outcome)
	}
}

func TestUnavailableSessionRecovers(t *testing.T) {
	srv := newServer(t, 0)
	srv.remote.FailWith(func(string) error { return errors.New("dial tcp: connection refused") })
	if rec := srv.do(t, http.MethodGet, "/state", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}

	srv.remote.FailWith(nil)
	if rec := srv.do(t, http.MethodGet, "/state", nil); rec.Code != http.StatusOK {
		t.Fatalf("status after recovery = %d body=%s", rec.Code, rec.Body.String())
	}
}
