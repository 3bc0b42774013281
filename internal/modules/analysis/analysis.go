// Package analysis talks to the configured language model providers and turns
// their replies into entry and weekly insights.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	anthropicclient "github.com/anthropics/anthropic-sdk-go"
	"github.com/mx-space/journal/internal/models"
	openaiclient "github.com/openai/openai-go/v2"
	"google.golang.org/api/googleapi"
)

// Analyzer produces AI insights for journal entries.
type Analyzer interface {
	AnalyzeIndividualEntry(ctx context.Context, entry models.JournalEntry) (*EntryAnalysis, error)
	AnalyzeWeeklyEntries(ctx context.Context, entries []models.JournalEntry) (*WeeklyAnalysis, error)
	// LastError returns the message of the most recent failed call, if any.
	LastError() string
}

// EntryAnalysis is the parsed insight for one entry. Absent fields are empty.
type EntryAnalysis struct {
	KeyThemes         []string `json:"key_themes"`
	EmotionalInsights []string `json:"emotional_insights"`
	PersonalGrowth    []string `json:"personal_growth"`
	Patterns          []string `json:"patterns"`
	Suggestions       []string `json:"suggestions"`
	MotivationalNote  string   `json:"motivational_note"`
	Reflection        string   `json:"reflection"`
}

// WeeklyAnalysis is the parsed insight for a run of entries.
type WeeklyAnalysis struct {
	Themes              []string                  `json:"themes"`
	EmotionalPatterns   []models.EmotionalPattern `json:"emotional_patterns"`
	Achievements        []string                  `json:"achievements"`
	Improvements        []string                  `json:"improvements"`
	Suggestions         []string                  `json:"suggestions"`
	MotivationalInsight string                    `json:"motivational_insight"`
	ActionSteps         []string                  `json:"action_steps"`
}

var (
	// ErrInvalidResponse is returned when a reply cannot be parsed into an insight.
	ErrInvalidResponse = errors.New("invalid AI response")
	// ErrNoProvider is returned when no enabled provider is configured.
	ErrNoProvider = errors.New("no AI provider configured")
	// ErrEmptyResponse is returned when a provider replies with no text.
	ErrEmptyResponse = errors.New("empty response from AI")
)

// APIError is an HTTP-level failure reported by a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, msg)
}

var (
	statusInTextPattern = regexp.MustCompile(`\b(?:status(?: code)?:?\s*|HTTP\s*)([1-5]\d\d)\b`)
	grpcCodeStatus      = map[string]int{
		"ResourceExhausted": http.StatusTooManyRequests,
		"Unauthenticated":   http.StatusUnauthorized,
		"PermissionDenied":  http.StatusForbidden,
		"DeadlineExceeded":  http.StatusGatewayTimeout,
	}
)

// StatusCode extracts the HTTP status carried by err, or 0 when there is none.
func StatusCode(err error) int {
	if err == nil {
		return 0
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	var anthropicErr *anthropicclient.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}
	var openaiErr *openaiclient.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode
	}
	var googleErr *googleapi.Error
	if errors.As(err, &googleErr) {
		return googleErr.Code
	}

	msg := err.Error()
	if m := statusInTextPattern.FindStringSubmatch(msg); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			return code
		}
	}
	for name, code := range grpcCodeStatus {
		if strings.Contains(msg, "code = "+name) {
			return code
		}
	}
	return 0
}
