package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mx-space/journal/internal/models"
)

// unmarshalAIJSON decodes a model reply into out, tolerating code fences and
// prose around a single JSON object.
func unmarshalAIJSON(raw string, out interface{}) error {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```JSON")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), out); err == nil {
			return nil
		}
	}
	return fmt.Errorf("%w: reply is not a JSON object", ErrInvalidResponse)
}

// fields looks up reply keys under their camelCase or snake_case spelling.
type fields map[string]json.RawMessage

func (f fields) lookup(names ...string) (json.RawMessage, bool) {
	for _, name := range names {
		if raw, ok := f[name]; ok && !isNull(raw) {
			return raw, true
		}
	}
	return nil, false
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

// stringList decodes a present list field. A bare string is accepted as a
// one-element list; blanks are dropped.
func (f fields) stringList(present *int, names ...string) ([]string, error) {
	raw, ok := f.lookup(names...)
	if !ok {
		return []string{}, nil
	}
	*present++
	var list models.StringArray
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: field %s is not a string list", ErrInvalidResponse, names[0])
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f fields) text(present *int, names ...string) (string, error) {
	raw, ok := f.lookup(names...)
	if !ok {
		return "", nil
	}
	*present++
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("%w: field %s is not a string", ErrInvalidResponse, names[0])
	}
	return strings.TrimSpace(s), nil
}

func decodeFields(raw string) (fields, error) {
	var f fields
	if err := unmarshalAIJSON(raw, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// parseEntryAnalysis parses a reply to the entry prompt. Missing fields become
// empty; a reply with none of the expected fields is invalid.
func parseEntryAnalysis(raw string) (*EntryAnalysis, error) {
	f, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}

	var (
		out     EntryAnalysis
		present int
	)
	lists := []struct {
		target *[]string
		names  []string
	}{
		{&out.KeyThemes, []string{"keyThemes", "key_themes"}},
		{&out.EmotionalInsights, []string{"emotionalInsights", "emotional_insights"}},
		{&out.PersonalGrowth, []string{"personalGrowth", "personal_growth"}},
		{&out.Patterns, []string{"patterns"}},
		{&out.Suggestions, []string{"suggestions"}},
	}
	for _, l := range lists {
		if *l.target, err = f.stringList(&present, l.names...); err != nil {
			return nil, err
		}
	}
	if out.MotivationalNote, err = f.text(&present, "motivationalNote", "motivational_note"); err != nil {
		return nil, err
	}
	if out.Reflection, err = f.text(&present, "reflection"); err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, fmt.Errorf("%w: no insight fields in reply", ErrInvalidResponse)
	}
	return &out, nil
}

type rawPattern struct {
	Emotion   string          `json:"emotion"`
	Frequency json.RawMessage `json:"frequency"`
	Trend     string          `json:"trend"`
	Context   string          `json:"context"`
}

// parseWeeklyAnalysis parses a reply to the weekly prompt.
func parseWeeklyAnalysis(raw string) (*WeeklyAnalysis, error) {
	f, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}

	var (
		out     WeeklyAnalysis
		present int
	)
	lists := []struct {
		target *[]string
		names  []string
	}{
		{&out.Themes, []string{"themes"}},
		{&out.Achievements, []string{"achievements"}},
		{&out.Improvements, []string{"improvements"}},
		{&out.Suggestions, []string{"suggestions"}},
		{&out.ActionSteps, []string{"actionSteps", "action_steps"}},
	}
	for _, l := range lists {
		if *l.target, err = f.stringList(&present, l.names...); err != nil {
			return nil, err
		}
	}
	if out.MotivationalInsight, err = f.text(&present, "motivationalInsight", "motivational_insight"); err != nil {
		return nil, err
	}

	out.EmotionalPatterns = []models.EmotionalPattern{}
	if rawPatterns, ok := f.lookup("emotionalPatterns", "emotional_patterns"); ok {
		present++
		var items []rawPattern
		if err := json.Unmarshal(rawPatterns, &items); err != nil {
			return nil, fmt.Errorf("%w: field emotionalPatterns is not a list of objects", ErrInvalidResponse)
		}
		for _, item := range items {
			if p, ok := normalizePattern(item); ok {
				out.EmotionalPatterns = append(out.EmotionalPatterns, p)
			}
		}
	}

	if present == 0 {
		return nil, fmt.Errorf("%w: no insight fields in reply", ErrInvalidResponse)
	}
	return &out, nil
}

func normalizePattern(item rawPattern) (models.EmotionalPattern, bool) {
	emotion := strings.ToLower(strings.TrimSpace(item.Emotion))
	if emotion == "" {
		return models.EmotionalPattern{}, false
	}
	return models.EmotionalPattern{
		Emotion:   emotion,
		Frequency: parseFrequency(item.Frequency),
		Trend:     normalizeTrend(item.Trend),
		Context:   strings.TrimSpace(item.Context),
	}, true
}

// parseFrequency accepts a number or numeric string. Values above 1 are read
// as percentages. The result is clamped to [0, 1].
func parseFrequency(raw json.RawMessage) float64 {
	if isNull(raw) {
		return 0
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "%")
		if _, err := fmt.Sscanf(s, "%g", &v); err != nil {
			return 0
		}
	}
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		v /= 100
	}
	return math.Min(v, 1)
}

func normalizeTrend(raw string) models.Trend {
	switch models.Trend(strings.ToLower(strings.TrimSpace(raw))) {
	case models.TrendIncreasing:
		return models.TrendIncreasing
	case models.TrendDecreasing:
		return models.TrendDecreasing
	default:
		return models.TrendStable
	}
}
