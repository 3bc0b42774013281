package analysis

import (
	"errors"
	"testing"

	"github.com/mx-space/journal/internal/models"
)

func TestParseEntryAnalysisFencedReply(t *testing.T) {
	raw := "```json\n{\"keyThemes\":[\"work\",\" \"],\"motivational_note\":\" keep going \",\"reflection\":\"A steady day.\"}\n```"
	got, err := parseEntryAnalysis(raw)
	if err != nil {
		t.Fatalf("parseEntryAnalysis: %v", err)
	}
	if len(got.KeyThemes) != 1 || got.KeyThemes[0] != "work" {
		t.Fatalf("KeyThemes = %#v", got.KeyThemes)
	}
	if got.MotivationalNote != "keep going" {
		t.Fatalf("MotivationalNote = %q", got.MotivationalNote)
	}
	if got.Suggestions == nil || len(got.Suggestions) != 0 {
		t.Fatalf("missing list should be empty, got %#v", got.Suggestions)
	}
}

func TestParseEntryAnalysisProseAroundObject(t *testing.T) {
	raw := "Here you go:\n{\"patterns\":\"late nights\"}\nHope it helps."
	got, err := parseEntryAnalysis(raw)
	if err != nil {
		t.Fatalf("parseEntryAnalysis: %v", err)
	}
	if len(got.Patterns) != 1 || got.Patterns[0] != "late nights" {
		t.Fatalf("Patterns = %#v", got.Patterns)
	}
}

func TestParseEntryAnalysisRejects(t *testing.T) {
	cases := map[string]string{
		"not json":     "I could not analyze this entry.",
		"no fields":    `{"foo":"bar"}`,
		"wrong type":   `{"keyThemes":{"a":1}}`,
		"text as list": `{"reflection":["a","b"]}`,
		"empty reply":  "",
		"only nulls":   `{"keyThemes":null,"reflection":null}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parseEntryAnalysis(raw); !errors.Is(err, ErrInvalidResponse) {
				t.Fatalf("err = %v, want ErrInvalidResponse", err)
			}
		})
	}
}

func TestParseWeeklyAnalysis(t *testing.T) {
	raw := `{
		"themes":            ["rest"],
		"emotionalPatterns": [
			{"emotion": " Calm ", "frequency": 0.5, "trend": "increasing", "context": "mornings"},
			{"emotion": "anxious", "frequency": "40%", "trend": "sideways"},
			{"emotion": "", "frequency": 1}
		],
		"action_steps": ["walk"]
	}`
	got, err := parseWeeklyAnalysis(raw)
	if err != nil {
		t.Fatalf("parseWeeklyAnalysis: %v", err)
	}
	if len(got.EmotionalPatterns) != 2 {
		t.Fatalf("patterns = %#v", got.EmotionalPatterns)
	}
	calm := got.EmotionalPatterns[0]
	if calm.Emotion != "calm" || calm.Frequency != 0.5 || calm.Trend != models.TrendIncreasing {
		t.Fatalf("calm = %#v", calm)
	}
	anxious := got.EmotionalPatterns[1]
	if anxious.Frequency != 0.4 || anxious.Trend != models.TrendStable {
		t.Fatalf("anxious = %#v", anxious)
	}
	if len(got.ActionSteps) != 1 || got.Achievements == nil {
		t.Fatalf("lists = %#v / %#v", got.ActionSteps, got.Achievements)
	}
}

func TestParseWeeklyAnalysisBadPatterns(t *testing.T) {
	if _, err := parseWeeklyAnalysis(`{"emotionalPatterns":"calm"}`); !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("err = %v, want ErrInvalidResponse", err)
	}
}

func TestParseFrequency(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{`0.25`, 0.25},
		{`75`, 0.75},
		{`250`, 1},
		{`-3`, 0},
		{`"12.5%"`, 0.125},
		{`"often"`, 0},
		{`null`, 0},
	}
	for _, tc := range cases {
		if got := parseFrequency([]byte(tc.raw)); got != tc.want {
			t.Errorf("parseFrequency(%s) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}
