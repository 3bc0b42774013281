package analysis

import (
	"fmt"
	"strings"

	"github.com/mx-space/journal/internal/models"
)

const (
	entryContentLimit  = 6000
	weeklyContentLimit = 1200

	entrySystemPrompt = `Role: Thoughtful journaling coach.

IMPORTANT: Output MUST be valid JSON only.
DO NOT wrap the JSON in code blocks.

## Task
Read one journal entry and reflect it back to its author.
Write in the same language as the entry. Address the author as "you".
Each list holds 1-4 short items.

## Output JSON Format
{"keyThemes":["..."],"emotionalInsights":["..."],"personalGrowth":["..."],"patterns":["..."],"suggestions":["..."],"motivationalNote":"...","reflection":"..."}`

	weeklySystemPrompt = `Role: Thoughtful journaling coach reviewing a week of entries.

IMPORTANT: Output MUST be valid JSON only.
DO NOT wrap the JSON in code blocks.

## Task
Find what carried through the week. Write in the language of the entries.
emotionalPatterns.frequency is the share of entries showing the emotion, between 0 and 1.
emotionalPatterns.trend is one of "increasing", "decreasing", "stable".

## Output JSON Format
{"themes":["..."],"emotionalPatterns":[{"emotion":"...","frequency":0.5,"trend":"stable","context":"..."}],"achievements":["..."],"improvements":["..."],"suggestions":["..."],"motivationalInsight":"...","actionSteps":["..."]}`
)

func buildEntryPrompt(entry models.JournalEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Date: %s\n", entryDate(entry))
	if entry.Mood != "" {
		fmt.Fprintf(&b, "Mood: %s\n", entry.Mood)
	}
	if t := strings.TrimSpace(entry.Title); t != "" {
		fmt.Fprintf(&b, "Title: %s\n", t)
	}
	if len(entry.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(entry.Tags, ", "))
	}
	b.WriteString("\nENTRY:\n")
	b.WriteString(truncateText(strings.TrimSpace(entry.Content), entryContentLimit))
	return b.String()
}

func buildWeeklyPrompt(entries []models.JournalEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The week has %d entries.\n", len(entries))
	for i, entry := range entries {
		fmt.Fprintf(&b, "\n--- Entry %d (%s", i+1, entryDate(entry))
		if entry.Mood != "" {
			fmt.Fprintf(&b, ", mood: %s", entry.Mood)
		}
		b.WriteString(") ---\n")
		if t := strings.TrimSpace(entry.Title); t != "" {
			fmt.Fprintf(&b, "Title: %s\n", t)
		}
		b.WriteString(truncateText(strings.TrimSpace(entry.Content), weeklyContentLimit))
		b.WriteString("\n")
	}
	return b.String()
}

func entryDate(entry models.JournalEntry) string {
	if entry.Date != "" {
		return entry.Date
	}
	return entry.CreatedAt.Format(models.DateLayout)
}

func truncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}
