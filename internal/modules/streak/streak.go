// Package streak derives writing streaks and weekly insight eligibility from
// a user's entries. Everything here is pure: the caller supplies the zone and
// the current instant.
package streak

import (
	"sort"
	"time"

	"github.com/mx-space/journal/internal/models"
)

// WindowDays is the number of distinct active days a weekly insight needs.
const WindowDays = 7

type Streaks struct {
	CurrentStreak   int        `json:"current_streak"`
	LongestStreak   int        `json:"longest_streak"`
	LastEntryDate   *time.Time `json:"last_entry_date,omitempty"`
	StreakStartDate string     `json:"streak_start_date,omitempty"`
}

type Eligibility struct {
	Eligible        bool `json:"eligible"`
	EntriesInWindow int  `json:"entries_in_window"`
	DaysInWindow    int  `json:"days_in_window"`
}

// DayKey formats t as a calendar day in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(orUTC(loc)).Format(models.DateLayout)
}

// EntryDay is the calendar day an entry belongs to: its Date when that is a
// valid day, otherwise the day it was created in loc.
func EntryDay(entry models.JournalEntry, loc *time.Location) string {
	if entry.Date != "" {
		if _, err := time.Parse(models.DateLayout, entry.Date); err == nil {
			return entry.Date
		}
	}
	return DayKey(entry.CreatedAt, loc)
}

// ComputeStreaks counts consecutive active days by creation instant. The
// current streak is zero unless there is an entry today.
func ComputeStreaks(entries []models.JournalEntry, loc *time.Location, now time.Time) Streaks {
	var out Streaks
	if len(entries) == 0 {
		return out
	}
	loc = orUTC(loc)

	active := make(map[string]bool, len(entries))
	last := entries[0].CreatedAt
	for _, entry := range entries {
		active[DayKey(entry.CreatedAt, loc)] = true
		if entry.CreatedAt.After(last) {
			last = entry.CreatedAt
		}
	}
	out.LastEntryDate = &last

	days := make([]string, 0, len(active))
	for day := range active {
		days = append(days, day)
	}
	sort.Strings(days)

	today := now.In(loc)
	if days[len(days)-1] == today.Format(models.DateLayout) {
		cursor := civilDay(today)
		for active[cursor.Format(models.DateLayout)] {
			out.CurrentStreak++
			out.StreakStartDate = cursor.Format(models.DateLayout)
			cursor = cursor.AddDate(0, 0, -1)
		}
	}

	run := 1
	out.LongestStreak = 1
	for i := 1; i < len(days); i++ {
		if nextDay(days[i-1]) == days[i] {
			run++
		} else {
			run = 1
		}
		if run > out.LongestStreak {
			out.LongestStreak = run
		}
	}
	if out.CurrentStreak > out.LongestStreak {
		out.LongestStreak = out.CurrentStreak
	}
	return out
}

// Window returns the entries written after the latest weekly summary, in
// ascending creation order.
func Window(entries []models.JournalEntry, summaries []models.WeeklySummary, loc *time.Location) []models.JournalEntry {
	loc = orUTC(loc)
	var cutoff string
	if latest, ok := LatestSummary(summaries); ok {
		cutoff = DayKey(latest.WeekEnd, loc)
	}

	window := make([]models.JournalEntry, 0, len(entries))
	for _, entry := range entries {
		if cutoff == "" || EntryDay(entry, loc) > cutoff {
			window = append(window, entry)
		}
	}
	sort.SliceStable(window, func(i, j int) bool {
		return window[i].CreatedAt.Before(window[j].CreatedAt)
	})
	return window
}

// ComputeWeeklyEligibility reports whether the window since the last weekly
// summary spans a full WindowDays of distinct active days.
func ComputeWeeklyEligibility(entries []models.JournalEntry, summaries []models.WeeklySummary, loc *time.Location) Eligibility {
	return eligibilityOf(Window(entries, summaries, loc), loc)
}

func eligibilityOf(window []models.JournalEntry, loc *time.Location) Eligibility {
	days := make(map[string]struct{}, len(window))
	for _, entry := range window {
		days[EntryDay(entry, orUTC(loc))] = struct{}{}
	}
	n := len(days)
	if n > WindowDays {
		n = WindowDays
	}
	return Eligibility{
		Eligible:        n == WindowDays && len(window) > 0,
		EntriesInWindow: len(window),
		DaysInWindow:    n,
	}
}

// LatestSummary returns the summary with the latest WeekEnd.
func LatestSummary(summaries []models.WeeklySummary) (models.WeeklySummary, bool) {
	if len(summaries) == 0 {
		return models.WeeklySummary{}, false
	}
	latest := summaries[0]
	for _, s := range summaries[1:] {
		if s.WeekEnd.After(latest.WeekEnd) {
			latest = s
		}
	}
	return latest, true
}

func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func nextDay(day string) string {
	t, err := time.Parse(models.DateLayout, day)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, 1).Format(models.DateLayout)
}

func orUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
