package cli

import (
	"fmt"

	"github.com/mx-space/journal/internal/app"
	"github.com/mx-space/journal/internal/config"
	"github.com/mx-space/journal/internal/modules/session"
	"github.com/mx-space/journal/internal/modules/streak"
	"github.com/spf13/cobra"
)

func addStreak(topLevel *cobra.Command, opts *rootOptions) {
	var tz string
	cmd := &cobra.Command{
		Use:   "streak",
		Short: "Show journaling streaks and weekly insight eligibility.",
		Example: `
journalctl streak --user 42
journalctl streak --user 42 --tz +08:00
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd.Context(), func(a *app.App, s *session.Session) error {
				loc := s.Journal.Location()
				if tz != "" {
					var err error
					if loc, err = config.ParseLocation(tz); err != nil {
						return fmt.Errorf("invalid --tz: %w", err)
					}
				}
				entries := s.Journal.Entries()
				st := streak.ComputeStreaks(entries, loc, a.Registry().Now())
				el := streak.ComputeWeeklyEligibility(entries, s.Journal.WeeklySummaries(), loc)

				last := "-"
				if st.LastEntryDate != nil {
					last = streak.DayKey(*st.LastEntryDate, loc)
				}
				eligible := faint("no")
				if el.Eligible {
					eligible = green("yes")
				}
				printTable(cmd.OutOrStdout(), []interface{}{"METRIC", "VALUE"}, [][]interface{}{
					{"current streak", st.CurrentStreak},
					{"longest streak", st.LongestStreak},
					{"streak started", orDash(st.StreakStartDate)},
					{"last entry", last},
					{"days in window", fmt.Sprintf("%d/%d", el.DaysInWindow, streak.WindowDays)},
					{"entries in window", el.EntriesInWindow},
					{"weekly eligible", eligible},
				})
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "Time zone for day boundaries (IANA name or +hh:mm).")
	topLevel.AddCommand(cmd)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
