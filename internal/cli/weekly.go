package cli

import (
	"fmt"
	"strings"

	"github.com/mx-space/journal/internal/app"
	"github.com/mx-space/journal/internal/modules/session"
	"github.com/mx-space/journal/internal/modules/streak"
	"github.com/mx-space/journal/internal/modules/weekly"
	"github.com/spf13/cobra"
)

func addWeekly(topLevel *cobra.Command, opts *rootOptions) {
	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Generate the weekly insight when seven days are journaled.",
		Example: `
journalctl weekly --user 42
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withSession(ctx, func(a *app.App, s *session.Session) error {
				res, err := s.Weekly.MaybeGenerateWeekly(ctx, a.Registry().Now())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch res.Outcome {
				case weekly.OutcomeIneligible:
					fmt.Fprintf(out, "%s: %d/%d days journaled since the last insight\n",
						faint("not eligible"), res.Eligibility.DaysInWindow, streak.WindowDays)
				case weekly.OutcomeDuplicate:
					fmt.Fprintln(out, yellow("an insight already covers this week"))
				case weekly.OutcomeCreated:
					w := res.Summary
					loc := s.Journal.Location()
					fmt.Fprintf(out, "%s %s to %s (%d entries)\n", green("created"),
						streak.DayKey(w.WeekStart, loc), streak.DayKey(w.WeekEnd, loc), w.EntriesAnalyzed)
					if len(w.Themes) > 0 {
						fmt.Fprintf(out, "themes: %s\n", strings.Join(w.Themes, ", "))
					}
					if w.MotivationalInsight != "" {
						fmt.Fprintln(out, w.MotivationalInsight)
					}
				}
				return nil
			})
		},
	}
	topLevel.AddCommand(cmd)
}
