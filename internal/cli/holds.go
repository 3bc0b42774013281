package cli

import (
	"fmt"

	"github.com/mx-space/journal/internal/app"
	"github.com/mx-space/journal/internal/modules/session"
	"github.com/spf13/cobra"
)

func addHolds(topLevel *cobra.Command, opts *rootOptions) {
	cmd := &cobra.Command{
		Use:   "holds",
		Short: "List entries whose summary is held after a failed attempt.",
		Example: `
journalctl holds --user 42
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withSession(cmd.Context(), func(_ *app.App, s *session.Session) error {
				holds := s.Journal.HoldStatuses()
				out := cmd.OutOrStdout()
				if len(holds) == 0 {
					fmt.Fprintln(out, "no held summaries")
					return nil
				}
				limit := s.Summaries.MaxRetries()
				rows := make([][]interface{}, 0, len(holds))
				for _, h := range holds {
					retries := fmt.Sprintf("%d/%d", h.RetryCount, limit)
					if h.RetryCount >= limit {
						retries = red(retries)
					}
					rows = append(rows, []interface{}{h.EntryID, reasonLabel(h.Reason), orDash(h.ErrorCode), retries, formatTime(h.LastAttempt), h.ErrorMessage})
				}
				printTable(out, []interface{}{"ENTRY", "REASON", "CODE", "RETRIES", "LAST ATTEMPT", "MESSAGE"}, rows)
				return nil
			})
		},
	}
	topLevel.AddCommand(cmd)
}
