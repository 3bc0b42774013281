package cli

import (
	"fmt"

	"github.com/mx-space/journal/internal/app"
	"github.com/mx-space/journal/internal/modules/session"
	"github.com/spf13/cobra"
)

func addSync(topLevel *cobra.Command, opts *rootOptions) {
	var reset bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Replay offline writes and refresh every collection from the remote store.",
		Example: `
journalctl sync --user 42
journalctl sync --user 42 --reset-cache
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withSession(ctx, func(_ *app.App, s *session.Session) error {
				if reset {
					if err := s.Journal.ResetCache(ctx); err != nil {
						return err
					}
				}
				replayed, err := s.Journal.Reconcile(ctx)
				if err != nil {
					return err
				}
				if replayed == 0 {
					if err := s.Journal.Refresh(ctx); err != nil {
						return err
					}
				}
				state := s.Journal.Snapshot()
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "replayed %d offline write(s)\n", replayed)
				printTable(out, []interface{}{"COLLECTION", "RECORDS"}, [][]interface{}{
					{"entries", len(state.Entries)},
					{"entrySummaries", len(state.EntrySummaries)},
					{"holdStatuses", len(state.HoldStatuses)},
					{"summaries", len(state.WeeklySummaries)},
				})
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "reset-cache", false, "Drop cached snapshots before syncing.")
	topLevel.AddCommand(cmd)
}
