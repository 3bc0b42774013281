package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mx-space/journal/internal/app"
	"github.com/mx-space/journal/internal/modules/entrysummary"
	"github.com/mx-space/journal/internal/modules/session"
	"github.com/spf13/cobra"
)

func addGenerate(topLevel *cobra.Command, opts *rootOptions) {
	var (
		wait  time.Duration
		force bool
	)
	cmd := &cobra.Command{
		Use:   "generate ENTRY_ID",
		Short: "Generate the AI summary of one entry.",
		Example: `
journalctl generate --user 42 6f1c0b9e-...
journalctl generate --user 42 6f1c0b9e-... --force
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withSession(ctx, func(_ *app.App, s *session.Session) error {
				var (
					res entrysummary.Result
					err error
				)
				if force {
					res, err = s.Summaries.Regenerate(ctx, args[0], wait)
				} else {
					res, err = s.Summaries.GenerateWithin(ctx, args[0], wait)
				}
				out := cmd.OutOrStdout()
				if errors.Is(err, entrysummary.ErrStillGenerating) {
					// Shutdown waits for the detached generation.
					fmt.Fprintf(out, "%s still generating, waiting for it to finish\n", bold(args[0]))
					return nil
				}
				if err != nil {
					return err
				}
				printResult(out, args[0], res)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "Stop waiting after this long; the generation still completes.")
	cmd.Flags().BoolVar(&force, "force", false, "Drop an existing summary and generate a new one.")
	topLevel.AddCommand(cmd)
}

func addRetry(topLevel *cobra.Command, opts *rootOptions) {
	cmd := &cobra.Command{
		Use:   "retry [ENTRY_ID]",
		Short: "Retry one held summary, or every held summary with retries left.",
		Example: `
journalctl retry --user 42
journalctl retry --user 42 6f1c0b9e-...
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return opts.withSession(ctx, func(_ *app.App, s *session.Session) error {
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					res, err := s.Summaries.Retry(ctx, args[0])
					if err != nil {
						return err
					}
					printResult(out, args[0], res)
					return nil
				}
				report, err := s.Summaries.RetryHeld(ctx)
				printTable(out, []interface{}{"ATTEMPTED", "SUMMARIZED", "HELD", "SKIPPED"}, [][]interface{}{
					{report.Attempted, green(report.Summarized), red(report.Held), faint(report.Skipped)},
				})
				return err
			})
		},
	}
	topLevel.AddCommand(cmd)
}

func printResult(w io.Writer, entryID string, res entrysummary.Result) {
	fmt.Fprintf(w, "%s %s\n", bold(entryID), stateLabel(res.State))
	switch {
	case res.Summary != nil:
		if len(res.Summary.KeyThemes) > 0 {
			fmt.Fprintf(w, "themes: %s\n", strings.Join(res.Summary.KeyThemes, ", "))
		}
		if res.Summary.Reflection != "" {
			fmt.Fprintln(w, res.Summary.Reflection)
		}
	case res.Hold != nil:
		fmt.Fprintf(w, "held (%s, attempt %d): %s\n", reasonLabel(res.Hold.Reason), res.Hold.RetryCount, res.Hold.ErrorMessage)
	}
}
