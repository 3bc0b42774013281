// Package cli implements journalctl, an operator tool that drives a user's
// journal session in-process.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mx-space/journal/internal/app"
	"github.com/mx-space/journal/internal/config"
	"github.com/mx-space/journal/internal/modules/session"
	"github.com/mx-space/journal/internal/pkg/nativelog"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	ConfigPath string
	UserID     string
	Verbose    bool
}

func New() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "journalctl",
		Short:         "Inspect and drive journal sessions from the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", config.DefaultConfigPath, "Path to YAML config file.")
	cmd.PersistentFlags().StringVarP(&opts.UserID, "user", "u", "", "Journal user id.")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Log to stdout and the log directory.")

	AddCommands(cmd, opts)
	return cmd
}

func AddCommands(topLevel *cobra.Command, opts *rootOptions) {
	addSync(topLevel, opts)
	addStreak(topLevel, opts)
	addHolds(topLevel, opts)
	addGenerate(topLevel, opts)
	addRetry(topLevel, opts)
	addWeekly(topLevel, opts)
	addToken(topLevel, opts)
}

// open builds the application without its schedule. The caller must call the
// returned close function.
func (o *rootOptions) open() (*app.App, *config.AppConfig, func(), error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, nil, nil, err
	}
	cfg.Schedule.Enable = false

	logger := zap.NewNop()
	if o.Verbose {
		if logger, err = nativelog.NewZapLogger(cfg.Paths.Logs, true); err != nil {
			return nil, nil, nil, err
		}
	}
	a, err := app.New(logger, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return a, cfg, func() {
		a.Shutdown()
		_ = logger.Sync()
	}, nil
}

func (o *rootOptions) requireUser() error {
	if strings.TrimSpace(o.UserID) == "" {
		return errors.New("--user is required")
	}
	return nil
}

// withSession opens the app, hydrates the user's session and runs fn.
func (o *rootOptions) withSession(ctx context.Context, fn func(a *app.App, s *session.Session) error) error {
	if err := o.requireUser(); err != nil {
		return err
	}
	a, _, closeFn, err := o.open()
	if err != nil {
		return err
	}
	defer closeFn()

	s, err := a.Registry().Get(ctx, o.UserID)
	if err != nil {
		return fmt.Errorf("load journal for %s: %w", o.UserID, err)
	}
	return fn(a, s)
}
