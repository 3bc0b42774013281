package cli

import (
	"fmt"
	"time"

	"github.com/mx-space/journal/internal/app"
	"github.com/mx-space/journal/internal/config"
	jwtpkg "github.com/mx-space/journal/internal/pkg/jwt"
	"github.com/spf13/cobra"
)

func addToken(topLevel *cobra.Command, opts *rootOptions) {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a user.",
		Example: `
journalctl token --user 42 --ttl 24h
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireUser(); err != nil {
				return err
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive, got %s", ttl)
			}
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			signer, err := jwtpkg.NewSigner(cfg.JWTSecret, app.TokenIssuer)
			if err != nil {
				return err
			}
			token, err := signer.Sign(opts.UserID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 720*time.Hour, "Token lifetime.")
	topLevel.AddCommand(cmd)
}
