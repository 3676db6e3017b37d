package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fragmede/streakkeeper/internal/config"
	"github.com/fragmede/streakkeeper/internal/runner"
	"github.com/fragmede/streakkeeper/internal/ui"
	"github.com/fragmede/streakkeeper/internal/ui/login"
)

func (a *app) newRunCmd() *cobra.Command {
	var prompt bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sign in once and print the streak",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.loadConfig()
			if prompt && (cfg.Identity == "" || cfg.Password == "") {
				creds, err := login.Prompt(a.stdin, a.stderr, "Sign in to Kaggle", cfg.Identity)
				if errors.Is(err, login.ErrCancelled) {
					return fmt.Errorf("%w: %v", config.ErrConfiguration, err)
				}
				if err != nil {
					return fmt.Errorf("prompting for credentials: %w", err)
				}
				cfg.Identity, cfg.Password = creds.Identity, creds.Password
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			opts, err := runner.FromConfig(cfg)
			if err != nil {
				return err
			}

			log := a.logger(cfg)
			r := runner.New(log, nil, nil)
			if db := a.openHistory(cfg, log); db != nil {
				defer db.Close()
				r.History = db
			}

			res, err := r.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, ui.SuccessStyle.Render(res.Message()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&prompt, "prompt", false, "ask for missing credentials interactively")
	return cmd
}
