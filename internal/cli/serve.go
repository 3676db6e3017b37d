package cli

import (
	"github.com/spf13/cobra"

	"github.com/fragmede/streakkeeper/internal/config"
	"github.com/fragmede/streakkeeper/internal/metrics"
	"github.com/fragmede/streakkeeper/internal/runner"
	"github.com/fragmede/streakkeeper/internal/server"
)

func (a *app) newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve /run, /metrics and /healthz over HTTP",
		Long: `Starts an HTTP server. Every GET or POST to /run performs one sign-in
and answers with the streak (200) or the error text (500). Runs never
overlap. Configuration is validated once at startup.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.loadConfig()
			if err := cfg.Validate(); err != nil {
				return err
			}
			opts, err := runner.FromConfig(cfg)
			if err != nil {
				return err
			}

			log := a.logger(cfg)
			m := metrics.New()
			r := runner.New(log, nil, m)
			if db := a.openHistory(cfg, log); db != nil {
				defer db.Close()
				r.History = db
			}

			return server.New(r, opts, m, log).ListenAndServe(cmd.Context(), cfg.ServeAddr)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :8080)")
	_ = a.v.BindPFlag(config.KeyServeAddr, cmd.Flags().Lookup("addr"))
	return cmd
}
