// Package cli wires configuration, logging and the runner into the
// streakkeeper command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	clog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fragmede/streakkeeper/internal/cache"
	"github.com/fragmede/streakkeeper/internal/config"
	"github.com/fragmede/streakkeeper/internal/logging"
	"github.com/fragmede/streakkeeper/internal/ui"
)

var version = "dev" // set by the linker

// app carries the per-invocation state shared by all commands.
type app struct {
	v       *viper.Viper
	cfgFile string
	envFile string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// Execute runs the command line and returns the process exit status.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, ui.FailureStyle.Render("Error:"), err)
		return 1
	}
	return 0
}

// NewRootCmd builds a fresh command tree. Each tree owns its own viper
// instance so tests do not share state.
func NewRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		v:      config.New(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}

	cmd := &cobra.Command{
		Use:   "streakkeeper",
		Short: "Signs in to Kaggle and reads back the activity streak.",
		Long: `streakkeeper performs the Kaggle sign-in handshake (anti-forgery token,
credential POST, token refresh) and then fetches the account's streak,
identity or a page, so a daily scheduled run keeps the streak alive.

Running without a subcommand is the same as "streakkeeper run".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadDotEnv(a.v, a.envFile); err != nil {
				return err
			}
			return config.ReadFile(a.v, a.cfgFile)
		},
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (default ./streakkeeper.yaml or the user config dir)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file read below the real environment")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("history", "", "run history database path")
	pf.String("base-url", "", "site root (default https://www.kaggle.com)")
	pf.String("contract", "", `endpoint contract ("internal" or "v1")`)
	pf.String("status-policy", "", `HTTP status handling ("strict" or "lenient")`)
	pf.Duration("timeout", 0, "per-request timeout (default 30s)")
	pf.String("user-agent", "", "User-Agent header")
	pf.String("identity", "", "email or username to sign in with")
	pf.String("user", "", "account handle, used for returnUrl and notebook pages")
	pf.String("notebook", "", "notebook slug visited by --target page")
	pf.String("target", "", `what to fetch after sign-in ("streak", "identity" or "page")`)
	pf.String("page", "", "page path or URL visited by --target page")
	pf.Bool("refresh", true, "re-read the anti-forgery token after sign-in")

	// Passwords come from the environment, a config file or --prompt only.
	for flag, key := range map[string]string{
		"log-level":     config.KeyLogLevel,
		"history":       config.KeyHistoryPath,
		"base-url":      config.KeyBaseURL,
		"contract":      config.KeyContract,
		"status-policy": config.KeyStatusPolicy,
		"timeout":       config.KeyTimeout,
		"user-agent":    config.KeyUserAgent,
		"identity":      config.KeyIdentity,
		"user":          config.KeyUser,
		"notebook":      config.KeyNotebook,
		"target":        config.KeyTarget,
		"page":          config.KeyPage,
		"refresh":       config.KeyRefresh,
	} {
		_ = a.v.BindPFlag(key, pf.Lookup(flag))
	}

	run := a.newRunCmd()
	cmd.RunE = run.RunE
	cmd.Flags().AddFlagSet(run.Flags())

	cmd.AddCommand(run)
	cmd.AddCommand(a.newServeCmd())
	cmd.AddCommand(a.newHistoryCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "streakkeeper", version)
		},
	})
	return cmd
}

// loadConfig reads the merged configuration.
func (a *app) loadConfig() config.Config {
	return config.Load(a.v)
}

func (a *app) logger(cfg config.Config) *clog.Logger {
	return logging.New(a.stderr, cfg.LogLevel)
}

// openHistory opens the history store. An empty path disables history; a
// store that fails to open is logged and skipped so the run still happens.
func (a *app) openHistory(cfg config.Config, log *clog.Logger) *cache.DB {
	if cfg.HistoryPath == "" {
		return nil
	}
	db, err := cache.Open(cfg.HistoryPath)
	if err != nil {
		log.Warn("run history disabled", "path", cfg.HistoryPath, "err", err)
		return nil
	}
	return db
}
