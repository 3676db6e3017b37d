package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fragmede/streakkeeper/internal/cache"
	"github.com/fragmede/streakkeeper/internal/ui"
)

func (a *app) newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.loadConfig()
			if cfg.HistoryPath == "" {
				return errors.New("run history is disabled (history.path is empty)")
			}
			if _, err := os.Stat(cfg.HistoryPath); errors.Is(err, os.ErrNotExist) {
				fmt.Fprintln(a.stdout, ui.HistoryTable(nil))
				return nil
			}

			db, err := cache.Open(cfg.HistoryPath)
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := db.RecentRuns(limit)
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}
			last, ok, err := db.LastSuccess()
			if err != nil {
				return fmt.Errorf("reading history: %w", err)
			}

			fmt.Fprintln(a.stdout, ui.TitleStyle.Render("Recent runs"))
			fmt.Fprintln(a.stdout, ui.HistoryTable(runs))
			if ok {
				fmt.Fprintln(a.stdout, ui.Summary(&last, time.Now()))
			} else {
				fmt.Fprintln(a.stdout, ui.Summary(nil, time.Now()))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
