package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/fragmede/streakkeeper/internal/cache"
)

// HistoryTable renders runs newest first. It returns a dim notice when
// there is nothing to show.
func HistoryTable(runs []cache.RunRecord) string {
	if len(runs) == 0 {
		return DimStyle.Render("No runs recorded yet.")
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(DimStyle).
		Headers("STARTED", "CONTRACT", "TARGET", "OUTCOME", "STREAK", "DETAIL")

	for _, r := range runs {
		outcome := SuccessStyle.Render(r.Outcome)
		streak := fmt.Sprintf("%d / %d", r.CurrentStreak, r.MaxStreak)
		detail := fmt.Sprintf("%s in %s", formatDuration(r.FinishedAt.Sub(r.StartedAt)), r.ID[:min(8, len(r.ID))])
		if r.Outcome != cache.OutcomeOK {
			outcome = FailureStyle.Render(r.Outcome)
			streak = "-"
			detail = r.FailedStep + ": " + r.ErrorKind
			if r.StatusCode != 0 {
				detail += " (" + strconv.Itoa(r.StatusCode) + ")"
			}
		}
		t.Row(r.StartedAt.Local().Format("2006-01-02 15:04"), r.Contract, r.Target, outcome, streak, detail)
	}

	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return HeaderStyle
		}
		return CellStyle
	})
	return t.Render()
}

// Summary is the one-line footer under the table.
func Summary(last *cache.RunRecord, now time.Time) string {
	if last == nil {
		return DimStyle.Render("No successful run yet.")
	}
	return DimStyle.Render(fmt.Sprintf("Last success %s ago, streak %d days.",
		formatDuration(now.Sub(last.FinishedAt)), last.CurrentStreak))
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
