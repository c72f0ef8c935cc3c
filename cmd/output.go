package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/NamanBalaji/mmsdl/internal/engine"
	"github.com/NamanBalaji/mmsdl/internal/errors"
	"github.com/NamanBalaji/mmsdl/internal/status"
	"github.com/NamanBalaji/mmsdl/internal/worker"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))  // green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")) // blue
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func PrintSuccess(text string) { fmt.Println(successStyle.Render("✓ " + text)) }

func PrintError(text string) { fmt.Println(errorStyle.Render("✗ " + text)) }

func PrintWarning(text string) { fmt.Println(warningStyle.Render("! " + text)) }

func PrintPending(text string) { fmt.Println(pendingStyle.Render("… " + text)) }

func styleFor(s status.Status) lipgloss.Style {
	switch s {
	case status.Finished:
		return successStyle
	case status.Failed:
		return errorStyle
	case status.Stopped, status.Canceled:
		return warningStyle
	default:
		return pendingStyle
	}
}

// formatSpeed renders bytes per second; negative means unknown.
func formatSpeed(bps float64) string {
	switch {
	case bps < 0:
		return "-"
	case bps >= 1024*1024:
		return fmt.Sprintf("%.2f MB/s", bps/(1024*1024))
	case bps >= 1024:
		return fmt.Sprintf("%.1f KB/s", bps/1024)
	default:
		return fmt.Sprintf("%.0f B/s", bps)
	}
}

// formatPackets renders consumed/total; an undiscovered total shows as "?".
func formatPackets(consumed, total int64) string {
	if total <= 0 {
		return strconv.FormatInt(consumed, 10) + "/?"
	}

	return fmt.Sprintf("%d/%d", consumed, total)
}

func formatPercent(p int) string {
	if p < 0 {
		return "-"
	}

	return strconv.Itoa(p) + "%"
}

func formatProgress(p engine.Progress) string {
	line := fmt.Sprintf("%-24s %-11s %5s %12s %12s",
		truncate(p.Title, 24),
		status.Name(p.Status),
		formatPercent(p.Percent),
		formatPackets(p.Packets, p.Total),
		formatSpeed(p.Speed),
	)

	return styleFor(p.Status).Render(line)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n-1]) + "…"
}

// downloadsTable renders workers as a table, one row per download.
func downloadsTable(ws []worker.Worker) string {
	t := table.New().Headers("ID", "TITLE", "STATUS", "PROGRESS", "PACKETS", "PATH")
	t = t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return lipgloss.NewStyle().Bold(true).Align(lipgloss.Center).Padding(0, 1)
		}
		return lipgloss.NewStyle().Padding(0, 1)
	})

	for _, w := range ws {
		d := w.Download()
		consumed, total := d.GetPackets()
		st := status.Name(w.Status())
		if err := w.Err(); err != nil {
			st += " (" + strings.ToLower(string(errors.CategoryOf(err))) + ")"
		}

		t.Row(
			w.ID().String(),
			d.GetTitle(),
			st,
			formatPercent(w.Progress()),
			formatPackets(consumed, total),
			detailStyle.Render(d.GetPath()),
		)
	}

	return t.String()
}

// failureHint explains a failed download in one line, or returns "".
func failureHint(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.IsNetworkError(err):
		return "the server could not be reached on the stream or HTTP port"
	case errors.Is(err, errors.ErrClosedByRemote):
		return "the server closed the stream early"
	case errors.IsIOError(err):
		return "the output file could not be written"
	case errors.IsProtocolError(err, errors.ProtocolMMS):
		return "the server sent a stream this client cannot follow"
	default:
		return ""
	}
}
