package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"gamedeck/internal/tui"
)

func outputMode(cmd *cobra.Command) tui.OutputMode {
	return tui.DetectMode(cmd.OutOrStdout(), noProgress, outputJSON)
}

func writeJSON(w io.Writer, payload any) error {
	out, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	fmt.Fprintln(w, string(out))
	return nil
}

// styled colours status in TUI mode only.
func styled(mode tui.OutputMode, status string) string {
	if mode != tui.ModeTUI {
		return status
	}
	return tui.StatusStyle(status).Render(status)
}

// heading styles each tab separated header cell on its own so tabwriter
// still sees the tabs.
func heading(mode tui.OutputMode, text string) string {
	if mode != tui.ModeTUI {
		return text
	}
	cells := strings.Split(text, "\t")
	for i, c := range cells {
		cells[i] = tui.HeaderStyle.Render(c)
	}
	return strings.Join(cells, "\t")
}

func formatLatency(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return strconv.FormatInt(*ms, 10) + "ms"
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// summaryBox frames a short multi-line summary on interactive terminals.
func summaryBox(mode tui.OutputMode, lines string) string {
	if mode != tui.ModeTUI {
		return lines
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Render(lines)
}
