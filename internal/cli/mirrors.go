package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gamedeck/internal/mirror"
	"gamedeck/internal/tui"
)

func newMirrorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirrors",
		Short: "Probe download mirrors",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "test [URL...]",
		Short: "Measure mirror latency and show the automatic selection",
		RunE:  runMirrorsTest,
	})
	return cmd
}

type mirrorReport struct {
	Selected string          `json:"selected"`
	Results  []mirror.Result `json:"results"`
}

// probeMirrors tests urls, falling back to the configured mirrors.
func probeMirrors(ctx context.Context, cmd *cobra.Command, a *app, urls []string) (*mirror.Selector, error) {
	if len(urls) == 0 {
		urls = a.cfg.Mirrors.URLs
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no mirrors configured; pass URLs or set mirrors.urls in %s", a.paths.ConfigFile)
	}

	sel := a.newSelector()
	if outputMode(cmd) == tui.ModeTUI {
		sw := tui.NewStatusWriter(cmd.ErrOrStderr())
		sw.Update(fmt.Sprintf("Probing %d mirrors...", len(urls)))
		sel.Test(ctx, urls)
		sw.Done(fmt.Sprintf("Probed %d mirrors", len(urls)))
	} else {
		sel.Test(ctx, urls)
	}
	return sel, nil
}

func runMirrorsTest(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	sel, err := probeMirrors(ctx, cmd, a, args)
	if err != nil {
		return err
	}
	selected, _ := sel.Selected()
	ranked := sel.Ranked()

	mode := outputMode(cmd)
	if mode == tui.ModeJSON {
		return writeJSON(cmd.OutOrStdout(), mirrorReport{Selected: selected, Results: ranked})
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, heading(mode, "MIRROR\tSTATUS\tLATENCY\tURL"))
	for _, r := range ranked {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Label, styled(mode, mirrorStatus(r, selected)), formatLatency(r.LatencyMs), r.URL)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if selected == "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "No mirror could be measured; choose one manually with download --url.")
	}
	return nil
}

func mirrorStatus(r mirror.Result, selected string) string {
	switch {
	case r.URL == selected:
		return "selected"
	case r.Reachable:
		return "reachable"
	default:
		return "unreachable"
	}
}

// pickMirror shows the ranked mirrors and lets the user choose one. The
// automatic selection is preselected.
func pickMirror(sel *mirror.Selector) (string, error) {
	selected, _ := sel.Selected()
	ranked := sel.Ranked()
	options := make([]tui.PickerOption, len(ranked))
	initial := 0
	for i, r := range ranked {
		options[i] = tui.PickerOption{
			Label:  r.Label,
			Detail: formatLatency(r.LatencyMs),
			Status: mirrorStatus(r, selected),
		}
		if r.URL == selected {
			initial = i
		}
	}

	idx, ok, err := tui.RunPicker(tui.NewPickerModel("Choose a mirror", options, initial))
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("no mirror chosen")
	}
	if err := sel.Select(ranked[idx].URL); err != nil {
		return "", err
	}
	return ranked[idx].URL, nil
}
