package cli

import (
	"fmt"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"gamedeck/internal/backend"
	"gamedeck/internal/deps"
	"gamedeck/internal/tui"
)

func newDepsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check and install runtime dependencies",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Detect every runtime dependency",
		Args:  cobra.NoArgs,
		RunE:  runDepsCheck,
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "install KIND",
		Short:     "Run the installer for one dependency",
		Args:      cobra.ExactArgs(1),
		ValidArgs: dependencyNames(),
		RunE:      runDepsInstall,
	})
	cmd.AddCommand(&cobra.Command{
		Use:       "confirm KIND",
		Short:     "Re-detect a dependency after its installer finished",
		Args:      cobra.ExactArgs(1),
		ValidArgs: dependencyNames(),
		RunE:      runDepsConfirm,
	})
	return cmd
}

func dependencyNames() []string {
	kinds := backend.DependencyKinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return names
}

func runDepsCheck(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	mode := outputMode(cmd)
	ensurer := a.newEnsurer(nil)
	if mode == tui.ModeTUI {
		sw := tui.NewStatusWriter(cmd.ErrOrStderr())
		sw.Update("Detecting dependencies...")
		ensurer.CheckOnStartup(ctx)
		sw.Done("Detected dependencies")
	} else {
		ensurer.CheckOnStartup(ctx)
	}
	// Automatic installs run in the background; report the settled states.
	a.local.Wait()

	return writeDepStates(cmd, mode, ensurer.States())
}

func writeDepStates(cmd *cobra.Command, mode tui.OutputMode, states []deps.State) error {
	if mode == tui.ModeJSON {
		return writeJSON(cmd.OutOrStdout(), struct {
			Dependencies []deps.State `json:"dependencies"`
		}{Dependencies: states})
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, heading(mode, "KIND\tPHASE\tDETAIL"))
	for _, st := range states {
		detail := st.LastError
		if st.Phase == deps.PhaseMissing && detail == "" {
			detail = "run: gamedeck deps install " + string(st.Kind)
		}
		if st.Phase == deps.PhaseAwaitingConfirmation {
			detail = "finish the installer, then run: gamedeck deps confirm " + string(st.Kind)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", st.Kind, styled(mode, string(st.Phase)), tui.NonEmptyOrDash(detail))
	}
	return w.Flush()
}

func runDepsInstall(cmd *cobra.Command, args []string) error {
	kind, err := backend.ParseDependencyKind(args[0])
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	mode := outputMode(cmd)
	var ensurer *deps.Ensurer

	if mode == tui.ModeTUI {
		model := tui.NewProgressModel("Installing "+string(kind), []tui.Column{
			{Header: tui.ColName, Width: 16},
			{Header: tui.ColStatus, Width: 22},
			{Header: tui.ColProgress, Width: 28},
			{Header: tui.ColDetail, Width: 48},
		})
		model.AddRow(string(kind), []string{string(kind), "pending", "", ""})
		err = tui.RunWithWork(cmd.OutOrStdout(), model, func(send func(tea.Msg)) error {
			reporter := tui.NewReporter(send)
			ensurer = a.newEnsurer(reporter.Dependency)
			if err := ensurer.BeginInstall(ctx, kind); err != nil {
				return err
			}
			a.local.Wait()
			return nil
		})
	} else {
		ensurer = a.newEnsurer(func(st deps.State) {
			if mode == tui.ModePlain {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", st.Kind, st.Phase)
			}
		})
		if err = ensurer.BeginInstall(ctx, kind); err == nil {
			a.local.Wait()
		}
	}
	if err != nil {
		return err
	}
	if ensurer == nil {
		return fmt.Errorf("install of %s interrupted", kind)
	}

	return writeDepStates(cmd, mode, []deps.State{ensurer.State(kind)})
}

func runDepsConfirm(cmd *cobra.Command, args []string) error {
	kind, err := backend.ParseDependencyKind(args[0])
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st := a.newEnsurer(nil).ConfirmAndRecheck(ctx, kind)
	if err := writeDepStates(cmd, outputMode(cmd), []deps.State{st}); err != nil {
		return err
	}
	if st.Phase != deps.PhaseResolved {
		return fmt.Errorf("%s is still missing", kind)
	}
	return nil
}
