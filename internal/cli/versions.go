package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"gamedeck/internal/backend"
	"gamedeck/internal/install"
	"gamedeck/internal/status"
	"gamedeck/internal/tui"
)

var (
	installVersion  string
	installType     string
	installArtifact string
	installIsolate  bool
	installInherit  string
	installLoader   bool
)

func newVersionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List, install and delete game versions",
	}

	cmd.AddCommand(newVersionsListCmd())
	cmd.AddCommand(newVersionsStatusCmd())
	cmd.AddCommand(newVersionsInstallCmd())
	cmd.AddCommand(newVersionsDeleteCmd())
	return cmd
}

func newVersionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed version folders",
		Args:  cobra.NoArgs,
		RunE:  runVersionsList,
	}
}

func newVersionsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Refresh and show download/install status per version",
		Args:  cobra.NoArgs,
		RunE:  runVersionsStatus,
	}
}

func newVersionsInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install NAME",
		Short: "Install a version into a new folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runVersionsInstall,
	}

	cmd.Flags().StringVar(&installVersion, "version", "", "Source game version, e.g. 1.21.0")
	cmd.Flags().StringVar(&installType, "type", "release", "Version type: release or preview")
	cmd.Flags().StringVar(&installArtifact, "artifact", "", "Installer artifact path (default: the downloaded artifact for --version)")
	cmd.Flags().BoolVar(&installIsolate, "isolate", false, "Give the version its own data directory")
	cmd.Flags().StringVar(&installInherit, "inherit", "", "With --isolate, copy data from \"base\" or another version folder")
	cmd.Flags().BoolVar(&installLoader, "loader", false, "Install the content loader")
	return cmd
}

func newVersionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete an installed version folder",
		Args:  cobra.ExactArgs(1),
		RunE:  runVersionsDelete,
	}
}

type versionJSONRow struct {
	Name       string `json:"name"`
	Version    string `json:"version"`
	Type       string `json:"type"`
	Isolation  bool   `json:"isolation"`
	Registered bool   `json:"registered"`
}

func runVersionsList(cmd *cobra.Command, _ []string) error {
	a, err := newApp(commandContext(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	descriptors := a.cache.Descriptors()
	if outputJSON {
		rows := make([]versionJSONRow, 0, len(descriptors))
		for _, d := range descriptors {
			rows = append(rows, descriptorRow(d))
		}
		return writeJSON(cmd.OutOrStdout(), struct {
			Root     string           `json:"root"`
			Versions []versionJSONRow `json:"versions"`
		}{Root: a.paths.Root, Versions: rows})
	}

	mode := outputMode(cmd)
	fmt.Fprintf(cmd.OutOrStdout(), "Root: %s\n", a.paths.Root)
	if len(descriptors) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No versions installed.")
		return nil
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, heading(mode, "NAME\tVERSION\tTYPE\tISOLATED\tREGISTERED"))
	for _, d := range descriptors {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.Name,
			tui.NonEmptyOrDash(d.DisplayVersion),
			d.Type,
			yesNo(d.IsolationEnabled),
			yesNo(d.IsRegistered),
		)
	}
	return w.Flush()
}

func descriptorRow(d status.Descriptor) versionJSONRow {
	return versionJSONRow{
		Name:       d.Name,
		Version:    d.DisplayVersion,
		Type:       string(d.Type),
		Isolation:  d.IsolationEnabled,
		Registered: d.IsRegistered,
	}
}

func runVersionsStatus(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	keys := a.cache.ActiveKeys()
	refreshErr := a.cache.RefreshAll(ctx, keys)
	entries := a.cache.Snapshot(keys)

	if outputJSON {
		type statusJSONRow struct {
			status.Entry
			Folders []string `json:"folders"`
		}
		rows := make([]statusJSONRow, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, statusJSONRow{Entry: e, Folders: a.cache.FoldersFor(e.Key)})
		}
		payload := struct {
			Entries []statusJSONRow `json:"entries"`
			Error   string          `json:"error,omitempty"`
		}{Entries: rows}
		if refreshErr != nil {
			payload.Error = refreshErr.Error()
		}
		return writeJSON(cmd.OutOrStdout(), payload)
	}

	mode := outputMode(cmd)
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, heading(mode, "VERSION\tTYPE\tDOWNLOADED\tINSTALLED\tFOLDERS"))
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.Key.Version,
			e.Key.Type,
			yesNo(e.IsDownloaded),
			yesNo(e.IsInstalled),
			strings.Join(a.cache.FoldersFor(e.Key), ","),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if refreshErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Some versions could not be refreshed:\n  %v\n", refreshErr)
	}
	return nil
}

func parseInherit(value string) install.Inherit {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return install.Inherit{}
	case strings.EqualFold(value, "base"):
		return install.Inherit{Kind: install.InheritBase}
	default:
		return install.Inherit{Kind: install.InheritVersion, Version: value}
	}
}

func installConfig(name string, a *app) (install.Config, error) {
	typ, err := backend.ParseVersionType(installType)
	if err != nil {
		return install.Config{}, err
	}
	if installArtifact == "" && strings.TrimSpace(installVersion) == "" {
		return install.Config{}, fmt.Errorf("--version is required unless --artifact is given")
	}
	inherit := parseInherit(installInherit)
	if inherit.Kind != install.InheritNone && !installIsolate {
		return install.Config{}, fmt.Errorf("--inherit requires --isolate")
	}
	return install.Config{
		Name:          name,
		ArtifactPath:  installArtifact,
		Version:       strings.TrimSpace(installVersion),
		Type:          typ,
		Isolation:     installIsolate,
		Inherit:       inherit,
		Loader:        install.LoaderRequest{Enabled: installLoader},
		EnableConsole: a.cfg.Install.EnableConsole,
		EditorMode:    a.cfg.Install.EditorMode,
	}, nil
}

func runVersionsInstall(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, err := installConfig(args[0], a)
	if err != nil {
		return err
	}

	mode := outputMode(cmd)
	var result install.InstalledVersion

	switch mode {
	case tui.ModeTUI:
		model := tui.NewProgressModel("Installing "+cfg.Name, []tui.Column{
			{Header: tui.ColName, Width: 20},
			{Header: tui.ColStatus, Width: 20},
			{Header: tui.ColProgress, Width: 28},
			{Header: tui.ColDetail, Width: 40},
		})
		model.AddRow(cfg.Name, []string{cfg.Name, "pending", "", ""})
		err = tui.RunWithWork(cmd.OutOrStdout(), model, func(send func(tea.Msg)) error {
			reporter := tui.NewReporter(send)
			orch := a.newOrchestrator(func(p install.Progress) { reporter.Install(cfg.Name, p) })
			var runErr error
			result, runErr = orch.Install(ctx, cfg)
			if runErr != nil {
				reporter.Fail(cfg.Name, runErr)
			}
			return runErr
		})
	default:
		var lastStage install.Stage
		orch := a.newOrchestrator(func(p install.Progress) {
			if mode == tui.ModeJSON || p.Stage == lastStage {
				return
			}
			lastStage = p.Stage
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", cfg.Name, p.Stage)
		})
		result, err = orch.Install(ctx, cfg)
	}

	if err != nil {
		return installError(err)
	}

	if mode == tui.ModeJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	lines := fmt.Sprintf("Installed %s (%s %s)\nIsolation: %s\nLoader: %s",
		result.Name, result.Type.Label(), tui.NonEmptyOrDash(result.Version), yesNo(result.Isolation), yesNo(result.Loader))
	fmt.Fprintln(cmd.OutOrStdout(), summaryBox(mode, lines))
	return nil
}

func runVersionsDelete(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.newOrchestrator(nil).Delete(ctx, args[0]); err != nil {
		return installError(err)
	}
	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"deleted": args[0]})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
	return nil
}

// installError names the version channel when the backend labelled the
// failure with one.
func installError(err error) error {
	var be *backend.Error
	if errors.As(err, &be) && be.Label != "" {
		return fmt.Errorf("%s version: %w", be.Label, err)
	}
	return err
}
