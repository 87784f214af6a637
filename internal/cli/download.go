package cli

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"gamedeck/internal/backend"
	"gamedeck/internal/install"
	"gamedeck/internal/tui"
)

var (
	downloadType string
	downloadURL  string
	downloadPick bool
)

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download VERSION",
		Short: "Download the installer artifact for a version",
		Args:  cobra.ExactArgs(1),
		RunE:  runDownload,
	}

	cmd.Flags().StringVar(&downloadType, "type", "release", "Version type: release or preview")
	cmd.Flags().StringVar(&downloadURL, "url", "", "Artifact URL (default: built from the fastest mirror)")
	cmd.Flags().BoolVar(&downloadPick, "pick", false, "Choose the mirror interactively")
	return cmd
}

// artifactURL places the artifact for version under the mirror base URL.
func artifactURL(mirrorURL, version string, typ backend.VersionType) (string, error) {
	base, err := url.Parse(mirrorURL)
	if err != nil {
		return "", fmt.Errorf("parse mirror url: %w", err)
	}
	return base.JoinPath(string(typ), version+".msixvc").String(), nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	version := strings.TrimSpace(args[0])
	typ, err := backend.ParseVersionType(downloadType)
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	mode := outputMode(cmd)
	target := downloadURL
	if target == "" {
		sel, err := probeMirrors(ctx, cmd, a, nil)
		if err != nil {
			return err
		}
		chosen, _ := sel.Selected()
		if downloadPick && mode == tui.ModeTUI {
			if chosen, err = pickMirror(sel); err != nil {
				return err
			}
		}
		if chosen == "" {
			return fmt.Errorf("no reachable mirror; pass --url")
		}
		if target, err = artifactURL(chosen, version, typ); err != nil {
			return err
		}
	}

	req := backend.DownloadRequest{URL: target, Version: version, Type: typ}

	if mode == tui.ModeTUI {
		model := tui.NewProgressModel("Downloading "+version, []tui.Column{
			{Header: tui.ColName, Width: 16},
			{Header: tui.ColStatus, Width: 14},
			{Header: tui.ColProgress, Width: 28},
			{Header: tui.ColDetail, Width: 40},
		})
		model.AddRow(version, []string{version, "pending", "", target})
		err = tui.RunWithWork(cmd.OutOrStdout(), model, func(send func(tea.Msg)) error {
			reporter := tui.NewReporter(send)
			err := awaitDownload(ctx, a, req, func(done, total int64) { reporter.Download(version, done, total) })
			if err != nil {
				reporter.Fail(version, err)
				return err
			}
			reporter.Finish(version, "downloaded", "")
			return nil
		})
	} else {
		err = awaitDownload(ctx, a, req, nil)
	}
	if err != nil {
		return err
	}

	if mode == tui.ModeJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version, "type": string(typ), "url": target})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s %s\n", typ.Label(), version)
	return nil
}

// awaitDownload starts the download and waits for it. When ctx is
// cancelled the download is cancelled too.
func awaitDownload(ctx context.Context, a *app, req backend.DownloadRequest, onProgress func(done, total int64)) error {
	d, err := install.StartDownload(ctx, a.backend, a.bus, a.cache, req, install.DownloadOptions{
		Logger:     a.logger,
		OnProgress: onProgress,
	})
	if err != nil {
		return err
	}

	err = d.Wait(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if cerr := d.Cancel(context.WithoutCancel(ctx)); cerr != nil {
			a.logger.Warnf("cancel download: %v", cerr)
		}
		return backend.Fail("download", backend.ErrCancelled, err)
	}
	return err
}
