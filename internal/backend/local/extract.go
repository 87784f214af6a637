package local

import (
	"archive/tar"
	"archive/zip"
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"

	"gamedeck/internal/backend"
	"gamedeck/internal/events"
	"gamedeck/internal/paths"
)

type archiveFormat string

const (
	archiveFormatZip   archiveFormat = "zip"
	archiveFormatTarGz archiveFormat = "tar.gz"
	archiveFormatTarXz archiveFormat = "tar.xz"
)

// progressEvery throttles extract.progress notifications.
const progressEvery = 16

func detectFormat(name string) (archiveFormat, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return archiveFormatTarGz, nil
	case strings.HasSuffix(lower, ".tar.xz"), strings.HasSuffix(lower, ".txz"):
		return archiveFormatTarXz, nil
	case strings.HasSuffix(lower, ".zip"), strings.HasSuffix(lower, ".msixvc"), strings.HasSuffix(lower, ".appx"):
		return archiveFormatZip, nil
	default:
		return "", fmt.Errorf("unsupported archive %q", filepath.Base(name))
	}
}

// ExtractInstaller unpacks the artifact into a new version folder. The
// folder only appears once extraction finished, so a failed extraction
// leaves nothing behind.
func (b *Backend) ExtractInstaller(ctx context.Context, artifactPath, targetName string, preview bool) error {
	if err := checkName(targetName); err != nil {
		return err
	}
	if ok, _ := paths.FileExists(artifactPath); !ok {
		return backend.Fail("extract", backend.ErrMsixvcNotSpecified, fmt.Errorf("artifact %s not found", artifactPath))
	}
	dest := b.paths.VersionDir(targetName)
	if ok, _ := paths.DirExists(dest); ok {
		return backend.Fail("extract", backend.ErrNameExists, fmt.Errorf("%q", targetName))
	}
	if err := os.MkdirAll(b.paths.VersionsDir, 0o755); err != nil {
		return backend.Fail("extract", backend.ErrIO, err)
	}

	tmpDir, err := os.MkdirTemp(b.paths.VersionsDir, ".extract-")
	if err != nil {
		return backend.Fail("extract", backend.ErrIO, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	logger := b.logger.WithFields(log.Fields{"artifact": filepath.Base(artifactPath), "target": targetName, "preview": preview})
	logger.Info("extracting installer")

	report := func(p events.ExtractProgress) {
		b.emit(events.Name(events.KindExtractProgress, events.SourceExtract), p)
	}
	if err := extractArchive(ctx, artifactPath, tmpDir, report); err != nil {
		if errors.Is(err, context.Canceled) {
			return backend.Fail("extract", backend.ErrCancelled, err)
		}
		return backend.Fail("extract", backend.ErrExtract, err)
	}

	if err := os.Rename(tmpDir, dest); err != nil {
		return backend.Fail("extract", backend.ErrIO, err)
	}
	committed = true
	logger.Info("installer extracted")
	return nil
}

type extractTracker struct {
	progress events.ExtractProgress
	report   func(events.ExtractProgress)
}

func (t *extractTracker) file(name string, size int64) {
	t.progress.Files++
	t.progress.Bytes += size
	t.progress.CurrentFile = name
	if t.report != nil && t.progress.Files%progressEvery == 1 {
		t.report(t.progress)
	}
}

func (t *extractTracker) finish() {
	if t.report != nil {
		t.report(t.progress)
	}
}

func extractArchive(ctx context.Context, archivePath, dest string, report func(events.ExtractProgress)) error {
	format, err := detectFormat(archivePath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("prepare extract dir: %w", err)
	}

	tracker := &extractTracker{report: report}
	switch format {
	case archiveFormatZip:
		err = extractZip(ctx, archivePath, dest, tracker)
	case archiveFormatTarGz:
		err = extractTarGz(ctx, archivePath, dest, tracker)
	case archiveFormatTarXz:
		err = extractTarXz(ctx, archivePath, dest, tracker)
	}
	if err != nil {
		return err
	}
	tracker.finish()
	return nil
}

// safeJoin resolves an archive entry below dest and rejects entries that
// would escape it.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes destination", name)
	}
	return target, nil
}

func extractZip(ctx context.Context, archivePath, dest string, tracker *extractTracker) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if !file.FileInfo().IsDir() {
			tracker.progress.TotalBytes += int64(file.UncompressedSize64)
		}
	}

	for _, file := range reader.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		target, err := safeJoin(dest, file.Name)
		if err != nil {
			return err
		}
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("open zip entry %s: %w", file.Name, err)
		}
		n, err := writeEntry(target, rc, file.Mode())
		rc.Close()
		if err != nil {
			return err
		}
		tracker.file(file.Name, n)
	}
	return nil
}

func extractTarGz(ctx context.Context, archivePath, dest string, tracker *extractTracker) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	return untarStream(ctx, gz, dest, tracker)
}

func extractTarXz(ctx context.Context, archivePath, dest string, tracker *extractTracker) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer file.Close()

	xr, err := xz.NewReader(bufio.NewReader(file))
	if err != nil {
		return fmt.Errorf("xz reader: %w", err)
	}
	return untarStream(ctx, xr, dest, tracker)
}

func untarStream(ctx context.Context, r io.Reader, dest string, tracker *extractTracker) error {
	tr := tar.NewReader(r)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}
		target, err := safeJoin(dest, header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			n, err := writeEntry(target, tr, os.FileMode(header.Mode))
			if err != nil {
				return err
			}
			tracker.file(header.Name, n)
		default:
			// Links and devices are not part of game payloads.
		}
	}
	return nil
}

func writeEntry(target string, r io.Reader, mode os.FileMode) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, fmt.Errorf("prepare file %s: %w", target, err)
	}
	if mode.Perm() == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode.Perm())
	if err != nil {
		return 0, fmt.Errorf("create file %s: %w", target, err)
	}
	n, err := io.Copy(out, r)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("write file %s: %w", target, err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("close file %s: %w", target, err)
	}
	return n, nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	dest, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dest.Close()

	if _, err := io.Copy(dest, source); err != nil {
		return err
	}
	return nil
}
