package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"gamedeck/internal/backend"
	"gamedeck/internal/events"
)

const progressStep = 256 << 10

var knownExtensions = []string{".tar.gz", ".tar.xz", ".tgz", ".txz", ".zip", ".msixvc", ".appx", ".exe", ".msi"}

// StartDownload fetches req.URL in the background. Progress and the outcome
// are emitted as "<id>.download.*" notifications.
func (b *Backend) StartDownload(ctx context.Context, req backend.DownloadRequest) error {
	if req.ID == "" {
		return backend.Fail("start download", backend.ErrDownload, errors.New("download id required"))
	}
	if req.URL == "" {
		return backend.Fail("start download", backend.ErrDownload, errors.New("no download url"))
	}
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		return backend.Fail("start download", backend.ErrDownload, err)
	}
	if req.Type == "" {
		req.Type = backend.TypeRelease
	}

	dctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.mu.Lock()
	if _, dup := b.downloads[req.ID]; dup {
		b.mu.Unlock()
		cancel()
		return backend.Fail("start download", backend.ErrDownload, fmt.Errorf("download %s already running", req.ID))
	}
	b.downloads[req.ID] = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.forget(req.ID)
		b.runDownload(dctx, req)
	}()
	return nil
}

// CancelDownload aborts a running download. Unknown ids are ignored.
func (b *Backend) CancelDownload(_ context.Context, id string) error {
	b.mu.Lock()
	cancel, ok := b.downloads[id]
	b.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

func (b *Backend) forget(id string) {
	b.mu.Lock()
	cancel, ok := b.downloads[id]
	delete(b.downloads, id)
	b.mu.Unlock()
	if ok {
		cancel()
	}
}

func (b *Backend) runDownload(ctx context.Context, req backend.DownloadRequest) {
	logger := b.logger.WithFields(log.Fields{"download": req.ID, "version": req.Version, "url": req.URL})
	dest := filepath.Join(b.paths.DownloadsDir, string(req.Type)+"-"+req.Version+artifactExt(req.URL))

	checksum, err := b.fetch(ctx, req.URL, dest, req.ID)
	if err == nil {
		err = b.recordDownload(ManifestEntry{
			Version:  req.Version,
			Type:     req.Type,
			Path:     dest,
			URL:      req.URL,
			Checksum: checksum,
		})
	}
	if err != nil {
		code := backend.ErrDownload
		if ctx.Err() != nil {
			code = backend.ErrCancelled
		}
		logger.WithField("code", code).Warnf("download failed: %v", err)
		b.emit(events.Name(events.KindDownloadError, req.ID), events.DownloadError{Code: string(code), Message: err.Error()})
		return
	}

	logger.Info("download complete")
	b.emit(events.Name(events.KindDownloadDone, req.ID), nil)
}

// fetch downloads rawURL to dest with retries, emitting download.start and
// download.progress for source. It returns the sha256 of the file.
func (b *Backend) fetch(ctx context.Context, rawURL, dest, source string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("prepare download destination: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = b.retryInterval
	retries := b.cfg.Download.Retries
	if retries < 0 {
		retries = 0
	}

	attempt := func() error {
		return b.fetchOnce(ctx, rawURL, dest, source)
	}
	notify := func(err error, wait time.Duration) {
		b.logger.WithField("url", rawURL).Debugf("download attempt failed, retrying in %s: %v", wait, err)
	}
	if err := backoff.RetryNotify(attempt, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx), notify); err != nil {
		return "", err
	}
	return computeChecksum(dest)
}

func (b *Backend) fetchOnce(ctx context.Context, rawURL, dest, source string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", "gamedeck/1.0")

	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("download %s: unexpected status %s", rawURL, resp.Status)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	b.emit(events.Name(events.KindDownloadStart, source), events.DownloadStart{Total: total})

	tmpFile, err := os.CreateTemp(filepath.Dir(dest), "download-*.tmp")
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create temp file: %w", err))
	}
	tmpPath := tmpFile.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	counter := &progressWriter{total: total, report: func(done, total int64) {
		b.emit(events.Name(events.KindDownloadProgress, source), events.DownloadProgress{Downloaded: done, Total: total})
	}}
	if _, err := io.Copy(io.MultiWriter(tmpFile, counter), resp.Body); err != nil {
		tmpFile.Close()
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("write temp file: %w", err)
	}
	counter.flush()
	if err := tmpFile.Close(); err != nil {
		return backoff.Permanent(fmt.Errorf("close temp file: %w", err))
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return backoff.Permanent(fmt.Errorf("finalize download: %w", err))
	}
	return nil
}

type progressWriter struct {
	done     int64
	reported int64
	total    int64
	report   func(done, total int64)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.done += int64(len(p))
	if w.done-w.reported >= progressStep {
		w.flush()
	}
	return len(p), nil
}

func (w *progressWriter) flush() {
	if w.done == w.reported {
		return
	}
	w.reported = w.done
	w.report(w.done, w.total)
}

func artifactExt(rawURL string) string {
	base := rawURL
	if parsed, err := url.Parse(rawURL); err == nil {
		base = path.Base(parsed.Path)
	}
	lower := strings.ToLower(base)
	for _, ext := range knownExtensions {
		if strings.HasSuffix(lower, ext) {
			return ext
		}
	}
	return ".msixvc"
}

func computeChecksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open for checksum: %w", err)
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
