package install

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"gamedeck/internal/backend"
	"gamedeck/internal/events"
	"gamedeck/internal/status"
)

// DownloadOptions configures StartDownload.
type DownloadOptions struct {
	Logger     log.FieldLogger
	OnProgress func(downloaded, total int64)
}

// Download tracks one artifact download by id. Its listeners are armed
// before the backend starts and closed when it finishes or is cancelled.
type Download struct {
	ID  string
	Key status.Key

	be         backend.Downloader
	cache      *status.Cache
	group      *events.Group
	logger     log.FieldLogger
	onProgress func(downloaded, total int64)

	cancelled atomic.Bool

	mu         sync.Mutex
	downloaded int64
	total      int64

	once sync.Once
	done chan struct{}
	err  error
}

// StartDownload asks the backend to fetch the artifact for req. A
// successful download marks its key as downloaded in cache.
func StartDownload(ctx context.Context, be backend.Downloader, bus *events.Bus, cache *status.Cache, req backend.DownloadRequest, opts DownloadOptions) (*Download, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Type == "" {
		req.Type = backend.TypeRelease
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	d := &Download{
		ID:         req.ID,
		Key:        status.Key{Version: req.Version, Type: req.Type},
		be:         be,
		cache:      cache,
		group:      bus.NewGroup(),
		logger:     logger.WithFields(log.Fields{"download": req.ID, "version": req.Version}),
		onProgress: opts.OnProgress,
		done:       make(chan struct{}),
	}

	d.group.On(events.KindDownloadStart, d.ID, func(ev events.Event) {
		p, _ := ev.Payload.(events.DownloadStart)
		d.setProgress(0, p.Total)
	})
	d.group.On(events.KindDownloadProgress, d.ID, func(ev events.Event) {
		p, _ := ev.Payload.(events.DownloadProgress)
		d.setProgress(p.Downloaded, p.Total)
	})
	d.group.On(events.KindDownloadDone, d.ID, func(events.Event) {
		if d.cache != nil {
			d.cache.MarkDownloaded(d.Key)
		}
		d.logger.Info("download finished")
		d.finish(nil)
	})
	d.group.On(events.KindDownloadError, d.ID, func(ev events.Event) {
		if d.cancelled.Load() {
			return
		}
		p, _ := ev.Payload.(events.DownloadError)
		code := backend.ErrorCode(p.Code)
		if code == "" {
			code = backend.ErrDownload
		}
		d.logger.WithField("code", code).Warnf("download failed: %s", p.Message)
		d.finish(backend.Fail("download", code, fmt.Errorf("%s", p.Message)))
	})

	d.logger.Info("download started")
	if err := be.StartDownload(ctx, req); err != nil {
		d.finish(err)
		return nil, err
	}
	return d, nil
}

// Progress returns bytes received and the total, 0 when unknown.
func (d *Download) Progress() (downloaded, total int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.downloaded, d.total
}

// Done is closed once the download finished, failed or was cancelled.
func (d *Download) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the download ends or ctx is done.
func (d *Download) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops listening before asking the backend to cancel, so a late
// error notification from the aborted transfer never reaches the caller.
func (d *Download) Cancel(ctx context.Context) error {
	d.cancelled.Store(true)
	d.group.Close()
	err := d.be.CancelDownload(ctx, d.ID)
	d.finish(backend.Fail("download", backend.ErrCancelled, nil))
	if err != nil {
		d.logger.Warnf("cancel failed: %v", err)
		return err
	}
	d.logger.Info("download cancelled")
	return nil
}

func (d *Download) setProgress(downloaded, total int64) {
	d.mu.Lock()
	if total > 0 {
		d.total = total
	}
	if downloaded > d.downloaded {
		d.downloaded = downloaded
	}
	if d.total > 0 && d.downloaded > d.total {
		d.downloaded = d.total
	}
	downloaded, total = d.downloaded, d.total
	d.mu.Unlock()

	if d.onProgress != nil {
		d.onProgress(downloaded, total)
	}
}

func (d *Download) finish(err error) {
	d.once.Do(func() {
		d.err = err
		close(d.done)
		d.group.Close()
	})
}
