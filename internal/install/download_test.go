package install

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamedeck/internal/backend"
	"gamedeck/internal/events"
	"gamedeck/internal/status"
)

type fakeDownloader struct {
	mu        sync.Mutex
	started   []backend.DownloadRequest
	cancelled []string
	startErr  error
}

func (f *fakeDownloader) StartDownload(_ context.Context, req backend.DownloadRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, req)
	return f.startErr
}

func (f *fakeDownloader) CancelDownload(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}

type noStatus struct{}

func (noStatus) QueryVersionStatus(context.Context, string, backend.VersionType) (backend.VersionStatus, error) {
	return backend.VersionStatus{}, nil
}

func newDownloadEnv(t *testing.T) (*fakeDownloader, *events.Bus, *status.Cache, log.FieldLogger) {
	t.Helper()
	logger := log.New()
	logger.SetOutput(io.Discard)
	return &fakeDownloader{}, events.NewBus(logger), status.New(noStatus{}, 1, logger), logger
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestDownloadDoneMarksKeyDownloaded(t *testing.T) {
	fake, bus, cache, logger := newDownloadEnv(t)

	var seen [][2]int64
	d, err := StartDownload(context.Background(), fake, bus, cache,
		backend.DownloadRequest{URL: "https://cdn.example.com/1.21.0.msixvc", Version: "1.21.0"},
		DownloadOptions{Logger: logger, OnProgress: func(done, total int64) { seen = append(seen, [2]int64{done, total}) }})
	require.NoError(t, err)
	require.NotEmpty(t, d.ID)
	require.Len(t, fake.started, 1)
	assert.Equal(t, d.ID, fake.started[0].ID)
	assert.Equal(t, backend.TypeRelease, fake.started[0].Type)

	bus.Publish(events.Event{Kind: events.KindDownloadStart, Source: d.ID, Payload: events.DownloadStart{Total: 100}})
	bus.Publish(events.Event{Kind: events.KindDownloadProgress, Source: d.ID, Payload: events.DownloadProgress{Downloaded: 40, Total: 100}})
	bus.Publish(events.Event{Kind: events.KindDownloadProgress, Source: d.ID, Payload: events.DownloadProgress{Downloaded: 140, Total: 100}})
	bus.Publish(events.Event{Kind: events.KindDownloadDone, Source: d.ID})

	require.NoError(t, d.Wait(waitCtx(t)))
	assert.Equal(t, [][2]int64{{0, 100}, {40, 100}, {100, 100}}, seen)

	entry, ok := cache.Get(status.Key{Version: "1.21.0", Type: backend.TypeRelease})
	require.True(t, ok)
	assert.True(t, entry.IsDownloaded)
	assert.Zero(t, bus.Len())
}

func TestDownloadIgnoresOtherIDs(t *testing.T) {
	fake, bus, cache, logger := newDownloadEnv(t)
	d, err := StartDownload(context.Background(), fake, bus, cache,
		backend.DownloadRequest{ID: "mine", Version: "1.0"}, DownloadOptions{Logger: logger})
	require.NoError(t, err)

	bus.Publish(events.Event{Kind: events.KindDownloadDone, Source: "theirs"})
	select {
	case <-d.Done():
		t.Fatal("download finished on another id's notification")
	default:
	}
	d.finish(nil)
}

func TestDownloadErrorSurfacesCode(t *testing.T) {
	fake, bus, cache, logger := newDownloadEnv(t)
	d, err := StartDownload(context.Background(), fake, bus, cache,
		backend.DownloadRequest{Version: "1.0"}, DownloadOptions{Logger: logger})
	require.NoError(t, err)

	bus.Publish(events.Event{Kind: events.KindDownloadError, Source: d.ID, Payload: events.DownloadError{Message: "connection reset"}})

	err = d.Wait(waitCtx(t))
	require.Error(t, err)
	assert.Equal(t, backend.ErrDownload, backend.CodeOf(err))
	assert.Contains(t, err.Error(), "connection reset")
	_, ok := cache.Get(status.Key{Version: "1.0", Type: backend.TypeRelease})
	assert.False(t, ok)
}

func TestCancelSuppressesLateError(t *testing.T) {
	fake, bus, cache, logger := newDownloadEnv(t)
	d, err := StartDownload(context.Background(), fake, bus, cache,
		backend.DownloadRequest{Version: "1.0"}, DownloadOptions{Logger: logger})
	require.NoError(t, err)

	require.NoError(t, d.Cancel(context.Background()))
	assert.Equal(t, []string{d.ID}, fake.cancelled)
	assert.Zero(t, bus.Len())

	bus.Publish(events.Event{Kind: events.KindDownloadError, Source: d.ID, Payload: events.DownloadError{Code: "ERR_DOWNLOAD", Message: "aborted"}})

	err = d.Wait(waitCtx(t))
	assert.Equal(t, backend.ErrCancelled, backend.CodeOf(err))
}

func TestStartDownloadFailureLeavesNoListeners(t *testing.T) {
	fake, bus, cache, logger := newDownloadEnv(t)
	fake.startErr = backend.Fail("start download", backend.ErrNotImplemented, nil)

	_, err := StartDownload(context.Background(), fake, bus, cache,
		backend.DownloadRequest{Version: "1.0"}, DownloadOptions{Logger: logger})
	require.Error(t, err)
	assert.Zero(t, bus.Len())
}
