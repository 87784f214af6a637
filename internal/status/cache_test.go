package status

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gamedeck/internal/backend"
)

type fakeQuerier struct {
	mu      sync.Mutex
	answers map[string]backend.VersionStatus
	fail    map[string]error
	calls   map[string]int
}

func newFakeQuerier() *fakeQuerier {
	return &fakeQuerier{
		answers: map[string]backend.VersionStatus{},
		fail:    map[string]error{},
		calls:   map[string]int{},
	}
}

func (f *fakeQuerier) QueryVersionStatus(_ context.Context, version string, t backend.VersionType) (backend.VersionStatus, error) {
	key := Key{Version: version, Type: t}.String()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[key]++
	if err := f.fail[key]; err != nil {
		return backend.VersionStatus{}, err
	}
	return f.answers[key], nil
}

func quiet() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func rel(version string) Key { return Key{Version: version, Type: backend.TypeRelease} }

func TestRefreshAllIsolatesFailures(t *testing.T) {
	q := newFakeQuerier()
	q.answers[rel("1.20.0").String()] = backend.VersionStatus{IsDownloaded: true, IsInstalled: true}
	q.answers[rel("1.21.0").String()] = backend.VersionStatus{IsDownloaded: true}
	q.fail[rel("1.19.0").String()] = errors.New("disk unavailable")

	c := New(q, 2, quiet())
	err := c.RefreshAll(context.Background(), []Key{rel("1.19.0"), rel("1.20.0"), rel("1.21.0")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk unavailable")

	e, ok := c.Get(rel("1.20.0"))
	require.True(t, ok)
	assert.True(t, e.IsInstalled)

	e, ok = c.Get(rel("1.21.0"))
	require.True(t, ok)
	assert.True(t, e.IsDownloaded)
	assert.False(t, e.IsInstalled)

	_, ok = c.Get(rel("1.19.0"))
	assert.False(t, ok)
}

func TestRefreshAllFailureKeepsPreviousEntry(t *testing.T) {
	q := newFakeQuerier()
	q.answers[rel("1.20.0").String()] = backend.VersionStatus{IsInstalled: true}

	c := New(q, 1, quiet())
	require.NoError(t, c.RefreshAll(context.Background(), []Key{rel("1.20.0")}))

	q.fail[rel("1.20.0").String()] = errors.New("boom")
	require.Error(t, c.RefreshAll(context.Background(), []Key{rel("1.20.0")}))

	e, ok := c.Get(rel("1.20.0"))
	require.True(t, ok)
	assert.True(t, e.IsInstalled)
}

func TestRefreshAllDedupesKeys(t *testing.T) {
	q := newFakeQuerier()
	c := New(q, 4, quiet())

	require.NoError(t, c.RefreshAll(context.Background(), []Key{rel("1.20.0"), rel("1.20.0"), {Version: ""}}))
	assert.Equal(t, 1, q.calls[rel("1.20.0").String()])
}

func TestRefreshOneOnlyTouchesOneKey(t *testing.T) {
	q := newFakeQuerier()
	c := New(q, 4, quiet())
	require.NoError(t, c.RefreshAll(context.Background(), []Key{rel("1.20.0"), rel("1.21.0")}))

	q.answers[rel("1.20.0").String()] = backend.VersionStatus{IsInstalled: true}
	entry, err := c.RefreshOne(context.Background(), rel("1.20.0"))
	require.NoError(t, err)
	assert.True(t, entry.IsInstalled)
	assert.Equal(t, 2, q.calls[rel("1.20.0").String()])
	assert.Equal(t, 1, q.calls[rel("1.21.0").String()])
}

func TestMarkDownloaded(t *testing.T) {
	c := New(newFakeQuerier(), 1, quiet())
	c.MarkDownloaded(Key{Version: "1.21.50", Type: backend.TypePreview})

	e, ok := c.Get(Key{Version: "1.21.50", Type: backend.TypePreview})
	require.True(t, ok)
	assert.True(t, e.IsDownloaded)
	assert.False(t, e.IsInstalled)

	_, ok = c.Get(rel("1.21.50"))
	assert.False(t, ok, "release and preview keys are distinct")
}

func TestKeysSortNewestFirst(t *testing.T) {
	keys := []Key{
		rel("1.9.0"),
		{Version: "1.20.10", Type: backend.TypePreview},
		rel("1.20.10"),
		rel("custom"),
		rel("1.21.0"),
	}
	SortKeys(keys)
	assert.Equal(t, []Key{
		rel("1.21.0"),
		rel("1.20.10"),
		{Version: "1.20.10", Type: backend.TypePreview},
		rel("1.9.0"),
		rel("custom"),
	}, keys)
}

func TestDescriptorsMapManyFoldersToOneKey(t *testing.T) {
	c := New(newFakeQuerier(), 1, quiet())
	c.PutDescriptor(Descriptor{Name: "Vanilla", DisplayVersion: "1.20.0", Type: backend.TypeRelease})
	c.PutDescriptor(Descriptor{Name: "Modded", DisplayVersion: "1.20.0", Type: backend.TypeRelease, IsolationEnabled: true})
	c.PutDescriptor(Descriptor{Name: "Beta", DisplayVersion: "1.21.0", Type: backend.TypePreview})

	assert.Equal(t, []string{"Modded", "Vanilla"}, c.FoldersFor(rel("1.20.0")))
	assert.Len(t, c.ActiveKeys(), 2)

	require.NoError(t, c.SetRegistered("Vanilla", true))
	d, ok := c.Descriptor("Vanilla")
	require.True(t, ok)
	assert.True(t, d.IsRegistered)

	require.NoError(t, c.SetIsolation("Modded", false))
	d, _ = c.Descriptor("Modded")
	assert.False(t, d.IsolationEnabled)

	assert.Error(t, c.SetRegistered("Missing", true))

	removed, ok := c.RemoveDescriptor("Vanilla")
	require.True(t, ok)
	assert.Equal(t, "Vanilla", removed.Name)
	assert.Equal(t, []string{"Modded"}, c.FoldersFor(rel("1.20.0")))

	names := []string{}
	for _, d := range c.Descriptors() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Beta", "Modded"}, names)
}
