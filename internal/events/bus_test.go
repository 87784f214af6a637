package events

import (
	"io"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func TestEmitDecodesTypedPayload(t *testing.T) {
	bus := NewBus(quietLogger())

	var got []Event
	bus.Subscribe(KindDownloadProgress, "gameinput", func(e Event) { got = append(got, e) })

	require.NoError(t, bus.Emit("gameinput.download.progress", []byte(`{"downloaded":10,"total":40}`)))
	require.Len(t, got, 1)
	assert.Equal(t, "gameinput", got[0].Source)
	assert.Equal(t, DownloadProgress{Downloaded: 10, Total: 40}, got[0].Payload)
	assert.False(t, got[0].At.IsZero())
}

func TestEmitExtractProgress(t *testing.T) {
	bus := NewBus(quietLogger())

	var payload ExtractProgress
	bus.Subscribe(KindExtractProgress, "", func(e Event) { payload = e.Payload.(ExtractProgress) })

	require.NoError(t, bus.Emit("extract.progress", []byte(`{"files":3,"bytes":20,"total_bytes":100,"current_file":"a.bin"}`)))
	assert.Equal(t, ExtractProgress{Files: 3, Bytes: 20, TotalBytes: 100, CurrentFile: "a.bin"}, payload)
}

func TestEmitUnknownNameIsRejected(t *testing.T) {
	bus := NewBus(quietLogger())
	calls := 0
	bus.Subscribe(KindEnsureDone, "", func(Event) { calls++ })

	assert.Error(t, bus.Emit("gameinput.ensure.finish", nil))
	assert.Error(t, bus.Emit(".ensure.done", nil))
	assert.Equal(t, 0, calls)
}

func TestSourceFiltering(t *testing.T) {
	bus := NewBus(quietLogger())

	var input, all int
	bus.Subscribe(KindEnsureDone, "gameinput", func(Event) { input++ })
	bus.Subscribe(KindEnsureDone, "", func(Event) { all++ })

	bus.Publish(Event{Kind: KindEnsureDone, Source: "vcruntime", Payload: EnsureDone{Success: true}})
	bus.Publish(Event{Kind: KindEnsureDone, Source: "gameinput", Payload: EnsureDone{Success: true}})

	assert.Equal(t, 1, input)
	assert.Equal(t, 2, all)
}

func TestGroupCloseRemovesAllListeners(t *testing.T) {
	bus := NewBus(quietLogger())
	g := bus.NewGroup()

	calls := 0
	g.On(KindDownloadStart, "abc", func(Event) { calls++ })
	g.On(KindDownloadDone, "abc", func(Event) { calls++ })
	require.Equal(t, 2, bus.Len())

	g.Close()
	assert.Equal(t, 0, bus.Len())
	assert.True(t, g.Closed())

	bus.Publish(Event{Kind: KindDownloadDone, Source: "abc"})
	assert.Equal(t, 0, calls)

	g.On(KindDownloadDone, "abc", func(Event) { calls++ })
	assert.Equal(t, 0, bus.Len())
}

func TestHandlerMayCloseItsOwnSubscription(t *testing.T) {
	bus := NewBus(quietLogger())

	var sub *Subscription
	calls := 0
	sub = bus.Subscribe(KindDownloadDone, "", func(Event) {
		calls++
		sub.Close()
	})

	bus.Publish(Event{Kind: KindDownloadDone, Source: "x"})
	bus.Publish(Event{Kind: KindDownloadDone, Source: "x"})
	assert.Equal(t, 1, calls)
	sub.Close()
}

func TestNameRoundTrip(t *testing.T) {
	kind, source, err := parseName(Name(KindEnsureStart, "gamingservices"))
	require.NoError(t, err)
	assert.Equal(t, KindEnsureStart, kind)
	assert.Equal(t, "gamingservices", source)
	assert.Equal(t, "extract.progress", Name(KindExtractProgress, "ignored"))
}
