package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mellowplay/hub/internal/app/mixer"
	"github.com/mellowplay/hub/internal/app/notification"
	"github.com/mellowplay/hub/internal/app/session"
	"github.com/mellowplay/hub/internal/domain/media"
)

type stubEngine struct {
	mu     sync.Mutex
	loaded string
	ended  chan struct{}
}

func newStubEngine() *stubEngine {
	return &stubEngine{ended: make(chan struct{}, 1)}
}

func (e *stubEngine) Load(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = path
	return nil
}
func (e *stubEngine) Play() error                 { return nil }
func (e *stubEngine) Pause() error                { return nil }
func (e *stubEngine) Seek(time.Duration) error    { return nil }
func (e *stubEngine) Position() time.Duration     { return 0 }
func (e *stubEngine) SetVolume(float64)           {}
func (e *stubEngine) Stop()                       {}
func (e *stubEngine) TrackEnded() <-chan struct{} { return e.ended }
func (e *stubEngine) Close() error                { return nil }

// gateLibrary serves IDs and can hold a query open until released.
type gateLibrary struct {
	ids  []int64
	gate chan struct{}
}

func (g *gateLibrary) QueryFiles(ctx context.Context, _ mixer.Criteria) ([]int64, error) {
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.ids, nil
}

type stubHydrator struct{}

func (stubHydrator) FilesByIDs(_ context.Context, ids []int64) ([]media.File, error) {
	files := make([]media.File, len(ids))
	for i, id := range ids {
		files[i] = media.File{
			ID:       id,
			Title:    fmt.Sprintf("track %d", id),
			Artist:   "artist",
			Duration: 120,
			Path:     fmt.Sprintf("/music/%d.mp3", id),
		}
	}
	return files, nil
}

type chanStream struct {
	msgs chan notification.Message
}

func newChanStream() *chanStream {
	return &chanStream{msgs: make(chan notification.Message, 128)}
}

func (c *chanStream) Send(msg notification.Message) error {
	select {
	case c.msgs <- msg:
	default:
	}
	return nil
}

// waitFor discards messages until one of the wanted type arrives.
func (c *chanStream) waitFor(t *testing.T, signalType string) notification.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-c.msgs:
			if msg.Type == signalType {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", signalType)
			return notification.Message{}
		}
	}
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

type testRig struct {
	engine     *stubEngine
	session    *session.Session
	broadcast  *notification.Manager
	dispatcher *Dispatcher
	stream     *chanStream
	clientID   string
}

func newTestRig(t *testing.T, opener LibraryOpener) *testRig {
	t.Helper()
	engine := newStubEngine()
	sess := session.New(engine, session.Config{ProgressInterval: time.Hour})
	broadcast := notification.NewManager()
	dispatcher := NewDispatcher(sess, broadcast, opener)
	stream := newChanStream()

	t.Cleanup(func() {
		dispatcher.Close()
		sess.Close()
	})

	return &testRig{
		engine:     engine,
		session:    sess,
		broadcast:  broadcast,
		dispatcher: dispatcher,
		stream:     stream,
		clientID:   broadcast.Subscribe(stream),
	}
}

func (r *testRig) attachLibrary(ids []int64) {
	r.dispatcher.AttachLibrary(&gateLibrary{ids: ids}, stubHydrator{})
}

func (r *testRig) operate(t *testing.T, req OperatePlaybackWithMixQueryRequest) {
	t.Helper()
	r.dispatcher.Dispatch(r.clientID, Envelope{
		Type:    SignalOperatePlayback,
		Payload: mustJSON(t, req),
	})
}

func TestDispatcher_RejectsBeforeReady(t *testing.T) {
	rig := newTestRig(t, nil)

	rig.dispatcher.Dispatch(rig.clientID, Envelope{Type: SignalPlay})

	msg := rig.stream.waitFor(t, SignalError)
	payload := msg.Payload.(ErrorPayload)
	assert.Equal(t, CodeDispatchError, payload.Code)
}

func TestDispatcher_LibraryHandshakeEnablesCommands(t *testing.T) {
	opener := func(_ context.Context, path string) (mixer.Library, Hydrator, error) {
		return &gateLibrary{ids: []int64{1}}, stubHydrator{}, nil
	}
	rig := newTestRig(t, opener)

	rig.dispatcher.Dispatch(rig.clientID, Envelope{
		Type:    SignalSetMediaLibraryPath,
		Payload: mustJSON(t, SetMediaLibraryPathRequest{Path: "/library/media.db"}),
	})

	// Handshake pushes the initial snapshots.
	rig.stream.waitFor(t, SignalPlaybackStatus)
	rig.stream.waitFor(t, SignalPlaylistUpdate)
	assert.True(t, rig.dispatcher.Ready())
}

func TestDispatcher_OperateReplacesAndPlays(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.attachLibrary([]int64{10, 11, 12})

	rig.operate(t, OperatePlaybackWithMixQueryRequest{
		Queries:         []mixer.Query{{Steps: []mixer.Step{{Operator: mixer.OpLibAll}}}},
		ReplacePlaylist: true,
		InstantlyPlay:   true,
	})

	msg := rig.stream.waitFor(t, SignalOperatePlaybackResponse)
	resp := msg.Payload.(OperatePlaybackWithMixQueryResponse)
	assert.Equal(t, []int32{10, 11, 12}, resp.FileIDs)

	require.Eventually(t, func() bool {
		return rig.session.Status().State == session.StatePlaying
	}, 2*time.Second, 5*time.Millisecond)
	items, current := rig.session.PlaylistSnapshot()
	assert.Len(t, items, 3)
	assert.Equal(t, 0, current)
}

func TestDispatcher_OperateFallbackOnly(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.attachLibrary(nil)

	rig.operate(t, OperatePlaybackWithMixQueryRequest{
		ReplacePlaylist:      true,
		FallbackMediaFileIDs: []int32{7, 8},
	})

	msg := rig.stream.waitFor(t, SignalOperatePlaybackResponse)
	resp := msg.Payload.(OperatePlaybackWithMixQueryResponse)
	assert.Equal(t, []int32{7, 8}, resp.FileIDs)
}

func TestDispatcher_OperateAppendsToQueue(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.attachLibrary(nil)

	rig.operate(t, OperatePlaybackWithMixQueryRequest{
		ReplacePlaylist:      true,
		InstantlyPlay:        true,
		FallbackMediaFileIDs: []int32{1, 2},
	})
	rig.stream.waitFor(t, SignalOperatePlaybackResponse)
	require.Eventually(t, func() bool {
		return rig.session.Status().State == session.StatePlaying
	}, 2*time.Second, 5*time.Millisecond)

	rig.operate(t, OperatePlaybackWithMixQueryRequest{
		FallbackMediaFileIDs: []int32{3},
	})

	msg := rig.stream.waitFor(t, SignalOperatePlaybackResponse)
	resp := msg.Payload.(OperatePlaybackWithMixQueryResponse)
	assert.Equal(t, []int32{3}, resp.FileIDs)

	items, current := rig.session.PlaylistSnapshot()
	require.Len(t, items, 3)
	assert.Equal(t, int64(3), items[2].ID, "appended ids land at the tail")
	assert.Equal(t, 0, current, "the playing slot is untouched")
	assert.Equal(t, session.StatePlaying, rig.session.Status().State)
}

func TestDispatcher_OperateAppendReadiesIdleSession(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.attachLibrary(nil)

	rig.operate(t, OperatePlaybackWithMixQueryRequest{
		FallbackMediaFileIDs: []int32{5, 6},
	})
	rig.stream.waitFor(t, SignalOperatePlaybackResponse)

	st := rig.session.Status()
	assert.Equal(t, session.StateReady, st.State)
	assert.Equal(t, -1, st.Index, "append never selects a current item")
	items, _ := rig.session.PlaylistSnapshot()
	assert.Len(t, items, 2)
}

func TestDispatcher_SupersededOperateIsDiscarded(t *testing.T) {
	rig := newTestRig(t, nil)
	gate := make(chan struct{})
	rig.dispatcher.AttachLibrary(&gateLibrary{ids: []int64{1, 2, 3}, gate: gate}, stubHydrator{})

	// First operate blocks in the library; the second supersedes it.
	rig.operate(t, OperatePlaybackWithMixQueryRequest{
		Queries:         []mixer.Query{{Steps: []mixer.Step{{Operator: mixer.OpLibAll}}}},
		ReplacePlaylist: true,
	})
	rig.operate(t, OperatePlaybackWithMixQueryRequest{
		ReplacePlaylist:      true,
		FallbackMediaFileIDs: []int32{42},
	})

	msg := rig.stream.waitFor(t, SignalOperatePlaybackResponse)
	resp := msg.Payload.(OperatePlaybackWithMixQueryResponse)
	assert.Equal(t, []int32{42}, resp.FileIDs)

	close(gate)
	// The stale result must not overwrite the queue.
	time.Sleep(50 * time.Millisecond)
	items, _ := rig.session.PlaylistSnapshot()
	require.Len(t, items, 1)
	assert.Equal(t, int64(42), items[0].ID)
}

func TestDispatcher_CommandsKeepArrivalOrder(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.attachLibrary([]int64{1, 2, 3})

	rig.operate(t, OperatePlaybackWithMixQueryRequest{
		Queries:         []mixer.Query{{Steps: []mixer.Step{{Operator: mixer.OpLibAll}}}},
		ReplacePlaylist: true,
	})
	rig.stream.waitFor(t, SignalOperatePlaybackResponse)

	// Remove the head, then move the new head to the tail. Executed in
	// order this leaves [3, 2]; reordered it would differ.
	rig.dispatcher.Dispatch(rig.clientID, Envelope{
		Type:    SignalRemove,
		Payload: mustJSON(t, RemoveRequest{Index: 0}),
	})
	rig.dispatcher.Dispatch(rig.clientID, Envelope{
		Type:    SignalMovePlaylistItem,
		Payload: mustJSON(t, MovePlaylistItemRequest{OldIndex: 0, NewIndex: 1}),
	})

	require.Eventually(t, func() bool {
		items, _ := rig.session.PlaylistSnapshot()
		return len(items) == 2 && items[0].ID == 3 && items[1].ID == 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestDispatcher_ErrorCodes(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.attachLibrary([]int64{1})

	tests := []struct {
		name     string
		env      Envelope
		wantCode string
	}{
		{
			name:     "switch out of range",
			env:      Envelope{Type: SignalSwitch, Payload: json.RawMessage(`{"index": 99}`)},
			wantCode: CodeIndexError,
		},
		{
			name:     "invalid playback mode",
			env:      Envelope{Type: SignalSetPlaybackMode, Payload: json.RawMessage(`{"mode": 9}`)},
			wantCode: CodeInvalidMode,
		},
		{
			name:     "garbled payload",
			env:      Envelope{Type: SignalSeek, Payload: json.RawMessage(`{"position_seconds": "soon"}`)},
			wantCode: CodeMalformedRequest,
		},
		{
			name:     "unknown signal",
			env:      Envelope{Type: "warp"},
			wantCode: CodeMalformedRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig.dispatcher.Dispatch(rig.clientID, tt.env)
			msg := rig.stream.waitFor(t, SignalError)
			payload := msg.Payload.(ErrorPayload)
			assert.Equal(t, tt.wantCode, payload.Code)
		})
	}
}

func TestDispatcher_VolumeResponseReportsClamped(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.attachLibrary(nil)

	rig.dispatcher.Dispatch(rig.clientID, Envelope{
		Type:    SignalVolume,
		Payload: mustJSON(t, VolumeRequest{Volume: 2.5}),
	})

	msg := rig.stream.waitFor(t, SignalVolumeResponse)
	resp := msg.Payload.(VolumeResponse)
	assert.Equal(t, 1.0, resp.Volume)
}

func TestDispatcher_PublishSpectrum(t *testing.T) {
	rig := newTestRig(t, nil)

	rig.dispatcher.PublishSpectrum([]float64{0.1, 0.5, 0.2})

	msg := rig.stream.waitFor(t, SignalRealtimeFFT)
	payload := msg.Payload.(RealtimeFFTPayload)
	assert.Equal(t, []float64{0.1, 0.5, 0.2}, payload.Bins)
}
