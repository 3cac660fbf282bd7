package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/mellowplay/hub/internal/app/mixer"
	"github.com/mellowplay/hub/internal/app/notification"
	"github.com/mellowplay/hub/internal/app/session"
	"github.com/mellowplay/hub/internal/domain/media"
	"github.com/mellowplay/hub/internal/domain/playlist"
)

// ErrDispatch marks commands that arrive before the media library is ready.
var ErrDispatch = errors.New("dispatch not ready")

var errMalformed = errors.New("malformed request")

// Hydrator turns resolved file IDs into full media files, preserving the
// requested order and dropping unknown IDs.
type Hydrator interface {
	FilesByIDs(ctx context.Context, ids []int64) ([]media.File, error)
}

// LibraryOpener opens the media library at a path and returns the query
// surfaces built on it.
type LibraryOpener func(ctx context.Context, path string) (mixer.Library, Hydrator, error)

// Dispatcher executes inbound signals against the session on a single
// worker goroutine, preserving per-hub arrival order. Mix query resolution
// runs off the worker; stale resolutions are discarded by generation.
type Dispatcher struct {
	session   *session.Session
	broadcast *notification.Manager
	opener    LibraryOpener

	mu       sync.Mutex
	resolver *mixer.Resolver
	hydrator Hydrator

	ready      atomic.Bool
	generation atomic.Uint64

	commands chan func()
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher and starts its worker and the
// session event pump.
func NewDispatcher(sess *session.Session, broadcast *notification.Manager, opener LibraryOpener) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		session:   sess,
		broadcast: broadcast,
		opener:    opener,
		commands:  make(chan func(), 64),
		ctx:       ctx,
		cancel:    cancel,
	}

	d.wg.Add(2)
	go d.worker()
	go d.pumpEvents()
	return d
}

// AttachLibrary wires resolver and hydrator and marks the hub ready. Used at
// startup when the library path comes from configuration instead of the
// client handshake.
func (d *Dispatcher) AttachLibrary(lib mixer.Library, hydrator Hydrator) {
	d.mu.Lock()
	d.resolver = mixer.NewResolver(lib)
	d.hydrator = hydrator
	d.mu.Unlock()
	d.ready.Store(true)
}

// Ready reports whether the media library is attached.
func (d *Dispatcher) Ready() bool {
	return d.ready.Load()
}

// Dispatch queues one inbound signal. Execution order matches call order.
func (d *Dispatcher) Dispatch(clientID string, env Envelope) {
	d.enqueue(func() { d.handle(clientID, env) })
}

// PublishSpectrum broadcasts one spectrum frame to all clients.
func (d *Dispatcher) PublishSpectrum(bins []float64) {
	d.broadcast.Broadcast(notification.Message{
		Type:    SignalRealtimeFFT,
		Payload: RealtimeFFTPayload{Bins: bins},
	})
}

// Close stops the worker. Pending commands are dropped.
func (d *Dispatcher) Close() {
	d.cancel()
	d.wg.Wait()
}

func (d *Dispatcher) enqueue(cmd func()) {
	select {
	case d.commands <- cmd:
	case <-d.ctx.Done():
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case cmd := <-d.commands:
			cmd()
		}
	}
}

// pumpEvents forwards session snapshots to the broadcast manager.
func (d *Dispatcher) pumpEvents() {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			return
		case ev, ok := <-d.session.Events():
			if !ok {
				return
			}
			switch ev.Type {
			case session.EventStatus:
				d.broadcast.Broadcast(notification.Message{
					Type:    SignalPlaybackStatus,
					Payload: statusPayload(ev.Status),
				})
			case session.EventPlaylist:
				d.broadcast.Broadcast(notification.Message{
					Type:    SignalPlaylistUpdate,
					Payload: playlistPayload(ev.Items, ev.Index),
				})
			}
		}
	}
}

func (d *Dispatcher) handle(clientID string, env Envelope) {
	if env.Type == SignalSetMediaLibraryPath {
		d.handleSetLibraryPath(clientID, env.Payload)
		return
	}
	if !d.ready.Load() {
		d.sendError(clientID, errors.Wrapf(ErrDispatch, "signal %s before library ready", env.Type))
		return
	}

	var err error
	switch env.Type {
	case SignalPlay:
		err = d.session.Play()
	case SignalPause:
		err = d.session.Pause()
	case SignalNext:
		err = d.session.Next()
	case SignalPrevious:
		err = d.session.Previous()
	case SignalSeek:
		var req SeekRequest
		if err = decode(env.Payload, &req); err == nil {
			err = d.session.Seek(req.PositionSeconds)
		}
	case SignalSetPlaybackMode:
		var req SetPlaybackModeRequest
		if err = decode(env.Payload, &req); err == nil {
			err = d.session.SetMode(req.Mode)
		}
	case SignalSwitch:
		var req SwitchRequest
		if err = decode(env.Payload, &req); err == nil {
			err = d.session.Switch(req.Index)
		}
	case SignalRemove:
		var req RemoveRequest
		if err = decode(env.Payload, &req); err == nil {
			err = d.session.Remove(req.Index)
		}
	case SignalMovePlaylistItem:
		var req MovePlaylistItemRequest
		if err = decode(env.Payload, &req); err == nil {
			err = d.session.Move(req.OldIndex, req.NewIndex)
		}
	case SignalVolume:
		var req VolumeRequest
		if err = decode(env.Payload, &req); err == nil {
			applied := d.session.SetVolume(req.Volume)
			d.respond(clientID, SignalVolumeResponse, VolumeResponse{Volume: applied})
		}
	case SignalOperatePlayback:
		d.handleOperate(clientID, env.Payload)
	default:
		err = errors.Wrapf(errMalformed, "unknown signal type %q", env.Type)
	}

	if err != nil {
		d.sendError(clientID, err)
	}
}

func (d *Dispatcher) handleSetLibraryPath(clientID string, raw json.RawMessage) {
	var req SetMediaLibraryPathRequest
	if err := decode(raw, &req); err != nil {
		d.sendError(clientID, err)
		return
	}
	if d.opener == nil {
		d.sendError(clientID, errors.Wrap(ErrDispatch, "no library opener configured"))
		return
	}

	lib, hydrator, err := d.opener(d.ctx, req.Path)
	if err != nil {
		d.sendError(clientID, errors.Wrapf(err, "open library %s", req.Path))
		return
	}
	d.AttachLibrary(lib, hydrator)
	zlog.Info().Str("path", req.Path).Msg("gateway: media library attached")

	// Push the initial snapshots so the client can render immediately.
	st := d.session.Status()
	d.broadcast.Broadcast(notification.Message{Type: SignalPlaybackStatus, Payload: statusPayload(st)})
	items, current := d.session.PlaylistSnapshot()
	d.broadcast.Broadcast(notification.Message{Type: SignalPlaylistUpdate, Payload: playlistPayload(items, current)})
}

// handleOperate kicks the resolution off the worker so long queries do not
// block transport commands, then re-enters the worker to apply the result.
func (d *Dispatcher) handleOperate(clientID string, raw json.RawMessage) {
	var req OperatePlaybackWithMixQueryRequest
	if err := decode(raw, &req); err != nil {
		d.sendError(clientID, err)
		return
	}

	gen := d.generation.Add(1)
	d.mu.Lock()
	resolver := d.resolver
	d.mu.Unlock()

	go func() {
		fallback := make([]int64, len(req.FallbackMediaFileIDs))
		for i, id := range req.FallbackMediaFileIDs {
			fallback[i] = int64(id)
		}
		ids, err := resolver.Resolve(d.ctx, req.Queries, fallback)
		d.enqueue(func() { d.applyOperate(clientID, gen, req, ids, err) })
	}()
}

func (d *Dispatcher) applyOperate(clientID string, gen uint64, req OperatePlaybackWithMixQueryRequest, ids []int64, resolveErr error) {
	if gen != d.generation.Load() {
		zlog.Debug().Uint64("generation", gen).Msg("gateway: superseded mix query discarded")
		return
	}
	if resolveErr != nil {
		d.sendError(clientID, resolveErr)
		return
	}

	d.mu.Lock()
	hydrator := d.hydrator
	d.mu.Unlock()

	files, err := hydrator.FilesByIDs(d.ctx, ids)
	if err != nil {
		d.sendError(clientID, errors.Wrap(err, "hydrate media files"))
		return
	}

	items := make([]playlist.Item, len(files))
	for i, f := range files {
		items[i] = playlist.Item{
			ID:           f.ID,
			Artist:       f.Artist,
			Album:        f.Album,
			Title:        f.Title,
			Duration:     f.Duration,
			Path:         f.Path,
			CoverArtPath: f.CoverArtPath,
		}
	}

	if err := d.session.SetMode(req.PlaybackMode); err != nil {
		d.sendError(clientID, err)
		return
	}
	if req.ReplacePlaylist {
		d.session.LoadPlaylist(items, int(req.HintPosition), req.InitialPlaybackID)
	} else {
		d.session.Append(items)
	}
	if req.InstantlyPlay {
		if err := d.session.Play(); err != nil {
			d.sendError(clientID, err)
			return
		}
	}

	fileIDs := make([]int32, len(files))
	for i, f := range files {
		fileIDs[i] = int32(f.ID)
	}
	d.respond(clientID, SignalOperatePlaybackResponse, OperatePlaybackWithMixQueryResponse{FileIDs: fileIDs})
}

func (d *Dispatcher) respond(clientID, signalType string, payload any) {
	if err := d.broadcast.Send(clientID, notification.Message{Type: signalType, Payload: payload}); err != nil {
		zlog.Warn().Err(err).Str("client", clientID).Msg("gateway: response send failed")
	}
}

// sendError translates an error into an error signal for one client. The
// command that failed leaves the session untouched.
func (d *Dispatcher) sendError(clientID string, err error) {
	code := errorCode(err)
	zlog.Debug().Err(err).Str("code", code).Str("client", clientID).Msg("gateway: command rejected")
	d.respond(clientID, SignalError, ErrorPayload{Code: code, Message: err.Error()})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, playlist.ErrIndexOutOfRange):
		return CodeIndexError
	case errors.Is(err, playlist.ErrInvalidMode):
		return CodeInvalidMode
	case errors.Is(err, mixer.ErrResolution):
		return CodeResolutionError
	case errors.Is(err, ErrDispatch):
		return CodeDispatchError
	case errors.Is(err, errMalformed):
		return CodeMalformedRequest
	default:
		return CodeInternalError
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.Wrap(errMalformed, "missing payload")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errors.Mark(err, errMalformed)
	}
	return nil
}
