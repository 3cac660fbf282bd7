package session

import (
	"context"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/mellowplay/hub/internal/domain/playlist"
)

// Config holds session configuration.
type Config struct {
	ProgressInterval time.Duration // cadence of status snapshots while playing
}

const defaultProgressInterval = 200 * time.Millisecond

// Session owns the playback queue and the transport state machine. All
// mutations go through its mutex; callers above it serialize command order.
type Session struct {
	mu sync.Mutex

	engine Engine
	queue  *playlist.Playlist

	state  State
	mode   playlist.Mode
	volume float64
	ready  bool // a track is loaded in the engine

	config  Config
	eventCh chan Event
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a session driving the given engine.
func New(engine Engine, config Config) *Session {
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = defaultProgressInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		engine:  engine,
		queue:   playlist.New(),
		state:   StateIdle,
		volume:  1.0,
		config:  config,
		eventCh: make(chan Event, 32),
		ctx:     ctx,
		cancel:  cancel,
	}

	go s.watchEngine()
	go s.progressLoop()
	return s
}

// Events returns the snapshot event channel.
func (s *Session) Events() <-chan Event {
	return s.eventCh
}

// LoadPlaylist replaces the queue and resets the transport to Ready
// (Idle when the new queue is empty). Playback does not start.
func (s *Session) LoadPlaylist(items []playlist.Item, hintPosition int, initialID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.engine.Stop()
	s.ready = false
	s.queue.Replace(items, hintPosition, initialID)

	if s.queue.Len() == 0 {
		s.state = StateIdle
	} else {
		s.state = StateReady
	}
	s.emitPlaylistLocked()
	s.emitStatusLocked()
}

// Append extends the queue tail without disturbing playback.
func (s *Session) Append(items []playlist.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue.Append(items)
	if s.state == StateIdle && s.queue.Len() > 0 {
		s.state = StateReady
	}
	s.emitPlaylistLocked()
}

// Play starts the current track, or resumes a paused one. It is a no-op
// while already playing or with nothing loaded.
func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StatePlaying:
		return nil
	case StatePaused:
		if err := s.engine.Play(); err != nil {
			return err
		}
		s.state = StatePlaying
		s.emitStatusLocked()
		return nil
	case StateReady, StateStopped:
		idx := s.queue.Current()
		if idx < 0 {
			if s.queue.Len() == 0 {
				return nil
			}
			idx = 0
		}
		return s.startIndexLocked(idx)
	default:
		return nil
	}
}

// Pause suspends playback. No-op unless playing.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying {
		return nil
	}
	if err := s.engine.Pause(); err != nil {
		return err
	}
	s.state = StatePaused
	s.emitStatusLocked()
	return nil
}

// Seek moves the playhead. Out-of-range positions are clamped to
// [0, duration], never rejected. The transport state is unchanged.
func (s *Session) Seek(seconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.queue.CurrentItem()
	if !ok || !s.ready {
		return nil
	}

	switch {
	case seconds < 0:
		seconds = 0
	case item.Duration <= 0:
		// Unknown duration: only position zero is a known-safe target.
		seconds = 0
	case seconds > item.Duration:
		seconds = item.Duration
	}
	if err := s.engine.Seek(time.Duration(seconds * float64(time.Second))); err != nil {
		return err
	}
	s.emitStatusLocked()
	return nil
}

// Next advances to the next track per the playback mode. No-op when the
// mode policy yields no next index.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked(true)
}

// Previous steps back to the previous track per the playback mode.
func (s *Session) Previous() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked(false)
}

func (s *Session) stepLocked(forward bool) error {
	// Manual navigation escapes loop-one; auto-advance honors it.
	mode := s.mode
	if mode == playlist.ModeLoopOne {
		mode = playlist.ModeSequential
	}

	var idx int
	var ok bool
	if forward {
		idx, ok = s.queue.Next(mode)
	} else {
		idx, ok = s.queue.Previous(mode)
	}
	if !ok {
		return nil
	}
	return s.startIndexLocked(idx)
}

// Switch plays the track at the given index.
func (s *Session) Switch(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startIndexLocked(index)
}

// Remove deletes the item at index. Removing the playing item stops it;
// playback continues with the item that followed when one exists.
func (s *Session) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasCurrent := index == s.queue.Current()
	if err := s.queue.Remove(index); err != nil {
		return err
	}
	s.emitPlaylistLocked()

	if !wasCurrent {
		return nil
	}

	s.engine.Stop()
	s.ready = false
	switch {
	case s.queue.Len() == 0:
		s.state = StateIdle
		s.emitStatusLocked()
	case s.state == StatePlaying && s.queue.Current() >= 0:
		return s.startIndexLocked(s.queue.Current())
	default:
		s.state = StateReady
		s.emitStatusLocked()
	}
	return nil
}

// Move relocates an item; the current index follows the playing item.
func (s *Session) Move(oldIndex, newIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.queue.Move(oldIndex, newIndex); err != nil {
		return err
	}
	s.emitPlaylistLocked()
	return nil
}

// SetVolume applies a linear volume clamped to [0.0, 1.0] and returns the
// applied value.
func (s *Session) SetVolume(v float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	s.volume = v
	s.engine.SetVolume(v)
	return v
}

// Volume returns the current volume.
func (s *Session) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// SetMode switches the playback mode from its wire-level value.
func (s *Session) SetMode(value uint32) error {
	mode, err := playlist.ParseMode(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
	s.emitStatusLocked()
	return nil
}

// Mode returns the current playback mode.
func (s *Session) Mode() playlist.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Status returns the current transport snapshot.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

// PlaylistSnapshot returns a copy of the queue and the current index.
func (s *Session) PlaylistSnapshot() ([]playlist.Item, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Items(), s.queue.Current()
}

// Close tears the session down. The engine is stopped but not closed; its
// owner releases it.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	s.engine.Stop()
	close(s.eventCh)
}

// startIndexLocked switches to the given index and starts it. Engine
// failures are fatal to that track only: the session marks it Stopped and
// advances, bounded by one pass over the queue.
func (s *Session) startIndexLocked(index int) error {
	attempts := s.queue.Len()
	idx := index
	for i := 0; i < attempts; i++ {
		if err := s.queue.SwitchTo(idx); err != nil {
			return err
		}
		item, _ := s.queue.CurrentItem()

		err := s.engine.Load(item.Path)
		if err == nil {
			err = s.engine.Play()
		}
		if err == nil {
			s.ready = true
			s.state = StatePlaying
			s.emitStatusLocked()
			return nil
		}

		zlog.Warn().Err(err).Str("path", item.Path).Msg("session: failed to start track, advancing")
		s.ready = false
		s.state = StateStopped
		s.emitStatusLocked()

		mode := s.mode
		if mode == playlist.ModeLoopOne {
			mode = playlist.ModeSequential
		}
		next, ok := s.queue.Next(mode)
		if !ok {
			break
		}
		idx = next
	}

	s.state = StateReady
	s.emitStatusLocked()
	return nil
}

// watchEngine drives auto-advance on natural track ends.
func (s *Session) watchEngine() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case _, ok := <-s.engine.TrackEnded():
			if !ok {
				return
			}
			s.onTrackEnd()
		}
	}
}

func (s *Session) onTrackEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePlaying {
		return
	}

	s.state = StateStopped
	s.ready = false
	s.emitStatusLocked()

	idx, ok := s.queue.Next(s.mode)
	if !ok {
		// End of queue: keep the playlist, idle the transport.
		s.state = StateReady
		s.emitStatusLocked()
		return
	}
	_ = s.startIndexLocked(idx)
}

// progressLoop emits status snapshots at a fixed cadence while playing.
func (s *Session) progressLoop() {
	ticker := time.NewTicker(s.config.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.state == StatePlaying {
				s.emitStatusLocked()
			}
			s.mu.Unlock()
		}
	}
}

func (s *Session) statusLocked() Status {
	st := Status{
		State: s.state,
		Mode:  s.mode,
		Ready: s.ready,
		Index: s.queue.Current(),
	}
	if item, ok := s.queue.CurrentItem(); ok {
		st.Artist = item.Artist
		st.Album = item.Album
		st.Title = item.Title
		st.Duration = item.Duration
		st.ID = item.ID
		st.CoverArtPath = item.CoverArtPath
	}
	if s.ready {
		st.ProgressSeconds = s.engine.Position().Seconds()
	}
	if st.Duration > 0 {
		st.ProgressPercentage = st.ProgressSeconds / st.Duration
	}
	return st
}

func (s *Session) emitStatusLocked() {
	s.sendLocked(Event{Type: EventStatus, Status: s.statusLocked()})
}

func (s *Session) emitPlaylistLocked() {
	s.sendLocked(Event{Type: EventPlaylist, Items: s.queue.Items(), Index: s.queue.Current()})
}

// sendLocked sends an event without blocking. A full channel drops the
// event; consumers observe the following snapshot.
func (s *Session) sendLocked(e Event) {
	if s.closed {
		return
	}
	select {
	case s.eventCh <- e:
	case <-s.ctx.Done():
	default:
	}
}
