package audio

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
)

// Tap receives mono samples from the playback path, for visualizers.
type Tap func(samples []float64)

// Engine plays local files through the system speaker. One track is loaded
// at a time; loads replace the previous track.
type Engine struct {
	mu sync.Mutex

	outputRate beep.SampleRate
	tap        Tap
	vol        float64

	file     *os.File
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	volume   *effects.Volume

	// generation guards the end callback against tracks replaced or
	// stopped before they finish.
	generation atomic.Uint64
	ended      chan struct{}
}

// NewEngine initializes the speaker with the given settings. tap may be nil.
func NewEngine(settings Settings, tap Tap) (*Engine, error) {
	sr := beep.SampleRate(settings.SampleRate)
	if err := speaker.Init(sr, sr.N(time.Duration(settings.BufferMs)*time.Millisecond)); err != nil {
		return nil, errors.Wrap(err, "init speaker")
	}
	return &Engine{
		outputRate: sr,
		tap:        tap,
		vol:        1.0,
		ended:      make(chan struct{}, 4),
	}, nil
}

// Load decodes the file and queues it on the speaker, paused at zero.
func (e *Engine) Load(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopLocked()

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	streamer, format, err := decode(f, path)
	if err != nil {
		f.Close()
		return err
	}

	var stream beep.Streamer = streamer
	if format.SampleRate != e.outputRate {
		stream = beep.Resample(4, format.SampleRate, e.outputRate, streamer)
	}
	if e.tap != nil {
		stream = &tapStreamer{s: stream, tap: e.tap}
	}

	ctrl := &beep.Ctrl{Streamer: stream, Paused: true}
	volume := &effects.Volume{Streamer: ctrl, Base: 2}
	applyVolume(volume, e.vol)

	gen := e.generation.Add(1)
	speaker.Play(beep.Seq(volume, beep.Callback(func() {
		// Runs on the speaker goroutine. Only the live track reports.
		if gen != e.generation.Load() {
			return
		}
		select {
		case e.ended <- struct{}{}:
		default:
		}
	})))

	e.file = f
	e.streamer = streamer
	e.format = format
	e.ctrl = ctrl
	e.volume = volume
	return nil
}

// Play resumes the loaded track.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctrl == nil {
		return errors.New("no track loaded")
	}
	speaker.Lock()
	e.ctrl.Paused = false
	speaker.Unlock()
	return nil
}

// Pause suspends the loaded track, keeping the position.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctrl == nil {
		return errors.New("no track loaded")
	}
	speaker.Lock()
	e.ctrl.Paused = true
	speaker.Unlock()
	return nil
}

// Seek moves the playhead of the loaded track.
func (e *Engine) Seek(pos time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.streamer == nil {
		return errors.New("no track loaded")
	}
	speaker.Lock()
	err := e.streamer.Seek(e.format.SampleRate.N(pos))
	speaker.Unlock()
	return errors.Wrap(err, "seek")
}

// Position reports the playhead of the loaded track, zero when idle.
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.streamer == nil {
		return 0
	}
	speaker.Lock()
	pos := e.streamer.Position()
	speaker.Unlock()
	return e.format.SampleRate.D(pos)
}

// SetVolume applies a linear volume in [0.0, 1.0], kept across loads.
func (e *Engine) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.vol = v
	if e.volume == nil {
		return
	}
	speaker.Lock()
	applyVolume(e.volume, v)
	speaker.Unlock()
}

// Stop discards the loaded track.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

// TrackEnded yields once per naturally finished track.
func (e *Engine) TrackEnded() <-chan struct{} {
	return e.ended
}

// Close stops playback and shuts the speaker down.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	speaker.Close()
	return nil
}

func (e *Engine) stopLocked() {
	e.generation.Add(1)
	speaker.Clear()
	if e.streamer != nil {
		e.streamer.Close()
		e.streamer = nil
	}
	if e.file != nil {
		e.file.Close()
		e.file = nil
	}
	e.ctrl = nil
	e.volume = nil
	e.format = beep.Format{}
}

// applyVolume maps a linear level onto the exponential volume effect.
// Zero mutes outright since log2(0) is undefined.
func applyVolume(v *effects.Volume, level float64) {
	if level <= 0 {
		v.Silent = true
		v.Volume = 0
		return
	}
	v.Silent = false
	v.Volume = math.Log2(level)
}

func decode(f *os.File, path string) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return mp3.Decode(f)
	case ".wav":
		return wav.Decode(f)
	case ".flac":
		return flac.Decode(f)
	case ".ogg", ".oga":
		return vorbis.Decode(f)
	default:
		return nil, beep.Format{}, errors.Newf("unsupported audio format %q", filepath.Ext(path))
	}
}

// tapStreamer forwards samples downstream and mirrors a mono mix to the tap.
type tapStreamer struct {
	s   beep.Streamer
	tap Tap
}

func (t *tapStreamer) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.s.Stream(samples)
	if n > 0 {
		mono := make([]float64, n)
		for i := 0; i < n; i++ {
			mono[i] = (samples[i][0] + samples[i][1]) / 2
		}
		t.tap(mono)
	}
	return n, ok
}

func (t *tapStreamer) Err() error {
	return t.s.Err()
}
