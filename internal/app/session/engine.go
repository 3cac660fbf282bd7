package session

import "time"

// Engine is the control surface of the audio playback collaborator. The
// session drives it; decoding and mixing stay behind this interface.
type Engine interface {
	// Load prepares the given file for playback, replacing any current
	// track. The engine starts paused at position zero.
	Load(path string) error
	// Play starts or resumes the loaded track.
	Play() error
	// Pause suspends playback, keeping the position.
	Pause() error
	// Seek moves within the current track. The session clamps the position
	// before calling.
	Seek(pos time.Duration) error
	// Position reports the playhead of the current track.
	Position() time.Duration
	// SetVolume applies a linear volume in [0.0, 1.0].
	SetVolume(v float64)
	// Stop discards the current track.
	Stop()
	// TrackEnded yields once for every track that finishes naturally.
	TrackEnded() <-chan struct{}
	// Close releases engine resources.
	Close() error
}
