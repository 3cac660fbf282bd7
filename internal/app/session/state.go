// Package session provides the playback session state machine that owns
// transport state, position, volume and playback mode.
package session

// State represents the transport state.
type State int

const (
	StateIdle    State = iota // No playlist loaded
	StateReady                // Playlist loaded, transport idle
	StatePlaying              // Track is playing
	StatePaused               // Track is paused
	StateStopped              // Track ended, pending auto-advance
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
