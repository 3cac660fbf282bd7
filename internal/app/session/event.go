package session

import "github.com/mellowplay/hub/internal/domain/playlist"

// EventType represents a session event type.
type EventType int

const (
	EventStatus   EventType = iota // Transport status snapshot changed
	EventPlaylist                  // Playlist contents or current index changed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStatus:
		return "status"
	case EventPlaylist:
		return "playlist"
	default:
		return "unknown"
	}
}

// Event is an immutable snapshot pushed outward on every observable change.
type Event struct {
	Type   EventType
	Status Status          // Set for EventStatus
	Items  []playlist.Item // Set for EventPlaylist
	Index  int             // Current index for EventPlaylist, -1 when unset
}

// Status is a value snapshot of the transport. It owns no mutable state.
type Status struct {
	State              State
	ProgressSeconds    float64
	ProgressPercentage float64 // position/duration, 0 when duration unknown
	Artist             string
	Album              string
	Title              string
	Duration           float64
	Index              int   // -1 when no current item
	ID                 int64 // 0 for transient items
	Mode               playlist.Mode
	Ready              bool
	CoverArtPath       string
}
