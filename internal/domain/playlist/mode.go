package playlist

import "github.com/cockroachdb/errors"

// ErrInvalidMode is returned when a wire-level mode value is not one of
// the enumerated playback modes.
var ErrInvalidMode = errors.New("invalid playback mode")

// Mode represents the playback mode controlling automatic track advancement.
type Mode uint32

const (
	ModeSequential Mode = iota // Play in order, stop at the end
	ModeLoopOne                // Repeat the current track indefinitely
	ModeLoopAll                // Repeat the entire playlist
	ModeShuffle                // Pseudo-random order, no immediate repeats
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case ModeSequential:
		return "sequential"
	case ModeLoopOne:
		return "loop_one"
	case ModeLoopAll:
		return "loop_all"
	case ModeShuffle:
		return "shuffle"
	default:
		return "unknown"
	}
}

// ParseMode validates a wire-level mode value.
func ParseMode(v uint32) (Mode, error) {
	if v > uint32(ModeShuffle) {
		return 0, errors.Wrapf(ErrInvalidMode, "mode %d", v)
	}
	return Mode(v), nil
}
