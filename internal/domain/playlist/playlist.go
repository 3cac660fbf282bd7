// Package playlist provides the ordered playback queue with a current index
// that stays pointed at the same logical item across mutation.
package playlist

import (
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrIndexOutOfRange is returned for playlist operations on invalid indices.
var ErrIndexOutOfRange = errors.New("playlist index out of range")

// Item is one entry of the playlist. Items are immutable once constructed
// from library data.
type Item struct {
	ID           int64 // library file ID, 0 for transient items
	Artist       string
	Album        string
	Title        string
	Duration     float64 // seconds
	Path         string  // audio file location, used by the playback engine
	CoverArtPath string
}

// Playlist is an ordered sequence of items plus the current-index pointer.
// It is not safe for concurrent use; the playback session serializes access.
type Playlist struct {
	items   []Item
	current int // -1 when there is no current item

	rng  *rand.Rand
	pool []int // shuffle indices not yet visited in the running cycle
}

// New creates an empty playlist with a time-seeded shuffle source.
func New() *Playlist {
	return NewSeeded(time.Now().UnixNano())
}

// NewSeeded creates an empty playlist with a deterministic shuffle source.
func NewSeeded(seed int64) *Playlist {
	return &Playlist{
		items:   make([]Item, 0),
		current: -1,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// Replace installs a brand-new ordered sequence. The current index is set
// from initialID if that ID is present, else from hintPosition clamped to
// bounds (negative hint means unset), else 0. It becomes -1 when the new
// sequence is empty.
func (p *Playlist) Replace(items []Item, hintPosition int, initialID int64) {
	p.items = append(p.items[:0:0], items...)
	p.pool = nil

	if len(p.items) == 0 {
		p.current = -1
		return
	}

	p.current = 0
	if initialID != 0 {
		if idx := p.indexOfID(initialID); idx >= 0 {
			p.current = idx
			return
		}
	}
	if hintPosition >= 0 {
		p.current = clamp(hintPosition, 0, len(p.items)-1)
	}
}

// Append extends the tail without disturbing the current index.
func (p *Playlist) Append(items []Item) {
	p.items = append(p.items, items...)
	p.pool = nil
}

// Remove deletes the item at index. When the current item is removed, the
// current index keeps its position so it points at the item that followed,
// or becomes -1 if the removed item was the last one.
func (p *Playlist) Remove(index int) error {
	if index < 0 || index >= len(p.items) {
		return errors.Wrapf(ErrIndexOutOfRange, "remove %d of %d", index, len(p.items))
	}

	p.items = append(p.items[:index], p.items[index+1:]...)
	p.pool = nil

	switch {
	case index < p.current:
		p.current--
	case index == p.current:
		if p.current >= len(p.items) {
			p.current = -1
		}
	}
	return nil
}

// Move relocates the item at oldIndex to newIndex. The current index is
// re-mapped to keep pointing at the same underlying item.
func (p *Playlist) Move(oldIndex, newIndex int) error {
	if oldIndex < 0 || oldIndex >= len(p.items) {
		return errors.Wrapf(ErrIndexOutOfRange, "move from %d of %d", oldIndex, len(p.items))
	}
	if newIndex < 0 || newIndex >= len(p.items) {
		return errors.Wrapf(ErrIndexOutOfRange, "move to %d of %d", newIndex, len(p.items))
	}
	if oldIndex == newIndex {
		return nil
	}

	item := p.items[oldIndex]
	p.items = append(p.items[:oldIndex], p.items[oldIndex+1:]...)
	rest := append(p.items[:newIndex:newIndex], item)
	p.items = append(rest, p.items[newIndex:]...)
	p.pool = nil

	switch {
	case p.current == oldIndex:
		p.current = newIndex
	case oldIndex < p.current && newIndex >= p.current:
		p.current--
	case p.current >= 0 && oldIndex > p.current && newIndex <= p.current:
		p.current++
	}
	return nil
}

// SwitchTo sets the current index directly.
func (p *Playlist) SwitchTo(index int) error {
	if index < 0 || index >= len(p.items) {
		return errors.Wrapf(ErrIndexOutOfRange, "switch to %d of %d", index, len(p.items))
	}
	p.current = index
	return nil
}

// Next computes the index to play after the current one under the given
// mode. The second return value is false when no next index exists
// (sequential mode at the tail, or an empty playlist).
func (p *Playlist) Next(mode Mode) (int, bool) {
	n := len(p.items)
	if n == 0 {
		return 0, false
	}

	switch mode {
	case ModeLoopOne:
		if p.current < 0 {
			return 0, true
		}
		return p.current, true
	case ModeLoopAll:
		if p.current < 0 {
			return 0, true
		}
		return (p.current + 1) % n, true
	case ModeShuffle:
		return p.drawShuffle()
	default: // sequential
		if p.current < 0 {
			return 0, true
		}
		if p.current+1 >= n {
			return 0, false
		}
		return p.current + 1, true
	}
}

// Previous computes the index to play before the current one under the
// given mode.
func (p *Playlist) Previous(mode Mode) (int, bool) {
	n := len(p.items)
	if n == 0 || p.current < 0 {
		return 0, false
	}

	switch mode {
	case ModeLoopOne:
		return p.current, true
	case ModeLoopAll:
		return (p.current - 1 + n) % n, true
	case ModeShuffle:
		return p.drawShuffle()
	default:
		if p.current == 0 {
			return 0, false
		}
		return p.current - 1, true
	}
}

// Len returns the number of items.
func (p *Playlist) Len() int {
	return len(p.items)
}

// Current returns the current index, -1 when unset.
func (p *Playlist) Current() int {
	return p.current
}

// CurrentItem returns the current item if one is set.
func (p *Playlist) CurrentItem() (Item, bool) {
	if p.current < 0 || p.current >= len(p.items) {
		return Item{}, false
	}
	return p.items[p.current], true
}

// Items returns a copy of the ordered sequence.
func (p *Playlist) Items() []Item {
	out := make([]Item, len(p.items))
	copy(out, p.items)
	return out
}

// drawShuffle picks a pseudo-random index from the pool of indices not yet
// visited in this cycle, avoiding the current index while other candidates
// remain. The pool is refilled once exhausted; queue mutations restart the
// cycle.
func (p *Playlist) drawShuffle() (int, bool) {
	n := len(p.items)
	switch n {
	case 0:
		return 0, false
	case 1:
		return 0, true
	}

	if len(p.pool) == 0 || (len(p.pool) == 1 && p.pool[0] == p.current) {
		p.refillPool()
	}

	candidates := p.pool
	if p.current >= 0 {
		filtered := make([]int, 0, len(p.pool))
		for _, idx := range p.pool {
			if idx != p.current {
				filtered = append(filtered, idx)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}

	pick := candidates[p.rng.Intn(len(candidates))]
	for i, idx := range p.pool {
		if idx == pick {
			p.pool = append(p.pool[:i], p.pool[i+1:]...)
			break
		}
	}
	return pick, true
}

func (p *Playlist) refillPool() {
	p.pool = p.pool[:0]
	for i := range p.items {
		p.pool = append(p.pool, i)
	}
}

func (p *Playlist) indexOfID(id int64) int {
	for i, item := range p.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
