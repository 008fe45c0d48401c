package session

import (
	"sync"
	"time"
)

// Clock is the authoritative play/pause flag plus wall-clock-anchored
// position. While playing, the position is extrapolated on demand as
// refPos + (now - refAt); while paused it is refPos. The triple is guarded
// by the coordinating lock shared with the session controller, so every
// read sees a consistent snapshot and every mutation plus its notification
// is observed atomically.
type Clock struct {
	mu     *sync.Mutex
	events Events
	now    func() time.Time

	playing bool
	refAt   time.Time // zero until playback first starts
	refPos  time.Duration
}

// NewClock builds a clock serialized by the given coordinating lock.
func NewClock(mu *sync.Mutex, events Events) *Clock {
	return &Clock{mu: mu, events: events, now: time.Now}
}

// Position returns the current extrapolated position.
func (c *Clock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

// Playing reports the play/pause flag.
func (c *Clock) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Snapshot returns the flag and position as one consistent read.
func (c *Clock) Snapshot() (playing bool, position time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing, c.positionLocked()
}

// Started reports whether playback has ever started since the last reset.
func (c *Clock) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.refAt.IsZero()
}

// SetPlaying transitions the play/pause flag, re-anchoring the reference
// at the given position. Invoking it with the current flag value is a
// strict no-op: no state change, no event, no reference reset. Returns
// whether a transition happened.
func (c *Clock) SetPlaying(playing bool, at time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setPlayingLocked(playing, at)
}

// SetPosition repositions the clock (seek or resync outcome) without
// touching the play/pause flag.
func (c *Clock) SetPosition(position time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setPositionLocked(position)
}

func (c *Clock) positionLocked() time.Duration {
	pos := c.refPos
	if c.playing && !c.refAt.IsZero() {
		pos += c.now().Sub(c.refAt)
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

func (c *Clock) setPlayingLocked(playing bool, at time.Duration) bool {
	if c.playing == playing {
		return false
	}
	if at < 0 {
		at = 0
	}
	c.playing = playing
	c.refPos = at
	c.refAt = c.now()
	c.events.emitPlayingChanged(playing)
	return true
}

func (c *Clock) setPositionLocked(position time.Duration) {
	if position < 0 {
		position = 0
	}
	c.refPos = position
	c.refAt = c.now()
}

// resetLocked returns the clock to paused at position zero with the
// reference instant unset, as for a freshly loaded (or torn down) session.
func (c *Clock) resetLocked() {
	c.playing = false
	c.refPos = 0
	c.refAt = time.Time{}
}
