package session

import (
	"time"

	"github.com/TypeA2/ai-sync/internal/domain"
)

// Events are the callbacks exposed to the embedding application. They fire
// synchronously on whichever internal goroutine triggered them, so handlers
// must not block. Any field may be nil.
type Events struct {
	ServerStarted   func()
	ClientConnected func(id domain.ClientID)
	PlaybackStopped func()
	PlayingChanged  func(playing bool)
	PositionChanged func(position time.Duration)
}

func (e Events) emitServerStarted() {
	if e.ServerStarted != nil {
		e.ServerStarted()
	}
}

func (e Events) emitClientConnected(id domain.ClientID) {
	if e.ClientConnected != nil {
		e.ClientConnected(id)
	}
}

func (e Events) emitPlaybackStopped() {
	if e.PlaybackStopped != nil {
		e.PlaybackStopped()
	}
}

func (e Events) emitPlayingChanged(playing bool) {
	if e.PlayingChanged != nil {
		e.PlayingChanged(playing)
	}
}

func (e Events) emitPositionChanged(position time.Duration) {
	if e.PositionChanged != nil {
		e.PositionChanged(position)
	}
}
