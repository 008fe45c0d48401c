package domain

import "errors"

// SessionPhase represents the lifecycle of the one media session a
// coordinator owns at a time.
type SessionPhase string

const (
	PhaseNoMedia     SessionPhase = "noMedia"     // No file loaded.
	PhaseLoading     SessionPhase = "loading"     // Resolving media duration.
	PhaseHandshaking SessionPhase = "handshaking" // Waiting for per-client file acks.
	PhaseReady       SessionPhase = "ready"       // Clients admitted, playback paused or playing.
	PhaseClosing     SessionPhase = "closing"     // Tearing the session down.
)

var ErrInvalidTransition = errors.New("invalid session phase transition")

// validTransitions defines the adjacency list of allowed phase transitions.
var validTransitions = map[SessionPhase][]SessionPhase{
	PhaseNoMedia:     {PhaseLoading},
	PhaseLoading:     {PhaseHandshaking, PhaseNoMedia},
	PhaseHandshaking: {PhaseReady, PhaseClosing},
	PhaseReady:       {PhaseClosing},
	PhaseClosing:     {PhaseNoMedia},
}

// CanTransition reports whether a transition from one phase to another is valid.
func CanTransition(from, to SessionPhase) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
