package session

import (
	"sync"

	"github.com/TypeA2/ai-sync/internal/domain"
)

// Registry tracks connected client ids and their per-connection state. All
// methods are safe for concurrent use; fan-out callers iterate over an
// immutable snapshot so registry mutation never races with send loops.
type Registry struct {
	mu      sync.Mutex
	clients map[domain.ClientID]domain.ClientState
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[domain.ClientID]domain.ClientState)}
}

// Add inserts the id with state Connected. No-op if already present.
func (r *Registry) Add(id domain.ClientID) {
	r.addWithState(id, domain.ClientConnected)
}

// AddAwaiting inserts the id in the AwaitingFileAck state, keeping it out
// of broadcast snapshots until its file handshake completes.
func (r *Registry) AddAwaiting(id domain.ClientID) {
	r.addWithState(id, domain.ClientAwaitingFileAck)
}

func (r *Registry) addWithState(id domain.ClientID, state domain.ClientState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; ok {
		return
	}
	r.clients[id] = state
}

// Remove deletes the id. Safe to call multiple times; disconnect and forced
// eviction may both race into this.
func (r *Registry) Remove(id domain.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
}

// SetState updates the state of a registered id and reports whether the id
// was present.
func (r *Registry) SetState(id domain.ClientID, state domain.ClientState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[id]; !ok {
		return false
	}
	r.clients[id] = state
	return true
}

// State returns the connection state for id.
func (r *Registry) State(id domain.ClientID) (domain.ClientState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.clients[id]
	return state, ok
}

// Snapshot returns an immutable copy of the currently broadcast-reachable
// ids, i.e. those in the Connected state.
func (r *Registry) Snapshot() []domain.ClientID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]domain.ClientID, 0, len(r.clients))
	for id, state := range r.clients {
		if state == domain.ClientConnected {
			ids = append(ids, id)
		}
	}
	return ids
}

// All returns every registered id regardless of state.
func (r *Registry) All() []domain.ClientID {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]domain.ClientID, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}
