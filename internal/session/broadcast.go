package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/TypeA2/ai-sync/internal/domain"
	"github.com/TypeA2/ai-sync/internal/metrics"
	"github.com/TypeA2/ai-sync/internal/protocol"
)

// Transport is the connection layer the coordinator fans out over. Send is
// fire and forget; Request correlates a reply within the timeout;
// Disconnect is idempotent.
type Transport interface {
	Send(id domain.ClientID, env protocol.Envelope) error
	Request(id domain.ClientID, env protocol.Envelope, timeout time.Duration) (protocol.Envelope, error)
	Disconnect(id domain.ClientID)
}

// Broadcaster fans messages out to all broadcast-reachable clients,
// optionally gathering per-client replies with independent timeouts.
type Broadcaster struct {
	transport Transport
	registry  *Registry
	logger    *slog.Logger
}

func NewBroadcaster(transport Transport, registry *Registry, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{transport: transport, registry: registry, logger: logger}
}

// Broadcast sends env to every id in a registry snapshot, in parallel,
// fire and forget. It returns once every send has been issued. A failure
// for one client never affects delivery to the others and is not raised
// to the caller.
func (b *Broadcaster) Broadcast(env protocol.Envelope) {
	b.BroadcastTo(b.registry.Snapshot(), env)
}

// BroadcastTo is Broadcast against a caller-supplied recipient set, for
// callers that must fix the set inside their own critical section.
func (b *Broadcaster) BroadcastTo(ids []domain.ClientID, env protocol.Envelope) {
	metrics.BroadcastsTotal.WithLabelValues(string(env.Type)).Inc()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id domain.ClientID) {
			defer wg.Done()
			if err := b.transport.Send(id, env); err != nil {
				b.logger.Debug("broadcast send failed",
					slog.String("clientId", string(id)),
					slog.String("type", string(env.Type)),
					slog.String("error", err.Error()),
				)
			}
		}(id)
	}
	wg.Wait()
}

// Outcome is one client's result from a Gather: a reply, or the error that
// resolved it (timeout, gone, invalid).
type Outcome struct {
	ID    domain.ClientID
	Reply protocol.Envelope
	Err   error
}

// Gather sends a correlated request to every client in a registry snapshot
// in parallel and waits until each per-client outcome resolves. Every
// client gets the same independent timeout; one slow client delays only
// the overall join, never another client's resolution.
func (b *Broadcaster) Gather(env protocol.Envelope, timeout time.Duration) []Outcome {
	ids := b.registry.Snapshot()
	outcomes := make([]Outcome, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id domain.ClientID) {
			defer wg.Done()
			reply, err := b.transport.Request(id, env, timeout)
			outcomes[i] = Outcome{ID: id, Reply: reply, Err: err}
		}(i, id)
	}
	wg.Wait()
	return outcomes
}

// RequestOne is the single-client variant of Gather, used for individual
// handshake and resync probes.
func (b *Broadcaster) RequestOne(id domain.ClientID, env protocol.Envelope, timeout time.Duration) (protocol.Envelope, error) {
	return b.transport.Request(id, env, timeout)
}
