package session

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/TypeA2/ai-sync/internal/domain"
	"github.com/TypeA2/ai-sync/internal/metrics"
	"github.com/TypeA2/ai-sync/internal/protocol"
)

// SetFile owns the media-load handshake: resolve the duration, negotiate
// file readiness with every registered client (evicting non-responders),
// announce ServerReady and start the position poller. Playback begins
// paused at position zero. Calling it while a session exists is a caller
// contract violation.
func (c *Coordinator) SetFile(ctx context.Context, locator string) error {
	c.mu.Lock()
	if c.media != nil || c.phase != domain.PhaseNoMedia {
		c.mu.Unlock()
		return domain.ErrSessionActive
	}
	c.setPhaseLocked(domain.PhaseLoading)
	c.mu.Unlock()

	handle, err := c.resolver.Resolve(ctx, locator)
	if err != nil {
		c.mu.Lock()
		c.setPhaseLocked(domain.PhaseNoMedia)
		c.mu.Unlock()
		c.events.emitPlaybackStopped()
		return fmt.Errorf("resolve media: %w", err)
	}

	c.mu.Lock()
	c.media = handle
	c.setPhaseLocked(domain.PhaseHandshaking)
	ids := c.registry.All()
	for _, id := range ids {
		c.registry.SetState(id, domain.ClientAwaitingFileAck)
	}
	c.mu.Unlock()
	metrics.SessionActive.Set(1)

	c.logger.Info("media loaded",
		slog.String("locator", locator),
		slog.Int64("durationMs", handle.Duration().Milliseconds()),
		slog.Int("clients", len(ids)),
	)

	var g errgroup.Group
	for _, id := range ids {
		g.Go(func() error {
			if c.handshakeClient(id) {
				c.registry.SetState(id, domain.ClientConnected)
			}
			return nil
		})
	}
	_ = g.Wait()

	// The Ready transition, the poller start and the announce snapshot form
	// one critical section: a StopPlayback landing after it sees the poller
	// and cancels it, and a late joiner admitted after it is not in the
	// snapshot and gets its ServerReady individually.
	c.mu.Lock()
	if c.phase != domain.PhaseHandshaking {
		// Torn down mid-handshake by StopPlayback.
		c.mu.Unlock()
		return nil
	}
	c.setPhaseLocked(domain.PhaseReady)
	c.clock.resetLocked()
	c.startPollerLocked(handle.Duration())
	recipients := c.registry.Snapshot()
	c.mu.Unlock()

	ready, _ := protocol.New(protocol.TypeServerReady, nil)
	c.bcast.BroadcastTo(recipients, ready)

	c.logger.Info("session ready", slog.Int("clients", len(recipients)))
	return nil
}

// handshakeClient sends FileReady and waits for the FileParsed ack. A
// timeout or an invalid reply forcibly disconnects the client; this
// pruning never aborts the handshake for other clients. Returns whether
// the client acked; promotion to Connected is the caller's call, because
// the late-join path must promote atomically with its announce decision.
func (c *Coordinator) handshakeClient(id domain.ClientID) bool {
	env, err := protocol.New(protocol.TypeFileReady, protocol.FileReadyPayload{
		ToleranceMs: c.cfg.Tolerance.Milliseconds(),
	})
	if err != nil {
		return false
	}

	reply, err := c.bcast.RequestOne(id, env, c.cfg.HandshakeTimeout)
	if err == nil && reply.Type != protocol.TypeFileParsed {
		err = fmt.Errorf("%w: %s", domain.ErrInvalidReply, reply.Type)
	}
	if err != nil {
		c.logger.Warn("file handshake failed, evicting client",
			slog.String("clientId", string(id)),
			slog.String("reason", err.Error()),
		)
		metrics.HandshakeEvictionsTotal.Inc()
		c.transport.Disconnect(id)
		c.registry.Remove(id)
		return false
	}
	return true
}

// handshakeLateJoiner admits a client that connected while a session
// already existed. Promotion and the announce decision are atomic with the
// session's own Ready transition, so the client receives ServerReady
// exactly once: from the session-wide snapshot if that is still ahead,
// individually otherwise.
func (c *Coordinator) handshakeLateJoiner(id domain.ClientID) {
	if !c.handshakeClient(id) {
		return
	}

	c.mu.Lock()
	c.registry.SetState(id, domain.ClientConnected)
	announced := c.phase == domain.PhaseReady
	c.mu.Unlock()
	if !announced {
		return
	}

	ready, _ := protocol.New(protocol.TypeServerReady, nil)
	if err := c.transport.Send(id, ready); err != nil {
		c.logger.Debug("late joiner ready send failed",
			slog.String("clientId", string(id)),
			slog.String("error", err.Error()),
		)
	}
}

// StopPlayback drives the Closing transition: cancel and join the poller,
// release the media handle, reset the clock to paused at zero, emit
// PlaybackStopped and broadcast FileClosed.
func (c *Coordinator) StopPlayback() error {
	return c.stop(false)
}

// stop is the single Closing path. fromPoller marks the poller's
// self-triggered end-of-media stop, which must not join its own loop.
func (c *Coordinator) stop(fromPoller bool) error {
	c.mu.Lock()
	if c.media == nil {
		c.mu.Unlock()
		return domain.ErrNoSession
	}
	c.setPhaseLocked(domain.PhaseClosing)
	p := c.poll
	c.poll = nil
	media := c.media
	c.media = nil
	c.mu.Unlock()

	if p != nil {
		p.cancel()
		if !fromPoller {
			p.join()
		}
	}

	// The handle is released before the clock resets so no notification can
	// observe a stale-but-still-open media source.
	media.Release()

	c.mu.Lock()
	c.clock.resetLocked()
	c.setPhaseLocked(domain.PhaseNoMedia)
	c.mu.Unlock()

	metrics.SessionActive.Set(0)
	metrics.PlaybackPositionMs.Set(0)

	c.events.emitPlaybackStopped()

	closed, _ := protocol.New(protocol.TypeFileClosed, nil)
	c.bcast.Broadcast(closed)

	c.logger.Info("session closed", slog.Bool("endOfMedia", fromPoller))
	return nil
}

func (c *Coordinator) setPhaseLocked(next domain.SessionPhase) {
	if !domain.CanTransition(c.phase, next) {
		err := fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, c.phase, next)
		c.logger.Error("phase transition outside the state model", slog.String("error", err.Error()))
	}
	c.phase = next
}
