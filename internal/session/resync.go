package session

import (
	"log/slog"
	"time"

	"github.com/TypeA2/ai-sync/internal/domain"
	"github.com/TypeA2/ai-sync/internal/metrics"
	"github.com/TypeA2/ai-sync/internal/protocol"
)

// Resync reconciles every client's clock after one of them fell behind
// (typically a rebuffer): it gathers each client's self-reported position,
// projects the reports forward to the present, and pauses everyone at the
// point reached by the furthest-behind participant so nobody is asked to
// seek backward relative to content already consumed.
//
// At most one cycle is in flight; a request arriving while one is active
// is dropped immediately with no effect and no queuing.
func (c *Coordinator) Resync(requester domain.ClientID) {
	if !c.resyncInFlight.CompareAndSwap(false, true) {
		metrics.ResyncsDroppedTotal.Inc()
		c.logger.Debug("resync dropped, one already in flight",
			slog.String("clientId", string(requester)),
		)
		return
	}
	defer c.resyncInFlight.Store(false)

	c.mu.Lock()
	if c.media == nil || c.phase != domain.PhaseReady {
		c.mu.Unlock()
		return
	}
	target := durToMs(c.clock.positionLocked())
	c.mu.Unlock()

	start := time.Now()
	probe, err := protocol.New(protocol.TypeGetStatus, nil)
	if err != nil {
		return
	}
	outcomes := c.bcast.Gather(probe, c.cfg.StatusTimeout)

	valid := 0
	for _, o := range outcomes {
		if o.Err != nil {
			// Lenient path: unresponsive clients are excluded from the
			// computation, never disconnected.
			continue
		}
		var status protocol.ClientStatusPayload
		if o.Reply.Type != protocol.TypeClientStatus || o.Reply.Decode(&status) != nil {
			continue
		}
		// Project the report forward by the time elapsed since the client
		// measured it.
		delta := start.UnixMilli() - status.Timestamp
		projected := status.Position + delta
		if projected < target {
			target = projected
		}
		valid++
	}
	if target < 0 {
		target = 0
	}

	c.logger.Info("resync complete",
		slog.String("clientId", string(requester)),
		slog.Int("replies", valid),
		slog.Int("probed", len(outcomes)),
		slog.Int64("targetMs", target),
	)
	metrics.ResyncsTotal.Inc()

	// Conclude through the ordinary pause transition.
	if err := c.Pause(target); err != nil {
		c.logger.Debug("resync pause skipped", slog.String("error", err.Error()))
	}
}
