package session

import (
	"fmt"
	"log/slog"

	"github.com/TypeA2/ai-sync/internal/domain"
	"github.com/TypeA2/ai-sync/internal/metrics"
	"github.com/TypeA2/ai-sync/internal/protocol"
)

type handlerFunc func(id domain.ClientID, env protocol.Envelope) error

// Dispatcher routes inbound tagged frames to exactly one handler each. An
// unrecognized tag, or a payload that fails to decode into the tag's
// expected shape, is a protocol violation: the originating connection is
// disconnected, no retry.
type Dispatcher struct {
	logger    *slog.Logger
	transport Transport
	handlers  map[protocol.Type]handlerFunc
}

func newDispatcher(c *Coordinator) *Dispatcher {
	return &Dispatcher{
		logger:    c.logger,
		transport: c.transport,
		handlers: map[protocol.Type]handlerFunc{
			protocol.TypeClientRequestsPlay:  c.handleClientPlay,
			protocol.TypeClientRequestsPause: c.handleClientPause,
			protocol.TypeClientRequestSeek:   c.handleClientSeek,
			protocol.TypePauseResync:         c.handlePauseResync,
			protocol.TypeGetStatus:           c.handleGetStatus,
		},
	}
}

// Handle runs the handler for env synchronously on the caller's goroutine.
func (d *Dispatcher) Handle(id domain.ClientID, env protocol.Envelope) {
	metrics.MessagesTotal.WithLabelValues(string(env.Type)).Inc()

	handler, ok := d.handlers[env.Type]
	if !ok {
		d.violation(id, env, fmt.Errorf("%w: unrecognized tag", domain.ErrProtocolViolation))
		return
	}
	if err := handler(id, env); err != nil {
		d.violation(id, env, err)
	}
}

func (d *Dispatcher) violation(id domain.ClientID, env protocol.Envelope, err error) {
	metrics.ProtocolViolationsTotal.Inc()
	d.logger.Warn("protocol violation, disconnecting client",
		slog.String("clientId", string(id)),
		slog.String("type", string(env.Type)),
		slog.String("error", err.Error()),
	)
	d.transport.Disconnect(id)
}

func (c *Coordinator) handleClientPlay(id domain.ClientID, env protocol.Envelope) error {
	var p protocol.PositionPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if err := c.Play(p.Position); err != nil {
		// A play request with no loaded session is stale, not malicious.
		c.logger.Debug("client play ignored",
			slog.String("clientId", string(id)),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (c *Coordinator) handleClientPause(id domain.ClientID, env protocol.Envelope) error {
	var p protocol.PositionPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if err := c.Pause(p.Position); err != nil {
		c.logger.Debug("client pause ignored",
			slog.String("clientId", string(id)),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (c *Coordinator) handleClientSeek(id domain.ClientID, env protocol.Envelope) error {
	var p protocol.SeekPayload
	if err := env.Decode(&p); err != nil {
		return err
	}
	if err := c.Seek(p.Target); err != nil {
		c.logger.Debug("client seek ignored",
			slog.String("clientId", string(id)),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

func (c *Coordinator) handlePauseResync(id domain.ClientID, _ protocol.Envelope) error {
	// Off the read loop: the resync gather probes every client including
	// the requester, whose reply arrives on the read loop this handler
	// would otherwise be blocking.
	go c.Resync(id)
	return nil
}

// handleGetStatus answers inline from the current clock snapshot, without
// the async broadcast machinery, so the reply reflects state at the
// instant of the request.
func (c *Coordinator) handleGetStatus(id domain.ClientID, env protocol.Envelope) error {
	playing, position := c.clock.Snapshot()
	reply, err := protocol.Reply(env, protocol.TypeServerStatus, protocol.StatusPayload{
		Playing:  playing,
		Position: durToMs(position),
	})
	if err != nil {
		return err
	}
	if err := c.transport.Send(id, reply); err != nil {
		c.logger.Debug("status reply send failed",
			slog.String("clientId", string(id)),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
