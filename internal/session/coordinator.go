// Package session implements the synchronization coordinator: one playback
// session shared by every connected client, with play/pause/seek state and
// a wall-clock-derived timeline position kept within a bounded tolerance.
package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/TypeA2/ai-sync/internal/domain"
	"github.com/TypeA2/ai-sync/internal/metrics"
	"github.com/TypeA2/ai-sync/internal/protocol"
)

// Config carries the coordinator's timing knobs. Zero values fall back to
// the protocol defaults.
type Config struct {
	Tolerance        time.Duration // sync tolerance announced in FileReady
	HandshakeTimeout time.Duration // per-client FileReady ack bound
	StatusTimeout    time.Duration // per-client status/resync probe bound
	PollInterval     time.Duration // nominal position poll tick
}

const (
	defaultTolerance        = 70 * time.Millisecond
	defaultHandshakeTimeout = 60 * time.Second
	defaultStatusTimeout    = 5 * time.Second
	defaultPollInterval     = 100 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.Tolerance <= 0 {
		c.Tolerance = defaultTolerance
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = defaultHandshakeTimeout
	}
	if c.StatusTimeout <= 0 {
		c.StatusTimeout = defaultStatusTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	return c
}

// Media is an open media source owned by the coordinator for the lifetime
// of one session.
type Media interface {
	Duration() time.Duration
	Release()
}

// MediaResolver turns a content locator into an open Media handle,
// resolving its duration or failing.
type MediaResolver interface {
	Resolve(ctx context.Context, locator string) (Media, error)
}

// Coordinator owns the client registry, the playback clock, the session
// state machine, the position poller and the resync algorithm. Connection
// callbacks and message handlers run on the transport's goroutines; the
// poller runs on its own. The mu lock coordinates every compound mutation
// of the clock triple, the session handle and the phase.
type Coordinator struct {
	cfg    Config
	logger *slog.Logger
	events Events

	resolver MediaResolver

	transport Transport
	registry  *Registry
	clock     *Clock
	bcast     *Broadcaster
	dispatch  *Dispatcher

	mu    sync.Mutex
	phase domain.SessionPhase
	media Media
	poll  *poller

	resyncInFlight atomic.Bool
}

func New(cfg Config, resolver MediaResolver, logger *slog.Logger, events Events) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		cfg:      cfg.withDefaults(),
		logger:   logger,
		events:   events,
		resolver: resolver,
		registry: NewRegistry(),
		phase:    domain.PhaseNoMedia,
	}
	c.clock = NewClock(&c.mu, events)
	return c
}

// Bind attaches the transport. Must be called before the transport starts
// accepting connections.
func (c *Coordinator) Bind(t Transport) {
	c.transport = t
	c.bcast = NewBroadcaster(t, c.registry, c.logger)
	c.dispatch = newDispatcher(c)
}

// Started signals the embedding application that the coordinator is
// accepting connections.
func (c *Coordinator) Started() {
	c.events.emitServerStarted()
}

// Clock exposes the playback clock for read-side consumers.
func (c *Coordinator) Clock() *Clock { return c.clock }

// Registry exposes the client registry for read-side consumers.
func (c *Coordinator) Registry() *Registry { return c.registry }

// HandleConnect registers a new connection. A client arriving while a
// media session already exists is run through the single-client file
// handshake before it becomes broadcast-reachable.
func (c *Coordinator) HandleConnect(id domain.ClientID) {
	c.mu.Lock()
	lateJoin := c.media != nil &&
		(c.phase == domain.PhaseHandshaking || c.phase == domain.PhaseReady)
	if lateJoin {
		c.registry.AddAwaiting(id)
	} else {
		c.registry.Add(id)
	}
	c.mu.Unlock()

	metrics.ConnectedClients.Set(float64(c.registry.Len()))
	c.events.emitClientConnected(id)

	if lateJoin {
		go c.handshakeLateJoiner(id)
	}
}

// HandleDisconnect removes a connection. Idempotent against a concurrent
// forced eviction of the same id.
func (c *Coordinator) HandleDisconnect(id domain.ClientID) {
	c.registry.Remove(id)
	metrics.ConnectedClients.Set(float64(c.registry.Len()))
}

// HandleMessage routes an inbound frame through the dispatcher.
func (c *Coordinator) HandleMessage(id domain.ClientID, env protocol.Envelope) {
	c.dispatch.Handle(id, env)
}

// Play starts playback at the given position (ms). The sentinel -1
// resolves to the server's current position. Starting while already
// playing is a no-op.
func (c *Coordinator) Play(position int64) error {
	c.mu.Lock()
	if c.media == nil || c.phase != domain.PhaseReady {
		c.mu.Unlock()
		return domain.ErrNoSession
	}
	at := c.resolvePositionLocked(position)
	changed := c.clock.setPlayingLocked(true, at)
	c.mu.Unlock()

	if !changed {
		return nil
	}
	env, err := protocol.New(protocol.TypeServerRequestsPlay, protocol.PositionPayload{Position: durToMs(at)})
	if err != nil {
		return err
	}
	c.bcast.Broadcast(env)
	return nil
}

// Pause pauses playback at the given position (ms), sentinel rules as for
// Play. Pausing while already paused is a no-op.
func (c *Coordinator) Pause(position int64) error {
	c.mu.Lock()
	if c.media == nil || c.phase != domain.PhaseReady {
		c.mu.Unlock()
		return domain.ErrNoSession
	}
	at := c.resolvePositionLocked(position)
	changed := c.clock.setPlayingLocked(false, at)
	c.mu.Unlock()

	if !changed {
		return nil
	}
	env, err := protocol.New(protocol.TypeServerRequestsPause, protocol.PositionPayload{Position: durToMs(at)})
	if err != nil {
		return err
	}
	c.bcast.Broadcast(env)
	return nil
}

// Seek repositions the timeline without changing the play/pause flag and
// tells every client to follow.
func (c *Coordinator) Seek(target int64) error {
	c.mu.Lock()
	if c.media == nil || c.phase != domain.PhaseReady {
		c.mu.Unlock()
		return domain.ErrNoSession
	}
	to := c.resolvePositionLocked(target)
	c.clock.setPositionLocked(to)
	c.mu.Unlock()

	env, err := protocol.New(protocol.TypeServerRequestSeek, protocol.SeekPayload{Target: durToMs(to)})
	if err != nil {
		return err
	}
	c.bcast.Broadcast(env)
	return nil
}

// StatusSnapshot is the coordinator state at one instant, for the control
// API and synchronous status queries.
type StatusSnapshot struct {
	Phase      domain.SessionPhase `json:"phase"`
	Playing    bool                `json:"isPlaying"`
	PositionMs int64               `json:"positionMs"`
	DurationMs int64               `json:"durationMs,omitempty"`
	Clients    int                 `json:"clients"`
}

// Status answers inline from the current clock snapshot, reflecting state
// at the instant of the request.
func (c *Coordinator) Status() StatusSnapshot {
	c.mu.Lock()
	snap := StatusSnapshot{
		Phase:      c.phase,
		Playing:    c.clock.playing,
		PositionMs: durToMs(c.clock.positionLocked()),
	}
	if c.media != nil {
		snap.DurationMs = c.media.Duration().Milliseconds()
	}
	c.mu.Unlock()

	snap.Clients = c.registry.Len()
	return snap
}

// resolvePositionLocked maps a wire position to a timeline position,
// substituting the current position for the sentinel.
func (c *Coordinator) resolvePositionLocked(position int64) time.Duration {
	if position == protocol.SentinelPosition {
		return c.clock.positionLocked()
	}
	return msToDur(position)
}

func durToMs(d time.Duration) int64 {
	return d.Round(time.Millisecond).Milliseconds()
}

func msToDur(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
