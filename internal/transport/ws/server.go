// Package ws implements the coordinator's client transport over gorilla
// websockets: per-connection ids, connect/disconnect events, fire-and-forget
// sends, and correlated send-and-wait requests with timeouts.
package ws

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/TypeA2/ai-sync/internal/domain"
	"github.com/TypeA2/ai-sync/internal/protocol"
)

// Callbacks are invoked on the goroutine serving the originating connection.
// OnMessage calls for one connection never overlap; calls for different
// connections run concurrently.
type Callbacks struct {
	OnConnect    func(id domain.ClientID)
	OnDisconnect func(id domain.ClientID)
	OnMessage    func(id domain.ClientID, env protocol.Envelope)
}

type Server struct {
	mu     sync.Mutex
	peers  map[domain.ClientID]*peer
	closed bool

	cb     Callbacks
	logger *slog.Logger
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func NewServer(logger *slog.Logger, cb Callbacks) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		peers:  make(map[domain.ClientID]*peer),
		cb:     cb,
		logger: logger,
	}
}

// HandleUpgrade upgrades an HTTP request to a websocket connection,
// registers the peer and blocks serving its read loop until the
// connection dies.
func (s *Server) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	p := newPeer(domain.ClientID(uuid.NewString()), conn, s)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.peers[p.id] = p
	s.mu.Unlock()

	s.logger.Info("client connected", slog.String("clientId", string(p.id)))
	if s.cb.OnConnect != nil {
		s.cb.OnConnect(p.id)
	}

	go p.writePump()
	p.readPump()
}

// Send queues a frame for delivery, fire and forget. A full outbound queue
// is treated as a dead peer and tears the connection down.
func (s *Server) Send(id domain.ClientID, env protocol.Envelope) error {
	p := s.peer(id)
	if p == nil {
		return domain.ErrClientGone
	}
	return p.enqueue(env)
}

// Request sends a correlated frame and waits for the matching reply or the
// timeout, whichever comes first.
func (s *Server) Request(id domain.ClientID, env protocol.Envelope, timeout time.Duration) (protocol.Envelope, error) {
	p := s.peer(id)
	if p == nil {
		return protocol.Envelope{}, domain.ErrClientGone
	}

	env.ID = uuid.NewString()
	ch := p.addPending(env.ID)
	defer p.removePending(env.ID)

	if err := p.enqueue(env); err != nil {
		return protocol.Envelope{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-ch:
		return reply, nil
	case <-p.done:
		return protocol.Envelope{}, domain.ErrClientGone
	case <-timer.C:
		return protocol.Envelope{}, domain.ErrRequestTimeout
	}
}

// Disconnect forcibly closes the identified connection. Safe to call for an
// already-gone id.
func (s *Server) Disconnect(id domain.ClientID) {
	if p := s.peer(id); p != nil {
		p.teardown()
	}
}

// Close tears down every connection and rejects future upgrades.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		_ = p.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(2*time.Second),
		)
		p.teardown()
	}
}

func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Server) peer(id domain.ClientID) *peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[id]
}

// drop removes the peer from the table; called exactly once per peer from
// its teardown path.
func (s *Server) drop(p *peer) {
	s.mu.Lock()
	delete(s.peers, p.id)
	s.mu.Unlock()

	s.logger.Info("client disconnected", slog.String("clientId", string(p.id)))
	if s.cb.OnDisconnect != nil {
		s.cb.OnDisconnect(p.id)
	}
}
