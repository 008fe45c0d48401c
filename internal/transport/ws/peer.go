package ws

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/TypeA2/ai-sync/internal/domain"
	"github.com/TypeA2/ai-sync/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxFrameSize   = 4096
	sendQueueDepth = 64
)

type peer struct {
	id   domain.ClientID
	conn *websocket.Conn
	srv  *Server

	send chan []byte
	done chan struct{}
	once sync.Once

	pendingMu sync.Mutex
	pending   map[string]chan protocol.Envelope
}

func newPeer(id domain.ClientID, conn *websocket.Conn, srv *Server) *peer {
	return &peer{
		id:      id,
		conn:    conn,
		srv:     srv,
		send:    make(chan []byte, sendQueueDepth),
		done:    make(chan struct{}),
		pending: make(map[string]chan protocol.Envelope),
	}
}

// enqueue queues a frame without blocking. A full queue means the client
// stopped draining; the connection is torn down and the send reported as a
// transport failure.
func (p *peer) enqueue(env protocol.Envelope) error {
	frame, err := env.Marshal()
	if err != nil {
		return err
	}
	select {
	case <-p.done:
		return domain.ErrClientGone
	default:
	}
	select {
	case p.send <- frame:
		return nil
	default:
		p.srv.logger.Warn("send queue full, dropping client", slog.String("clientId", string(p.id)))
		p.teardown()
		return domain.ErrClientGone
	}
}

func (p *peer) addPending(id string) chan protocol.Envelope {
	ch := make(chan protocol.Envelope, 1)
	p.pendingMu.Lock()
	p.pending[id] = ch
	p.pendingMu.Unlock()
	return ch
}

func (p *peer) removePending(id string) {
	p.pendingMu.Lock()
	delete(p.pending, id)
	p.pendingMu.Unlock()
}

// deliverReply routes a correlated reply to its waiter. Replies arriving
// after the waiter timed out are dropped.
func (p *peer) deliverReply(env protocol.Envelope) {
	p.pendingMu.Lock()
	ch, ok := p.pending[env.ReplyTo]
	p.pendingMu.Unlock()
	if !ok {
		p.srv.logger.Debug("stale reply dropped",
			slog.String("clientId", string(p.id)),
			slog.String("type", string(env.Type)),
		)
		return
	}
	select {
	case ch <- env:
	default:
	}
}

func (p *peer) readPump() {
	defer p.teardown()

	p.conn.SetReadLimit(maxFrameSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := protocol.Unmarshal(data)
		if err != nil {
			// Unparseable frame: connection fatal, same as an unknown tag.
			p.srv.logger.Warn("malformed frame",
				slog.String("clientId", string(p.id)),
				slog.String("error", err.Error()),
			)
			return
		}

		if env.ReplyTo != "" {
			p.deliverReply(env)
			continue
		}
		if p.srv.cb.OnMessage != nil {
			p.srv.cb.OnMessage(p.id, env)
		}
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.teardown()
	}()
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardown closes the connection and removes the peer exactly once, no
// matter how many paths race into it.
func (p *peer) teardown() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.Close()
		p.srv.drop(p)
	})
}
