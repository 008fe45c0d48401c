package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TypeA2/ai-sync/internal/domain"
	"github.com/TypeA2/ai-sync/internal/protocol"
)

// fakeTransport is an in-memory Transport recording every send, request and
// disconnect. replyFn, when set, answers Request calls; otherwise requests
// time out.
type fakeTransport struct {
	mu           sync.Mutex
	sent         map[domain.ClientID][]protocol.Envelope
	requested    []protocol.Type
	disconnected []domain.ClientID
	sendErr      map[domain.ClientID]error
	replyFn      func(id domain.ClientID, env protocol.Envelope) (protocol.Envelope, error)
	sendHook     func(id domain.ClientID, env protocol.Envelope)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent:    make(map[domain.ClientID][]protocol.Envelope),
		sendErr: make(map[domain.ClientID]error),
	}
}

func (f *fakeTransport) Send(id domain.ClientID, env protocol.Envelope) error {
	f.mu.Lock()
	if err, ok := f.sendErr[id]; ok {
		f.mu.Unlock()
		return err
	}
	f.sent[id] = append(f.sent[id], env)
	hook := f.sendHook
	f.mu.Unlock()
	if hook != nil {
		hook(id, env)
	}
	return nil
}

func (f *fakeTransport) Request(id domain.ClientID, env protocol.Envelope, timeout time.Duration) (protocol.Envelope, error) {
	f.mu.Lock()
	f.requested = append(f.requested, env.Type)
	fn := f.replyFn
	f.mu.Unlock()
	if fn == nil {
		return protocol.Envelope{}, domain.ErrRequestTimeout
	}
	return fn(id, env)
}

func (f *fakeTransport) Disconnect(id domain.ClientID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = append(f.disconnected, id)
}

func (f *fakeTransport) setReplyFn(fn func(id domain.ClientID, env protocol.Envelope) (protocol.Envelope, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replyFn = fn
}

func (f *fakeTransport) setSendHook(fn func(id domain.ClientID, env protocol.Envelope)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendHook = fn
}

func (f *fakeTransport) sentTo(id domain.ClientID) []protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Envelope, len(f.sent[id]))
	copy(out, f.sent[id])
	return out
}

func (f *fakeTransport) sentOfType(id domain.ClientID, t protocol.Type) []protocol.Envelope {
	var out []protocol.Envelope
	for _, env := range f.sentTo(id) {
		if env.Type == t {
			out = append(out, env)
		}
	}
	return out
}

func (f *fakeTransport) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requested)
}

func (f *fakeTransport) disconnectedIDs() []domain.ClientID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ClientID, len(f.disconnected))
	copy(out, f.disconnected)
	return out
}

// ackFileReady answers any FileReady probe with FileParsed, leaving other
// request types to time out.
func ackFileReady(_ domain.ClientID, env protocol.Envelope) (protocol.Envelope, error) {
	if env.Type == protocol.TypeFileReady {
		return protocol.Envelope{Type: protocol.TypeFileParsed, ReplyTo: env.ID}, nil
	}
	return protocol.Envelope{}, domain.ErrRequestTimeout
}

type fakeMedia struct {
	dur      time.Duration
	released atomic.Int32
}

func (m *fakeMedia) Duration() time.Duration { return m.dur }
func (m *fakeMedia) Release()                { m.released.Add(1) }

type fakeResolver struct {
	media *fakeMedia
	err   error
}

func (r *fakeResolver) Resolve(context.Context, string) (Media, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.media, nil
}

func newTestCoordinator(t *testing.T, resolver MediaResolver, events Events) (*Coordinator, *fakeTransport) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := New(Config{
		HandshakeTimeout: 200 * time.Millisecond,
		StatusTimeout:    200 * time.Millisecond,
		PollInterval:     10 * time.Millisecond,
	}, resolver, logger, events)
	ft := newFakeTransport()
	c.Bind(ft)
	return c, ft
}

func waitFor(t *testing.T, d time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
