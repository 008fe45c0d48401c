package session

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/TypeA2/ai-sync/internal/domain"
	"github.com/TypeA2/ai-sync/internal/protocol"
)

func newTestBroadcaster(ft *fakeTransport, ids ...domain.ClientID) *Broadcaster {
	registry := NewRegistry()
	for _, id := range ids {
		registry.Add(id)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBroadcaster(ft, registry, logger)
}

func TestBroadcastReachesEveryConnectedClient(t *testing.T) {
	ft := newFakeTransport()
	b := newTestBroadcaster(ft, "a", "b", "c")

	env, _ := protocol.New(protocol.TypeServerReady, nil)
	b.Broadcast(env)

	for _, id := range []domain.ClientID{"a", "b", "c"} {
		if got := len(ft.sentTo(id)); got != 1 {
			t.Errorf("client %s received %d frames, want 1", id, got)
		}
	}
}

func TestBroadcastFailureIsIsolated(t *testing.T) {
	ft := newFakeTransport()
	ft.sendErr["b"] = domain.ErrClientGone
	b := newTestBroadcaster(ft, "a", "b", "c")

	env, _ := protocol.New(protocol.TypeFileClosed, nil)
	b.Broadcast(env)

	if got := len(ft.sentTo("a")); got != 1 {
		t.Errorf("client a received %d frames, want 1", got)
	}
	if got := len(ft.sentTo("c")); got != 1 {
		t.Errorf("client c received %d frames, want 1", got)
	}
}

func TestGatherCollectsIndependentOutcomes(t *testing.T) {
	ft := newFakeTransport()
	ft.setReplyFn(func(id domain.ClientID, env protocol.Envelope) (protocol.Envelope, error) {
		if id == "dead" {
			return protocol.Envelope{}, domain.ErrRequestTimeout
		}
		return protocol.Envelope{Type: protocol.TypeClientStatus, ReplyTo: env.ID}, nil
	})
	b := newTestBroadcaster(ft, "a", "dead", "b")

	env, _ := protocol.New(protocol.TypeGetStatus, nil)
	outcomes := b.Gather(env, 50*time.Millisecond)

	if len(outcomes) != 3 {
		t.Fatalf("got %d outcomes, want 3", len(outcomes))
	}
	var failed, ok int
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			if !errors.Is(o.Err, domain.ErrRequestTimeout) {
				t.Errorf("client %s failed with %v, want timeout", o.ID, o.Err)
			}
			continue
		}
		ok++
		if o.Reply.Type != protocol.TypeClientStatus {
			t.Errorf("client %s replied %q", o.ID, o.Reply.Type)
		}
	}
	if failed != 1 || ok != 2 {
		t.Fatalf("failed=%d ok=%d, want 1/2", failed, ok)
	}
}

func TestGatherSlowClientDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	resolved := make(chan domain.ClientID, 3)

	ft := newFakeTransport()
	ft.setReplyFn(func(id domain.ClientID, env protocol.Envelope) (protocol.Envelope, error) {
		if id == "slow" {
			<-release
		}
		resolved <- id
		return protocol.Envelope{Type: protocol.TypeClientStatus}, nil
	})
	b := newTestBroadcaster(ft, "slow", "a", "b")

	done := make(chan []Outcome, 1)
	go func() {
		env, _ := protocol.New(protocol.TypeGetStatus, nil)
		done <- b.Gather(env, time.Second)
	}()

	// Both fast clients must resolve while the slow one is still held.
	for i := 0; i < 2; i++ {
		select {
		case id := <-resolved:
			if id == "slow" {
				t.Fatal("slow client resolved before release")
			}
		case <-time.After(time.Second):
			t.Fatal("fast clients blocked behind slow one")
		}
	}

	close(release)
	select {
	case outcomes := <-done:
		if len(outcomes) != 3 {
			t.Fatalf("got %d outcomes, want 3", len(outcomes))
		}
	case <-time.After(time.Second):
		t.Fatal("gather never joined")
	}
}

func TestRequestOnePassesThrough(t *testing.T) {
	ft := newFakeTransport()
	ft.setReplyFn(func(id domain.ClientID, env protocol.Envelope) (protocol.Envelope, error) {
		return protocol.Envelope{Type: protocol.TypeFileParsed, ReplyTo: env.ID}, nil
	})
	b := newTestBroadcaster(ft, "a")

	env, _ := protocol.New(protocol.TypeFileReady, protocol.FileReadyPayload{ToleranceMs: 70})
	reply, err := b.RequestOne("a", env, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("RequestOne: %v", err)
	}
	if reply.Type != protocol.TypeFileParsed {
		t.Fatalf("reply type = %q", reply.Type)
	}
}
