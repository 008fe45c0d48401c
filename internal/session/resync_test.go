package session

import (
	"testing"
	"time"

	"github.com/TypeA2/ai-sync/internal/domain"
	"github.com/TypeA2/ai-sync/internal/protocol"
)

// statusReplier acks file handshakes and answers status probes with a
// per-client reported position, timestamped at reply time.
func statusReplier(positions map[domain.ClientID]int64) func(domain.ClientID, protocol.Envelope) (protocol.Envelope, error) {
	return func(id domain.ClientID, env protocol.Envelope) (protocol.Envelope, error) {
		switch env.Type {
		case protocol.TypeFileReady:
			return protocol.Envelope{Type: protocol.TypeFileParsed, ReplyTo: env.ID}, nil
		case protocol.TypeGetStatus:
			pos, ok := positions[id]
			if !ok {
				return protocol.Envelope{}, domain.ErrRequestTimeout
			}
			return protocol.Reply(env, protocol.TypeClientStatus, protocol.ClientStatusPayload{
				Playing:   true,
				Position:  pos,
				Timestamp: time.Now().UnixMilli(),
			})
		}
		return protocol.Envelope{}, domain.ErrRequestTimeout
	}
}

// resyncFixture brings up a two-client session playing at server position
// 10000ms, driven by a controllable clock.
func resyncFixture(t *testing.T, c *Coordinator, ft *fakeTransport) {
	t.Helper()
	c.HandleConnect("lagger")
	c.HandleConnect("leader")
	readySession(t, c, ft)

	clock := newFakeNow()
	c.mu.Lock()
	c.clock.now = clock.now
	c.mu.Unlock()

	if err := c.Play(0); err != nil {
		t.Fatalf("Play: %v", err)
	}
	clock.advance(10 * time.Second)
}

func TestResyncPausesAtFurthestBehind(t *testing.T) {
	resolver := &fakeResolver{media: &fakeMedia{dur: time.Hour}}
	c, ft := newTestCoordinator(t, resolver, Events{})
	resyncFixture(t, c, ft)

	ft.setReplyFn(statusReplier(map[domain.ClientID]int64{
		"lagger": 9000,
		"leader": 9500,
	}))

	c.Resync("lagger")

	status := c.Status()
	if status.Playing {
		t.Fatal("resync must conclude paused")
	}
	// The target is the lagger's report adjusted by the probe's round
	// trip; allow a little scheduling slack either way.
	if status.PositionMs < 8900 || status.PositionMs > 9200 {
		t.Fatalf("resync position = %d, want ~9000", status.PositionMs)
	}

	pauses := ft.sentOfType("leader", protocol.TypeServerRequestsPause)
	if len(pauses) != 1 {
		t.Fatalf("leader got %d pause broadcasts, want 1", len(pauses))
	}
	if pos := decodePosition(t, pauses[0]); pos != status.PositionMs {
		t.Fatalf("broadcast position %d != clock position %d", pos, status.PositionMs)
	}
}

func TestResyncServerAheadOfNobody(t *testing.T) {
	resolver := &fakeResolver{media: &fakeMedia{dur: time.Hour}}
	c, ft := newTestCoordinator(t, resolver, Events{})
	resyncFixture(t, c, ft)

	// Both clients report ahead of the server; projection can only push
	// them further ahead, so the server's own position wins the minimum.
	ft.setReplyFn(statusReplier(map[domain.ClientID]int64{
		"lagger": 11000,
		"leader": 12000,
	}))

	c.Resync("lagger")

	status := c.Status()
	if status.Playing {
		t.Fatal("resync must conclude paused")
	}
	if status.PositionMs != 10000 {
		t.Fatalf("resync position = %d, want server position 10000", status.PositionMs)
	}
}

func TestResyncSkipsUnresponsiveAndInvalidClients(t *testing.T) {
	resolver := &fakeResolver{media: &fakeMedia{dur: time.Hour}}
	c, ft := newTestCoordinator(t, resolver, Events{})
	resyncFixture(t, c, ft)

	ft.setReplyFn(func(id domain.ClientID, env protocol.Envelope) (protocol.Envelope, error) {
		if env.Type != protocol.TypeGetStatus {
			return protocol.Envelope{}, domain.ErrRequestTimeout
		}
		if id == "leader" {
			// Wrong reply shape: excluded from the computation, not evicted.
			return protocol.Envelope{Type: protocol.TypeServerStatus, ReplyTo: env.ID}, nil
		}
		return protocol.Reply(env, protocol.TypeClientStatus, protocol.ClientStatusPayload{
			Playing:   true,
			Position:  8000,
			Timestamp: time.Now().UnixMilli(),
		})
	})

	c.Resync("lagger")

	status := c.Status()
	if status.PositionMs < 7900 || status.PositionMs > 8200 {
		t.Fatalf("resync position = %d, want ~8000 from the only valid report", status.PositionMs)
	}
	if len(ft.disconnectedIDs()) != 0 {
		t.Fatal("resync must never disconnect clients")
	}
}

func TestResyncSingleFlight(t *testing.T) {
	resolver := &fakeResolver{media: &fakeMedia{dur: time.Hour}}
	c, ft := newTestCoordinator(t, resolver, Events{})
	resyncFixture(t, c, ft)

	probed := make(chan struct{})
	release := make(chan struct{})
	var once bool
	ft.setReplyFn(func(id domain.ClientID, env protocol.Envelope) (protocol.Envelope, error) {
		if env.Type != protocol.TypeGetStatus {
			return protocol.Envelope{}, domain.ErrRequestTimeout
		}
		ft.mu.Lock()
		first := !once
		once = true
		ft.mu.Unlock()
		if first {
			close(probed)
		}
		<-release
		return protocol.Envelope{}, domain.ErrRequestTimeout
	})

	go c.Resync("lagger")
	<-probed

	// Second cycle while the first is gathering: dropped immediately.
	done := make(chan struct{})
	go func() {
		c.Resync("leader")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("concurrent resync was queued instead of dropped")
	}
	if !c.resyncInFlight.Load() {
		t.Fatal("first cycle should still hold the in-flight guard")
	}

	close(release)
	waitFor(t, time.Second, "first cycle completion", func() bool {
		return !c.resyncInFlight.Load()
	})
}

func TestResyncWithoutSession(t *testing.T) {
	c, ft := newTestCoordinator(t, &fakeResolver{}, Events{})
	c.HandleConnect("a")

	c.Resync("a")

	if got := ft.requestCount(); got != 0 {
		t.Fatalf("resync with no session issued %d probes", got)
	}
}

func TestPauseResyncMessageRunsOffReadLoop(t *testing.T) {
	resolver := &fakeResolver{media: &fakeMedia{dur: time.Hour}}
	c, ft := newTestCoordinator(t, resolver, Events{})
	resyncFixture(t, c, ft)

	ft.setReplyFn(statusReplier(map[domain.ClientID]int64{
		"lagger": 9000,
		"leader": 9500,
	}))

	c.HandleMessage("lagger", protocol.Envelope{Type: protocol.TypePauseResync})

	waitFor(t, time.Second, "resync-triggered pause", func() bool {
		return len(ft.sentOfType("leader", protocol.TypeServerRequestsPause)) == 1
	})
	if c.Status().Playing {
		t.Fatal("session still playing after resync")
	}
}
