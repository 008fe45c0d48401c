package session

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/TypeA2/ai-sync/internal/metrics"
)

const (
	// coarseInterval is the recheck cadence while playback has never
	// started and there is no position worth reporting.
	coarseInterval = 500 * time.Millisecond

	// maxTickJitter bounds the random amount (ms, exclusive) shaved off
	// each nominal tick so updates never march in visible lock-step.
	maxTickJitter = 25
)

// poller is the dedicated background loop emitting periodic position
// updates and detecting end of media. One exists per active session; a
// fresh cancellation context is issued for every session so stops never
// bleed into the next loop.
type poller struct {
	c        *Coordinator
	ctx      context.Context
	cancelFn context.CancelFunc
	done     chan struct{}
	duration time.Duration
}

func (c *Coordinator) startPollerLocked(duration time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &poller{
		c:        c,
		ctx:      ctx,
		cancelFn: cancel,
		done:     make(chan struct{}),
		duration: duration,
	}
	c.poll = p
	go p.run()
}

func (p *poller) run() {
	defer close(p.done)

	tick := p.c.cfg.PollInterval
	for {
		if !p.c.clock.Started() {
			if !p.sleep(coarseInterval) {
				return
			}
			continue
		}

		jitter := time.Duration(rand.IntN(maxTickJitter)) * time.Millisecond
		if !p.sleep(tick - jitter) {
			return
		}

		position := p.c.clock.Position()
		if position >= p.duration {
			// Self-triggered stop: must not join our own loop.
			_ = p.c.stop(true)
			return
		}

		metrics.PlaybackPositionMs.Set(float64(position.Milliseconds()))
		p.c.events.emitPositionChanged(position)
	}
}

// sleep waits for d or cancellation, reporting false once cancelled.
func (p *poller) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p *poller) cancel() { p.cancelFn() }

func (p *poller) join() { <-p.done }
