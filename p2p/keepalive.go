package p2p

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/XDagger/xdagj-p2p-go/common/mclock"
	"github.com/XDagger/xdagj-p2p-go/message"
)

// keepalive owns a channel's ping ticker and idle-timeout watchdog: it
// sends PING on an interval and disconnects if nothing is heard from
// the peer within the idle timeout. One instance runs per active
// channel, started at the Handshaking->Active transition and stopped
// at Closing.
type keepalive struct {
	peer   *Peer
	clock  mclock.Clock
	period time.Duration
	idle   time.Duration

	onTimeout func(*Peer)

	lastPingAt int64 // mclock.AbsTime of the most recent outbound PING

	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
}

func newKeepalive(peer *Peer, clock mclock.Clock, period, idle time.Duration, onTimeout func(*Peer)) *keepalive {
	return &keepalive{peer: peer, clock: clock, period: period, idle: idle, onTimeout: onTimeout, stop: make(chan struct{})}
}

// Start begins the ping loop and idle watchdog in one goroutine.
func (k *keepalive) Start() {
	go k.run()
}

func (k *keepalive) run() {
	// Each timer is re-armed independently after it fires, so a quiet
	// idle check can never starve the ping schedule (or vice versa).
	pingCh := k.clock.After(k.period)
	idleCh := k.clock.After(k.idle)
	for {
		select {
		case <-k.stop:
			return
		case <-pingCh:
			atomic.StoreInt64(&k.lastPingAt, int64(k.clock.Now()))
			msg := &message.PingMsg{Timestamp: time.Now().Unix()}
			if err := k.peer.Queue().Send(message.CodePing, msg.Encode()); err != nil {
				return
			}
			pingCh = k.clock.After(k.period)
		case <-idleCh:
			last := k.peer.Stats().Snapshot().LastActivity
			if last == 0 {
				last = int64(k.peer.StartTime())
			}
			since := k.clock.Now().Sub(mclock.AbsTime(last))
			if since >= k.idle {
				if k.onTimeout != nil {
					k.onTimeout(k.peer)
				}
				return
			}
			idleCh = k.clock.After(k.idle - since)
		}
	}
}

// notePong records a round-trip sample against the most recent outbound
// PING. A PONG echoing an older timestamp is still accepted; only the
// RTT estimate uses the local send time.
func (k *keepalive) notePong(now mclock.AbsTime) {
	sent := atomic.LoadInt64(&k.lastPingAt)
	if sent == 0 {
		return
	}
	k.peer.Stats().recordRTT(int64(now) - sent)
}

// Stop halts the ping/idle goroutine; safe to call more than once.
func (k *keepalive) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stopped {
		return
	}
	k.stopped = true
	close(k.stop)
}
