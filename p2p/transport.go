package p2p

import (
	"io"
	"sync"
	"time"

	"github.com/XDagger/xdagj-p2p-go/common/mclock"
	"github.com/XDagger/xdagj-p2p-go/internal/xlog"
	"github.com/XDagger/xdagj-p2p-go/message"
)

var transportLog = xlog.New("p2p/transport")

// MaxApplicationFrameBody bounds a post-handshake frame's declared body
// size.
const MaxApplicationFrameBody = 16 * 1024 * 1024

// Transport runs the post-handshake read loop for one channel: frame
// deframing, keep-alive, and dispatch to the handler plane, composed
// onto one Active channel. It is started exactly once, at the
// Handshaking->Active transition, per channel.
type Transport struct {
	peer    *Peer
	manager *Manager
	handlers *HandlerPlane
	clock   mclock.Clock
	keepalive *keepalive

	finishOnce sync.Once
	onClose func(p *Peer, reason message.ReasonCode)
}

// NewTransport assembles the pipeline for an Active channel; Serve starts
// its keep-alive watchdog and runs the blocking read loop.
func NewTransport(p *Peer, manager *Manager, handlers *HandlerPlane, clock mclock.Clock, cfg *Config, onClose func(*Peer, message.ReasonCode)) *Transport {
	if clock == nil {
		clock = mclock.System{}
	}
	t := &Transport{peer: p, manager: manager, handlers: handlers, clock: clock, onClose: onClose}
	t.keepalive = newKeepalive(p, clock, cfg.PingInterval, cfg.IdleTimeout, func(peer *Peer) {
		// An idle channel is dropped without a ban; the peer may simply
		// have gone away.
		t.shutdown(message.ReasonPingTimeout)
	})
	p.attachTransport(t)
	return t
}

// Serve runs the blocking read loop. It returns once the connection is
// closed, locally or remotely; the caller (the server's accept/dial
// goroutine) should not also attempt to read from the connection.
func (t *Transport) Serve() {
	t.keepalive.Start()
	t.handlers.fireConnect(t.peer)

	var finalReason message.ReasonCode = message.ReasonRequested
	for {
		f, err := message.ReadFrame(t.peer.Conn(), MaxApplicationFrameBody)
		if err != nil {
			if err == message.ErrBigMessage || err == message.ErrMessageWithWrongLength {
				t.manager.Ban(t.peer, message.ReasonProtocolViolation)
				finalReason = message.ReasonProtocolViolation
			} else if err != io.EOF {
				transportLog.WithField("peer", t.peer.NodeID().String()).WithField("err", err).Debug("read error, closing channel")
			}
			break
		}
		t.peer.Stats().addReceived(len(f.Body))
		t.peer.Stats().touch(t.clock.Now())

		if f.PacketType == message.CodeDisconnect {
			d, derr := message.DecodeDisconnect(f.Body)
			if derr == nil {
				finalReason = d.Reason
			}
			break
		}
		if f.PacketType == message.CodePing {
			pong := &message.PongMsg{Timestamp: time.Now().Unix()}
			t.peer.Queue().Send(message.CodePong, pong.Encode())
			continue
		}
		if f.PacketType == message.CodePong {
			t.keepalive.notePong(t.clock.Now())
			continue
		}
		if err := t.handlers.Dispatch(t.peer, f.PacketType, f.Body); err != nil {
			if err == message.ErrNoSuchMessage {
				t.manager.Ban(t.peer, message.ReasonProtocolViolation)
				t.Disconnect(message.ReasonProtocolViolation)
				return
			}
			transportLog.WithField("code", f.PacketType).WithField("err", err).Debug("dispatch failed")
		}
	}
	t.finish(finalReason)
}

// Disconnect sends a DISCONNECT frame with the given reason via the
// priority lane and tears the channel down. Peer.Close flushes the send
// queue before closing the connection, so the frame is written first.
func (t *Transport) Disconnect(reason message.ReasonCode) {
	msg := &message.DisconnectMsg{Reason: reason}
	t.peer.Queue().SendPriority(message.CodeDisconnect, msg.Encode())
	t.peer.Close()
	t.finish(reason)
}

func (t *Transport) shutdown(reason message.ReasonCode) {
	t.peer.Conn().Close()
	t.finish(reason)
}

func (t *Transport) finish(reason message.ReasonCode) {
	t.finishOnce.Do(func() {
		t.keepalive.Stop()
		t.peer.Close()
		t.manager.Remove(t.peer)
		t.handlers.fireDisconnect(t.peer, reason)
		if t.onClose != nil {
			t.onClose(t.peer, reason)
		}
	})
}
