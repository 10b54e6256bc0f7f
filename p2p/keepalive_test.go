package p2p

import (
	"net"
	"testing"
	"time"

	"github.com/XDagger/xdagj-p2p-go/common/mclock"
	"github.com/XDagger/xdagj-p2p-go/message"
)

func TestKeepaliveSendsPing(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	clock := new(mclock.Simulated)
	p := NewPeer(server, true, clock.Now(), 16)
	defer p.Close()

	k := newKeepalive(p, clock, 100*time.Millisecond, time.Hour, nil)
	k.Start()
	defer k.Stop()

	done := make(chan struct{})
	go func() {
		f, err := message.ReadFrame(client, 4096)
		if err == nil && f.PacketType == message.CodePing {
			close(done)
		}
	}()

	clock.WaitForTimers(2)
	clock.Run(100 * time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ping frame")
	}
}

func TestKeepaliveIdleTimeoutFires(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	clock := new(mclock.Simulated)
	p := NewPeer(server, true, clock.Now(), 16)
	defer p.Close()

	timedOut := make(chan *Peer, 1)
	k := newKeepalive(p, clock, time.Hour, 50*time.Millisecond, func(peer *Peer) {
		timedOut <- peer
	})
	k.Start()
	defer k.Stop()

	clock.WaitForTimers(2)
	clock.Run(50 * time.Millisecond)

	select {
	case got := <-timedOut:
		if got != p {
			t.Fatal("onTimeout called with wrong peer")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for idle callback")
	}
}
