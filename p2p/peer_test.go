package p2p

import (
	"net"
	"testing"

	"github.com/XDagger/xdagj-p2p-go/common/mclock"
	"github.com/XDagger/xdagj-p2p-go/crypto"
)

func TestPeerLifecycleTransitions(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	p := NewPeer(server, true, mclock.Now(), 16)
	if p.State() != StateConnecting {
		t.Fatalf("initial state = %s, want connecting", p.State())
	}

	p.MarkHandshaking()
	if p.State() != StateHandshaking {
		t.Fatalf("state = %s, want handshaking", p.State())
	}

	id, err := crypto.GenerateIdentity()
	if err != nil {
		t.Fatal(err)
	}
	p.MarkActive(id.Address(), "client/1", []string{"xdag/1"}, "", 0, mclock.Now())
	if p.State() != StateActive {
		t.Fatalf("state = %s, want active", p.State())
	}
	if p.NodeID() != id.Address() {
		t.Fatal("NodeID not recorded")
	}

	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if p.State() != StateClosed {
		t.Fatalf("state = %s, want closed", p.State())
	}
	if !p.IsClosed() {
		t.Fatal("IsClosed() false after Close")
	}
	// Idempotent.
	if err := p.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
}

func TestPeerStatsSnapshot(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	defer server.Close()

	p := NewPeer(server, false, mclock.Now(), 16)
	p.stats.addSent(10)
	p.stats.addReceived(20)
	p.stats.recordRTT(1000)

	snap := p.Stats().Snapshot()
	if snap.BytesSent != 10 || snap.BytesReceived != 20 || snap.LastRTT != 1000 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
