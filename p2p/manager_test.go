package p2p

import (
	"net"
	"testing"
	"time"

	"github.com/XDagger/xdagj-p2p-go/common/mclock"
	"github.com/XDagger/xdagj-p2p-go/crypto"
)

func testPeer(t *testing.T, ip string, nodeID crypto.Address, startTime mclock.AbsTime) *Peer {
	t.Helper()
	server, _ := net.Pipe()
	p := NewPeer(server, true, startTime, 16)
	p.inet = ip // net.Pipe peers carry no IP (their address is "pipe"); set one for the ban and same-IP checks
	p.MarkHandshaking()
	p.MarkActive(nodeID, "test", nil, "", 0, startTime)
	return p
}

func randAddr(t *testing.T) crypto.Address {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	if err != nil {
		t.Fatal(err)
	}
	return id.Address()
}

func TestAdmitAcceptsWithinLimits(t *testing.T) {
	cfg := DefaultConfig()
	self := randAddr(t)
	m := NewManager(cfg, mclock.System{}, self)

	p := testPeer(t, "10.0.0.1", randAddr(t), mclock.Now())
	if err := m.Admit(p); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if m.Count() != 1 {
		t.Fatalf("Count = %d, want 1", m.Count())
	}
}

func TestAdmitRejectsBannedIP(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg, mclock.System{}, randAddr(t))
	m.Bans().Ban("10.0.0.2", time.Hour, 0)

	p := testPeer(t, "10.0.0.2", randAddr(t), mclock.Now())
	if err := m.Admit(p); err != ErrBannedIP {
		t.Fatalf("Admit = %v, want ErrBannedIP", err)
	}
}

func TestAdmitRejectsOverMaxConnections(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnections = 1
	cfg.MaxConnectionsWithSameIP = 5
	m := NewManager(cfg, mclock.System{}, randAddr(t))

	p1 := testPeer(t, "10.0.0.3", randAddr(t), mclock.Now())
	if err := m.Admit(p1); err != nil {
		t.Fatalf("first Admit: %v", err)
	}
	p2 := testPeer(t, "10.0.0.4", randAddr(t), mclock.Now())
	if err := m.Admit(p2); err != ErrTooManyPeers {
		t.Fatalf("Admit = %v, want ErrTooManyPeers", err)
	}
}

func TestAdmitRejectsOverSameIPLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnectionsWithSameIP = 1
	m := NewManager(cfg, mclock.System{}, randAddr(t))

	p1 := testPeer(t, "10.0.0.5", randAddr(t), mclock.Now())
	if err := m.Admit(p1); err != nil {
		t.Fatalf("first Admit: %v", err)
	}
	p2 := testPeer(t, "10.0.0.5", randAddr(t), mclock.Now())
	if err := m.Admit(p2); err != ErrTooManyPeersWithSameIP {
		t.Fatalf("Admit = %v, want ErrTooManyPeersWithSameIP", err)
	}
}

func TestAdmitDedupKeepsEarlierStartTime(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg, mclock.System{}, randAddr(t))
	nodeID := randAddr(t)

	earlier := testPeer(t, "10.0.0.6", nodeID, mclock.Now())
	if err := m.Admit(earlier); err != nil {
		t.Fatalf("first Admit: %v", err)
	}
	later := testPeer(t, "10.0.0.7", nodeID, earlier.StartTime().Add(time.Second))
	if err := m.Admit(later); err != ErrAlreadyConnected {
		t.Fatalf("Admit = %v, want ErrAlreadyConnected", err)
	}
	got, ok := m.Peer(nodeID)
	if !ok || got != earlier {
		t.Fatal("expected the earlier channel to remain registered")
	}
}

func TestAdmitEarlierStartTimeEvictsLaterRegistered(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg, mclock.System{}, randAddr(t))
	nodeID := randAddr(t)

	later := testPeer(t, "10.0.0.8", nodeID, mclock.Now().Add(time.Second))
	if err := m.Admit(later); err != nil {
		t.Fatalf("first Admit: %v", err)
	}
	earlier := testPeer(t, "10.0.0.9", nodeID, mclock.Now())
	if err := m.Admit(earlier); err != nil {
		t.Fatalf("expected the earlier-started duplicate to win, got: %v", err)
	}
	got, ok := m.Peer(nodeID)
	if !ok || got != earlier {
		t.Fatal("expected the earlier-started channel to be registered")
	}
}

func TestAdmitRejectsSelfConnect(t *testing.T) {
	cfg := DefaultConfig()
	self := randAddr(t)
	m := NewManager(cfg, mclock.System{}, self)

	p := testPeer(t, "10.0.0.10", self, mclock.Now())
	if err := m.Admit(p); err != ErrSelfConnect {
		t.Fatalf("Admit = %v, want ErrSelfConnect", err)
	}
}

func TestAdmitRejectsAfterShutdown(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg, mclock.System{}, randAddr(t))
	m.BeginShutdown()

	p := testPeer(t, "10.0.0.11", randAddr(t), mclock.Now())
	if err := m.Admit(p); err != ErrManagerClosed {
		t.Fatalf("Admit = %v, want ErrManagerClosed", err)
	}
}

func TestRemoveThenReadmit(t *testing.T) {
	cfg := DefaultConfig()
	m := NewManager(cfg, mclock.System{}, randAddr(t))
	nodeID := randAddr(t)

	p := testPeer(t, "10.0.0.12", nodeID, mclock.Now())
	if err := m.Admit(p); err != nil {
		t.Fatal(err)
	}
	m.Remove(p)
	if m.Count() != 0 {
		t.Fatalf("Count after Remove = %d, want 0", m.Count())
	}
	p2 := testPeer(t, "10.0.0.12", nodeID, mclock.Now())
	if err := m.Admit(p2); err != nil {
		t.Fatalf("re-Admit after Remove: %v", err)
	}
}
