package handshake

import (
	"net"
	"testing"
	"time"

	"github.com/XDagger/xdagj-p2p-go/crypto"
	"github.com/XDagger/xdagj-p2p-go/message"
)

func newConfig(t *testing.T, networkID uint8, networkVersion uint16) *Config {
	t.Helper()
	id, err := crypto.GenerateIdentity()
	if err != nil {
		t.Fatal(err)
	}
	return &Config{
		NetworkID: networkID, NetworkVersion: networkVersion, Identity: id,
		ClientID: "xdagj-p2p-go/test", Capabilities: []string{"xdag/1"},
		ListenPort: 10000, Timeout: 2 * time.Second,
	}
}

// TestHandshakeSuccess is scenario S1: a loopback INIT/HELLO/WORLD exchange
// reaches agreement on both sides and each recovers the other's address.
func TestHandshakeSuccess(t *testing.T) {
	a, b := net.Pipe()
	cfgA := newConfig(t, 1, 1)
	cfgB := newConfig(t, 1, 1)

	type out struct {
		res *Result
		err error
	}
	chA := make(chan out, 1)
	chB := make(chan out, 1)
	go func() { r, err := Run(a, RoleInitiator, cfgA); chA <- out{r, err} }()
	go func() { r, err := Run(b, RoleResponder, cfgB); chB <- out{r, err} }()

	oa := <-chA
	ob := <-chB
	if oa.err != nil {
		t.Fatalf("initiator: %v", oa.err)
	}
	if ob.err != nil {
		t.Fatalf("responder: %v", ob.err)
	}
	if oa.res.PeerAddress != cfgB.Identity.Address() {
		t.Fatalf("initiator learned wrong peer address")
	}
	if ob.res.PeerAddress != cfgA.Identity.Address() {
		t.Fatalf("responder learned wrong peer address")
	}
}

// TestHandshakeWrongNetwork is scenario S2: a HELLO/WORLD with mismatched
// NetworkID must fail with ReasonBadNetwork, never silently succeed.
func TestHandshakeWrongNetwork(t *testing.T) {
	a, b := net.Pipe()
	cfgA := newConfig(t, 2, 1) // initiator on network 2
	cfgB := newConfig(t, 1, 1) // responder on network 1
	cfgA.Timeout = 300 * time.Millisecond
	cfgB.Timeout = 300 * time.Millisecond

	type out struct {
		res *Result
		err error
	}
	chA := make(chan out, 1)
	chB := make(chan out, 1)
	go func() { r, err := Run(a, RoleInitiator, cfgA); chA <- out{r, err} }()
	go func() { r, err := Run(b, RoleResponder, cfgB); chB <- out{r, err} }()

	oa := <-chA
	ob := <-chB
	if oa.err == nil || ob.err == nil {
		t.Fatal("expected a BAD_NETWORK failure on one or both sides")
	}
	var hsErr *Error
	found := false
	for _, e := range []error{oa.err, ob.err} {
		if e == nil {
			continue
		}
		if asErr, ok := e.(*Error); ok {
			hsErr = asErr
			if hsErr.Reason == message.ReasonBadNetwork {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected ReasonBadNetwork, got oa=%v ob=%v", oa.err, ob.err)
	}
}

func TestHandshakeTimeout(t *testing.T) {
	a, _ := net.Pipe()
	cfgA := newConfig(t, 1, 1)
	cfgA.Timeout = 50 * time.Millisecond

	_, err := Run(a, RoleInitiator, cfgA)
	if err == nil {
		t.Fatal("expected timeout error when peer never responds")
	}
	he, ok := err.(*Error)
	if !ok || he.Reason != message.ReasonHandshakeTimeout {
		t.Fatalf("expected ReasonHandshakeTimeout, got %v", err)
	}
}
