package enode

import (
	"net"
	"testing"

	"github.com/XDagger/xdagj-p2p-go/common/mclock"
)

func TestPreferredIPPrefersIPv4(t *testing.T) {
	r := &Record{IPv4: net.ParseIP("1.2.3.4"), IPv6: net.ParseIP("::1")}
	if !r.PreferredIP().Equal(net.ParseIP("1.2.3.4")) {
		t.Fatalf("want ipv4 preferred, got %v", r.PreferredIP())
	}
}

func TestDialableRequiresAnIP(t *testing.T) {
	r := &Record{}
	if r.Dialable() {
		t.Fatal("record with no IP must not be dialable")
	}
	r.IPv6 = net.ParseIP("::1")
	if !r.Dialable() {
		t.Fatal("record with an IPv6 address must be dialable")
	}
}

func TestWireRoundTrip(t *testing.T) {
	var id ID
	id[0] = 0xAB
	r := New(id, [20]byte{1, 2, 3}, net.ParseIP("10.0.0.1").To4(), nil, 30303, 1, 1, mclock.Now())
	w := r.ToWire()
	back := FromWire(w, mclock.Now())
	if back.ID != r.ID || back.Port != r.Port || !back.IPv4.Equal(r.IPv4) {
		t.Fatalf("wire round trip mismatch: %+v vs %+v", back, r)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	var id ID
	id[1] = 0xCD
	r := New(id, [20]byte{9, 9}, net.ParseIP("192.168.0.1").To4(), net.ParseIP("::1"), 40404, 2, 3, mclock.Now())
	back, err := DeserializeRecord(r.Serialize())
	if err != nil {
		t.Fatal(err)
	}
	if back.ID != r.ID || back.Address != r.Address || back.Port != r.Port || back.NetworkVersion != r.NetworkVersion {
		t.Fatalf("serialize round trip mismatch: %+v vs %+v", back, r)
	}
}
