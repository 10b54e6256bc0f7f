// Package enode defines the node record shared by the
// channel manager, the Kademlia DHT, and the DNS-tree discovery client.
package enode

import (
	"encoding/hex"
	"net"

	"github.com/XDagger/xdagj-p2p-go/common/mclock"
	"github.com/XDagger/xdagj-p2p-go/crypto"
	"github.com/XDagger/xdagj-p2p-go/message"
)

// ID is the fixed-width Kademlia routing key.
type ID crypto.RoutingID

// String returns the hex encoding of id.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Record is a node record: identity, network location, and
// protocol-compatibility fields, plus two monotonic timestamps.
type Record struct {
	ID        ID
	Address   crypto.Address
	IPv4      net.IP // nil if absent
	IPv6      net.IP // nil if absent
	Port      uint16
	BindPort  uint16 // 0 if unset
	NetworkID uint8
	NetworkVersion uint16

	UpdateTime mclock.AbsTime
	CreateTime mclock.AbsTime
}

// New builds a Record, stamping both timestamps to now.
func New(id ID, addr crypto.Address, ipv4, ipv6 net.IP, port uint16, networkID uint8, networkVersion uint16, now mclock.AbsTime) *Record {
	return &Record{
		ID: id, Address: addr, IPv4: ipv4, IPv6: ipv6, Port: port,
		NetworkID: networkID, NetworkVersion: networkVersion,
		UpdateTime: now, CreateTime: now,
	}
}

// Dialable reports whether the record carries at least one IP, which is
// required of any node used for dialing.
func (r *Record) Dialable() bool {
	return len(r.IPv4) != 0 || len(r.IPv6) != 0
}

// PreferredIP returns IPv4 if present, else IPv6.
func (r *Record) PreferredIP() net.IP {
	if len(r.IPv4) != 0 {
		return r.IPv4
	}
	return r.IPv6
}

// UDPAddr returns the discovery-layer socket address.
func (r *Record) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: r.PreferredIP(), Port: int(r.Port)}
}

// TCPAddr returns the channel-layer socket address, preferring BindPort
// (the peer's advertised listen port) when set.
func (r *Record) TCPAddr() *net.TCPAddr {
	port := r.Port
	if r.BindPort != 0 {
		port = r.BindPort
	}
	return &net.TCPAddr{IP: r.PreferredIP(), Port: int(port)}
}

// Touch bumps UpdateTime to now.
func (r *Record) Touch(now mclock.AbsTime) {
	r.UpdateTime = now
}

// ToWire converts the record to the over-the-wire shape used by NEIGHBORS
// responses and DNS nodes-leaves.
func (r *Record) ToWire() message.NodeWire {
	w := message.NodeWire{Port: r.Port, BindPort: r.BindPort, NetworkID: r.NetworkID}
	copy(w.ID[:], r.ID[:])
	if len(r.IPv4) != 0 {
		w.IPv4 = r.IPv4.To4()
	}
	if len(r.IPv6) != 0 {
		w.IPv6 = r.IPv6.To16()
	}
	return w
}

// FromWire reconstructs a Record from its wire shape. NetworkVersion and
// the signer-derived Address are not carried on NEIGHBORS/leaf wire
// records (they are learned at handshake time, not discovery time), so
// the result carries only what discovery itself observed.
func FromWire(w message.NodeWire, now mclock.AbsTime) *Record {
	r := &Record{
		Port: w.Port, BindPort: w.BindPort, NetworkID: w.NetworkID,
		UpdateTime: now, CreateTime: now,
	}
	copy(r.ID[:], w.ID[:])
	if len(w.IPv4) == 4 {
		r.IPv4 = net.IP(w.IPv4)
	}
	if len(w.IPv6) == 16 {
		r.IPv6 = net.IP(w.IPv6)
	}
	return r
}
