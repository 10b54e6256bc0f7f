package discover

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/XDagger/xdagj-p2p-go/common/mclock"
	"github.com/XDagger/xdagj-p2p-go/enode"
	"github.com/XDagger/xdagj-p2p-go/internal/xlog"
	"github.com/XDagger/xdagj-p2p-go/message"
)

var udpLog = xlog.New("discover/udp")

// maxPacketSize bounds a single UDP discovery datagram.
const maxPacketSize = 1280

// errNonceMismatch is returned when a PONG doesn't echo the nonce sent
// in the original PING (a stale or spoofed reply).
var errNonceMismatch = errors.New("discover: pong nonce mismatch")

// UDPTransport implements the Transport interface over a net.PacketConn,
// framing every message as a one-byte Code followed by its
// primitive-encoded body; there is no length-prefixed envelope since a
// UDP datagram is already one frame.
type UDPTransport struct {
	conn      net.PacketConn
	self      *enode.Record
	networkID uint8
	clock     mclock.Clock

	mu      sync.Mutex
	pending map[string]chan []byte

	table *Table // set by Serve; handles inbound PING/FIND_NODE

	closeOnce sync.Once
	closed    chan struct{}
}

// ListenUDP wraps conn as a discovery transport for self.
func ListenUDP(conn net.PacketConn, self *enode.Record, clock mclock.Clock) *UDPTransport {
	if clock == nil {
		clock = mclock.System{}
	}
	return &UDPTransport{
		conn: conn, self: self, networkID: self.NetworkID, clock: clock,
		pending: make(map[string]chan []byte),
		closed:  make(chan struct{}),
	}
}

// Serve attaches the routing table and starts the read loop; the table
// answers inbound PING (admitting the sender) and FIND_NODE (replying
// with NEIGHBORS from its own buckets).
func (u *UDPTransport) Serve(tab *Table) {
	u.table = tab
	go u.readLoop()
}

// Self returns the local node record advertised in PONG/NEIGHBORS.
func (u *UDPTransport) Self() *enode.Record { return u.self }

// Close stops the read loop and closes the underlying socket.
func (u *UDPTransport) Close() error {
	var err error
	u.closeOnce.Do(func() {
		close(u.closed)
		err = u.conn.Close()
	})
	return err
}

func (u *UDPTransport) readLoop() {
	buf := make([]byte, maxPacketSize)
	for {
		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-u.closed:
				return
			default:
				continue
			}
		}
		if n == 0 {
			continue
		}
		pkt := append([]byte(nil), buf[:n]...)
		go u.handlePacket(addr, pkt)
	}
}

func (u *UDPTransport) handlePacket(addr net.Addr, pkt []byte) {
	code := message.Code(pkt[0])
	body := pkt[1:]
	switch code {
	case message.CodeKadPing:
		msg, err := message.DecodeKadPing(body)
		if err != nil {
			return
		}
		u.handlePing(addr, msg)
	case message.CodeKadPong:
		u.deliver(addr, code, body)
	case message.CodeFindNode:
		msg, err := message.DecodeFindNode(body)
		if err != nil {
			return
		}
		u.handleFindNode(addr, msg)
	case message.CodeNeighbors:
		u.deliver(addr, code, body)
	}
}

func (u *UDPTransport) handlePing(addr net.Addr, msg *message.KadPingMsg) {
	pong := &message.KadPongMsg{To: msg.From, EchoNonce: msg.EchoNonce, Timestamp: time.Now().Unix()}
	if err := u.send(addr, message.CodeKadPong, pong.Encode()); err != nil {
		udpLog.WithField("addr", addr.String()).WithField("err", err).Debug("pong send failed")
	}
	if u.table == nil {
		return
	}
	rec := enode.FromWire(msg.From, u.clock.Now())
	if host, _, err := net.SplitHostPort(addr.String()); err == nil {
		if ip := net.ParseIP(host); ip != nil {
			if ip4 := ip.To4(); ip4 != nil {
				rec.IPv4 = ip4
			} else {
				rec.IPv6 = ip
			}
		}
	}
	rec.NetworkID = u.networkID
	u.table.Add(rec)
}

func (u *UDPTransport) handleFindNode(addr net.Addr, msg *message.FindNodeMsg) {
	if u.table == nil {
		return
	}
	var target enode.ID
	copy(target[:], msg.Target[:])
	closest := u.table.closest(target, bucketSize)
	resp := &message.NeighborsMsg{Target: msg.Target}
	for _, n := range closest {
		resp.Nodes = append(resp.Nodes, n.Record.ToWire())
	}
	if err := u.send(addr, message.CodeNeighbors, resp.Encode()); err != nil {
		udpLog.WithField("addr", addr.String()).WithField("err", err).Debug("neighbors send failed")
	}
}

// Ping sends a PING to rec and waits for a matching PONG.
func (u *UDPTransport) Ping(ctx context.Context, rec *enode.Record) error {
	addr := rec.UDPAddr()
	nonce := rand.Uint64()
	msg := &message.KadPingMsg{From: u.self.ToWire(), To: rec.ToWire(), Timestamp: time.Now().Unix(), EchoNonce: nonce}

	ch := u.register(addr.String(), message.CodeKadPong)
	defer u.unregister(addr.String(), message.CodeKadPong)
	if err := u.send(addr, message.CodeKadPing, msg.Encode()); err != nil {
		return err
	}
	select {
	case body := <-ch:
		pong, err := message.DecodeKadPong(body)
		if err != nil {
			return err
		}
		if pong.EchoNonce != nonce {
			return errNonceMismatch
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FindNode sends a FIND_NODE to rec and returns the NEIGHBORS it replies
// with.
func (u *UDPTransport) FindNode(ctx context.Context, rec *enode.Record, target enode.ID) ([]*enode.Record, error) {
	addr := rec.UDPAddr()
	var t [32]byte
	copy(t[:], target[:])
	msg := &message.FindNodeMsg{Target: t}

	ch := u.register(addr.String(), message.CodeNeighbors)
	defer u.unregister(addr.String(), message.CodeNeighbors)
	if err := u.send(addr, message.CodeFindNode, msg.Encode()); err != nil {
		return nil, err
	}
	select {
	case body := <-ch:
		neigh, err := message.DecodeNeighbors(body)
		if err != nil {
			return nil, err
		}
		out := make([]*enode.Record, 0, len(neigh.Nodes))
		for _, nw := range neigh.Nodes {
			out = append(out, enode.FromWire(nw, u.clock.Now()))
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (u *UDPTransport) send(addr net.Addr, code message.Code, body []byte) error {
	pkt := make([]byte, 1+len(body))
	pkt[0] = byte(code)
	copy(pkt[1:], body)
	_, err := u.conn.WriteTo(pkt, addr)
	return err
}

func (u *UDPTransport) register(addr string, code message.Code) chan []byte {
	ch := make(chan []byte, 1)
	u.mu.Lock()
	u.pending[addr+"|"+code.String()] = ch
	u.mu.Unlock()
	return ch
}

func (u *UDPTransport) unregister(addr string, code message.Code) {
	u.mu.Lock()
	delete(u.pending, addr+"|"+code.String())
	u.mu.Unlock()
}

func (u *UDPTransport) deliver(addr net.Addr, code message.Code, body []byte) {
	key := addr.String() + "|" + code.String()
	u.mu.Lock()
	ch, ok := u.pending[key]
	u.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- body:
	default:
	}
}
