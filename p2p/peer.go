package p2p

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/XDagger/xdagj-p2p-go/common/mclock"
	"github.com/XDagger/xdagj-p2p-go/crypto"
)

// State is a channel's position in the lifecycle:
// Connecting -> Handshaking -> Active -> Closing -> Closed.
type State int32

const (
	StateConnecting State = iota
	StateHandshaking
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats holds the counters attached to every channel: frame-level
// totals plus the last observed round-trip time.
type Stats struct {
	BytesSent     uint64
	BytesReceived uint64
	FramesSent    uint64
	FramesReceived uint64
	LastRTT       int64 // nanoseconds; 0 until a ping/pong round completes
	LastActivity  int64 // mclock.AbsTime, as int64
}

func (s *Stats) addSent(n int) {
	atomic.AddUint64(&s.BytesSent, uint64(n))
	atomic.AddUint64(&s.FramesSent, 1)
}

func (s *Stats) addReceived(n int) {
	atomic.AddUint64(&s.BytesReceived, uint64(n))
	atomic.AddUint64(&s.FramesReceived, 1)
}

func (s *Stats) touch(now mclock.AbsTime) {
	atomic.StoreInt64(&s.LastActivity, int64(now))
}

func (s *Stats) recordRTT(d int64) {
	atomic.StoreInt64(&s.LastRTT, d)
}

// Snapshot returns a copy safe to read without racing the live counters.
func (s *Stats) Snapshot() Stats {
	return Stats{
		BytesSent:      atomic.LoadUint64(&s.BytesSent),
		BytesReceived:  atomic.LoadUint64(&s.BytesReceived),
		FramesSent:     atomic.LoadUint64(&s.FramesSent),
		FramesReceived: atomic.LoadUint64(&s.FramesReceived),
		LastRTT:        atomic.LoadInt64(&s.LastRTT),
		LastActivity:   atomic.LoadInt64(&s.LastActivity),
	}
}

// Peer is one TCP channel's full runtime record.
// It exists from the moment a connection is accepted or dialed and
// outlives the handshake; fields set only after a successful handshake
// (NodeID, Capabilities, ...) are zero-valued until then.
type Peer struct {
	conn   net.Conn
	remote net.Addr
	inet   string // remote IP, no port; used for ban/same-IP bookkeeping

	inbound bool // true if this channel was accepted, false if dialed

	mu          sync.RWMutex
	state       State
	nodeID      crypto.Address
	isTrustPeer bool
	clientID    string
	capabilities []string
	nodeTag     string
	latestBlock uint64

	startTime       mclock.AbsTime
	handshakeDoneAt mclock.AbsTime

	stats Stats
	queue *SendQueue
	tr    *Transport // set once, at the Handshaking->Active transition

	closeOnce sync.Once
	closed    chan struct{}
}

// NewPeer wraps an accepted or dialed connection in Connecting state.
func NewPeer(conn net.Conn, inbound bool, now mclock.AbsTime, queueCapacity int) *Peer {
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	p := &Peer{
		conn: conn, remote: conn.RemoteAddr(), inet: host,
		inbound: inbound, state: StateConnecting, startTime: now,
		closed: make(chan struct{}),
	}
	p.queue = NewSendQueue(conn, queueCapacity, &p.stats)
	return p
}

func (p *Peer) Conn() net.Conn      { return p.conn }
func (p *Peer) RemoteAddr() net.Addr { return p.remote }
func (p *Peer) IP() string          { return p.inet }
func (p *Peer) Inbound() bool       { return p.inbound }
func (p *Peer) StartTime() mclock.AbsTime { return p.startTime }

func (p *Peer) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Peer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// MarkHandshaking transitions Connecting -> Handshaking.
func (p *Peer) MarkHandshaking() { p.setState(StateHandshaking) }

// MarkActive transitions Handshaking -> Active and records the identity
// and capabilities the handshake learned.
func (p *Peer) MarkActive(nodeID crypto.Address, clientID string, capabilities []string, nodeTag string, latestBlock uint64, now mclock.AbsTime) {
	p.mu.Lock()
	p.state = StateActive
	p.nodeID = nodeID
	p.clientID = clientID
	p.capabilities = capabilities
	p.nodeTag = nodeTag
	p.latestBlock = latestBlock
	p.handshakeDoneAt = now
	p.mu.Unlock()
}

func (p *Peer) NodeID() crypto.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nodeID
}

func (p *Peer) ClientID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clientID
}

func (p *Peer) Capabilities() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.capabilities
}

func (p *Peer) SetTrustPeer(v bool) {
	p.mu.Lock()
	p.isTrustPeer = v
	p.mu.Unlock()
}

func (p *Peer) IsTrustPeer() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.isTrustPeer
}

func (p *Peer) attachTransport(t *Transport) {
	p.mu.Lock()
	if p.tr == nil {
		p.tr = t
	}
	p.mu.Unlock()
}

// Transport returns the pipeline serving this channel, or nil before the
// handshake completes.
func (p *Peer) Transport() *Transport {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.tr
}

func (p *Peer) Stats() *Stats { return &p.stats }

func (p *Peer) Queue() *SendQueue { return p.queue }

// IsClosed reports whether Close has already run to completion.
func (p *Peer) IsClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

// Close transitions to Closing then Closed, idempotently. Safe to call
// from any goroutine, any number of times, without double-closing the
// underlying connection.
func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.setState(StateClosing)
		p.queue.Close()
		err = p.conn.Close()
		p.setState(StateClosed)
		close(p.closed)
	})
	return err
}
