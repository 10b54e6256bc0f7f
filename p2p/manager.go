package p2p

import (
	"sync"
	"time"

	"github.com/XDagger/xdagj-p2p-go/common/mclock"
	"github.com/XDagger/xdagj-p2p-go/crypto"
	"github.com/XDagger/xdagj-p2p-go/internal/ttlcache"
	"github.com/XDagger/xdagj-p2p-go/internal/xlog"
	"github.com/XDagger/xdagj-p2p-go/message"
)

var managerLog = xlog.New("p2p/manager")

// Manager owns the channel table and enforces admission policy as an
// explicit type, independent of the rest of the server loop, so the
// admission algorithm can be unit tested on its own.
type Manager struct {
	cfg   *Config
	clock mclock.Clock
	bans  *BanStore

	mu        sync.RWMutex
	byAddr    map[crypto.Address]*Peer
	byIP      map[string]int
	selfAddr  crypto.Address
	shuttingDown bool

	recentDial *ttlcache.Cache[string, time.Time]

	// onEvict, when set, is invoked (outside the table lock) for a
	// registered channel that loses a nodeID dedup race, so the caller
	// can send DISCONNECT DUPLICATED_PEER_ID before closing it.
	onEvict func(p *Peer, reason message.ReasonCode)
}

// NewManager creates a channel manager for the given identity's address
// (used to reject self-connections, step 4).
func NewManager(cfg *Config, clock mclock.Clock, self crypto.Address) *Manager {
	if clock == nil {
		clock = mclock.System{}
	}
	return &Manager{
		cfg: cfg, clock: clock, bans: NewBanStore(),
		byAddr: make(map[crypto.Address]*Peer), byIP: make(map[string]int),
		selfAddr:   self,
		recentDial: ttlcache.New[string, time.Time](1024, cfg.RecentDialTTL),
	}
}

// Bans exposes the manager's ban store for the transport layer and any
// admin-facing RPCs to share.
func (m *Manager) Bans() *BanStore { return m.bans }

// SetEvictHandler installs the callback run when a registered channel is
// displaced by an earlier-started duplicate. Must be set before Admit is
// first called.
func (m *Manager) SetEvictHandler(f func(p *Peer, reason message.ReasonCode)) {
	m.onEvict = f
}

// BeginShutdown stops new admissions but keeps the ban store live for
// existing channels' disconnect bookkeeping ("graceful
// shutdown suppresses new bans, not existing ones").
func (m *Manager) BeginShutdown() {
	m.mu.Lock()
	m.shuttingDown = true
	m.mu.Unlock()
}

// Admit runs the ordered admission checks below and, on
// success, registers the channel in the table:
//  1. inbound channel from a banned IP -> reject
//  2. at MaxConnections -> reject
//  3. remote IP already at MaxConnectionsWithSameIP -> reject
//  4. remote nodeID equals our own -> reject
//  5. remote nodeID already connected -> the channel with the earlier
//     startTime wins; the later one is rejected, or evicted if it is
//     the one already registered
//
// Steps 1-3 are skipped for trust peers; once shutdown has begun every
// channel is rejected.
func (m *Manager) Admit(p *Peer) error {
	var evicted *Peer
	defer func() {
		if evicted != nil && m.onEvict != nil {
			m.onEvict(evicted, message.ReasonDuplicatePeer)
		}
	}()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shuttingDown {
		return ErrManagerClosed
	}
	// Trust peers bypass the ban store and both capacity limits; only the
	// identity checks (self-connect, nodeID dedup) still apply to them.
	if !p.IsTrustPeer() {
		if p.Inbound() {
			if reason, banned := m.bans.IsBanned(p.IP()); banned {
				managerLog.WithField("ip", p.IP()).WithField("reason", reason).Debug("rejecting banned ip")
				return ErrBannedIP
			}
		}
		if len(m.byAddr) >= m.cfg.MaxConnections {
			return ErrTooManyPeers
		}
		if m.byIP[p.IP()] >= m.cfg.MaxConnectionsWithSameIP {
			return ErrTooManyPeersWithSameIP
		}
	}
	nodeID := p.NodeID()
	if nodeID == m.selfAddr {
		return ErrSelfConnect
	}
	if existing, ok := m.byAddr[nodeID]; ok {
		if existing.StartTime() <= p.StartTime() {
			return ErrAlreadyConnected
		}
		// The existing channel loses; evict it before admitting p.
		m.removeLocked(existing)
		evicted = existing
	}

	m.byAddr[nodeID] = p
	m.byIP[p.IP()]++
	return nil
}

// Remove unregisters a channel from the table. Safe to call for a
// channel that was never admitted or already removed.
func (m *Manager) Remove(p *Peer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(p)
}

func (m *Manager) removeLocked(p *Peer) {
	nodeID := p.NodeID()
	if existing, ok := m.byAddr[nodeID]; ok && existing == p {
		delete(m.byAddr, nodeID)
		if m.byIP[p.IP()] > 0 {
			m.byIP[p.IP()]--
			if m.byIP[p.IP()] == 0 {
				delete(m.byIP, p.IP())
			}
		}
	}
}

// Ban records an offense against a channel's IP, applying graduated
// durations; it is a no-op once shutdown has begun. It does not close p
// or any other channel from that IP: callers disconnect the channel
// themselves.
func (m *Manager) Ban(p *Peer, reason message.ReasonCode) {
	m.mu.RLock()
	shuttingDown := m.shuttingDown
	m.mu.RUnlock()
	if shuttingDown {
		return
	}
	duration := reason.DefaultBanDuration()
	if duration <= 0 {
		duration = m.cfg.DefaultBanDuration
	}
	m.bans.Ban(p.IP(), duration, reason)
}

// Peer looks up an active channel by node address.
func (m *Manager) Peer(addr crypto.Address) (*Peer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byAddr[addr]
	return p, ok
}

// Peers returns a snapshot of every currently registered channel.
func (m *Manager) Peers() []*Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Peer, 0, len(m.byAddr))
	for _, p := range m.byAddr {
		out = append(out, p)
	}
	return out
}

// Count returns the number of currently registered channels.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byAddr)
}

// MarkDialed records that we recently dialed addr, so the dial loop
// doesn't immediately redial it.
func (m *Manager) MarkDialed(addr string) {
	m.recentDial.Add(addr, time.Now())
}

// RecentlyDialed reports whether addr was dialed within RecentDialTTL.
func (m *Manager) RecentlyDialed(addr string) bool {
	return m.recentDial.Contains(addr)
}
