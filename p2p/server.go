// Package p2p implements the channel manager, send queue, keep-alive, and
// orchestrator components of the peer-to-peer runtime: a Server type
// that owns a listener, a dial pool, and a Manager holding the channel
// table and ban store.
package p2p

import (
	"context"
	"net"
	"sync"

	"github.com/XDagger/xdagj-p2p-go/common/mclock"
	"github.com/XDagger/xdagj-p2p-go/crypto"
	"github.com/XDagger/xdagj-p2p-go/enode"
	"github.com/XDagger/xdagj-p2p-go/handshake"
	"github.com/XDagger/xdagj-p2p-go/internal/xlog"
	"github.com/XDagger/xdagj-p2p-go/message"
)

var serverLog = xlog.New("p2p/server")

// Server is the top-level orchestrator: it owns the
// listener, the channel manager, the dial pool, and the handler plane,
// and sequences their startup and shutdown.
type Server struct {
	cfg      *Config
	identity *crypto.Identity
	clock    mclock.Clock

	Manager  *Manager
	Handlers *HandlerPlane
	dialer   *Dialer
	policy   *PolicyRunner

	sources []NodeSource
	nodeDB  *enode.DB

	mu       sync.Mutex
	listener net.Listener
	running  bool
	wg       sync.WaitGroup
	quit     chan struct{}
}

// NewServer wires a Server from config, a node identity, and the set of
// dial-candidate sources (discovery, DNS, static). nodeDB is optional
// (nil disables on-disk node persistence).
func NewServer(cfg *Config, identity *crypto.Identity, sources []NodeSource, nodeDB *enode.DB) *Server {
	clock := mclock.System{}
	manager := NewManager(cfg, clock, identity.Address())
	s := &Server{
		cfg: cfg, identity: identity, clock: clock,
		Manager: manager, Handlers: NewHandlerPlane(),
		sources: sources, nodeDB: nodeDB,
		quit: make(chan struct{}),
	}
	manager.SetEvictHandler(s.disconnectChannel)
	s.policy = NewPolicyRunner(cfg, manager, nil, s.disconnectChannel)
	return s
}

// SetDisconnectPolicy installs an additional per-peer policy evaluated by
// the periodic sweep (the built-in random churn at the connection cap
// runs regardless); must be called before Start.
func (s *Server) SetDisconnectPolicy(p DisconnectPolicy) {
	s.policy.policy = p
}

// Start brings the server up in order: open the
// listener, start accepting, start the dial pool, start the disconnect
// policy sweep.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.running = true

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.dialer = NewDialer(s.cfg, s.Manager, s.sources, DefaultDial, s.handleDialed)
	s.dialer.Start()
	s.policy.Start()

	serverLog.WithField("addr", ln.Addr().String()).Info("p2p server started")
	return nil
}

// Stop brings the server down in reverse order: stop the dial pool and
// policy sweep first (no new work admitted), close the listener (no new
// inbound), then disconnect every active channel, then wait for the
// accept loop to exit.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	if s.dialer != nil {
		s.dialer.Stop()
	}
	s.policy.Stop()

	s.Manager.BeginShutdown()
	close(s.quit)
	s.listener.Close()

	for _, p := range s.Manager.Peers() {
		s.disconnectChannel(p, message.ReasonRequested)
	}

	s.wg.Wait()
	if s.nodeDB != nil {
		s.nodeDB.Close()
	}
	serverLog.Info("p2p server stopped")
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				serverLog.WithField("err", err).Debug("accept error")
				continue
			}
		}
		s.wg.Add(1)
		go s.handleInbound(conn)
	}
}

func (s *Server) handleInbound(conn net.Conn) {
	defer s.wg.Done()
	s.runChannel(conn, true)
}

func (s *Server) handleDialed(conn net.Conn, rec *enode.Record) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runChannel(conn, false)
	}()
}

// DialNode dials a single known node directly, bypassing the dial pool;
// useful for manually-added trusted peers.
func (s *Server) DialNode(ctx context.Context, addr *net.TCPAddr) error {
	conn, err := DefaultDial(ctx, addr)
	if err != nil {
		return err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runChannel(conn, false)
	}()
	return nil
}

func (s *Server) runChannel(conn net.Conn, inbound bool) {
	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	isTrust := false
	for _, trusted := range s.cfg.TrustPeers {
		if trusted == host {
			isTrust = true
			break
		}
	}
	if inbound && !isTrust {
		if reason, banned := s.Manager.Bans().IsBanned(host); banned {
			serverLog.WithField("ip", host).WithField("reason", reason).Debug("rejecting banned ip before handshake")
			conn.Close()
			return
		}
	}

	peer := NewPeer(conn, inbound, s.clock.Now(), s.cfg.SendQueueCapacity)
	peer.SetTrustPeer(isTrust)
	peer.MarkHandshaking()

	role := handshake.RoleResponder
	if !inbound {
		role = handshake.RoleInitiator
	}
	hsCfg := &handshake.Config{
		NetworkID: s.cfg.NetworkID, NetworkVersion: s.cfg.NetworkVersion,
		Identity: s.identity, ClientID: s.cfg.ClientID, Capabilities: s.cfg.Capabilities,
		NodeTag: s.cfg.NodeTag, Timeout: s.cfg.HandshakeTimeout, Expiry: s.cfg.HandshakeExpiry,
		ListenPort: listenPort(s.cfg.ListenAddr),
	}
	if s.cfg.LatestBlockNumber != nil {
		hsCfg.LatestBlockNumber = s.cfg.LatestBlockNumber()
	}

	result, err := handshake.Run(conn, role, hsCfg)
	if err != nil {
		serverLog.WithField("ip", host).WithField("err", err).Debug("handshake failed")
		if hsErr, ok := err.(*handshake.Error); ok {
			if banReason, shouldBan := handshakeBanReason(hsErr.Reason); shouldBan {
				// We are the rejecting side: tell the peer why before
				// closing, then record the offense under the catalog's
				// ban reason, not the wire disconnect reason.
				msg := &message.DisconnectMsg{Reason: hsErr.Reason}
				peer.Queue().SendPriority(message.CodeDisconnect, msg.Encode())
				s.Manager.Ban(peer, banReason)
			}
		}
		peer.Close()
		return
	}

	peer.MarkActive(result.PeerAddress, result.PeerClientID, result.PeerCapabilities, result.PeerNodeTag, result.PeerLatestBlockNumber, s.clock.Now())

	if err := s.Manager.Admit(peer); err != nil {
		serverLog.WithField("nodeId", result.PeerAddress.String()).WithField("err", err).Debug("admission rejected")
		msg := &message.DisconnectMsg{Reason: admissionReason(err)}
		peer.Queue().SendPriority(message.CodeDisconnect, msg.Encode())
		peer.Close()
		return
	}

	tr := NewTransport(peer, s.Manager, s.Handlers, s.clock, s.cfg, nil)
	tr.Serve()
}

// handshakeBanReason maps a local handshake-validation failure to the ban
// reason it is recorded under. Reasons carried in a DISCONNECT the peer
// itself sent mid-handshake (TOO_MANY_PEERS and the like) mean the remote
// turned us away; those yield no ban at all.
func handshakeBanReason(r message.ReasonCode) (message.ReasonCode, bool) {
	switch r {
	case message.ReasonBadNetwork, message.ReasonBadNetworkVersion:
		return message.ReasonIncompatibleProtocol, true
	case message.ReasonInvalidHandshake:
		return message.ReasonProtocolViolation, true
	case message.ReasonHandshakeTimeout:
		return message.ReasonHandshakeTimeout, true
	case message.ReasonProtocolViolation:
		return message.ReasonProtocolViolation, true
	default:
		return 0, false
	}
}

// admissionReason maps a Manager.Admit rejection to the DISCONNECT
// reason told to the peer being turned away.
func admissionReason(err error) message.ReasonCode {
	switch err {
	case ErrBannedIP:
		return message.ReasonTimeBanned
	case ErrTooManyPeers:
		return message.ReasonTooManyPeers
	case ErrTooManyPeersWithSameIP:
		return message.ReasonMaxConnectionWithSameIP
	case ErrAlreadyConnected, ErrSelfConnect:
		return message.ReasonDuplicatePeer
	default:
		return message.ReasonRequested
	}
}

func (s *Server) disconnectChannel(p *Peer, reason message.ReasonCode) {
	if tr := p.Transport(); tr != nil {
		tr.Disconnect(reason)
		return
	}
	// No pipeline was ever installed (handshake-stage channel); tell the
	// peer why and drop the socket directly.
	msg := &message.DisconnectMsg{Reason: reason}
	p.Queue().SendPriority(message.CodeDisconnect, msg.Encode())
	p.Close()
	s.Manager.Remove(p)
}

// Peers returns a snapshot of every active channel.
func (s *Server) Peers() []*Peer { return s.Manager.Peers() }

// PeerCount returns the number of active channels.
func (s *Server) PeerCount() int { return s.Manager.Count() }

func listenPort(addr string) uint16 {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	var port uint16
	for _, c := range portStr {
		if c < '0' || c > '9' {
			return 0
		}
		port = port*10 + uint16(c-'0')
	}
	return port
}
