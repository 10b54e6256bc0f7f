package p2p

import (
	"context"
	"net"
	"time"

	"github.com/XDagger/xdagj-p2p-go/enode"
	"github.com/XDagger/xdagj-p2p-go/internal/xlog"
)

var dialLog = xlog.New("p2p/dial")

// NodeSource abstracts wherever dial candidates come from: the DHT
// lookup table (discover), DNS-tree discovery (dnsdisc), or a static
// seed list. The dial loop sources candidates from all three
// uniformly and doesn't care which produced any given one.
type NodeSource interface {
	Candidates(n int) []*enode.Record
}

// StaticSource is a fixed, never-changing list of seed nodes.
type StaticSource []*enode.Record

func (s StaticSource) Candidates(n int) []*enode.Record {
	if n >= len(s) {
		return append([]*enode.Record(nil), s...)
	}
	return append([]*enode.Record(nil), s[:n]...)
}

// DialFunc dials one candidate and returns a raw connection; the caller
// runs the handshake and registers the resulting channel. Separated out
// so the dial loop is testable without real sockets.
type DialFunc func(ctx context.Context, addr *net.TCPAddr) (net.Conn, error)

// Dialer runs the periodic dial pool loop, every DialLoopInterval (and
// once immediately on Start): if the channel table is below
// MinConnections, it pulls candidates from its sources and dials
// whichever haven't been dialed within RecentDialTTL.
type Dialer struct {
	cfg     *Config
	manager *Manager
	sources []NodeSource
	dial    DialFunc
	onDial  func(conn net.Conn, rec *enode.Record)

	stop chan struct{}
	done chan struct{}
}

// NewDialer wires the dial pool to its candidate sources and a dial
// function; onDial is invoked for each successfully dialed connection
// so the caller can run the handshake and admit the resulting channel.
func NewDialer(cfg *Config, manager *Manager, sources []NodeSource, dial DialFunc, onDial func(net.Conn, *enode.Record)) *Dialer {
	return &Dialer{cfg: cfg, manager: manager, sources: sources, dial: dial, onDial: onDial, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start runs the dial loop in its own goroutine until Stop is called.
func (d *Dialer) Start() {
	go d.loop()
}

func (d *Dialer) loop() {
	defer close(d.done)
	d.tick()
	ticker := time.NewTicker(d.cfg.DialLoopInterval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Dialer) tick() {
	need := d.cfg.MinConnections - d.manager.Count()
	if need <= 0 {
		return
	}
	for _, src := range d.sources {
		if need <= 0 {
			break
		}
		for _, rec := range src.Candidates(need * 2) {
			if need <= 0 {
				break
			}
			if !rec.Dialable() {
				continue
			}
			tcpAddr := rec.TCPAddr()
			if tcpAddr == nil {
				continue
			}
			key := tcpAddr.String()
			if d.manager.RecentlyDialed(key) {
				continue
			}
			if _, banned := d.manager.Bans().IsBanned(tcpAddr.IP.String()); banned {
				continue
			}
			if !rec.Address.IsZero() {
				if _, connected := d.manager.Peer(rec.Address); connected {
					continue
				}
			}
			d.manager.MarkDialed(key)
			need--
			go d.dialOne(tcpAddr, rec)
		}
	}
}

func (d *Dialer) dialOne(addr *net.TCPAddr, rec *enode.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.DialTimeout)
	defer cancel()
	conn, err := d.dial(ctx, addr)
	if err != nil {
		dialLog.WithField("addr", addr.String()).WithField("err", err).Debug("dial failed")
		return
	}
	d.onDial(conn, rec)
}

// Stop halts the dial loop and waits for it to exit.
func (d *Dialer) Stop() {
	close(d.stop)
	<-d.done
}

// DefaultDial is the DialFunc used in production: a plain TCP dial
// respecting the context deadline.
func DefaultDial(ctx context.Context, addr *net.TCPAddr) (net.Conn, error) {
	var dialer net.Dialer
	return dialer.DialContext(ctx, "tcp", addr.String())
}
