package discover

import (
	"context"
	cryptorand "crypto/rand"
	mrand "math/rand"
	"sort"
	"sync"
	"time"

	"github.com/XDagger/xdagj-p2p-go/common/mclock"
	"github.com/XDagger/xdagj-p2p-go/crypto"
	"github.com/XDagger/xdagj-p2p-go/enode"
	"github.com/XDagger/xdagj-p2p-go/internal/xlog"
)

var tableLog = xlog.New("discover/table")

const (
	// numBuckets is the routing key width in bits: one bucket per
	// possible leading-zero-bit count of an XOR distance.
	numBuckets = crypto.RoutingIDLength * 8

	lookupAlpha = 3 // concurrency factor for iterative FIND_NODE

	defaultPingTimeout       = 500 * time.Millisecond
	defaultEvictTimeout      = 500 * time.Millisecond
	defaultDiscoveryInterval = 7200 * time.Millisecond
	defaultRevalidateInterval = 10 * time.Second
	defaultRefreshInterval   = 7200 * time.Second

	maxRevalidateFails = 3 // consecutive PING timeouts before an Alive node is marked Dead
)

// Transport is the UDP operation set the routing table drives; UDPTransport
// is the production implementation, fakes stand in for tests.
type Transport interface {
	Ping(ctx context.Context, rec *enode.Record) error
	FindNode(ctx context.Context, rec *enode.Record, target enode.ID) ([]*enode.Record, error)
}

// Table is the Kademlia routing table: numBuckets buckets indexed by
// leading-zero-bit count of xor(selfID, nodeID), each a bounded LRU of
// verified node handles. No node appears in two buckets, and the local
// node never appears in the table.
type Table struct {
	mu        sync.Mutex
	buckets   [numBuckets]*bucket
	self      *enode.Record
	net       Transport
	db        *enode.DB
	clock     mclock.Clock
	networkID uint8

	pingTimeout        time.Duration
	evictTimeout       time.Duration
	discoveryInterval  time.Duration
	revalidateInterval time.Duration
	refreshInterval    time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewTable creates a routing table for self, seeded with bootnodes.
func NewTable(self *enode.Record, transport Transport, db *enode.DB, clock mclock.Clock, bootnodes []*enode.Record) *Table {
	if clock == nil {
		clock = mclock.System{}
	}
	tab := &Table{
		self: self, net: transport, db: db, clock: clock, networkID: self.NetworkID,
		pingTimeout: defaultPingTimeout, evictTimeout: defaultEvictTimeout,
		discoveryInterval: defaultDiscoveryInterval, revalidateInterval: defaultRevalidateInterval,
		refreshInterval: defaultRefreshInterval,
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
	for i := range tab.buckets {
		tab.buckets[i] = &bucket{}
	}
	for _, n := range bootnodes {
		tab.Add(n)
	}
	return tab
}

// Self returns the local node record.
func (tab *Table) Self() *enode.Record { return tab.self }

// Start runs the discovery and revalidation tasks until Close is called.
func (tab *Table) Start() {
	go tab.loop()
}

// Close stops the background tasks and waits for them to exit.
func (tab *Table) Close() {
	close(tab.stop)
	<-tab.done
}

func (tab *Table) loop() {
	defer close(tab.done)
	discoveryTicker := time.NewTicker(tab.discoveryInterval)
	revalidateTicker := time.NewTicker(tab.revalidateInterval)
	refreshTicker := time.NewTicker(tab.refreshInterval)
	defer discoveryTicker.Stop()
	defer revalidateTicker.Stop()
	defer refreshTicker.Stop()

	tab.runDiscovery()
	for {
		select {
		case <-tab.stop:
			return
		case <-discoveryTicker.C:
			tab.runDiscovery()
		case <-revalidateTicker.C:
			tab.revalidate()
		case <-refreshTicker.C:
			tab.refreshStaleBuckets()
		}
	}
}

// refreshStaleBuckets force-refreshes every non-empty bucket whose newest
// entry hasn't been seen within refreshInterval, by looking up a random
// ID inside that bucket's distance range.
func (tab *Table) refreshStaleBuckets() {
	now := tab.clock.Now()
	var stale []int
	tab.mu.Lock()
	for i, b := range tab.buckets {
		if len(b.entries) == 0 {
			continue
		}
		newest := mclock.AbsTime(0)
		for _, n := range b.entries {
			if n.LastSeen > newest {
				newest = n.LastSeen
			}
		}
		if now.Sub(newest) >= tab.refreshInterval {
			stale = append(stale, i)
		}
	}
	tab.mu.Unlock()
	for _, i := range stale {
		tab.Lookup(context.Background(), tab.randomIDInBucket(i))
	}
}

// randomIDInBucket returns a random ID whose XOR distance from the local
// ID falls in bucket idx: the first idx bits match the local ID, bit idx
// differs, and the rest are random.
func (tab *Table) randomIDInBucket(idx int) enode.ID {
	var id enode.ID
	cryptorand.Read(id[:])
	byteIdx := idx / 8
	topBits := idx % 8
	prefixMask := byte(0xFF) << (8 - topBits)
	flipBit := byte(0x80) >> topBits
	for i := 0; i < byteIdx; i++ {
		id[i] = tab.self.ID[i]
	}
	id[byteIdx] = (tab.self.ID[byteIdx] & prefixMask) |
		(^tab.self.ID[byteIdx] & flipBit) |
		(id[byteIdx] &^ (prefixMask | flipBit))
	return id
}

func (tab *Table) bucketFor(id enode.ID) *bucket {
	return tab.buckets[bucketIndex(tab.self.ID, id)]
}

// Add runs the admission algorithm for a node learned from a NEIGHBORS
// response or an inbound PING:
//  1. already present -> refresh last-seen.
//  2. bucket has room -> insert Discovered, ping it; on PONG, Alive.
//  3. bucket full -> challenge the least-recently-seen entry; if it
//     answers within evictTimeout, drop the newcomer and refresh the
//     incumbent, else mark it Dead, remove it, and promote the newcomer.
//
// Loopback/self addresses and nodes on an incompatible network are
// excluded before the algorithm runs.
func (tab *Table) Add(rec *enode.Record) {
	if rec == nil || rec.ID == tab.self.ID {
		return
	}
	if rec.NetworkID != tab.networkID {
		return
	}
	ip := rec.PreferredIP()
	if ip == nil || ip.IsLoopback() {
		return
	}
	tab.admit(rec)
}

func (tab *Table) admit(rec *enode.Record) {
	tab.mu.Lock()
	defer tab.mu.Unlock()

	b := tab.bucketFor(rec.ID)
	if n, i := b.find(rec.ID); n != nil {
		n.Record = rec
		n.LastSeen = tab.clock.Now()
		b.bump(i)
		return
	}
	if len(b.entries) < bucketSize {
		n := &Node{Record: rec, State: StateDiscovered, LastSeen: tab.clock.Now()}
		b.pushFront(n)
		go tab.pingNewNode(n)
		return
	}
	lru := b.least()
	if lru == nil {
		return
	}
	lru.State = StateEvictCandidate
	go tab.challenge(rec, lru.ID())
}

func (tab *Table) pingNewNode(n *Node) {
	ctx, cancel := context.WithTimeout(context.Background(), tab.pingTimeout)
	defer cancel()
	err := tab.net.Ping(ctx, n.Record)

	tab.mu.Lock()
	defer tab.mu.Unlock()
	b := tab.bucketFor(n.ID())
	if _, i := b.find(n.ID()); i >= 0 {
		if err != nil {
			b.removeAt(i)
			return
		}
		n.State = StateAlive
		n.LastSeen = tab.clock.Now()
		n.Fails = 0
		if tab.db != nil {
			tab.db.UpdateNode(n.Record)
		}
	}
}

func (tab *Table) challenge(newcomer *enode.Record, incumbentID enode.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), tab.evictTimeout)
	defer cancel()

	tab.mu.Lock()
	b := tab.bucketFor(incumbentID)
	incumbent, _ := b.find(incumbentID)
	tab.mu.Unlock()
	if incumbent == nil {
		return
	}
	err := tab.net.Ping(ctx, incumbent.Record)

	tab.mu.Lock()
	defer tab.mu.Unlock()
	b = tab.bucketFor(incumbentID)
	if n, idx := b.find(incumbentID); idx >= 0 {
		if err == nil {
			n.State = StateAlive
			n.LastSeen = tab.clock.Now()
			n.Fails = 0
			b.bump(idx)
			return // incumbent survives, newcomer dropped
		}
		n.State = StateDead
		b.removeAt(idx)
		tableLog.WithField("id", incumbentID.String()).Debug("evicted dead bucket entry")
	}
	if len(b.entries) < bucketSize {
		node := &Node{Record: newcomer, State: StateDiscovered, LastSeen: tab.clock.Now()}
		b.pushFront(node)
		go tab.pingNewNode(node)
	}
}

// revalidate PINGs a randomly selected Alive node; on maxRevalidateFails
// consecutive timeouts it is marked Dead and evicted.
func (tab *Table) revalidate() {
	tab.mu.Lock()
	var candidates []*Node
	for _, b := range tab.buckets {
		for _, n := range b.entries {
			if n.State == StateAlive {
				candidates = append(candidates, n)
			}
		}
	}
	tab.mu.Unlock()
	if len(candidates) == 0 {
		return
	}
	target := candidates[mrand.Intn(len(candidates))]

	ctx, cancel := context.WithTimeout(context.Background(), tab.pingTimeout)
	defer cancel()
	err := tab.net.Ping(ctx, target.Record)

	tab.mu.Lock()
	defer tab.mu.Unlock()
	b := tab.bucketFor(target.ID())
	n, i := b.find(target.ID())
	if i < 0 {
		return
	}
	if err != nil {
		n.Fails++
		if n.Fails >= maxRevalidateFails {
			n.State = StateDead
			b.removeAt(i)
		}
		return
	}
	n.Fails = 0
	n.LastSeen = tab.clock.Now()
	b.bump(i)
}

func (tab *Table) runDiscovery() {
	var target enode.ID
	if _, err := cryptorand.Read(target[:]); err != nil {
		return
	}
	tab.Lookup(context.Background(), target)
}

// closest returns up to n Alive nodes ordered by distance to target.
func (tab *Table) closest(target enode.ID, n int) []*Node {
	tab.mu.Lock()
	defer tab.mu.Unlock()
	var all []*Node
	for _, b := range tab.buckets {
		for _, node := range b.entries {
			if node.State == StateAlive {
				all = append(all, node)
			}
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return distanceLess(target, all[i].ID(), all[j].ID())
	})
	if len(all) > n {
		all = all[:n]
	}
	return all
}

// Candidates returns up to n Alive node records, satisfying the dial
// pool's NodeSource interface without this package importing it.
func (tab *Table) Candidates(n int) []*enode.Record {
	tab.mu.Lock()
	defer tab.mu.Unlock()
	out := make([]*enode.Record, 0, n)
	for _, b := range tab.buckets {
		for _, node := range b.entries {
			if len(out) >= n {
				return out
			}
			if node.State == StateAlive {
				out = append(out, node.Record)
			}
		}
	}
	return out
}

// AliveCount returns the total number of Alive entries across all buckets.
func (tab *Table) AliveCount() int {
	tab.mu.Lock()
	defer tab.mu.Unlock()
	n := 0
	for _, b := range tab.buckets {
		for _, node := range b.entries {
			if node.State == StateAlive {
				n++
			}
		}
	}
	return n
}
