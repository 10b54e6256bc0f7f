package dnsdisc

import (
	"math/rand"
	"sync"

	"github.com/XDagger/xdagj-p2p-go/enode"
)

// RandomIterator round-robins across a set of synced trees and, on each
// Next, follows a random root-to-leaf path in the tree whose turn it is.
// It is a lazy, restartable stream: it never terminates on its own, and
// yields nothing once a tree's cached nodes subtree is exhausted or was
// never synced, without treating that as an error.
type RandomIterator struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	clients []*Client
	urls    []string
	next    int
}

// NewRandomIterator seeds the iterator's source of randomness; callers
// pass a fixed seed only in tests, where determinism matters.
func NewRandomIterator(seed int64) *RandomIterator {
	return &RandomIterator{rnd: rand.New(rand.NewSource(seed))}
}

// AddTree registers a synced client/url pair as a source; c.SyncTree(url)
// must have succeeded at least once before Next can yield anything for it.
func (it *RandomIterator) AddTree(c *Client, url string) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.clients = append(it.clients, c)
	it.urls = append(it.urls, url)
}

// Next returns the next node record in round-robin order, or false if no
// tree currently has a reachable record (e.g. none has synced yet).
func (it *RandomIterator) Next() (*enode.Record, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	n := len(it.clients)
	if n == 0 {
		return nil, false
	}
	for i := 0; i < n; i++ {
		idx := (it.next + i) % n
		rec := it.clients[idx].randomNode(it.rnd.Intn, it.urls[idx])
		if rec != nil {
			it.next = (idx + 1) % n
			return rec, true
		}
	}
	it.next = (it.next + 1) % n
	return nil, false
}
