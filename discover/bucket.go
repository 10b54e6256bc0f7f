package discover

import "github.com/XDagger/xdagj-p2p-go/enode"

// bucketSize is k, the maximum number of live entries per bucket.
const bucketSize = 16

// bucket is a bounded LRU of nodes at one XOR-distance class. entries[0]
// is most-recently-seen; entries[len-1] is the eviction candidate.
type bucket struct {
	entries []*Node
}

func (b *bucket) find(id enode.ID) (*Node, int) {
	for i, n := range b.entries {
		if n.ID() == id {
			return n, i
		}
	}
	return nil, -1
}

// bump moves the entry at i to the front, marking it most-recently-seen.
func (b *bucket) bump(i int) {
	if i <= 0 {
		return
	}
	n := b.entries[i]
	copy(b.entries[1:i+1], b.entries[:i])
	b.entries[0] = n
}

func (b *bucket) removeAt(i int) {
	b.entries = append(b.entries[:i], b.entries[i+1:]...)
}

// least returns the least-recently-seen entry, the eviction candidate
// when the bucket is full.
func (b *bucket) least() *Node {
	if len(b.entries) == 0 {
		return nil
	}
	return b.entries[len(b.entries)-1]
}

func (b *bucket) pushFront(n *Node) {
	b.entries = append(b.entries, nil)
	copy(b.entries[1:], b.entries[:len(b.entries)-1])
	b.entries[0] = n
}
