// Package discover implements the Kademlia-style DHT that finds other
// nodes reachable over UDP: a bounded routing table, PING/PONG liveness
// checks, and an iterative FIND_NODE/NEIGHBORS lookup.
package discover

import (
	"github.com/XDagger/xdagj-p2p-go/common/mclock"
	"github.com/XDagger/xdagj-p2p-go/enode"
)

// State is a routing-table entry's position in the admission lifecycle.
type State int32

const (
	StateDiscovered State = iota // learned from a NEIGHBORS response or inbound PING; unverified
	StateAlive                   // responded to a PING within the challenge window
	StateEvictCandidate          // selected for replacement; a challenge PING is in flight
	StateDead                    // exceeded timeout/retries; eligible for removal
)

func (s State) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateAlive:
		return "alive"
	case StateEvictCandidate:
		return "evict-candidate"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Node is one routing-table entry: a node record plus the bookkeeping
// the admission and revalidation algorithms need.
type Node struct {
	Record   *enode.Record
	State    State
	LastSeen mclock.AbsTime
	Fails    int // consecutive ping timeouts while Alive
}

// ID returns the node's routing key.
func (n *Node) ID() enode.ID { return n.Record.ID }
