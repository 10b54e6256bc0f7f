package dnsdisc

import "github.com/XDagger/xdagj-p2p-go/enode"

// Source adapts a RandomIterator to the dial pool's NodeSource interface
// (Candidates(n int) []*enode.Record), so a DNS-tree iterator can be
// registered as a dial candidate source the same way a discover.Table is.
type Source struct {
	it *RandomIterator
}

// NewSource wraps it for use as a dial-candidate source.
func NewSource(it *RandomIterator) *Source {
	return &Source{it: it}
}

// Candidates draws up to n records from the iterator; fewer than n is
// returned once the iterator has no reachable record left to offer in a
// full round, rather than blocking or erroring.
func (s *Source) Candidates(n int) []*enode.Record {
	out := make([]*enode.Record, 0, n)
	for i := 0; i < n; i++ {
		rec, ok := s.it.Next()
		if !ok {
			break
		}
		out = append(out, rec)
	}
	return out
}
