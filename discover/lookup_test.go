package discover

import (
	"context"
	"testing"

	"github.com/XDagger/xdagj-p2p-go/enode"
)

// buildChain seeds a fake transport with n records that each know only the
// next one, so an iterative lookup must hop through all of them to reach
// the record closest to target.
func buildChain(t *testing.T, ft *fakeTransport, n int) []*enode.Record {
	t.Helper()
	recs := make([]*enode.Record, n)
	for i := 0; i < n; i++ {
		recs[i] = testRecord(t, randID(t), byte(10+i))
	}
	for i := 0; i < n-1; i++ {
		ft.neighbors[recs[i].ID] = []*enode.Record{recs[i+1]}
	}
	return recs
}

func TestLookupFollowsChainToTarget(t *testing.T) {
	self := testRecord(t, randID(t), 1)
	ft := newFakeTransport()
	tab := NewTable(self, ft, nil, nil, nil)

	var target enode.ID
	copy(target[:], self.ID[:])
	target[0] ^= 0xFF

	chain := buildChain(t, ft, 4)
	tab.Add(chain[0])
	waitAlive(t, tab, 1)

	found := tab.Lookup(context.Background(), target)
	seen := make(map[enode.ID]bool)
	for _, r := range found {
		seen[r.ID] = true
	}
	for _, r := range chain {
		if !seen[r.ID] {
			t.Fatalf("lookup never reached node seeded at distance from target: %s", r.ID)
		}
	}
}

func TestLookupEmptyTableReturnsEmpty(t *testing.T) {
	self := testRecord(t, randID(t), 1)
	tab := NewTable(self, newFakeTransport(), nil, nil, nil)

	var target enode.ID
	rid := randID(t)
	copy(target[:], rid[:])
	found := tab.Lookup(context.Background(), target)
	if len(found) != 0 {
		t.Fatalf("expected no results from an empty table, got %d", len(found))
	}
}

func TestLookupRespectsCancelledContext(t *testing.T) {
	self := testRecord(t, randID(t), 1)
	ft := newFakeTransport()
	tab := NewTable(self, ft, nil, nil, nil)

	var target enode.ID
	copy(target[:], self.ID[:])
	target[0] ^= 0xFF

	chain := buildChain(t, ft, 4)
	tab.Add(chain[0])
	waitAlive(t, tab, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	found := tab.Lookup(ctx, target)
	if len(found) == 0 {
		t.Fatal("a cancelled lookup should still return what the table already holds")
	}
}
