package discover

import (
	"context"
	"sort"
	"sync"

	"github.com/XDagger/xdagj-p2p-go/enode"
)

type lookupEntry struct {
	rec     *enode.Record
	queried bool
}

// Lookup performs an iterative FIND_NODE search for the nodes closest to
// target: seed from the local table's alive entries, query the alpha
// closest unqueried candidates, merge the results (admitting every new
// node into the routing table along the way), and repeat until a round
// yields no node that was not already seen or ctx is done. A round that
// only returns new nodes farther than the current candidates still counts
// as progress; the search does not stop early on "no closer node".
func (tab *Table) Lookup(ctx context.Context, target enode.ID) []*enode.Record {
	seen := make(map[enode.ID]*lookupEntry)
	var result []*lookupEntry

	tab.mu.Lock()
	for _, b := range tab.buckets {
		for _, n := range b.entries {
			if n.State != StateAlive {
				continue
			}
			e := &lookupEntry{rec: n.Record}
			seen[n.ID()] = e
			result = append(result, e)
		}
	}
	tab.mu.Unlock()

	sortByDistance(result, target)
	if len(result) > bucketSize {
		result = result[:bucketSize]
	}

	for {
		toQuery := pickUnqueried(result, lookupAlpha)
		if len(toQuery) == 0 {
			break
		}
		replies := make([][]*enode.Record, len(toQuery))
		var wg sync.WaitGroup
		for i, e := range toQuery {
			e.queried = true
			wg.Add(1)
			go func(i int, rec *enode.Record) {
				defer wg.Done()
				nodes, err := tab.net.FindNode(ctx, rec, target)
				if err == nil {
					replies[i] = nodes
				}
			}(i, e.rec)
		}
		wg.Wait()

		improved := false
		for _, nodes := range replies {
			for _, rec := range nodes {
				if rec == nil || rec.ID == tab.self.ID {
					continue
				}
				if _, ok := seen[rec.ID]; ok {
					continue
				}
				e := &lookupEntry{rec: rec}
				seen[rec.ID] = e
				result = append(result, e)
				improved = true
				tab.Add(rec)
			}
		}
		sortByDistance(result, target)
		if len(result) > bucketSize {
			result = result[:bucketSize]
		}
		if !improved || ctx.Err() != nil {
			break
		}
	}

	out := make([]*enode.Record, 0, len(result))
	for _, e := range result {
		out = append(out, e.rec)
	}
	return out
}

func pickUnqueried(result []*lookupEntry, n int) []*lookupEntry {
	var out []*lookupEntry
	for _, e := range result {
		if len(out) >= n {
			break
		}
		if !e.queried {
			out = append(out, e)
		}
	}
	return out
}

func sortByDistance(entries []*lookupEntry, target enode.ID) {
	sort.Slice(entries, func(i, j int) bool {
		return distanceLess(target, entries[i].rec.ID, entries[j].rec.ID)
	})
}
