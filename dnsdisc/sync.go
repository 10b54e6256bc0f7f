package dnsdisc

import (
	"context"
	"strings"

	"github.com/XDagger/xdagj-p2p-go/enode"
)

// Resolver is the DNS lookup this package depends on; *net.Resolver
// satisfies it directly, and tests supply a map-backed fake.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// kind constrains which leaf types a subtree may resolve to, enforcing
// the never-mixed invariant between the nodes subtree and the link
// subtree of one root.
type kind int

const (
	kindNodes kind = iota
	kindLink
)

// subtreeSync walks the DAG rooted at rootHash under domain, resolving
// every reachable hash exactly once via a FIFO missing-queue, classifying
// each by its text prefix, and collecting either node records or link
// entries depending on kind. Resolved entries are cached into entries so
// a later random walk (see random.go) can reuse them without re-querying
// DNS.
func subtreeSync(ctx context.Context, r Resolver, domain, rootHash string, want kind, entries map[string]Entry) ([]*enode.Record, []*LinkEntry, error) {
	if rootHash == "" {
		return nil, nil, nil
	}
	missing := []string{rootHash}
	seen := make(map[string]bool)
	var records []*enode.Record
	var links []*LinkEntry

	for len(missing) > 0 {
		hash := missing[0]
		missing = missing[1:]
		if seen[hash] {
			continue
		}
		seen[hash] = true

		entry, err := resolveHash(ctx, r, domain, hash)
		if err != nil {
			return nil, nil, err
		}
		entries[hash] = entry

		switch e := entry.(type) {
		case *BranchEntry:
			missing = append(missing, e.Children...)
		case *NodesEntry:
			if want == kindLink {
				return nil, nil, fail(CodeNodesInLinkTree, nil)
			}
			records = append(records, e.Records...)
		case *LinkEntry:
			if want == kindNodes {
				return nil, nil, fail(CodeLinkInNodesTree, nil)
			}
			links = append(links, e)
		}
	}
	return records, links, nil
}

func resolveHash(ctx context.Context, r Resolver, domain, hash string) (Entry, error) {
	name := hash + "." + domain
	segs, err := r.LookupTXT(ctx, name)
	if err != nil {
		return nil, fail(CodeMalformedEntry, err)
	}
	text := strings.Join(segs, "")
	if HashLabel([]byte(text)) != hash {
		return nil, fail(CodeHashMissMatch, nil)
	}
	return ParseEntry(text)
}

// resolveRoot fetches and parses the root TXT record at domain's apex; the
// root entry has no hash label of its own (it is the tree's well-known
// entrypoint), so it is fetched directly rather than through resolveHash.
func resolveRoot(ctx context.Context, r Resolver, domain string) (*RootEntry, error) {
	segs, err := r.LookupTXT(ctx, domain)
	if err != nil {
		return nil, fail(CodeMalformedEntry, err)
	}
	text := strings.Join(segs, "")
	entry, err := ParseEntry(text)
	if err != nil {
		return nil, err
	}
	root, ok := entry.(*RootEntry)
	if !ok {
		return nil, fail(CodeInvalidRoot, nil)
	}
	return root, nil
}
