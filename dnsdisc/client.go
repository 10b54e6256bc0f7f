package dnsdisc

import (
	"context"
	"net"
	"sync"

	"github.com/XDagger/xdagj-p2p-go/enode"
	"github.com/XDagger/xdagj-p2p-go/internal/xlog"
)

var clientLog = xlog.New("dnsdisc/client")

// treeCache is the last successfully synced state of one tree URL.
type treeCache struct {
	link    *LinkEntry
	root    *RootEntry
	entries map[string]Entry // hash -> resolved entry, reused by the random walk
}

// Client syncs one or more enrtree:// URLs, verifying each root's
// signature and sequence number, and exposes the resolved node records.
// It owns its tree cache and LinkCache; both are mutated only from
// SyncTree, matching the single-owner rule the rest of this module
// follows for shared state.
type Client struct {
	resolver Resolver
	links    *LinkCache

	mu    sync.Mutex
	trees map[string]*treeCache
}

// NewClient returns a Client using resolver for DNS lookups. A nil
// resolver defaults to net.DefaultResolver, which already implements
// LookupTXT(ctx, name) ([]string, error).
func NewClient(resolver Resolver) *Client {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Client{
		resolver: resolver,
		links:    NewLinkCache(),
		trees:    make(map[string]*treeCache),
	}
}

// SyncResult is what one successful SyncTree call learned.
type SyncResult struct {
	Records []*enode.Record
	Links   []*LinkEntry
}

// SyncTree resolves the tree at url in full: fetch and verify the root,
// reject a non-monotonic seq against what was last cached, then sync the
// nodes subtree and the link subtree independently (a leaf kind mismatch
// between the two fails the whole sync). Successful link leaves are
// recorded into the LinkCache keyed by url as parent.
func (c *Client) SyncTree(ctx context.Context, url string) (*SyncResult, error) {
	link, err := ParseTreeURL(url)
	if err != nil {
		return nil, err
	}

	root, err := resolveRoot(ctx, c.resolver, link.Domain)
	if err != nil {
		return nil, err
	}
	if !root.VerifySignature(link.PublicKey) {
		return nil, fail(CodeInvalidSignature, nil)
	}

	c.mu.Lock()
	prev := c.trees[url]
	c.mu.Unlock()
	if prev != nil && root.Seq < prev.root.Seq {
		return nil, fail(CodeInvalidRoot, nil)
	}

	entries := make(map[string]Entry)
	records, _, err := subtreeSync(ctx, c.resolver, link.Domain, root.ENRRoot, kindNodes, entries)
	if err != nil {
		return nil, err
	}
	_, links, err := subtreeSync(ctx, c.resolver, link.Domain, root.LinkRoot, kindLink, entries)
	if err != nil {
		return nil, err
	}

	keep := make(map[string]bool, len(links))
	for _, l := range links {
		keep[l.String()] = true
		c.links.AddLink(url, l.String())
	}
	c.links.ResetLinks(url, keep)

	c.mu.Lock()
	c.trees[url] = &treeCache{link: link, root: root, entries: entries}
	c.mu.Unlock()

	clientLog.WithField("url", url).WithField("records", len(records)).WithField("seq", root.Seq).Debug("tree synced")
	return &SyncResult{Records: records, Links: links}, nil
}

// Links returns the LinkCache backing every SyncTree call this client has
// made, shared across trees so callers can garbage collect unreferenced
// URLs once a resync drops a link.
func (c *Client) Links() *LinkCache {
	return c.links
}

// randomNode walks url's cached tree from the nodes root to a randomly
// chosen leaf record, without issuing any further DNS queries; it returns
// nil if url has never been synced or its nodes subtree is empty.
func (c *Client) randomNode(pick func(n int) int, url string) *enode.Record {
	c.mu.Lock()
	tc := c.trees[url]
	c.mu.Unlock()
	if tc == nil || tc.root.ENRRoot == "" {
		return nil
	}
	entry, ok := tc.entries[tc.root.ENRRoot]
	if !ok {
		return nil
	}
	for depth := 0; depth < 32; depth++ {
		switch e := entry.(type) {
		case *NodesEntry:
			if len(e.Records) == 0 {
				return nil
			}
			return e.Records[pick(len(e.Records))]
		case *BranchEntry:
			if len(e.Children) == 0 {
				return nil
			}
			next, ok := tc.entries[e.Children[pick(len(e.Children))]]
			if !ok {
				return nil
			}
			entry = next
		default:
			return nil
		}
	}
	return nil
}
