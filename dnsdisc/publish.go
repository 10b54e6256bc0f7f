package dnsdisc

import (
	"bytes"
	"net"
	"sort"

	"github.com/XDagger/xdagj-p2p-go/crypto"
	"github.com/XDagger/xdagj-p2p-go/enode"
)

// maxMergeSize bounds how many node records share one NodesEntry leaf.
const maxMergeSize = 5

// BuildTree canonicalizes records and links into a full TXT record set
// (hash label -> record body, unqualified by domain) plus the signed
// root that ties them together. It is computation only: turning a
// desired tree into zone contents is the caller's job (see Delta), and
// pushing those contents to a concrete DNS provider is explicitly out of
// scope for this package.
func BuildTree(records []*enode.Record, links []string, seq uint32, id *crypto.Identity) (map[string]string, *RootEntry, error) {
	txt := make(map[string]string)

	enrRoot := buildLeafTree(txt, groupRecords(records))
	linkRoot := buildLinkTree(txt, links)

	root := &RootEntry{ENRRoot: enrRoot, LinkRoot: linkRoot, Seq: seq}
	if err := root.Sign(id); err != nil {
		return nil, nil, err
	}
	return txt, root, nil
}

// groupRecords canonicalizes by (ipv4, ipv6, port, id) and splits into
// groups of at most maxMergeSize that never cross a /16 boundary when
// avoidable: a new group starts whenever either limit would be exceeded.
func groupRecords(records []*enode.Record) [][]*enode.Record {
	sorted := append([]*enode.Record(nil), records...)
	sort.Slice(sorted, func(i, j int) bool {
		return recordKey(sorted[i]) < recordKey(sorted[j])
	})

	var groups [][]*enode.Record
	var cur []*enode.Record
	var curPrefix string
	for _, r := range sorted {
		prefix := slash16(r.PreferredIP())
		if len(cur) >= maxMergeSize || (len(cur) > 0 && prefix != curPrefix && prefix != "") {
			groups = append(groups, cur)
			cur = nil
		}
		cur = append(cur, r)
		curPrefix = prefix
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

func recordKey(r *enode.Record) string {
	var buf bytes.Buffer
	buf.Write(r.IPv4)
	buf.Write(r.IPv6)
	buf.WriteByte(byte(r.Port >> 8))
	buf.WriteByte(byte(r.Port))
	buf.Write(r.ID[:])
	return buf.String()
}

func slash16(ip net.IP) string {
	if ip == nil {
		return ""
	}
	v4 := ip.To4()
	if v4 == nil {
		return ""
	}
	return string(v4[:2])
}

// buildLeafTree emits one NodesEntry per group, wraps them under branches
// of at most maxBranchChildren, and returns the resulting subtree's root
// hash. An empty input yields an empty root hash.
func buildLeafTree(txt map[string]string, groups [][]*enode.Record) string {
	if len(groups) == 0 {
		return ""
	}
	var hashes []string
	for _, g := range groups {
		e := &NodesEntry{Records: g}
		hashes = append(hashes, storeEntry(txt, e))
	}
	return buildBranchLevels(txt, hashes)
}

func buildLinkTree(txt map[string]string, urls []string) string {
	if len(urls) == 0 {
		return ""
	}
	var hashes []string
	for _, u := range urls {
		link, err := ParseTreeURL(u)
		if err != nil {
			continue
		}
		hashes = append(hashes, storeEntry(txt, link))
	}
	if len(hashes) == 0 {
		return ""
	}
	return buildBranchLevels(txt, hashes)
}

// buildBranchLevels folds hashes into however many branch levels are
// needed to keep every BranchEntry at or under maxBranchChildren
// children, returning the final single root hash. A single input hash
// needs no branch at all and is returned unchanged.
func buildBranchLevels(txt map[string]string, hashes []string) string {
	for len(hashes) > 1 {
		var next []string
		for i := 0; i < len(hashes); i += maxBranchChildren {
			end := i + maxBranchChildren
			if end > len(hashes) {
				end = len(hashes)
			}
			chunk := hashes[i:end]
			if len(chunk) == 1 {
				next = append(next, chunk[0])
				continue
			}
			branch := &BranchEntry{Children: append([]string(nil), chunk...)}
			next = append(next, storeEntry(txt, branch))
		}
		hashes = next
	}
	return hashes[0]
}

func storeEntry(txt map[string]string, e Entry) string {
	body := e.String()
	hash := HashLabel([]byte(body))
	txt[hash] = body
	return hash
}

// ChangeKind is the operation a zone delta applies to one record name.
type ChangeKind int

const (
	ChangeCreate ChangeKind = iota
	ChangeUpsert
	ChangeDelete
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreate:
		return "CREATE"
	case ChangeUpsert:
		return "UPSERT"
	case ChangeDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// Change is one provider-agnostic zone mutation.
type Change struct {
	Kind  ChangeKind
	Name  string
	Value string
}

// Delta computes the ordered list of changes that move a zone from
// existing to desired: every CREATE before any UPSERT before any DELETE,
// each group sorted alphabetically by name, matching the order a
// provider-agnostic publisher is expected to apply them in.
func Delta(existing, desired map[string]string) []Change {
	var creates, upserts, deletes []Change
	for name, val := range desired {
		if old, ok := existing[name]; !ok {
			creates = append(creates, Change{Kind: ChangeCreate, Name: name, Value: val})
		} else if old != val {
			upserts = append(upserts, Change{Kind: ChangeUpsert, Name: name, Value: val})
		}
	}
	for name := range existing {
		if _, ok := desired[name]; !ok {
			deletes = append(deletes, Change{Kind: ChangeDelete, Name: name})
		}
	}
	sort.Slice(creates, func(i, j int) bool { return creates[i].Name < creates[j].Name })
	sort.Slice(upserts, func(i, j int) bool { return upserts[i].Name < upserts[j].Name })
	sort.Slice(deletes, func(i, j int) bool { return deletes[i].Name < deletes[j].Name })

	out := make([]Change, 0, len(creates)+len(upserts)+len(deletes))
	out = append(out, creates...)
	out = append(out, upserts...)
	out = append(out, deletes...)
	return out
}

// ValidateDeltaSize rejects a delta that would touch more than
// maxFraction of the existing zone's records, a guard against a stale or
// corrupt desired-state computation silently nuking most of a zone.
func ValidateDeltaSize(changes []Change, existingSize int, maxFraction float64) error {
	if existingSize == 0 {
		return nil
	}
	limit := float64(existingSize) * maxFraction
	if float64(len(changes)) > limit {
		return fail(CodeDeltaTooLarge, nil)
	}
	return nil
}
