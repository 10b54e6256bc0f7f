// Package dnsdisc implements the EIP-1459-family DNS-tree discovery
// client: a signed Merkle DAG of DNS TXT records that a node can walk to
// seed its dial pool and Kademlia routing table without relying solely on
// a live UDP bootstrap path.
package dnsdisc

import (
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/XDagger/xdagj-p2p-go/crypto"
	"github.com/XDagger/xdagj-p2p-go/enode"
	"github.com/XDagger/xdagj-p2p-go/message"
)

const (
	rootPrefix   = "enrtree-root:v1"
	branchPrefix = "enrtree-branch:"
	nodesPrefix  = "enr:"
	linkPrefix   = "enrtree://"

	maxBranchChildren = 13
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Entry is one of RootEntry, BranchEntry, NodesEntry, or LinkEntry: the
// four node kinds of the signed Merkle DAG.
type Entry interface {
	isEntry()
	String() string
}

// RootEntry is the signed apex of one tree: two subtree hashes (nodes and
// links), a monotonic sequence number, and a signature over the rest.
type RootEntry struct {
	ENRRoot  string
	LinkRoot string
	Seq      uint32
	Sig      []byte
}

func (*RootEntry) isEntry() {}

// signingText is the canonical string the root signature is computed
// over; it never includes the sig field itself.
func (r *RootEntry) signingText() string {
	return fmt.Sprintf("%s e=%s l=%s seq=%d", rootPrefix, r.ENRRoot, r.LinkRoot, r.Seq)
}

// digest returns the keccak256 digest of the signing text, the value
// actually signed/verified.
func (r *RootEntry) digest() [32]byte {
	var d [32]byte
	copy(d[:], crypto.Keccak256([]byte(r.signingText())))
	return d
}

// String renders the DNS TXT record body for this root.
func (r *RootEntry) String() string {
	sig := base64.RawURLEncoding.EncodeToString(r.Sig)
	return fmt.Sprintf("%s sig=%s", r.signingText(), sig)
}

// Sign computes and stores Sig over the root's canonical text using id.
func (r *RootEntry) Sign(id *crypto.Identity) error {
	sig, err := id.Sign(r.digest())
	if err != nil {
		return err
	}
	r.Sig = sig
	return nil
}

// VerifySignature reports whether Sig is a valid signature over the
// root's canonical text by pub.
func (r *RootEntry) VerifySignature(pub *btcec.PublicKey) bool {
	return crypto.Verify(pub, r.digest(), r.Sig)
}

// BranchEntry lists the hash labels of its children (at most 13, per
// EIP-1459's single-TXT-record size budget).
type BranchEntry struct {
	Children []string
}

func (*BranchEntry) isEntry() {}

func (b *BranchEntry) String() string {
	return branchPrefix + strings.Join(b.Children, ",")
}

// NodesEntry is a leaf carrying a compressed list of node records.
type NodesEntry struct {
	Records []*enode.Record
}

func (*NodesEntry) isEntry() {}

func (n *NodesEntry) String() string {
	return nodesPrefix + base64.RawURLEncoding.EncodeToString(encodeNodesBody(n.Records))
}

// LinkEntry references another tree by its signing public key and
// hosting domain: "enrtree://<base32 pubkey>@<domain>".
type LinkEntry struct {
	PublicKey *btcec.PublicKey
	Domain    string
}

func (*LinkEntry) isEntry() {}

func (l *LinkEntry) String() string {
	return linkPrefix + b32.EncodeToString(l.PublicKey.SerializeCompressed()) + "@" + l.Domain
}

// HashLabel returns the DNS label for an entry's serialized body: the
// first 26 characters of the unpadded base32 encoding of the leading 16
// bytes of keccak256(body). 16 bytes of unpadded base32 is exactly 26
// characters, so the truncation is a no-op in practice; it is kept
// explicit because it is what the format is defined in terms of.
func HashLabel(body []byte) string {
	h := crypto.Keccak256(body)
	label := b32.EncodeToString(h[:16])
	if len(label) > 26 {
		label = label[:26]
	}
	return label
}

// ParseEntry classifies text by its prefix and parses it into an Entry.
func ParseEntry(text string) (Entry, error) {
	switch {
	case strings.HasPrefix(text, rootPrefix):
		return parseRoot(text)
	case strings.HasPrefix(text, branchPrefix):
		return parseBranch(text)
	case strings.HasPrefix(text, nodesPrefix):
		return parseNodes(text)
	case strings.HasPrefix(text, linkPrefix):
		return parseLink(text)
	default:
		return nil, fail(CodeMalformedEntry, fmt.Errorf("unrecognized entry prefix in %q", truncate(text, 32)))
	}
}

func parseRoot(text string) (*RootEntry, error) {
	fields := strings.Fields(strings.TrimPrefix(text, rootPrefix))
	r := &RootEntry{}
	var sigText string
	var hasE, hasL bool
	for _, f := range fields {
		kv := strings.SplitN(f, "=", 2)
		if len(kv) != 2 {
			return nil, fail(CodeMalformedEntry, fmt.Errorf("malformed root field %q", f))
		}
		switch kv[0] {
		case "e":
			r.ENRRoot, hasE = kv[1], true
		case "l":
			r.LinkRoot, hasL = kv[1], true
		case "seq":
			seq, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil {
				return nil, fail(CodeMalformedEntry, err)
			}
			r.Seq = uint32(seq)
		case "sig":
			sigText = kv[1]
		}
	}
	// An empty e= or l= value is a legitimately empty subtree (BuildTree
	// emits one when it has no records or no links); only the keys and the
	// signature are required.
	if !hasE || !hasL || sigText == "" {
		return nil, fail(CodeMalformedEntry, errors.New("root entry missing required field"))
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigText)
	if err != nil {
		return nil, fail(CodeMalformedEntry, err)
	}
	r.Sig = sig
	return r, nil
}

func parseBranch(text string) (*BranchEntry, error) {
	rest := strings.TrimPrefix(text, branchPrefix)
	if rest == "" {
		return &BranchEntry{}, nil
	}
	return &BranchEntry{Children: strings.Split(rest, ",")}, nil
}

func parseNodes(text string) (*NodesEntry, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(text, nodesPrefix))
	if err != nil {
		return nil, fail(CodeMalformedEntry, err)
	}
	records, err := decodeNodesBody(raw)
	if err != nil {
		return nil, fail(CodeMalformedEntry, err)
	}
	return &NodesEntry{Records: records}, nil
}

func parseLink(text string) (*LinkEntry, error) {
	rest := strings.TrimPrefix(text, linkPrefix)
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return nil, fail(CodeMalformedEntry, errors.New("link entry missing '@'"))
	}
	keyPart, domain := rest[:at], rest[at+1:]
	if domain == "" {
		return nil, fail(CodeMalformedEntry, errors.New("link entry missing domain"))
	}
	keyBytes, err := b32.DecodeString(keyPart)
	if err != nil {
		return nil, fail(CodeMalformedEntry, err)
	}
	pub, err := btcec.ParsePubKey(keyBytes)
	if err != nil {
		return nil, fail(CodeMalformedEntry, err)
	}
	return &LinkEntry{PublicKey: pub, Domain: domain}, nil
}

// ParseTreeURL parses a top-level "enrtree://<pubkey>@<domain>" tree
// locator, the same shape as a LinkEntry.
func ParseTreeURL(url string) (*LinkEntry, error) {
	if !strings.HasPrefix(url, linkPrefix) {
		return nil, fail(CodeMalformedEntry, fmt.Errorf("not a tree url: %q", url))
	}
	return parseLink(url)
}

func encodeNodesBody(records []*enode.Record) []byte {
	w := message.NewWriter()
	w.WriteVarint(uint64(len(records)))
	for _, r := range records {
		nw := r.ToWire()
		w.WriteBytes(nw.ID[:])
		w.WriteBytes(nw.IPv4)
		w.WriteBytes(nw.IPv6)
		w.WriteUint16(nw.Port)
		w.WriteUint16(nw.BindPort)
		_ = w.WriteByte(nw.NetworkID)
	}
	return w.Bytes()
}

func decodeNodesBody(body []byte) ([]*enode.Record, error) {
	r := message.NewReader(body)
	count, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	out := make([]*enode.Record, 0, count)
	for i := uint64(0); i < count; i++ {
		var nw message.NodeWire
		id, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		copy(nw.ID[:], id)
		if nw.IPv4, err = r.ReadBytes(); err != nil {
			return nil, err
		}
		if nw.IPv6, err = r.ReadBytes(); err != nil {
			return nil, err
		}
		if nw.Port, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		if nw.BindPort, err = r.ReadUint16(); err != nil {
			return nil, err
		}
		if nw.NetworkID, err = r.ReadByte(); err != nil {
			return nil, err
		}
		out = append(out, enode.FromWire(nw, 0))
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
