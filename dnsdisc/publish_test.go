package dnsdisc

import (
	"testing"

	"github.com/XDagger/xdagj-p2p-go/enode"
)

func TestBuildTreeProducesVerifiableRoot(t *testing.T) {
	id := newTestIdentity(t)
	var records []*enode.Record
	for i := 0; i < 20; i++ {
		records = append(records, newTestRecord(t, byte(i), uint16(30000+i)))
	}

	txt, root, err := BuildTree(records, nil, 1, id)
	if err != nil {
		t.Fatal(err)
	}
	if !root.VerifySignature(id.PublicKey()) {
		t.Fatal("built root must verify against its signing identity")
	}
	if root.ENRRoot == "" {
		t.Fatal("a non-empty record set must produce a non-empty nodes root hash")
	}
	if root.LinkRoot != "" {
		t.Fatal("no links were supplied, so the link root must be empty")
	}
	if _, ok := txt[root.ENRRoot]; !ok {
		t.Fatal("the nodes root hash must be present in the emitted TXT set")
	}
}

func TestBuildTreeWithLinksPopulatesLinkRoot(t *testing.T) {
	id := newTestIdentity(t)
	linkID := newTestIdentity(t)
	url := (&LinkEntry{PublicKey: linkID.PublicKey(), Domain: "other.example.org"}).String()

	_, root, err := BuildTree(nil, []string{url}, 1, id)
	if err != nil {
		t.Fatal(err)
	}
	if root.LinkRoot == "" {
		t.Fatal("a non-empty link set must produce a non-empty link root hash")
	}
	if root.ENRRoot != "" {
		t.Fatal("no records were supplied, so the nodes root must be empty")
	}
}

func TestGroupRecordsSplitsOnMaxMergeSize(t *testing.T) {
	var records []*enode.Record
	for i := 0; i < maxMergeSize+1; i++ {
		records = append(records, newTestRecord(t, byte(i), uint16(30000+i)))
	}
	groups := groupRecords(records)
	if len(groups) < 2 {
		t.Fatalf("expected at least 2 groups for %d records with max %d, got %d", len(records), maxMergeSize, len(groups))
	}
	total := 0
	for _, g := range groups {
		if len(g) > maxMergeSize {
			t.Fatalf("group exceeds maxMergeSize: %d", len(g))
		}
		total += len(g)
	}
	if total != len(records) {
		t.Fatalf("expected all %d records grouped, got %d", len(records), total)
	}
}

func TestDeltaOrdersCreateUpsertDelete(t *testing.T) {
	existing := map[string]string{
		"gone":      "old",
		"changed":   "old-value",
		"unchanged": "same",
	}
	desired := map[string]string{
		"unchanged": "same",
		"changed":   "new-value", // present in both, value differs: an upsert
		"fresh":     "brand-new", // new name: a create
	}
	changes := Delta(existing, desired)

	lastKind := ChangeCreate
	for _, c := range changes {
		if c.Kind < lastKind {
			t.Fatalf("changes must be ordered CREATE < UPSERT < DELETE, got out-of-order kind at %+v", c)
		}
		lastKind = c.Kind
	}

	foundDelete, foundUpsert, foundCreate := false, false, false
	for _, c := range changes {
		switch {
		case c.Kind == ChangeDelete && c.Name == "gone":
			foundDelete = true
		case c.Kind == ChangeUpsert && c.Name == "changed":
			foundUpsert = true
		case c.Kind == ChangeCreate && c.Name == "fresh":
			foundCreate = true
		case c.Name == "unchanged":
			t.Fatal("an unchanged record must not appear in the delta")
		}
	}
	if !foundDelete || !foundUpsert || !foundCreate {
		t.Fatalf("expected one delete, one upsert and one create, got %+v", changes)
	}
}

func TestValidateDeltaSizeRejectsOversizedDelta(t *testing.T) {
	var changes []Change
	for i := 0; i < 60; i++ {
		changes = append(changes, Change{Kind: ChangeDelete, Name: "n"})
	}
	err := ValidateDeltaSize(changes, 100, 0.5)
	dnsErr, ok := err.(*Error)
	if !ok || dnsErr.Code != CodeDeltaTooLarge {
		t.Fatalf("expected CodeDeltaTooLarge, got %v", err)
	}

	if err := ValidateDeltaSize(changes[:10], 100, 0.5); err != nil {
		t.Fatalf("a small delta must pass: %v", err)
	}
}
