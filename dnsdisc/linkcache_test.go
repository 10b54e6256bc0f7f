package dnsdisc

import "testing"

func TestLinkCacheAddLinkSetsChangedOnce(t *testing.T) {
	lc := NewLinkCache()
	lc.AddLink("root", "child")
	if !lc.Changed() {
		t.Fatal("first AddLink must set changed")
	}
	if lc.Changed() {
		t.Fatal("Changed must clear the flag once read")
	}
	if !lc.IsReferenced("child") {
		t.Fatal("child should be referenced by root")
	}
	if lc.IsReferenced("root") {
		t.Fatal("root itself has no parent yet")
	}

	lc.AddLink("root", "child") // duplicate edge, no new change
	if lc.Changed() {
		t.Fatal("re-adding an existing edge must not set changed")
	}
}

func TestLinkCacheResetLinksDropsUnkeptEdge(t *testing.T) {
	lc := NewLinkCache()
	lc.AddLink("root", "a")
	lc.AddLink("root", "b")
	lc.Changed()

	lc.ResetLinks("root", map[string]bool{"a": true})
	if !lc.IsReferenced("a") {
		t.Fatal("a was kept and should still be referenced")
	}
	if lc.IsReferenced("b") {
		t.Fatal("b was dropped from root's keep set and should be unreferenced")
	}
	if !lc.Changed() {
		t.Fatal("dropping b should have set changed")
	}
}

func TestLinkCacheResetLinksGarbageCollectsOrphanedSubtree(t *testing.T) {
	lc := NewLinkCache()
	lc.AddLink("root", "mid")
	lc.AddLink("mid", "leaf")
	lc.Changed()

	// root stops referencing mid: mid becomes unreferenced, and since mid
	// was leaf's only parent, leaf must be collected too.
	lc.ResetLinks("root", map[string]bool{})
	if lc.IsReferenced("mid") {
		t.Fatal("mid should have been dropped")
	}
	if lc.IsReferenced("leaf") {
		t.Fatal("leaf should have been transitively garbage collected")
	}
}

func TestLinkCacheResetLinksKeepsSharedChild(t *testing.T) {
	lc := NewLinkCache()
	lc.AddLink("root1", "shared")
	lc.AddLink("root2", "shared")

	lc.ResetLinks("root1", map[string]bool{})
	if !lc.IsReferenced("shared") {
		t.Fatal("shared must survive as long as root2 still references it")
	}
}
