package enode

import (
	"testing"

	"github.com/XDagger/xdagj-p2p-go/common/mclock"
)

func TestDBPutGetDelete(t *testing.T) {
	db, err := OpenDB("")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var id ID
	id[0] = 1
	r := New(id, [20]byte{7}, nil, nil, 1234, 1, 1, mclock.Now())
	r.IPv4 = []byte{1, 2, 3, 4}

	if err := db.UpdateNode(r); err != nil {
		t.Fatal(err)
	}
	got := db.Node(id)
	if got == nil || got.Port != 1234 {
		t.Fatalf("Node() = %+v", got)
	}
	if err := db.DeleteNode(id); err != nil {
		t.Fatal(err)
	}
	if db.Node(id) != nil {
		t.Fatal("expected node to be deleted")
	}
}

func TestDBQuerySeeds(t *testing.T) {
	db, err := OpenDB("")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	for i := 0; i < 5; i++ {
		var id ID
		id[0] = byte(i + 1)
		r := New(id, [20]byte{}, []byte{1, 2, 3, byte(i)}, nil, uint16(1000+i), 1, 1, mclock.Now())
		if err := db.UpdateNode(r); err != nil {
			t.Fatal(err)
		}
	}
	seeds := db.QuerySeeds(3)
	if len(seeds) != 3 {
		t.Fatalf("QuerySeeds(3) returned %d records", len(seeds))
	}
}
