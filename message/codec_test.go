package message

import (
	"bytes"
	"testing"
)

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 1 << 20, 1<<32 - 1}
	for _, v := range cases {
		w := NewWriter()
		w.WriteVarint(v)
		r := NewReader(w.Bytes())
		got, err := r.ReadVarint()
		if err != nil {
			t.Fatalf("varint %d: %v", v, err)
		}
		if got != v {
			t.Fatalf("varint round trip: want %d got %d", v, got)
		}
	}
}

func TestBytesAndStringRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteBytes([]byte("hello"))
	w.WriteString("world")
	r := NewReader(w.Bytes())
	b, err := r.ReadBytes()
	if err != nil || string(b) != "hello" {
		t.Fatalf("ReadBytes: %q, %v", b, err)
	}
	s, err := r.ReadString()
	if err != nil || s != "world" {
		t.Fatalf("ReadString: %q, %v", s, err)
	}
}

func TestReaderTruncation(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.ReadUint32(); err != ErrParseMessageFailed {
		t.Fatalf("want ErrParseMessageFailed, got %v", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	f := &Frame{Version: Version, CompressFlag: CompressNone, PacketType: CodePing, Sequence: 7, Body: []byte("payload")}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatal(err)
	}
	got, err := ReadFrame(&buf, 1<<16)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != f.Version || got.PacketType != f.PacketType || got.Sequence != f.Sequence || string(got.Body) != string(f.Body) {
		t.Fatalf("frame round trip mismatch: %+v", got)
	}
}

func TestFrameOversizeRejected(t *testing.T) {
	f := &Frame{Version: Version, PacketType: CodePing, Body: make([]byte, 100)}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFrame(&buf, 10); err != ErrBigMessage {
		t.Fatalf("want ErrBigMessage, got %v", err)
	}
}

func TestFrameEmptyBodyRejected(t *testing.T) {
	f := &Frame{Version: Version, PacketType: CodePing, Body: nil}
	var buf bytes.Buffer
	if err := WriteFrame(&buf, f); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFrame(&buf, 1<<16); err != ErrEmptyMessage {
		t.Fatalf("want ErrEmptyMessage, got %v", err)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	ping := &PingMsg{Timestamp: 123456789}
	got, err := DecodePing(ping.Encode())
	if err != nil || got.Timestamp != ping.Timestamp {
		t.Fatalf("ping round trip: %+v, %v", got, err)
	}

	disc := &DisconnectMsg{Reason: ReasonBadPeer}
	gotD, err := DecodeDisconnect(disc.Encode())
	if err != nil || gotD.Reason != disc.Reason {
		t.Fatalf("disconnect round trip: %+v, %v", gotD, err)
	}

	hs := &HandshakeMsg{
		NetworkID: 1, NetworkVersion: 1, PeerID: "abc", Port: 30303,
		ClientID: "xdagj-p2p-go/test", Capabilities: []string{"eth/1", "xdag/1"},
		LatestBlockNumber: 42, Secret: []byte("0123456789012345678901234567890x"),
		Signature: make([]byte, 65), Flags: 0x03, NodeTag: "miner",
	}
	gotH, err := DecodeHandshake(hs.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if gotH.PeerID != hs.PeerID || gotH.Port != hs.Port || len(gotH.Capabilities) != 2 || gotH.LatestBlockNumber != 42 {
		t.Fatalf("handshake round trip mismatch: %+v", gotH)
	}

	nb := &NeighborsMsg{Nodes: []NodeWire{{Port: 1}, {Port: 2, IPv4: []byte{1, 2, 3, 4}}}}
	gotN, err := DecodeNeighbors(nb.Encode())
	if err != nil || len(gotN.Nodes) != 2 || gotN.Nodes[1].Port != 2 {
		t.Fatalf("neighbors round trip: %+v, %v", gotN, err)
	}
}

func TestHandshakeCanonicalDigestExcludesSignature(t *testing.T) {
	hash := func(b []byte) []byte { return b[:32] }
	a := &HandshakeMsg{NetworkID: 1, PeerID: "x", Secret: make([]byte, 32), Signature: []byte("sig-a")}
	b := &HandshakeMsg{NetworkID: 1, PeerID: "x", Secret: make([]byte, 32), Signature: []byte("sig-b-different-length")}
	da := a.CanonicalDigest(hash)
	db := b.CanonicalDigest(hash)
	if da != db {
		t.Fatal("canonical digest must not depend on Signature bytes")
	}
}
