package message

import "testing"

func TestReasonCatalogBuckets(t *testing.T) {
	if ReasonInvalidMessage.Bucket() != BucketMinor {
		t.Fatalf("INVALID_MESSAGE should be minor, got %v", ReasonInvalidMessage.Bucket())
	}
	if ReasonIncompatibleProtocol.DefaultBanDuration().Minutes() != 30 {
		t.Fatalf("INCOMPATIBLE_PROTOCOL default duration = %v, want 30m", ReasonIncompatibleProtocol.DefaultBanDuration())
	}
	if ReasonTooManyPeers.AutoBans() {
		t.Fatal("TOO_MANY_PEERS must never auto-ban")
	}
	if !ReasonProtocolViolation.AutoBans() {
		t.Fatal("PROTOCOL_VIOLATION must auto-ban")
	}
}

func TestReasonStringStable(t *testing.T) {
	if ReasonBadNetwork.String() != "BAD_NETWORK" {
		t.Fatalf("got %q", ReasonBadNetwork.String())
	}
}
