package crypto

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	id, err := GenerateIdentity()
	if err != nil {
		t.Fatal(err)
	}
	var digest [32]byte
	copy(digest[:], []byte("0123456789012345678901234567890x"))

	sig, err := id.Sign(digest)
	if err != nil {
		t.Fatal(err)
	}
	if len(sig) != SignatureLength {
		t.Fatalf("signature length = %d, want %d", len(sig), SignatureLength)
	}
	if !Verify(id.PublicKey(), digest, sig) {
		t.Fatal("signature did not verify against signer's own public key")
	}

	other, err := GenerateIdentity()
	if err != nil {
		t.Fatal(err)
	}
	if Verify(other.PublicKey(), digest, sig) {
		t.Fatal("signature must not verify under an unrelated public key")
	}
}

func TestAddressBase58CheckRoundTrip(t *testing.T) {
	id, err := GenerateIdentity()
	if err != nil {
		t.Fatal(err)
	}
	addr := id.Address()
	s := addr.String()
	got, err := AddressFromString(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != addr {
		t.Fatalf("address round trip mismatch: %x != %x", got, addr)
	}
}

func TestAddressFromStringRejectsCorruption(t *testing.T) {
	id, _ := GenerateIdentity()
	s := id.Address().String()
	corrupted := []byte(s)
	corrupted[0]++
	if _, err := AddressFromString(string(corrupted)); err == nil {
		t.Fatal("expected checksum mismatch on corrupted address")
	}
}

func TestRoutingIDDistinctFromAddress(t *testing.T) {
	id, _ := GenerateIdentity()
	addr := PubkeyToAddress(id.PublicKey())
	rid := PubkeyToRoutingID(id.PublicKey())
	if len(rid) != RoutingIDLength {
		t.Fatalf("routing id length = %d", len(rid))
	}
	// The address is the low 20 bytes of the routing id's keccak digest.
	var tail [AddressLength]byte
	copy(tail[:], rid[RoutingIDLength-AddressLength:])
	if tail != [AddressLength]byte(addr) {
		t.Fatal("address must equal the low 20 bytes of the routing id digest")
	}
}
