package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"
)

// AddressLength is the size in bytes of the address identity.
const AddressLength = 20

// RoutingIDLength is the size of the Kademlia routing key.
const RoutingIDLength = 32

// Address is the 20-byte address identity derived from a node's public key.
// It is a fixed-width array with Bytes()/Hex() accessors; its canonical
// text encoding is Base58Check, not bare hex.
type Address [AddressLength]byte

// RoutingID is the fixed-width Kademlia distance key.
type RoutingID [RoutingIDLength]byte

// IsZero reports whether addr is the zero value.
func (addr Address) IsZero() bool {
	return addr == Address{}
}

// Bytes returns the raw address bytes.
func (addr Address) Bytes() []byte {
	return addr[:]
}

// Hex returns the hex encoding of the address, without Base58Check framing.
func (addr Address) Hex() string {
	return "0x" + hex.EncodeToString(addr[:])
}

// String returns the Base58Check encoding used on the wire as peerId.
func (addr Address) String() string {
	return Base58CheckEncode(addressVersion, addr[:])
}

// addressVersion is the Base58Check version byte prefixed to every encoded
// address; it disambiguates an address from other Base58Check payloads
// that might share this alphabet.
const addressVersion byte = 0x35

// AddressFromString decodes a Base58Check-encoded peerId string.
func AddressFromString(s string) (Address, error) {
	version, payload, err := Base58CheckDecode(s)
	if err != nil {
		return Address{}, err
	}
	if version != addressVersion || len(payload) != AddressLength {
		return Address{}, errors.New("not a valid xdagj-p2p address")
	}
	var addr Address
	copy(addr[:], payload)
	return addr, nil
}

// PubkeyToAddress derives the 20-byte address identity from a public key:
// the low 20 bytes of keccak256(uncompressed pubkey).
func PubkeyToAddress(pub *btcec.PublicKey) Address {
	h := Keccak256(pub.SerializeUncompressed()[1:])
	var addr Address
	copy(addr[:], h[len(h)-AddressLength:])
	return addr
}

// PubkeyToRoutingID derives the 32-byte Kademlia key from a public key. It
// is the full keccak256 digest, distinct from the (truncated) address so
// that routing distance and application-level peer identity are
// independently computed from the same key material.
func PubkeyToRoutingID(pub *btcec.PublicKey) RoutingID {
	var id RoutingID
	copy(id[:], Keccak256(pub.SerializeUncompressed()[1:]))
	return id
}

// Keccak256 hashes data with Keccak-256 (not NIST SHA3-256).
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// Base58CheckEncode encodes payload with a version byte and a 4-byte
// double-SHA256 checksum, then Base58-encodes the result.
func Base58CheckEncode(version byte, payload []byte) string {
	buf := make([]byte, 0, 1+len(payload)+4)
	buf = append(buf, version)
	buf = append(buf, payload...)
	cksum := checksum(buf)
	buf = append(buf, cksum[:]...)
	return base58.Encode(buf)
}

// Base58CheckDecode reverses Base58CheckEncode, validating the checksum.
func Base58CheckDecode(s string) (version byte, payload []byte, err error) {
	buf, err := base58.Decode(s)
	if err != nil {
		return 0, nil, err
	}
	if len(buf) < 5 {
		return 0, nil, errors.New("base58check: input too short")
	}
	body, cksum := buf[:len(buf)-4], buf[len(buf)-4:]
	want := checksum(body)
	for i := range want {
		if want[i] != cksum[i] {
			return 0, nil, errors.New("base58check: checksum mismatch")
		}
	}
	return body[0], body[1:], nil
}

func checksum(b []byte) [4]byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	var out [4]byte
	copy(out[:], second[:4])
	return out
}
