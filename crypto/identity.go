// Package crypto wraps the secp256k1/keccak-256 primitives used to derive
// node identities and to sign and verify handshake and DNS-tree payloads.
// It never implements the primitives themselves; it only fixes how the
// rest of the module uses them.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// SignatureLength is the length of a recoverable secp256k1 signature:
// 32-byte r, 32-byte s, 1-byte recovery id.
const SignatureLength = 65

// Identity wraps a secp256k1 keypair used to sign handshake and discovery
// messages and from which the node's Address and routing ID are derived.
type Identity struct {
	priv *btcec.PrivateKey
}

// GenerateIdentity creates a fresh ephemeral keypair, used when a node is
// started without a configured private key.
func GenerateIdentity() (*Identity, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	return &Identity{priv: priv}, nil
}

// IdentityFromHex loads a keypair from a hex-encoded 32-byte private scalar.
func IdentityFromHex(s string) (*Identity, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(b) != 32 {
		return nil, errors.New("private key must be 32 bytes")
	}
	priv, pub := btcec.PrivKeyFromBytes(b)
	_ = pub
	return &Identity{priv: priv}, nil
}

// PrivateKey returns the raw secp256k1 private key.
func (id *Identity) PrivateKey() *btcec.PrivateKey {
	return id.priv
}

// PublicKey returns the raw secp256k1 public key.
func (id *Identity) PublicKey() *btcec.PublicKey {
	return id.priv.PubKey()
}

// Address returns the 20-byte address identity derived from the public key.
func (id *Identity) Address() Address {
	return PubkeyToAddress(id.PublicKey())
}

// Sign produces a 65-byte recoverable signature over a 32-byte digest.
func (id *Identity) Sign(digest [32]byte) ([]byte, error) {
	return Sign(id.priv, digest)
}

// Sign produces a 65-byte recoverable ECDSA signature over digest using priv.
func Sign(priv *btcec.PrivateKey, digest [32]byte) ([]byte, error) {
	sig, err := ecdsa.SignCompact(priv, digest[:], false)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("unexpected signature length %d", len(sig))
	}
	// btcec's compact format is [recid+27 | r | s]; the wire/verification
	// code in this package treats signatures as [r | s | recid] so that
	// SignatureLength-1 is always the recovery byte, independent of the
	// underlying library's convention.
	out := make([]byte, SignatureLength)
	copy(out[:64], sig[1:])
	out[64] = sig[0] - 27
	return out, nil
}

// RecoverPubkey recovers the public key that produced sig over digest.
func RecoverPubkey(digest [32]byte, sig []byte) (*btcec.PublicKey, error) {
	if len(sig) != SignatureLength {
		return nil, errors.New("invalid signature length")
	}
	compact := make([]byte, SignatureLength)
	compact[0] = sig[64] + 27
	copy(compact[1:], sig[:64])
	pub, _, err := ecdsa.RecoverCompact(compact, digest[:])
	if err != nil {
		return nil, fmt.Errorf("recover pubkey: %w", err)
	}
	return pub, nil
}

// Verify reports whether sig is a valid signature over digest by pub.
func Verify(pub *btcec.PublicKey, digest [32]byte, sig []byte) bool {
	recovered, err := RecoverPubkey(digest, sig)
	if err != nil {
		return false
	}
	return recovered.IsEqual(pub)
}

// randomBytes fills b with crypto/rand bytes; used for handshake secrets.
func randomBytes(b []byte) error {
	_, err := rand.Read(b)
	return err
}

// RandomSecret returns n cryptographically random bytes, used as the
// handshake's INIT challenge secret.
func RandomSecret(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := randomBytes(b); err != nil {
		return nil, err
	}
	return b, nil
}
