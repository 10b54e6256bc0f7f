// Package handshake implements the three-step INIT/HELLO/WORLD state
// machine: a signed-secret-echo handshake run once per direction over a
// freshly accepted or dialed TCP connection, before the channel is
// registered with the manager. Handshake completion happens-before the
// channel appears in the channel table.
package handshake

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/XDagger/xdagj-p2p-go/crypto"
	"github.com/XDagger/xdagj-p2p-go/message"
)

// DefaultTimeout is the overall per-connection handshake timeout.
const DefaultTimeout = 5 * time.Second

// DefaultExpiry bounds INIT's timestamp freshness window.
const DefaultExpiry = 10 * time.Second

// MaxFrameBody bounds a handshake frame's declared body size; handshake
// frames are small and fixed-shape, so this is far below the general
// application frame ceiling.
const MaxFrameBody = 16 * 1024

// SecretLength is the length in bytes of the INIT challenge secret.
const SecretLength = 32

// Role identifies which side of the TCP connection this process is.
type Role int

const (
	RoleInitiator Role = iota // dialed out; sends INIT, receives HELLO, sends WORLD
	RoleResponder             // accepted inbound; receives INIT, sends HELLO, receives WORLD
)

// Config parametrizes one handshake run; callers build it from the
// orchestrator-level p2p.Config. No process-wide mutable statics are
// read here; every constructor takes an explicit Config handle.
type Config struct {
	NetworkID         uint8
	NetworkVersion    uint16
	Identity          *crypto.Identity
	ClientID          string
	Capabilities      []string
	LatestBlockNumber uint64
	NodeTag           string
	Timeout           time.Duration // overall handshake deadline; 0 -> DefaultTimeout
	Expiry            time.Duration // INIT freshness window; 0 -> DefaultExpiry
	ListenPort        uint16        // our advertised TCP listen port, sent in HELLO/WORLD
	Flags             uint8
}

func (c *Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c *Config) expiry() time.Duration {
	if c.Expiry <= 0 {
		return DefaultExpiry
	}
	return c.Expiry
}

// Result is what a successful handshake learns about the remote peer.
type Result struct {
	PeerAddress       crypto.Address
	PeerPort          uint16
	PeerClientID      string
	PeerCapabilities  []string
	PeerLatestBlockNumber uint64
	PeerNodeTag       string
}

// Error wraps a handshake failure with the DISCONNECT/ban reason it maps
// to, so call sites never need to pattern-match on strings.
type Error struct {
	Reason message.ReasonCode
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("handshake: %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(reason message.ReasonCode, err error) error {
	return &Error{Reason: reason, Err: err}
}

// Run drives the handshake to completion over conn, in the given Role.
// On success the connection has exchanged no further bytes than the
// handshake itself; the caller installs the post-handshake pipeline
// immediately afterward, before registering the channel.
func Run(conn net.Conn, role Role, cfg *Config) (*Result, error) {
	deadline := time.Now().Add(cfg.timeout())
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fail(message.ReasonHandshakeTimeout, err)
	}
	defer conn.SetDeadline(time.Time{})

	var (
		res *Result
		err error
	)
	switch role {
	case RoleInitiator:
		res, err = runInitiator(conn, cfg)
	case RoleResponder:
		res, err = runResponder(conn, cfg)
	default:
		return nil, fail(message.ReasonInvalidHandshake, fmt.Errorf("unknown role %d", role))
	}
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, fail(message.ReasonHandshakeTimeout, err)
		}
		return nil, err
	}
	return res, nil
}

func runInitiator(conn net.Conn, cfg *Config) (*Result, error) {
	secret, err := crypto.RandomSecret(SecretLength)
	if err != nil {
		return nil, fail(message.ReasonInvalidHandshake, err)
	}
	init := &message.HandshakeInitMsg{Secret: secret, Timestamp: time.Now().Unix()}
	if err := writeFrame(conn, message.CodeHandshakeInit, init.Encode()); err != nil {
		return nil, fail(message.ReasonHandshakeTimeout, err)
	}

	hello, err := readHandshakeMsg(conn, message.CodeHandshakeHello)
	if err != nil {
		return nil, err
	}
	peerAddr, err := validate(cfg, hello, secret)
	if err != nil {
		return nil, err
	}

	world := buildOwnMessage(cfg, secret)
	if err := writeFrame(conn, message.CodeHandshakeWorld, world.Encode()); err != nil {
		return nil, fail(message.ReasonHandshakeTimeout, err)
	}

	return &Result{
		PeerAddress: peerAddr, PeerPort: hello.Port, PeerClientID: hello.ClientID,
		PeerCapabilities: hello.Capabilities, PeerLatestBlockNumber: hello.LatestBlockNumber,
		PeerNodeTag: hello.NodeTag,
	}, nil
}

func runResponder(conn net.Conn, cfg *Config) (*Result, error) {
	init, err := readInit(conn)
	if err != nil {
		return nil, err
	}
	if len(init.Secret) != SecretLength {
		return nil, fail(message.ReasonInvalidHandshake, fmt.Errorf("secret length %d, want %d", len(init.Secret), SecretLength))
	}
	if age := time.Since(time.Unix(init.Timestamp, 0)); age < 0 || age > cfg.expiry() {
		return nil, fail(message.ReasonInvalidHandshake, fmt.Errorf("INIT timestamp outside freshness window: age=%s", age))
	}

	hello := buildOwnMessage(cfg, init.Secret)
	if err := writeFrame(conn, message.CodeHandshakeHello, hello.Encode()); err != nil {
		return nil, fail(message.ReasonHandshakeTimeout, err)
	}

	world, err := readHandshakeMsg(conn, message.CodeHandshakeWorld)
	if err != nil {
		return nil, err
	}
	peerAddr, err := validate(cfg, world, init.Secret)
	if err != nil {
		return nil, err
	}

	return &Result{
		PeerAddress: peerAddr, PeerPort: world.Port, PeerClientID: world.ClientID,
		PeerCapabilities: world.Capabilities, PeerLatestBlockNumber: world.LatestBlockNumber,
		PeerNodeTag: world.NodeTag,
	}, nil
}

func buildOwnMessage(cfg *Config, secret []byte) *message.HandshakeMsg {
	m := &message.HandshakeMsg{
		NetworkID: cfg.NetworkID, NetworkVersion: cfg.NetworkVersion,
		PeerID: cfg.Identity.Address().String(), Port: cfg.ListenPort,
		ClientID: cfg.ClientID, Capabilities: cfg.Capabilities,
		LatestBlockNumber: cfg.LatestBlockNumber, Secret: secret,
		Flags: cfg.Flags, NodeTag: cfg.NodeTag,
	}
	digest := m.CanonicalDigest(func(b []byte) []byte { return crypto.Keccak256(b) })
	sig, err := cfg.Identity.Sign(digest)
	if err != nil {
		// Signing our own message with our own key should never fail;
		// an empty signature makes the failure visible to the peer
		// (and to validate on a loopback self-test) rather than panicking.
		sig = make([]byte, crypto.SignatureLength)
	}
	m.Signature = sig
	return m
}

// validate checks the remote's HELLO/WORLD against local config and the
// secret we (or they) chose, and recovers and confirms the signer's address.
func validate(cfg *Config, msg *message.HandshakeMsg, expectedSecret []byte) (crypto.Address, error) {
	if msg.NetworkID != cfg.NetworkID {
		return crypto.Address{}, fail(message.ReasonBadNetwork, fmt.Errorf("network id %d, want %d", msg.NetworkID, cfg.NetworkID))
	}
	if msg.NetworkVersion != cfg.NetworkVersion {
		return crypto.Address{}, fail(message.ReasonBadNetworkVersion, fmt.Errorf("network version %d, want %d", msg.NetworkVersion, cfg.NetworkVersion))
	}
	if !bytes.Equal(msg.Secret, expectedSecret) {
		return crypto.Address{}, fail(message.ReasonInvalidHandshake, fmt.Errorf("secret does not match"))
	}
	digest := msg.CanonicalDigest(func(b []byte) []byte { return crypto.Keccak256(b) })
	pub, err := crypto.RecoverPubkey(digest, msg.Signature)
	if err != nil {
		return crypto.Address{}, fail(message.ReasonInvalidHandshake, fmt.Errorf("recover signer: %w", err))
	}
	derived := crypto.PubkeyToAddress(pub)
	claimed, err := crypto.AddressFromString(msg.PeerID)
	if err != nil {
		return crypto.Address{}, fail(message.ReasonInvalidHandshake, fmt.Errorf("decode peerId: %w", err))
	}
	if derived != claimed {
		return crypto.Address{}, fail(message.ReasonInvalidHandshake, fmt.Errorf("signer address does not match claimed peerId"))
	}
	return derived, nil
}

func writeFrame(conn net.Conn, code message.Code, body []byte) error {
	return message.WriteFrame(conn, &message.Frame{Version: message.Version, CompressFlag: message.CompressNone, PacketType: code, Body: body})
}

func readInit(conn net.Conn) (*message.HandshakeInitMsg, error) {
	f, err := message.ReadFrame(conn, MaxFrameBody)
	if err != nil {
		return nil, translateFrameErr(err)
	}
	if f.PacketType != message.CodeHandshakeInit {
		return nil, fail(message.ReasonInvalidHandshake, fmt.Errorf("expected HANDSHAKE_INIT, got %s", f.PacketType))
	}
	init, err := message.DecodeHandshakeInit(f.Body)
	if err != nil {
		return nil, fail(message.ReasonInvalidHandshake, err)
	}
	return init, nil
}

func readHandshakeMsg(conn net.Conn, want message.Code) (*message.HandshakeMsg, error) {
	f, err := message.ReadFrame(conn, MaxFrameBody)
	if err != nil {
		return nil, translateFrameErr(err)
	}
	if f.PacketType == message.CodeDisconnect {
		d, derr := message.DecodeDisconnect(f.Body)
		if derr == nil {
			return nil, fail(d.Reason, fmt.Errorf("peer disconnected during handshake"))
		}
	}
	if f.PacketType != want {
		return nil, fail(message.ReasonInvalidHandshake, fmt.Errorf("expected %s, got %s", want, f.PacketType))
	}
	msg, err := message.DecodeHandshake(f.Body)
	if err != nil {
		return nil, fail(message.ReasonInvalidHandshake, err)
	}
	return msg, nil
}

func translateFrameErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fail(message.ReasonHandshakeTimeout, err)
	}
	switch err {
	case message.ErrBigMessage:
		return fail(message.ReasonProtocolViolation, err)
	case message.ErrEmptyMessage, message.ErrMessageWithWrongLength, message.ErrParseMessageFailed:
		return fail(message.ReasonInvalidHandshake, err)
	default:
		return fail(message.ReasonHandshakeTimeout, err)
	}
}
