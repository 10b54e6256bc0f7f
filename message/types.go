package message

// Code is the single-byte message type: the packet-type field of a TCP
// Frame (application messages included), or the first byte of a UDP
// discovery datagram.
type Code byte

// Message type taxonomy. Application codes are never
// allocated here; anything >= CodeApplicationBase is dispatched by the
// event/handler plane to a registered handler.
const (
	CodeKadPing Code = iota
	CodeKadPong
	CodeFindNode
	CodeNeighbors

	CodeHandshakeInit
	CodeHandshakeHello
	CodeHandshakeWorld

	CodePing
	CodePong

	CodeDisconnect
	CodeStatus

	// CodeApplicationBase is the first code reserved for application
	// message handlers registered via the event/handler plane.
	CodeApplicationBase Code = 0x10
)

// String returns a human-readable name, used in logs.
func (c Code) String() string {
	switch c {
	case CodeKadPing:
		return "KAD_PING"
	case CodeKadPong:
		return "KAD_PONG"
	case CodeFindNode:
		return "FIND_NODE"
	case CodeNeighbors:
		return "NEIGHBORS"
	case CodeHandshakeInit:
		return "HANDSHAKE_INIT"
	case CodeHandshakeHello:
		return "HANDSHAKE_HELLO"
	case CodeHandshakeWorld:
		return "HANDSHAKE_WORLD"
	case CodePing:
		return "PING"
	case CodePong:
		return "PONG"
	case CodeDisconnect:
		return "DISCONNECT"
	case CodeStatus:
		return "STATUS"
	default:
		if c >= CodeApplicationBase {
			return "APP"
		}
		return "UNKNOWN"
	}
}

// IsApplication reports whether c is in the application-reserved range.
func (c Code) IsApplication() bool {
	return c >= CodeApplicationBase
}

// NodeWire is the on-the-wire node record shape shared by NEIGHBORS
// responses and DNS nodes-leaves. It intentionally does not import the
// enode package: message stays a leaf dependency so the codec can be
// tested (and reused by dnsdisc) without pulling in routing-table code.
type NodeWire struct {
	ID        [32]byte
	IPv4      []byte // 4 bytes, or nil
	IPv6      []byte // 16 bytes, or nil
	Port      uint16
	BindPort  uint16
	NetworkID uint8
}

func (n *NodeWire) encode(w *Writer) {
	w.buf = append(w.buf, n.ID[:]...)
	w.WriteBytes(n.IPv4)
	w.WriteBytes(n.IPv6)
	w.WriteUint16(n.Port)
	w.WriteUint16(n.BindPort)
	w.buf = append(w.buf, n.NetworkID)
}

func decodeNodeWire(r *Reader) (NodeWire, error) {
	var n NodeWire
	if err := r.need(32); err != nil {
		return n, err
	}
	copy(n.ID[:], r.buf[r.pos:r.pos+32])
	r.pos += 32
	var err error
	if n.IPv4, err = r.ReadBytes(); err != nil {
		return n, err
	}
	if n.IPv6, err = r.ReadBytes(); err != nil {
		return n, err
	}
	if n.Port, err = r.ReadUint16(); err != nil {
		return n, err
	}
	if n.BindPort, err = r.ReadUint16(); err != nil {
		return n, err
	}
	if n.NetworkID, err = r.ReadByte(); err != nil {
		return n, err
	}
	return n, nil
}

// KadPingMsg is the Kademlia discovery PING.
type KadPingMsg struct {
	From      NodeWire
	To        NodeWire
	Timestamp int64
	EchoNonce uint64
}

// Encode serializes the message body (without the leading Code byte).
func (m *KadPingMsg) Encode() []byte {
	w := NewWriter()
	m.From.encode(w)
	m.To.encode(w)
	w.WriteUint64(uint64(m.Timestamp))
	w.WriteUint64(m.EchoNonce)
	return w.Bytes()
}

// DecodeKadPing parses a KadPingMsg body.
func DecodeKadPing(body []byte) (*KadPingMsg, error) {
	r := NewReader(body)
	m := &KadPingMsg{}
	var err error
	if m.From, err = decodeNodeWire(r); err != nil {
		return nil, err
	}
	if m.To, err = decodeNodeWire(r); err != nil {
		return nil, err
	}
	ts, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	m.Timestamp = int64(ts)
	if m.EchoNonce, err = r.ReadUint64(); err != nil {
		return nil, err
	}
	return m, nil
}

// KadPongMsg answers a KadPingMsg, echoing its nonce.
type KadPongMsg struct {
	To        NodeWire
	EchoNonce uint64
	Timestamp int64
}

func (m *KadPongMsg) Encode() []byte {
	w := NewWriter()
	m.To.encode(w)
	w.WriteUint64(m.EchoNonce)
	w.WriteUint64(uint64(m.Timestamp))
	return w.Bytes()
}

func DecodeKadPong(body []byte) (*KadPongMsg, error) {
	r := NewReader(body)
	m := &KadPongMsg{}
	var err error
	if m.To, err = decodeNodeWire(r); err != nil {
		return nil, err
	}
	if m.EchoNonce, err = r.ReadUint64(); err != nil {
		return nil, err
	}
	ts, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	m.Timestamp = int64(ts)
	return m, nil
}

// FindNodeMsg requests the nodes closest to Target.
type FindNodeMsg struct {
	Target [32]byte
}

func (m *FindNodeMsg) Encode() []byte {
	w := NewWriter()
	w.buf = append(w.buf, m.Target[:]...)
	return w.Bytes()
}

func DecodeFindNode(body []byte) (*FindNodeMsg, error) {
	r := NewReader(body)
	if err := r.need(32); err != nil {
		return nil, err
	}
	m := &FindNodeMsg{}
	copy(m.Target[:], r.buf[r.pos:r.pos+32])
	return m, nil
}

// NeighborsMsg answers a FindNodeMsg with up to k candidates.
type NeighborsMsg struct {
	Target [32]byte
	Nodes  []NodeWire
}

func (m *NeighborsMsg) Encode() []byte {
	w := NewWriter()
	w.buf = append(w.buf, m.Target[:]...)
	w.WriteVarint(uint64(len(m.Nodes)))
	for i := range m.Nodes {
		m.Nodes[i].encode(w)
	}
	return w.Bytes()
}

func DecodeNeighbors(body []byte) (*NeighborsMsg, error) {
	r := NewReader(body)
	m := &NeighborsMsg{}
	if err := r.need(32); err != nil {
		return nil, err
	}
	copy(m.Target[:], r.buf[r.pos:r.pos+32])
	r.pos += 32
	n, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	m.Nodes = make([]NodeWire, 0, n)
	for i := uint64(0); i < n; i++ {
		nw, err := decodeNodeWire(r)
		if err != nil {
			return nil, err
		}
		m.Nodes = append(m.Nodes, nw)
	}
	return m, nil
}

// HandshakeInitMsg is step 1 of the handshake.
type HandshakeInitMsg struct {
	Secret    []byte
	Timestamp int64
}

func (m *HandshakeInitMsg) Encode() []byte {
	w := NewWriter()
	w.WriteBytes(m.Secret)
	w.WriteUint64(uint64(m.Timestamp))
	return w.Bytes()
}

func DecodeHandshakeInit(body []byte) (*HandshakeInitMsg, error) {
	r := NewReader(body)
	m := &HandshakeInitMsg{}
	var err error
	if m.Secret, err = r.ReadBytes(); err != nil {
		return nil, err
	}
	ts, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	m.Timestamp = int64(ts)
	return m, nil
}

// HandshakeMsg is the shared schema for HELLO (step 2) and WORLD (step 3).
// Hello and World deliberately share one wire struct; the direction is
// tracked by the caller, never encoded.
type HandshakeMsg struct {
	NetworkID         uint8
	NetworkVersion    uint16
	PeerID            string // Base58Check address of the signer
	Port              uint16
	ClientID          string
	Capabilities      []string
	LatestBlockNumber uint64
	Secret            []byte
	Signature         []byte
	Flags             uint8
	NodeTag           string
}

// encodeCanonical serializes every field except Signature, in a stable
// order; this is exactly the byte string the signature covers.
func (m *HandshakeMsg) encodeCanonical() []byte {
	w := NewWriter()
	w.buf = append(w.buf, m.NetworkID)
	w.WriteUint16(m.NetworkVersion)
	w.WriteString(m.PeerID)
	w.WriteUint16(m.Port)
	w.WriteString(m.ClientID)
	w.WriteStringArray(m.Capabilities)
	w.WriteUint64(m.LatestBlockNumber)
	w.WriteBytes(m.Secret)
	w.buf = append(w.buf, m.Flags)
	w.WriteString(m.NodeTag)
	return w.Bytes()
}

// CanonicalDigest returns the 32-byte digest signed by the handshake
// engine; kept here (rather than in package crypto) so that the exact
// byte layout being signed is defined next to the schema it covers.
func (m *HandshakeMsg) CanonicalDigest(hash func([]byte) []byte) [32]byte {
	var digest [32]byte
	copy(digest[:], hash(m.encodeCanonical()))
	return digest
}

func (m *HandshakeMsg) Encode() []byte {
	w := NewWriter()
	w.buf = append(w.buf, m.encodeCanonical()...)
	w.WriteBytes(m.Signature)
	return w.Bytes()
}

func DecodeHandshake(body []byte) (*HandshakeMsg, error) {
	r := NewReader(body)
	m := &HandshakeMsg{}
	var err error
	if m.NetworkID, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if m.NetworkVersion, err = r.ReadUint16(); err != nil {
		return nil, err
	}
	if m.PeerID, err = r.ReadString(); err != nil {
		return nil, err
	}
	if m.Port, err = r.ReadUint16(); err != nil {
		return nil, err
	}
	if m.ClientID, err = r.ReadString(); err != nil {
		return nil, err
	}
	if m.Capabilities, err = r.ReadStringArray(); err != nil {
		return nil, err
	}
	if m.LatestBlockNumber, err = r.ReadUint64(); err != nil {
		return nil, err
	}
	if m.Secret, err = r.ReadBytes(); err != nil {
		return nil, err
	}
	if m.Flags, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if m.NodeTag, err = r.ReadString(); err != nil {
		return nil, err
	}
	if m.Signature, err = r.ReadBytes(); err != nil {
		return nil, err
	}
	return m, nil
}

// PingMsg is the keep-alive ping.
type PingMsg struct {
	Timestamp int64
}

func (m *PingMsg) Encode() []byte {
	w := NewWriter()
	w.WriteUint64(uint64(m.Timestamp))
	return w.Bytes()
}

func DecodePing(body []byte) (*PingMsg, error) {
	r := NewReader(body)
	ts, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	return &PingMsg{Timestamp: int64(ts)}, nil
}

// PongMsg echoes a keep-alive ping's timestamp.
type PongMsg struct {
	Timestamp int64
}

func (m *PongMsg) Encode() []byte {
	w := NewWriter()
	w.WriteUint64(uint64(m.Timestamp))
	return w.Bytes()
}

func DecodePong(body []byte) (*PongMsg, error) {
	r := NewReader(body)
	ts, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	return &PongMsg{Timestamp: int64(ts)}, nil
}

// DisconnectMsg carries the reason the sender is closing the channel.
type DisconnectMsg struct {
	Reason ReasonCode
}

func (m *DisconnectMsg) Encode() []byte {
	w := NewWriter()
	w.buf = append(w.buf, byte(m.Reason))
	return w.Bytes()
}

func DecodeDisconnect(body []byte) (*DisconnectMsg, error) {
	r := NewReader(body)
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return &DisconnectMsg{Reason: ReasonCode(b)}, nil
}

// StatusMsg is an optional post-handshake status/capabilities ping used by
// application layers; the core only frames and routes it.
type StatusMsg struct {
	NetworkID      uint8
	NetworkVersion uint16
	Payload        []byte
}

func (m *StatusMsg) Encode() []byte {
	w := NewWriter()
	w.buf = append(w.buf, m.NetworkID)
	w.WriteUint16(m.NetworkVersion)
	w.WriteBytes(m.Payload)
	return w.Bytes()
}

func DecodeStatus(body []byte) (*StatusMsg, error) {
	r := NewReader(body)
	m := &StatusMsg{}
	var err error
	if m.NetworkID, err = r.ReadByte(); err != nil {
		return nil, err
	}
	if m.NetworkVersion, err = r.ReadUint16(); err != nil {
		return nil, err
	}
	if m.Payload, err = r.ReadBytes(); err != nil {
		return nil, err
	}
	return m, nil
}
