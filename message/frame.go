package message

import (
	"encoding/binary"
	"io"
)

// Version is the only wire protocol version this codec speaks.
const Version byte = 1

// Compression flags. Only CompressNone is implemented; other values are
// reserved for future transports.
const (
	CompressNone byte = 0
)

// frameHeaderLength is the size of everything in a Frame except Body:
// version(1) + compressFlag(1) + packetType(1) + sequence(2) +
// bodyLength(4) + totalLength(4).
const frameHeaderLength = 1 + 1 + 1 + 2 + 4 + 4

// HeaderLength is the per-frame wire overhead (type byte included) added
// on top of the body; senders use it to account message sizes.
const HeaderLength = frameHeaderLength

// Frame is the length-prefixed envelope every TCP message travels in.
type Frame struct {
	Version      byte
	CompressFlag byte
	PacketType   Code
	Sequence     uint16
	Body         []byte
}

// WriteFrame serializes f and writes it to w in one call.
func WriteFrame(w io.Writer, f *Frame) error {
	bodyLen := uint32(len(f.Body))
	totalLen := bodyLen + frameHeaderLength

	buf := make([]byte, frameHeaderLength+len(f.Body))
	buf[0] = f.Version
	buf[1] = f.CompressFlag
	buf[2] = byte(f.PacketType)
	binary.BigEndian.PutUint16(buf[3:5], f.Sequence)
	binary.BigEndian.PutUint32(buf[5:9], bodyLen)
	binary.BigEndian.PutUint32(buf[9:13], totalLen)
	copy(buf[frameHeaderLength:], f.Body)

	_, err := w.Write(buf)
	return err
}

// ReadFrame reads exactly one frame from r. maxBodySize bounds the
// declared body length; a larger declaration fails with ErrBigMessage
// without reading the (attacker-controlled) body.
func ReadFrame(r io.Reader, maxBodySize uint32) (*Frame, error) {
	var hdr [frameHeaderLength]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	f := &Frame{
		Version:      hdr[0],
		CompressFlag: hdr[1],
		PacketType:   Code(hdr[2]),
	}
	f.Sequence = binary.BigEndian.Uint16(hdr[3:5])
	bodyLen := binary.BigEndian.Uint32(hdr[5:9])
	totalLen := binary.BigEndian.Uint32(hdr[9:13])

	if bodyLen > maxBodySize {
		return nil, ErrBigMessage
	}
	if totalLen != bodyLen+frameHeaderLength {
		return nil, ErrMessageWithWrongLength
	}
	if bodyLen == 0 {
		return nil, ErrEmptyMessage
	}

	f.Body = make([]byte, bodyLen)
	if _, err := io.ReadFull(r, f.Body); err != nil {
		return nil, ErrParseMessageFailed
	}
	return f, nil
}
