package enode

import (
	"github.com/XDagger/xdagj-p2p-go/common/mclock"
	"github.com/XDagger/xdagj-p2p-go/message"
)

// Serialize encodes the full record (including Address and timestamps) for
// on-disk persistence (enode.DB). DNS nodes-leaf entries use the shorter
// wire shape from ToWire instead.
func (r *Record) Serialize() []byte {
	w := message.NewWriter()
	w.WriteBytes(r.ID[:])
	w.WriteBytes(r.Address[:])
	w.WriteBytes([]byte(r.IPv4))
	w.WriteBytes([]byte(r.IPv6))
	w.WriteUint16(r.Port)
	w.WriteUint16(r.BindPort)
	_ = w.WriteByte(r.NetworkID)
	w.WriteUint16(r.NetworkVersion)
	w.WriteUint64(uint64(r.UpdateTime))
	w.WriteUint64(uint64(r.CreateTime))
	return w.Bytes()
}

// DeserializeRecord reverses Serialize.
func DeserializeRecord(b []byte) (*Record, error) {
	r := message.NewReader(b)
	idb, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	addrb, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	ip4, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	ip6, err := r.ReadBytes()
	if err != nil {
		return nil, err
	}
	port, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	bindPort, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	networkID, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	networkVersion, err := r.ReadUint16()
	if err != nil {
		return nil, err
	}
	updateTime, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}
	createTime, err := r.ReadUint64()
	if err != nil {
		return nil, err
	}

	rec := &Record{
		Port: port, BindPort: bindPort, NetworkID: networkID, NetworkVersion: networkVersion,
		UpdateTime: mclock.AbsTime(updateTime), CreateTime: mclock.AbsTime(createTime),
	}
	copy(rec.ID[:], idb)
	copy(rec.Address[:], addrb)
	if len(ip4) != 0 {
		rec.IPv4 = append([]byte(nil), ip4...)
	}
	if len(ip6) != 0 {
		rec.IPv6 = append([]byte(nil), ip6...)
	}
	return rec, nil
}
