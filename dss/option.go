package dss

import (
	"encoding/binary"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/seqnum"
)

// TCPオプション種別とDSSサブタイプです。
const (
	OptionKindMPTCP = 30
	SubtypeDSS      = 0x2
)

const (
	flagDataFIN = 0x10 // F
	flagAck64   = 0x08 // a
	flagAck     = 0x04 // A
	flagDSN64   = 0x02 // m
	flagMapping = 0x01 // M
)

// Optionは、DSSオプションの内容です。
type Option struct {
	HasDataAck  bool
	DataAck     uint64
	Ack64       bool
	Mapping     *Mapping
	DSN64       bool
	HasChecksum bool
}

// Lenは、エンコード後のオプション長を返却します。
func (o Option) Len() int {
	n := 4
	if o.HasDataAck {
		if o.Ack64 {
			n += 8
		} else {
			n += 4
		}
	}
	if o.Mapping != nil {
		if o.DSN64 {
			n += 8
		} else {
			n += 4
		}
		n += 4 + 2
		if o.HasChecksum {
			n += 2
		}
	}
	return n
}

// Marshalは、DSSオプションをTCPオプション形式でエンコードします。
func (o Option) Marshal() []byte {
	b := make([]byte, o.Len())
	b[0] = OptionKindMPTCP
	b[1] = byte(len(b))
	b[2] = SubtypeDSS << 4
	var flags byte
	off := 4
	if o.HasDataAck {
		flags |= flagAck
		if o.Ack64 {
			flags |= flagAck64
			binary.BigEndian.PutUint64(b[off:], o.DataAck)
			off += 8
		} else {
			binary.BigEndian.PutUint32(b[off:], uint32(o.DataAck))
			off += 4
		}
	}
	if m := o.Mapping; m != nil {
		flags |= flagMapping
		if m.DataFIN {
			flags |= flagDataFIN
		}
		if o.DSN64 {
			flags |= flagDSN64
			binary.BigEndian.PutUint64(b[off:], m.DSN)
			off += 8
		} else {
			binary.BigEndian.PutUint32(b[off:], uint32(m.DSN))
			off += 4
		}
		binary.BigEndian.PutUint32(b[off:], m.SubflowSeq)
		off += 4
		binary.BigEndian.PutUint16(b[off:], m.WireLength())
		off += 2
		if o.HasChecksum {
			binary.BigEndian.PutUint16(b[off:], m.Checksum)
		}
	}
	b[3] = flags
	return b
}

// UnmarshalOptionは、DSSオプションをデコードします。
//
// 32bitで送られたDSNとData ACKは、それぞれdsnBaseとackBaseを基準に64bitへ拡張します。
// withChecksumは、チェックサムの有無をネゴシエーション結果に従って指定します。
func UnmarshalOption(b []byte, dsnBase, ackBase uint64, withChecksum bool) (Option, error) {
	var o Option
	if len(b) < 4 || b[0] != OptionKindMPTCP || b[2]>>4 != SubtypeDSS {
		return o, errors.Errorf("not a dss option: %w", errors.ErrProtocolViolation)
	}
	if int(b[1]) != len(b) {
		return o, errors.Errorf("dss option length %d != %d: %w", b[1], len(b), errors.ErrProtocolViolation)
	}
	flags := b[3]
	o.HasDataAck = flags&flagAck != 0
	o.Ack64 = flags&flagAck64 != 0
	o.DSN64 = flags&flagDSN64 != 0
	o.HasChecksum = withChecksum && flags&flagMapping != 0

	want := o.Len()
	if flags&flagMapping != 0 {
		o.Mapping = &Mapping{}
		want = o.Len()
	}
	if len(b) != want {
		return Option{}, errors.Errorf("dss option length %d, want %d: %w", len(b), want, errors.ErrProtocolViolation)
	}

	off := 4
	if o.HasDataAck {
		if o.Ack64 {
			o.DataAck = binary.BigEndian.Uint64(b[off:])
			off += 8
		} else {
			o.DataAck = uint64(seqnum.Expand32(seqnum.Value(ackBase), binary.BigEndian.Uint32(b[off:])))
			off += 4
		}
	}
	if m := o.Mapping; m != nil {
		if o.DSN64 {
			m.DSN = binary.BigEndian.Uint64(b[off:])
			off += 8
		} else {
			m.DSN = uint64(seqnum.Expand32(seqnum.Value(dsnBase), binary.BigEndian.Uint32(b[off:])))
			off += 4
		}
		m.SubflowSeq = binary.BigEndian.Uint32(b[off:])
		off += 4
		wl := binary.BigEndian.Uint16(b[off:])
		off += 2
		m.DataFIN = flags&flagDataFIN != 0
		if m.DataFIN {
			if wl == 0 {
				return Option{}, errors.Errorf("data fin with zero length: %w", errors.ErrProtocolViolation)
			}
			wl--
		}
		m.Length = wl
		if o.HasChecksum {
			m.Checksum = binary.BigEndian.Uint16(b[off:])
		}
	}
	return o, nil
}
