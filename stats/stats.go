// Package statsは、セッションの統計情報を固定レイアウトのバイト列へ変換します。
//
// 先頭にFormatVersion(fixed32)、続いてセッション数(fixed32)と各セッションのレコードが並びます。
// 全ての数値はリトルエンディアンの固定長です。
package stats

import (
	"encoding/binary"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/gogo/protobuf/proto"
	uuid "github.com/google/uuid"
)

// FormatVersionは、レイアウトのバージョンです。
const FormatVersion = 1

// ErrUnsupportedVersionは、未対応のバージョンのバイト列を読み込んだ場合のエラーです。
var ErrUnsupportedVersion = errors.New("stats: unsupported format version")

// Sessionは、1つのセッションの統計情報です。
type Session struct {
	ID            uuid.UUID
	ServiceType   uint32
	State         uint32
	Flags         uint32
	ErrCode       uint32
	SndUna        uint64
	SndNxt        uint64
	SndMax        uint64
	RcvNxt        uint64
	ReinjectBytes uint64
	Subflows      []Subflow
	Interfaces    []Interface
}

// Subflowは、1つのサブフローの統計情報です。
type Subflow struct {
	ID          uint32
	Flags       uint32
	Interface   uint32
	LocalAddrID uint32
	TxBytes     uint64
	RxBytes     uint64
	Outstanding uint64
	ErrCode     uint32
}

// Interfaceは、インターフェースごとの統計情報です。
type Interface struct {
	ID       uint32
	Metered  bool
	TxBytes  uint64
	RxBytes  uint64
	Switches uint32
}

const (
	subflowSize   = 4*4 + 8*3 + 4
	interfaceSize = 4*2 + 8*2 + 4
	sessionSize   = 16 + 4*4 + 8*5 + 4 + 4
)

// Encodeは、sessionsをバイト列へ変換します。
func Encode(sessions []Session) []byte {
	b := proto.NewBuffer(make([]byte, 0, 8+len(sessions)*sessionSize))
	put32(b, FormatVersion)
	put32(b, uint32(len(sessions)))
	for _, s := range sessions {
		put64(b, binary.BigEndian.Uint64(s.ID[:8]))
		put64(b, binary.BigEndian.Uint64(s.ID[8:]))
		put32(b, s.ServiceType)
		put32(b, s.State)
		put32(b, s.Flags)
		put32(b, s.ErrCode)
		put64(b, s.SndUna)
		put64(b, s.SndNxt)
		put64(b, s.SndMax)
		put64(b, s.RcvNxt)
		put64(b, s.ReinjectBytes)

		put32(b, uint32(len(s.Subflows)))
		for _, sf := range s.Subflows {
			put32(b, sf.ID)
			put32(b, sf.Flags)
			put32(b, sf.Interface)
			put32(b, sf.LocalAddrID)
			put64(b, sf.TxBytes)
			put64(b, sf.RxBytes)
			put64(b, sf.Outstanding)
			put32(b, sf.ErrCode)
		}

		put32(b, uint32(len(s.Interfaces)))
		for _, itf := range s.Interfaces {
			put32(b, itf.ID)
			var metered uint32
			if itf.Metered {
				metered = 1
			}
			put32(b, metered)
			put64(b, itf.TxBytes)
			put64(b, itf.RxBytes)
			put32(b, itf.Switches)
		}
	}
	return b.Bytes()
}

// proto.Bufferへの固定長の書き込みは失敗しません。
func put32(b *proto.Buffer, v uint32) {
	_ = b.EncodeFixed32(uint64(v))
}

func put64(b *proto.Buffer, v uint64) {
	_ = b.EncodeFixed64(v)
}

// Decodeは、Encodeで変換したバイト列を読み込みます。
func Decode(data []byte) ([]Session, error) {
	d := decoder{buf: proto.NewBuffer(data), remain: len(data)}
	if v := d.u32(); d.err == nil && v != FormatVersion {
		return nil, errors.Errorf("version %d: %w", v, ErrUnsupportedVersion)
	}
	n := d.count(sessionSize)
	var res []Session
	for i := 0; i < n && d.err == nil; i++ {
		var s Session
		binary.BigEndian.PutUint64(s.ID[:8], d.u64())
		binary.BigEndian.PutUint64(s.ID[8:], d.u64())
		s.ServiceType = d.u32()
		s.State = d.u32()
		s.Flags = d.u32()
		s.ErrCode = d.u32()
		s.SndUna = d.u64()
		s.SndNxt = d.u64()
		s.SndMax = d.u64()
		s.RcvNxt = d.u64()
		s.ReinjectBytes = d.u64()

		nsf := d.count(subflowSize)
		for j := 0; j < nsf && d.err == nil; j++ {
			s.Subflows = append(s.Subflows, Subflow{
				ID:          d.u32(),
				Flags:       d.u32(),
				Interface:   d.u32(),
				LocalAddrID: d.u32(),
				TxBytes:     d.u64(),
				RxBytes:     d.u64(),
				Outstanding: d.u64(),
				ErrCode:     d.u32(),
			})
		}

		nif := d.count(interfaceSize)
		for j := 0; j < nif && d.err == nil; j++ {
			s.Interfaces = append(s.Interfaces, Interface{
				ID:       d.u32(),
				Metered:  d.u32() != 0,
				TxBytes:  d.u64(),
				RxBytes:  d.u64(),
				Switches: d.u32(),
			})
		}
		res = append(res, s)
	}
	if d.err != nil {
		return nil, errors.Errorf("decode stats: %w", d.err)
	}
	return res, nil
}

type decoder struct {
	buf    *proto.Buffer
	remain int
	err    error
}

func (d *decoder) u32() uint32 {
	if d.err != nil {
		return 0
	}
	v, err := d.buf.DecodeFixed32()
	if err != nil {
		d.err = err
		return 0
	}
	d.remain -= 4
	return uint32(v)
}

func (d *decoder) u64() uint64 {
	if d.err != nil {
		return 0
	}
	v, err := d.buf.DecodeFixed64()
	if err != nil {
		d.err = err
		return 0
	}
	d.remain -= 8
	return v
}

// countは、要素数を読み込みます。残りのバイト数で表現できない要素数は不正として扱います。
func (d *decoder) count(elemSize int) int {
	n := int(d.u32())
	if d.err == nil && n > d.remain/elemSize {
		d.err = errors.Errorf("count %d exceeds remaining %d bytes", n, d.remain)
		return 0
	}
	return n
}
