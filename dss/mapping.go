// Package dssは、コネクションレベルのデータシーケンス番号(DSN)と
// サブフローのバイト列を対応付けるDSSマッピングを扱います。
package dss

import (
	"encoding/binary"
	"fmt"
)

// MaxMappingLengthは、1つのマッピングが表現できる最大のペイロード長です。
const MaxMappingLength = 0xffff

// Mappingは、DSSマッピングです。
//
// Lengthは末尾のDATA_FINを含みません。DATA_FINはDataFINで表現し、DSN+Lengthの位置を占有します。
type Mapping struct {
	DSN        uint64 // データシーケンス番号
	SubflowSeq uint32 // サブフロー相対シーケンス番号
	Length     uint16 // ペイロード長
	DataFIN    bool   // DATA_FINフラグ
	Checksum   uint16 // DSSチェックサム
}

// Endは、マッピングが占有するDSN空間の終端(DATA_FINを含む)を返却します。
func (m Mapping) End() uint64 {
	end := m.DSN + uint64(m.Length)
	if m.DataFIN {
		end++
	}
	return end
}

// WireLengthは、データレベル長(DATA_FINを含む)を返却します。
func (m Mapping) WireLength() uint16 {
	if m.DataFIN {
		return m.Length + 1
	}
	return m.Length
}

func (m Mapping) String() string {
	return fmt.Sprintf("dsn=%d ssn=%d len=%d fin=%t", m.DSN, m.SubflowSeq, m.Length, m.DataFIN)
}

// Segmentは、サブフローで送受信する1単位です。
type Segment struct {
	Mapping    *Mapping // nilの場合はマッピングなし
	Payload    []byte
	DataAck    uint64
	HasDataAck bool
	// Windowは、DataAckから受信できるバイト数です。HasDataAckが真の場合のみ有効です。
	//
	// DSSオプションには含まれず、TCPヘッダのウィンドウと同様にトランスポートが運びます。
	Window uint32
	// DSN64は、DSNとData ACKを64bitで送信することを表します。
	DSN64 bool
}

// Optionは、セグメントに付与するDSSオプションを返却します。
func (s *Segment) Option(withChecksum bool) Option {
	return Option{
		HasDataAck:  s.HasDataAck,
		DataAck:     s.DataAck,
		Ack64:       s.DSN64,
		Mapping:     s.Mapping,
		DSN64:       s.DSN64,
		HasChecksum: withChecksum && s.Mapping != nil,
	}
}

// NewMappingは、ペイロードに対するマッピングを生成します。withChecksumが真の場合はチェックサムを計算します。
func NewMapping(dsn uint64, ssn uint32, payload []byte, dataFIN, withChecksum bool) Mapping {
	if len(payload) > MaxMappingLength {
		panic(fmt.Sprintf("dss: payload too large: %d", len(payload)))
	}
	m := Mapping{
		DSN:        dsn,
		SubflowSeq: ssn,
		Length:     uint16(len(payload)),
		DataFIN:    dataFIN,
	}
	if withChecksum {
		m.Checksum = Checksum(m, payload)
	}
	return m
}

// Checksumは、RFC 6824のDSSチェックサムを計算します。
//
// 疑似ヘッダ(DSN 64bit, サブフロー相対シーケンス 32bit, データレベル長 16bit, ゼロ 16bit)とペイロードの
// 1の補数和です。
func Checksum(m Mapping, payload []byte) uint16 {
	var hdr [16]byte
	binary.BigEndian.PutUint64(hdr[0:8], m.DSN)
	binary.BigEndian.PutUint32(hdr[8:12], m.SubflowSeq)
	binary.BigEndian.PutUint16(hdr[12:14], m.WireLength())
	sum := sum16(0, hdr[:])
	sum = sum16(sum, payload)
	return ^fold(sum)
}

func sum16(sum uint32, b []byte) uint32 {
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	return sum
}

func fold(sum uint32) uint16 {
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return uint16(sum)
}
