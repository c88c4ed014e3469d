package dss

import (
	"github.com/aptpod/mptcp-go/errors"
)

// Chunkは、マッピングを適用した結果、DSN上の位置が確定したバイト列です。
type Chunk struct {
	DSN     uint64
	Data    []byte
	DataFIN bool // Dataの直後(DSN+len(Data))にDATA_FINがある
}

// Receiverは、1つのサブフローで受信したバイト列にマッピングを適用します。
//
// Receiverはゴルーチンセーフではありません。
type Receiver struct {
	checksum bool

	next uint32 // 未割当の先頭バイトのサブフロー相対シーケンス番号
	cur  *Mapping
	off  uint32 // curのうち割当済みのバイト数
	done bool   // curを全て受信済み
	held []byte // チェックサム検証のためマッピング完了まで保持するバイト列

	stash []byte // マッピング範囲を超えて受信した未割当のバイト列
}

// NewReceiverは、サブフロー相対シーケンス番号1から受信するReceiverを生成します。
func NewReceiver(checksum bool) *Receiver {
	return &Receiver{
		checksum: checksum,
		next:     1,
	}
}

// SetChecksumは、チェックサム検証の有無を設定します。
func (r *Receiver) SetChecksum(enabled bool) {
	r.checksum = enabled
}

// Bufferedは、まだアプリケーションへ渡せないバイト数を返却します。
func (r *Receiver) Buffered() int {
	return len(r.held) + len(r.stash)
}

// Receiveは、受信したバイト列rawにマッピングmを適用し、DSNの確定したChunkを返却します。
//
// mがnilの場合は直前のマッピングの続きとして扱います。
// 続きとなるマッピングがない場合はerrors.ErrNoMappingを返却し、rawは消費しません。
// チェックサム不一致の場合はerrors.ErrChecksumを返却し、Chunkは1つも返却しません。
func (r *Receiver) Receive(raw []byte, m *Mapping) ([]Chunk, error) {
	if m != nil {
		if err := r.apply(m); err != nil {
			return nil, err
		}
	} else if (r.cur == nil || r.done) && len(raw) > 0 {
		return nil, errors.ErrNoMapping
	}

	data := raw
	if len(r.stash) > 0 {
		data = append(r.stash, raw...)
		r.stash = nil
	}

	var out []Chunk
	for r.cur != nil && !r.done {
		need := uint32(r.cur.Length) - r.off
		n := uint32(len(data))
		if n > need {
			n = need
		}
		piece := data[:n]
		data = data[n:]
		start := r.cur.DSN + uint64(r.off)
		r.off += n
		r.next += n
		last := r.off == uint32(r.cur.Length)

		if r.checksum {
			r.held = append(r.held, piece...)
			if last {
				if Checksum(*r.cur, r.held) != r.cur.Checksum {
					r.held = nil
					r.done = true
					return nil, errors.Errorf("%v: %w", *r.cur, errors.ErrChecksum)
				}
				out = append(out, Chunk{DSN: r.cur.DSN, Data: r.held, DataFIN: r.cur.DataFIN})
				r.held = nil
			}
		} else if n > 0 || last {
			out = append(out, Chunk{DSN: start, Data: append([]byte(nil), piece...), DataFIN: last && r.cur.DataFIN})
		}
		if last {
			r.done = true
		}
		if n == 0 {
			break
		}
	}
	if len(data) > 0 {
		r.stash = append([]byte(nil), data...)
	}
	return out, nil
}

func (r *Receiver) apply(m *Mapping) error {
	if m.Length == 0 && !m.DataFIN {
		return errors.Errorf("empty mapping %v: %w", *m, errors.ErrProtocolViolation)
	}
	if r.cur != nil && *m == *r.cur {
		// 同一マッピングの再送は無視する
		return nil
	}
	if r.cur != nil && !r.done {
		return errors.Errorf("got %v while consuming %v: %w", *m, *r.cur, errors.ErrInconsistentMapping)
	}
	if m.SubflowSeq != r.next {
		return errors.Errorf("mapping %v does not start at ssn %d: %w", *m, r.next, errors.ErrInconsistentMapping)
	}
	cp := *m
	r.cur = &cp
	r.off = 0
	r.done = false
	r.held = nil
	return nil
}
