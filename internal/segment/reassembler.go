package segment

import (
	"sort"

	"github.com/aptpod/mptcp-go/seqnum"
)

type pendingSegment struct {
	dsn  seqnum.Value
	data []byte
}

func (s pendingSegment) end() seqnum.Value {
	return s.dsn.Add(seqnum.Size(len(s.data)))
}

// Reassemblerは、複数のサブフローから順不同で到着したバイト列をDSN順に並べ直します。
//
// Reassemblerはゴルーチンセーフではありません。呼び出し側でロックしてください。
type Reassembler struct {
	next     seqnum.Value
	pending  []pendingSegment
	buffered int

	finSet bool
	fin    seqnum.Value
	finned bool
}

// NewReassemblerは、nextから受信を開始するReassemblerを生成します。
func NewReassembler(next uint64) *Reassembler {
	return &Reassembler{next: seqnum.Value(next)}
}

// Nextは、次にアプリケーションへ渡すDSNを返却します。DATA_FIN受信後はDATA_FINの次を指します。
func (r *Reassembler) Next() uint64 {
	return uint64(r.next)
}

// Bufferedは、並べ替え待ちのバイト数を返却します。
func (r *Reassembler) Buffered() int {
	return r.buffered
}

// Finishedは、DATA_FINまで全て受信済みかどうかを返却します。
func (r *Reassembler) Finished() bool {
	return r.finned
}

// Insertは、dsnから始まるバイト列を追加します。finが真の場合、末尾の直後をDATA_FINとして記録します。
//
// limitより後ろのバイトは破棄します。受理したバイト数を返却します。
func (r *Reassembler) Insert(dsn uint64, data []byte, fin bool, limit uint64) int {
	start := seqnum.Value(dsn)
	end := start.Add(seqnum.Size(len(data)))
	if lim := seqnum.Value(limit); end.GreaterThan(lim) {
		if start.GreaterThanEq(lim) {
			return 0
		}
		data = data[:start.Size(lim)]
		end = lim
		fin = false
	}
	if fin && !r.finSet && !r.finned {
		r.finSet = true
		r.fin = end
	}
	if end.LessThanEq(r.next) {
		return 0
	}
	if start.LessThan(r.next) {
		data = data[start.Size(r.next):]
		start = r.next
	}
	if len(data) == 0 {
		return 0
	}
	seg := pendingSegment{dsn: start, data: append([]byte(nil), data...)}
	i := sort.Search(len(r.pending), func(i int) bool {
		return r.pending[i].dsn.GreaterThan(start)
	})
	r.pending = append(r.pending, pendingSegment{})
	copy(r.pending[i+1:], r.pending[i:])
	r.pending[i] = seg
	r.buffered += len(seg.data)
	return len(seg.data)
}

// Popは、nextから連続しているバイト列を取り出します。DATA_FINに到達した場合はfinが真になります。
func (r *Reassembler) Pop() (data []byte, fin bool) {
	n := 0
	for _, s := range r.pending {
		if s.dsn.GreaterThan(r.next) {
			break
		}
		n++
		r.buffered -= len(s.data)
		if s.end().LessThanEq(r.next) {
			continue
		}
		data = append(data, s.data[s.dsn.Size(r.next):]...)
		r.next = s.end()
	}
	r.pending = r.pending[n:]

	if r.finSet && !r.finned && r.next == r.fin {
		r.finned = true
		r.next = r.next.Add(1)
		fin = true
	}
	return data, fin
}
