// Package reinjectは、経路障害時に別のサブフローで再送するデータを保持するキューを提供します。
package reinject

import (
	"github.com/aptpod/mptcp-go/seqnum"
)

// Entryは、再送待ちのバイト列です。
type Entry struct {
	DSN     uint64
	Payload []byte
}

// Endは、Entryの直後のDSNを返却します。
func (e Entry) End() uint64 {
	return e.DSN + uint64(len(e.Payload))
}

func (e Entry) start() seqnum.Value { return seqnum.Value(e.DSN) }
func (e Entry) end() seqnum.Value   { return seqnum.Value(e.End()) }

// Queueは、DSN順に並んだ、互いに重ならないEntryの列です。
//
// Queueはゴルーチンセーフではありません。セッションのロック下で使用してください。
type Queue struct {
	entries []Entry
	bytes   int
}

// Lenは、Entryの数を返却します。
func (q *Queue) Len() int {
	return len(q.entries)
}

// Bytesは、キュー内の総バイト数を返却します。
func (q *Queue) Bytes() int {
	return q.bytes
}

// Entriesは、キュー内のEntryのコピーを返却します。
func (q *Queue) Entries() []Entry {
	return append([]Entry(nil), q.entries...)
}

// Frontは、先頭のEntryを返却します。
func (q *Queue) Front() (Entry, bool) {
	if len(q.entries) == 0 {
		return Entry{}, false
	}
	return q.entries[0], true
}

// PopFrontは、先頭のEntryを取り除きます。
func (q *Queue) PopFront() (Entry, bool) {
	e, ok := q.Front()
	if !ok {
		return Entry{}, false
	}
	q.entries[0] = Entry{}
	q.entries = q.entries[1:]
	q.bytes -= len(e.Payload)
	return e, true
}

// Clearは、全てのEntryを破棄します。
func (q *Queue) Clear() {
	q.entries = nil
	q.bytes = 0
}

// Insertは、eをキューへ追加します。追加されたバイト数を返却します。
//
// sndUnaで確認応答済みの部分は切り詰めます。既存のEntryに包含される場合は追加せず、
// eが包含する既存のEntryは取り除きます。部分的に重なる範囲はeの側を切り詰めます。
func (q *Queue) Insert(e Entry, sndUna uint64) int {
	una := seqnum.Value(sndUna)
	if e.end().LessThanEq(una) || len(e.Payload) == 0 {
		return 0
	}
	if e.start().LessThan(una) {
		e.Payload = e.Payload[e.start().Size(una):]
		e.DSN = sndUna
	}

	// eより後ろから始まる最初のEntry
	i := 0
	for i < len(q.entries) && q.entries[i].start().LessThan(e.start()) {
		i++
	}
	if i < len(q.entries) {
		n := q.entries[i]
		if n.DSN == e.DSN && len(n.Payload) >= len(e.Payload) {
			return 0
		}
	}
	// eに包含されるEntryを取り除く
	j := i
	for j < len(q.entries) && q.entries[j].end().LessThanEq(e.end()) {
		q.bytes -= len(q.entries[j].Payload)
		j++
	}
	if j > i {
		q.entries = append(q.entries[:i], q.entries[j:]...)
	}
	if i > 0 {
		prev := q.entries[i-1]
		if prev.end().GreaterThanEq(e.end()) {
			return 0
		}
		if prev.end().GreaterThan(e.start()) {
			e.Payload = e.Payload[e.start().Size(prev.end()):]
			e.DSN = prev.End()
		}
	}
	if i < len(q.entries) {
		next := q.entries[i]
		if next.start().LessThan(e.end()) {
			e.Payload = e.Payload[:e.start().Size(next.start())]
		}
	}
	if len(e.Payload) == 0 {
		return 0
	}
	e.Payload = append([]byte(nil), e.Payload...)

	q.entries = append(q.entries, Entry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
	q.bytes += len(e.Payload)
	return len(e.Payload)
}

// Cleanは、sndUnaで確認応答済みとなった先頭のEntryを取り除き、部分的に確認応答されたEntryを切り詰めます。
func (q *Queue) Clean(sndUna uint64) {
	una := seqnum.Value(sndUna)
	for len(q.entries) > 0 {
		e := &q.entries[0]
		if e.end().LessThanEq(una) {
			q.PopFront()
			continue
		}
		if e.start().LessThan(una) {
			cut := int(e.start().Size(una))
			e.Payload = e.Payload[cut:]
			e.DSN = sndUna
			q.bytes -= cut
		}
		return
	}
}
