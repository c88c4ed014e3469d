package segment_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/aptpod/mptcp-go/internal/segment"
)

const noLimit = ^uint64(0) >> 1

func TestReassembler_Reorder(t *testing.T) {
	r := NewReassembler(100)

	assert.Equal(t, 3, r.Insert(106, []byte("ghi"), false, noLimit))
	data, fin := r.Pop()
	assert.Empty(t, data)
	assert.False(t, fin)

	assert.Equal(t, 3, r.Insert(103, []byte("def"), false, noLimit))
	assert.Equal(t, 3, r.Insert(100, []byte("abc"), false, noLimit))
	assert.Equal(t, 9, r.Buffered())

	data, fin = r.Pop()
	assert.Equal(t, []byte("abcdefghi"), data)
	assert.False(t, fin)
	assert.Equal(t, uint64(109), r.Next())
	assert.Zero(t, r.Buffered())
	assert.Zero(t, r.PendingSegments())
}

func TestReassembler_Overlap(t *testing.T) {
	r := NewReassembler(0)
	r.Insert(0, []byte("0123"), false, noLimit)
	r.Insert(2, []byte("23456"), false, noLimit)
	r.Insert(1, []byte("12"), false, noLimit)

	data, _ := r.Pop()
	assert.Equal(t, []byte("0123456"), data)

	// 受信済みの範囲は受理しない
	assert.Zero(t, r.Insert(3, []byte("3456"), false, noLimit))
	assert.Equal(t, 1, r.Insert(6, []byte("67"), false, noLimit))
	data, _ = r.Pop()
	assert.Equal(t, []byte("7"), data)
}

func TestReassembler_DataFIN(t *testing.T) {
	r := NewReassembler(10)
	r.Insert(13, []byte("de"), true, noLimit)
	data, fin := r.Pop()
	assert.Empty(t, data)
	assert.False(t, fin)

	r.Insert(10, []byte("abc"), false, noLimit)
	data, fin = r.Pop()
	assert.Equal(t, []byte("abcde"), data)
	assert.True(t, fin)
	assert.True(t, r.Finished())
	assert.Equal(t, uint64(16), r.Next(), "data fin occupies one sequence number")

	_, fin = r.Pop()
	assert.False(t, fin)
}

func TestReassembler_DataFINOnly(t *testing.T) {
	r := NewReassembler(5)
	r.Insert(5, nil, true, noLimit)
	data, fin := r.Pop()
	assert.Empty(t, data)
	assert.True(t, fin)
	assert.Equal(t, uint64(6), r.Next())
}

func TestReassembler_Limit(t *testing.T) {
	r := NewReassembler(0)
	assert.Equal(t, 4, r.Insert(0, []byte("abcdef"), false, 4))
	assert.Zero(t, r.Insert(4, []byte("x"), false, 4))
	data, _ := r.Pop()
	assert.Equal(t, []byte("abcd"), data)
}

func TestReassembler_Shuffled(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	want := make([]byte, 4096)
	rnd.Read(want)

	type piece struct {
		dsn  uint64
		data []byte
	}
	var pieces []piece
	for off := 0; off < len(want); {
		n := 1 + rnd.Intn(200)
		if off+n > len(want) {
			n = len(want) - off
		}
		pieces = append(pieces, piece{dsn: uint64(off) + 1, data: want[off : off+n]})
		off += n
	}
	rnd.Shuffle(len(pieces), func(i, j int) { pieces[i], pieces[j] = pieces[j], pieces[i] })

	r := NewReassembler(1)
	var got bytes.Buffer
	for _, p := range pieces {
		r.Insert(p.dsn, p.data, false, noLimit)
		data, _ := r.Pop()
		got.Write(data)
	}
	require.Equal(t, want, got.Bytes())
}
