package dss_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/aptpod/mptcp-go/dss"
	"github.com/aptpod/mptcp-go/errors"
)

func TestReceiver_RoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for _, checksum := range []bool{false, true} {
		r := NewReceiver(checksum)
		ssn := uint32(1)
		dsn := uint64(1000)
		for i := 0; i < 50; i++ {
			maxLen := 1 + rnd.Intn(1500)
			payload := make([]byte, maxLen)
			rnd.Read(payload)
			m := NewMapping(dsn, ssn, payload, false, checksum)
			require.GreaterOrEqual(t, int(m.Length), 1)
			require.LessOrEqual(t, int(m.Length), maxLen)

			got, err := r.Receive(payload, &m)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, dsn, got[0].DSN)
			assert.Equal(t, payload, got[0].Data)

			dsn += uint64(len(payload))
			ssn += uint32(len(payload))
		}
		assert.Zero(t, r.Buffered())
	}
}

func TestReceiver_PartialDeliveryWithDuplicateMapping(t *testing.T) {
	payload := []byte("0123456789")
	m := NewMapping(500, 1, payload, true, false)
	r := NewReceiver(false)

	got, err := r.Receive(payload[:4], &m)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Chunk{DSN: 500, Data: []byte("0123")}, got[0])

	// 同じマッピングが再度付与されても一致していれば継続する
	dup := m
	got, err = r.Receive(payload[4:7], &dup)
	require.NoError(t, err)
	assert.Equal(t, []Chunk{{DSN: 504, Data: []byte("456")}}, got)

	got, err = r.Receive(payload[7:], nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(507), got[0].DSN)
	assert.True(t, got[0].DataFIN, "data fin is marked on the chunk completing the mapping")
}

func TestReceiver_InconsistentMapping(t *testing.T) {
	payload := []byte("abcdef")
	m := NewMapping(10, 1, payload, false, false)
	r := NewReceiver(false)
	_, err := r.Receive(payload[:2], &m)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Mapping)
	}{
		{name: "dsn", mutate: func(m *Mapping) { m.DSN++ }},
		{name: "length", mutate: func(m *Mapping) { m.Length-- }},
		{name: "data fin", mutate: func(m *Mapping) { m.DataFIN = true }},
		{name: "ssn", mutate: func(m *Mapping) { m.SubflowSeq = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := m
			tt.mutate(&bad)
			_, err := r.Receive(payload[2:], &bad)
			assert.ErrorIs(t, err, errors.ErrInconsistentMapping)
			assert.ErrorIs(t, err, errors.ErrProtocolViolation)
		})
	}
}

func TestReceiver_SplitsOverlongInput(t *testing.T) {
	first := NewMapping(0, 1, []byte("hello"), false, true)
	second := NewMapping(5, 6, []byte("world"), true, true)
	r := NewReceiver(true)

	got, err := r.Receive([]byte("helloworld"), &first)
	require.NoError(t, err)
	assert.Equal(t, []Chunk{{DSN: 0, Data: []byte("hello")}}, got)
	assert.Equal(t, 5, r.Buffered())

	got, err = r.Receive(nil, &second)
	require.NoError(t, err)
	assert.Equal(t, []Chunk{{DSN: 5, Data: []byte("world"), DataFIN: true}}, got)
	assert.Zero(t, r.Buffered())
}

func TestReceiver_DataFINOnly(t *testing.T) {
	m := NewMapping(77, 1, nil, true, true)
	r := NewReceiver(true)
	got, err := r.Receive(nil, &m)
	require.NoError(t, err)
	assert.Equal(t, []Chunk{{DSN: 77, DataFIN: true}}, got)
	assert.Equal(t, uint64(78), m.End())
}

func TestReceiver_ChecksumFailure(t *testing.T) {
	payload := []byte("corrupted payload")
	m := NewMapping(1, 1, payload, false, true)
	m.Checksum ^= 0x1
	r := NewReceiver(true)

	got, err := r.Receive(payload[:8], &m)
	require.NoError(t, err)
	assert.Empty(t, got, "bytes are held until the mapping is verified")

	got, err = r.Receive(payload[8:], nil)
	assert.ErrorIs(t, err, errors.ErrChecksum)
	assert.Empty(t, got)
	assert.Zero(t, r.Buffered())
}

func TestReceiver_NoMapping(t *testing.T) {
	r := NewReceiver(false)
	_, err := r.Receive([]byte("plain"), nil)
	assert.ErrorIs(t, err, errors.ErrNoMapping)
	assert.Zero(t, r.Buffered())

	m := NewMapping(0, 1, []byte("ab"), false, false)
	_, err = r.Receive([]byte("ab"), &m)
	require.NoError(t, err)
	_, err = r.Receive([]byte("c"), nil)
	assert.ErrorIs(t, err, errors.ErrNoMapping)
}

func TestReceiver_EmptyMapping(t *testing.T) {
	r := NewReceiver(false)
	_, err := r.Receive([]byte("x"), &Mapping{DSN: 1, SubflowSeq: 1})
	assert.ErrorIs(t, err, errors.ErrProtocolViolation)
}

func TestChecksum(t *testing.T) {
	payload := bytes.Repeat([]byte{0xab}, 33)
	m := NewMapping(0x1122334455667788, 9, payload, false, true)
	assert.Equal(t, m.Checksum, Checksum(m, payload))

	flipped := append([]byte(nil), payload...)
	flipped[10] ^= 0xff
	assert.NotEqual(t, m.Checksum, Checksum(m, flipped))

	fin := m
	fin.DataFIN = true
	assert.NotEqual(t, m.Checksum, Checksum(fin, payload), "data fin is part of the data level length")
}
