package dss_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/aptpod/mptcp-go/dss"
	"github.com/aptpod/mptcp-go/errors"
)

func TestOption_Marshal64(t *testing.T) {
	payload := []byte("payload")
	m := NewMapping(1<<40+3, 42, payload, true, true)
	o := Option{HasDataAck: true, DataAck: 1<<33 + 9, Ack64: true, Mapping: &m, DSN64: true, HasChecksum: true}

	b := o.Marshal()
	require.Len(t, b, 4+8+8+4+2+2)
	assert.Equal(t, byte(OptionKindMPTCP), b[0])
	assert.Equal(t, byte(len(b)), b[1])
	assert.Equal(t, byte(SubtypeDSS<<4), b[2])
	assert.Equal(t, byte(0x1f), b[3])

	got, err := UnmarshalOption(b, 0, 0, true)
	require.NoError(t, err)
	assert.Equal(t, o.DataAck, got.DataAck)
	require.NotNil(t, got.Mapping)
	assert.Equal(t, m, *got.Mapping)
}

func TestOption_Unmarshal32Expands(t *testing.T) {
	m := Mapping{DSN: 0x2_0000_0010, SubflowSeq: 7, Length: 100}
	o := Option{HasDataAck: true, DataAck: 0x5_0000_0001, Mapping: &m}
	b := o.Marshal()
	require.Len(t, b, 4+4+4+4+2)

	got, err := UnmarshalOption(b, 0x1_ffff_ff00, 0x4_ffff_fff0, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x5_0000_0001), got.DataAck)
	assert.Equal(t, uint64(0x2_0000_0010), got.Mapping.DSN)
	assert.Equal(t, uint16(100), got.Mapping.Length)
	assert.False(t, got.Mapping.DataFIN)
}

func TestUnmarshalOption_Malformed(t *testing.T) {
	tests := []struct {
		name string
		b    []byte
	}{
		{name: "short", b: []byte{30, 2}},
		{name: "wrong kind", b: []byte{2, 4, 0x20, 0}},
		{name: "wrong subtype", b: []byte{30, 4, 0x10, 0}},
		{name: "length mismatch", b: []byte{30, 8, 0x20, 0x04, 0, 0, 0, 1, 9}},
		{name: "truncated ack", b: []byte{30, 6, 0x20, 0x04, 0, 0}},
		{name: "fin with zero length", b: []byte{30, 14, 0x20, 0x11, 0, 0, 0, 1, 0, 0, 0, 1, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalOption(tt.b, 0, 0, false)
			assert.ErrorIs(t, err, errors.ErrProtocolViolation)
		})
	}
}
