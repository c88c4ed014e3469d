package errors_test

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/aptpod/mptcp-go/errors"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{name: "nil", err: nil, want: CodeNone},
		{name: "resource", err: ErrResourceExhausted, want: CodeResourceExhausted},
		{name: "wrapped address", err: fmt.Errorf("dial: %w", ErrAddress), want: CodeAddress},
		{name: "inconsistent mapping is protocol violation", err: ErrInconsistentMapping, want: CodeProtocolViolation},
		{name: "no mapping is protocol violation", err: ErrNoMapping, want: CodeProtocolViolation},
		{name: "checksum", err: &SubflowError{ID: 3, Err: ErrChecksum}, want: CodeChecksum},
		{name: "closed session is not connected", err: ErrSessionClosed, want: CodeNotConnected},
		{name: "reset", err: ErrConnectionReset, want: CodeConnectionReset},
		{name: "fast close is authentication", err: ErrFastClose, want: CodeAuthentication},
		{name: "interface denied", err: ErrInterfaceDenied, want: CodeNotConnected},
		{name: "foreign", err: io.EOF, want: CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestErrFastClose(t *testing.T) {
	assert.True(t, Is(ErrFastClose, ErrConnectionReset))
	assert.True(t, Is(ErrFastClose, ErrAuthentication))
}

func TestSubflowError(t *testing.T) {
	err := fmt.Errorf("input: %w", &SubflowError{ID: 7, Err: ErrChecksum})
	assert.True(t, Is(err, ErrChecksum))
	assert.True(t, Is(err, ErrMPTCP))

	se, ok := AsSubflowError(err)
	require.True(t, ok)
	assert.Equal(t, uint32(7), se.ID)
	assert.Equal(t, "subflow 7: checksum mismatch: mptcp", se.Error())

	_, ok = AsSubflowError(io.EOF)
	assert.False(t, ok)
}
