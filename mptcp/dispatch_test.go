package mptcp_test

import (
	"testing"

	"github.com/aptpod/mptcp-go/errors"
	. "github.com/aptpod/mptcp-go/mptcp"
	"github.com/aptpod/mptcp-go/policy"
	"github.com/aptpod/mptcp-go/reinject"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countKind(kinds []SessionEventKind, k SessionEventKind) int {
	n := 0
	for _, v := range kinds {
		if v == k {
			n++
		}
	}
	return n
}

func TestSession_StallMarkers(t *testing.T) {
	tests := []struct {
		name    string
		ev      Event
		kind    SessionEventKind
		flag    SubflowFlag
		stalled int
		want    int
	}{
		{name: "read: one of two", ev: EventReadStall, kind: SessionEventReadStall, flag: SubflowReadStall, stalled: 1, want: 0},
		{name: "read: all", ev: EventReadStall, kind: SessionEventReadStall, flag: SubflowReadStall, stalled: 2, want: 1},
		{name: "write: one of two", ev: EventWriteStall, kind: SessionEventWriteStall, flag: SubflowWriteStall, stalled: 1, want: 0},
		{name: "write: all", ev: EventWriteStall, kind: SessionEventWriteStall, flag: SubflowWriteStall, stalled: 2, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestSession(t, policy.ServiceTypeAggregate)
			conns := []*fakeConn{ts.establish(t), ts.join(t, testDst2)}

			for _, c := range conns[:tt.stalled] {
				c.n.Notify(tt.ev)
				sf, ok := subflowByID(ts.Subflows(), c.req.SubflowID)
				require.True(t, ok)
				assert.True(t, sf.Flags.Has(tt.flag))
			}
			assert.Equal(t, tt.want, countKind(ts.events.kinds(), tt.kind))
			assert.Equal(t, StateEstablished, ts.State())
		})
	}
}

func TestSession_ConnResetPropagation(t *testing.T) {
	tests := []struct {
		name     string
		subflows int
		want     int
	}{
		{name: "other subflow usable", subflows: 2, want: 0},
		{name: "last subflow", subflows: 1, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestSession(t, policy.ServiceTypeAggregate)
			a := ts.establish(t)
			if tt.subflows > 1 {
				ts.join(t, testDst2)
			}

			a.n.Notify(EventConnReset)

			assert.Equal(t, tt.want, countKind(ts.events.kinds(), SessionEventConnReset))
			_, ok := subflowByID(ts.Subflows(), a.req.SubflowID)
			assert.True(t, ok, "conn reset alone keeps the subflow")
		})
	}
}

func TestSession_ProtocolErrorResetsSubflow(t *testing.T) {
	ts := newTestSession(t, policy.ServiceTypeAggregate)
	a := ts.establish(t)
	b := ts.join(t, testDst2)

	st := mpReady
	st.Err = errors.Errorf("bad option: %w", errors.ErrProtocolViolation)
	a.setStatus(st)
	a.n.Notify(EventProtocolError | EventMustReset)

	assert.Equal(t, 1, countKind(ts.events.kinds(), SessionEventProtocolError))
	assert.ErrorIs(t, a.abortErr(), errors.ErrProtocolViolation)
	_, ok := subflowByID(ts.Subflows(), a.req.SubflowID)
	assert.False(t, ok)
	_, ok = subflowByID(ts.Subflows(), b.req.SubflowID)
	assert.True(t, ok)
	assert.Equal(t, StateEstablished, ts.State())
	assert.NoError(t, ts.Err())
}

func TestSession_RemoveSubflow(t *testing.T) {
	ts := newTestSession(t, policy.ServiceTypeAggregate)
	a := ts.establish(t)
	b := ts.join(t, testDst2)
	b.block()
	ts.SetSendSequence(100)

	payload := []byte("0123456789")
	n, err := ts.Send(payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, a.sentData())

	require.NoError(t, ts.RemoveSubflow(a.req.SubflowID))

	assert.True(t, a.isClosed())
	assert.Equal(t, []reinject.Entry{{DSN: 100, Payload: payload}}, ts.ReinjectEntries())
	_, ok := subflowByID(ts.Subflows(), a.req.SubflowID)
	assert.False(t, ok)

	assert.ErrorIs(t, ts.RemoveSubflow(a.req.SubflowID), errors.ErrState)
}
