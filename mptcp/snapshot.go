package mptcp

import (
	"slices"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/nic"
	"github.com/aptpod/mptcp-go/stats"
)

// Snapshotは、セッションの統計情報を返却します。
func (s *Session) Snapshot() stats.Session {
	s.mu.Lock()
	defer s.unlock()

	res := stats.Session{
		ID:            s.id,
		ServiceType:   uint32(s.serviceType),
		State:         uint32(s.state),
		Flags:         uint32(s.flags),
		ErrCode:       uint32(errors.CodeOf(s.err)),
		SndUna:        s.sndUna,
		SndNxt:        s.sndNxt,
		SndMax:        s.sndMax,
		RcvNxt:        s.rcvNxt,
		ReinjectBytes: uint64(s.reinject.Bytes()),
	}
	for _, sf := range s.subflows {
		res.Subflows = append(res.Subflows, stats.Subflow{
			ID:          uint32(sf.id),
			Flags:       uint32(sf.flags),
			Interface:   uint32(sf.ifCurrent),
			LocalAddrID: uint32(sf.localAddrID),
			TxBytes:     sf.txBytes,
			RxBytes:     sf.rxBytes,
			Outstanding: uint64(sf.outstanding()),
			ErrCode:     uint32(errors.CodeOf(sf.err)),
		})
	}
	ids := make([]nic.InterfaceID, 0, len(s.ifStats))
	for id := range s.ifStats {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		st := s.ifStats[id]
		res.Interfaces = append(res.Interfaces, stats.Interface{
			ID:       uint32(id),
			Metered:  st.metered,
			TxBytes:  st.txBytes,
			RxBytes:  st.rxBytes,
			Switches: st.switches,
		})
	}
	return res
}
