package mptcp

import (
	"math"
	"slices"

	"github.com/aptpod/mptcp-go/dss"
	"github.com/aptpod/mptcp-go/scheduler"
	"github.com/aptpod/mptcp-go/seqnum"
)

// defaultPeerWindowは、ピアの受信ウィンドウが不明な間に送信できるバイト数です。
const defaultPeerWindow = 0xffff

// outputは、送信できなくなるまでマッピングを1つずつサブフローへ渡します。
func (s *Session) output() int {
	if s.destroyed || s.state == StateClosed || s.state == StateTerminated {
		return 0
	}
	total := 0
	for {
		n, ok := s.outputOne()
		if !ok {
			return total
		}
		total += n
	}
}

// liveは、まだ1度も送信していないバイト数を返却します。
func (s *Session) live() int {
	end := s.sndMax
	if s.finQueued {
		end = s.finDSN
	}
	if !seqnum.Value(end).GreaterThan(seqnum.Value(s.sndNxt)) {
		return 0
	}
	return int(end - s.sndNxt)
}

// sendWindowは、ピアの受信ウィンドウに収まる未送信のバイト数を返却します。
func (s *Session) sendWindow() int {
	if !seqnum.Value(s.sndAdv).GreaterThan(seqnum.Value(s.sndNxt)) {
		return 0
	}
	return int(min(s.sndAdv-s.sndNxt, math.MaxInt32))
}

// updateSendWindowは、Data ACKとともに通知されたピアの受信ウィンドウで右端を広げます。
func (s *Session) updateSendWindow(ack uint64, wnd uint32) {
	if seqnum.Value(ack).GreaterThan(seqnum.Value(s.sndNxt)) {
		return
	}
	if edge := ack + uint64(wnd); seqnum.Value(edge).GreaterThan(seqnum.Value(s.sndAdv)) {
		s.sndAdv = edge
		s.needOutput = true
	}
}

func (s *Session) finPending() bool {
	return s.finQueued && s.sndNxt == s.finDSN
}

// outputOneは、マッピングを1つ送信します。送信しなかった場合はfalseを返却します。
func (s *Session) outputOne() (int, bool) {
	if s.flags&flagFallback != 0 {
		return s.outputFallback()
	}
	head, hasHead := s.reinject.Front()
	live := min(s.live(), s.sendWindow())
	if !hasHead && live == 0 && !s.finPending() && !s.finRetransmit {
		return 0, false
	}

	sf := s.pickSubflow(uint64(live + s.reinject.Bytes()))
	if sf == nil {
		return 0, false
	}
	limit := s.sendLimit(sf)

	if hasHead && len(head.Payload) <= limit {
		s.reinject.PopFront()
		n, err := s.transmit(sf, head.DSN, head.Payload, false)
		if err != nil {
			s.reinject.Insert(head, s.sndUna)
			return 0, false
		}
		return n, true
	}
	if s.finRetransmit && !hasHead {
		if _, err := s.transmit(sf, s.finDSN, nil, true); err != nil {
			return 0, false
		}
		s.finRetransmit = false
		return 0, true
	}
	if live == 0 && !s.finPending() {
		return 0, false
	}

	n := min(live, limit)
	off := int(s.sndNxt - s.sndUna)
	payload := s.sndBuf[off : off+n]
	fin := s.finQueued && s.sndNxt+uint64(n) == s.finDSN
	if _, err := s.transmit(sf, s.sndNxt, payload, fin); err != nil {
		return 0, false
	}
	s.sndNxt += uint64(n)
	if fin {
		s.sndNxt++
	}
	if high := uint32(s.sndNxt >> 32); high != s.dsnHigh && s.flags&flagDSN64 == 0 {
		s.flags |= flagDSN64
		s.logger.Debugf(s.ctx, "Switching to 64-bit DSN at %d", s.sndNxt)
	}
	return n, true
}

// pickSubflowは、送信するサブフローを選択します。
//
// FAILING_OVERのサブフローは、他に送信できるサブフローがない場合のみ使います。
func (s *Session) pickSubflow(queued uint64) *subflow {
	var ready, failing []*subflow
	for _, sf := range s.subflows {
		if !sf.usable() || !sf.flags.Has(SubflowMPCapable) || sf.conn == nil {
			continue
		}
		if s.congestionSpace(sf) <= 0 {
			continue
		}
		if sf.flags.Has(SubflowFailingOver) {
			failing = append(failing, sf)
		} else {
			ready = append(ready, sf)
		}
	}
	if len(ready) == 0 {
		ready = failing
	}
	if len(ready) == 0 {
		return nil
	}
	paths := make([]*scheduler.PathInfo, 0, len(ready))
	for _, sf := range ready {
		sf.path.SetRole(sf.flags.Has(SubflowActive), sf.flags.Has(SubflowBackup))
		sf.path.Update()
		paths = append(paths, sf.path)
	}
	id, ok := s.selector.Select(paths, queued)
	if !ok {
		return nil
	}
	i := slices.IndexFunc(ready, func(sf *subflow) bool { return uint32(sf.id) == id })
	if i < 0 {
		return nil
	}
	return ready[i]
}

// congestionSpaceは、輻輳ウィンドウの残りを返却します。
func (s *Session) congestionSpace(sf *subflow) int {
	m := sf.metrics()
	inflight := max(int(m.BytesInFlight()), sf.outstanding())
	return int(m.CongestionWindow()) - inflight
}

func (s *Session) sendLimit(sf *subflow) int {
	return min(s.cfg.MaxSegmentSize, s.congestionSpace(sf), dss.MaxMappingLength)
}

// transmitは、dsnから始まるpayloadを1つのマッピングとしてsfへ送信します。
//
// 送信に失敗した場合はサブフロー相対シーケンスを戻し、サブフローをリセットします。
func (s *Session) transmit(sf *subflow, dsn uint64, payload []byte, fin bool) (int, error) {
	payload = slices.Clone(payload)
	m := dss.NewMapping(dsn, sf.relSeq, payload, fin, s.checksum)
	seg := &dss.Segment{
		Mapping: &m,
		Payload: payload,
		DSN64:   s.flags&flagDSN64 != 0,
	}
	if s.remoteKey != 0 {
		s.setDataAck(seg)
	}

	sf.relSeq += uint32(len(payload))
	if _, err := sf.conn.Send(seg); err != nil {
		sf.relSeq -= uint32(len(payload))
		s.logger.Warnf(s.subflowCtx(sf), "Failed to send %v: %v", m, err)
		s.abortSubflow(sf, err)
		return 0, err
	}

	sf.inflight = append(sf.inflight, inflight{dsn: dsn, payload: payload, fin: fin})
	n := uint64(len(payload))
	sf.txBytes += n
	sf.path.AddTxBytes(n)
	if st := s.ifStats[sf.ifCurrent]; st != nil {
		st.txBytes += n
	}
	return len(payload), nil
}

// outputFallbackは、フォールバック後の単一経路へマッピングなしでデータを渡します。
//
// TCPが到達を保証するため、渡したデータは確認済みとして扱います。
func (s *Session) outputFallback() (int, bool) {
	var sf *subflow
	for _, o := range s.subflows {
		if o.usable() && o.conn != nil {
			sf = o
			break
		}
	}
	if sf == nil {
		return 0, false
	}

	if live := s.live(); live > 0 {
		n := min(live, s.cfg.MaxSegmentSize)
		off := int(s.sndNxt - s.sndUna)
		payload := slices.Clone(s.sndBuf[off : off+n])
		if _, err := sf.conn.Send(&dss.Segment{Payload: payload}); err != nil {
			s.logger.Warnf(s.subflowCtx(sf), "Failed to send on fallback subflow: %v", err)
			s.abortSubflow(sf, err)
			return 0, false
		}
		sf.txBytes += uint64(n)
		if st := s.ifStats[sf.ifCurrent]; st != nil {
			st.txBytes += uint64(n)
		}
		s.sndNxt += uint64(n)
		s.acknowledge(s.sndNxt)
		return n, true
	}
	if s.finPending() {
		s.sndNxt++
		s.acknowledge(s.sndNxt)
		s.disconnectSubflow(sf)
		return 0, true
	}
	return 0, false
}

// reinjectFromは、sfの未確認データを再送キューへ移します。DATA_FINは単独で送り直します。
func (s *Session) reinjectFrom(sf *subflow) {
	if s.flags&flagFallback != 0 {
		return
	}
	if n := sf.reinjectTo(&s.reinject, s.sndUna); n > 0 {
		s.logger.Debugf(s.subflowCtx(sf), "Reinjecting %d bytes", n)
	}
	for _, r := range sf.inflight {
		if r.fin && seqnum.Value(r.end()).GreaterThan(seqnum.Value(s.sndUna)) {
			s.finRetransmit = true
		}
	}
}

// acknowledgeは、ピアのData ACKを処理します。
func (s *Session) acknowledge(ack uint64) {
	a := seqnum.Value(ack)
	if !a.GreaterThan(seqnum.Value(s.sndUna)) || a.GreaterThan(seqnum.Value(s.sndNxt)) {
		return
	}
	acked := int(ack - s.sndUna)
	finAcked := s.finQueued && a.GreaterThan(seqnum.Value(s.finDSN))
	if finAcked {
		acked--
	}
	s.sndBuf = s.sndBuf[acked:]
	if len(s.sndBuf) == 0 {
		s.sndBuf = nil
	}
	s.sndUna = ack
	s.reinject.Clean(ack)

	for _, sf := range s.subflows {
		before := len(sf.inflight)
		sf.ack(ack)
		if len(sf.inflight) < before {
			sf.flags &^= SubflowWriteStall
		}
		if sf.flags.Has(SubflowFailingOver) && len(sf.inflight) == 0 && sf.metrics().RetransmitShift() == 0 {
			sf.flags &^= SubflowFailingOver
		}
	}

	if finAcked {
		s.finRetransmit = false
		switch s.state {
		case StateFinWait1:
			s.state = StateFinWait2
		case StateClosing, StateLastAck:
			s.enterTimeWait()
		}
	}
	s.needOutput = true
}
