package mptcp

import (
	"math"

	"github.com/aptpod/mptcp-go/dss"
	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/seqnum"
)

// inputは、サブフローで受信したセグメントを処理します。
func (s *Session) input(sf *subflow, seg *dss.Segment) {
	if sf.flags.Has(SubflowDisconnected) || s.destroyed {
		return
	}
	fallback := s.flags&flagFallback != 0
	if seg.HasDataAck && !fallback {
		s.acknowledge(seg.DataAck)
		s.updateSendWindow(seg.DataAck, seg.Window)
	}
	if len(seg.Payload) == 0 && seg.Mapping == nil {
		return
	}

	n := uint64(len(seg.Payload))
	sf.rxBytes += n
	if st := s.ifStats[sf.ifCurrent]; st != nil {
		st.rxBytes += n
	}
	sf.flags &^= SubflowReadStall

	if fallback {
		s.deliver(s.rcvNxt, seg.Payload, false)
		return
	}

	chunks, err := sf.receiver.Receive(seg.Payload, seg.Mapping)
	switch {
	case err == nil:
		if seg.Mapping != nil {
			sf.mappingSeen = true
		}
	case errors.Is(err, errors.ErrNoMapping) && s.implicitFallbackAllowed(sf):
		s.logger.Warnf(s.subflowCtx(sf), "Data without mapping on initial subflow, falling back to TCP")
		s.enterFallback(sf)
		s.fallbackOthers(sf)
		s.deliver(s.rcvNxt, seg.Payload, false)
		return
	default:
		s.logger.Warnf(s.subflowCtx(sf), "Resetting subflow: %v", err)
		if errors.Is(err, errors.ErrProtocolViolation) {
			s.notify(SessionEventProtocolError, sf.id, err)
		}
		s.abortSubflow(sf, err)
		return
	}

	before := s.rcvNxt
	finReached := false
	for _, c := range chunks {
		finReached = s.deliver(c.DSN, c.Data, c.DataFIN) || finReached
	}
	if s.rcvNxt != before {
		s.sendDataAck(sf)
	}
	if finReached {
		s.peerDataFIN()
	}
}

// implicitFallbackAllowedは、マッピングのないデータをTCPへのフォールバックとして扱えるかを返却します。
//
// 最初のサブフローで、MPTCPの利用がまだ確認できていない場合のみ許可します。
func (s *Session) implicitFallbackAllowed(sf *subflow) bool {
	if s.flags&flagFallback != 0 || !sf.flags.Has(SubflowInitial) {
		return false
	}
	if sf.flags.Has(SubflowMPReady) || sf.mappingSeen {
		return false
	}
	for _, o := range s.subflows {
		if o != sf && o.usable() && o.flags.Has(SubflowMPCapable) {
			return false
		}
	}
	return true
}

// deliverは、DSNの確定したバイト列を並べ替えバッファへ渡し、連続した部分を読み出し可能にします。
//
// ピアのDATA_FINまで揃った場合は真を返却します。rcvAdvより後ろのバイトは破棄します。
// フォールバック後はウィンドウを通知できないため、全て受け入れます。
func (s *Session) deliver(dsn uint64, data []byte, fin bool) bool {
	limit := s.rcvAdv
	if end := dsn + uint64(len(data)); s.flags&flagFallback != 0 && seqnum.Value(end).GreaterThan(seqnum.Value(limit)) {
		limit = end
	}
	s.reassembler.Insert(dsn, data, fin, limit)
	out, finReached := s.reassembler.Pop()
	s.readBuf = append(s.readBuf, out...)
	s.rcvNxt = s.reassembler.Next()
	if seqnum.Value(s.rcvNxt).GreaterThan(seqnum.Value(s.rcvAdv)) {
		s.rcvAdv = s.rcvNxt
	}
	s.updateWindow()
	return finReached
}

// updateWindowは、受信バッファの空きに合わせてrcvAdvを広げます。rcvAdvは縮めません。
func (s *Session) updateWindow() {
	space := max(s.cfg.ReceiveBufferSize-len(s.readBuf), 0)
	adv := s.rcvNxt + uint64(space)
	if seqnum.Value(adv).GreaterThan(seqnum.Value(s.rcvAdv)) {
		s.rcvAdv = adv
	}
}

// windowUpdateは、ピアに通知したウィンドウが1セグメント分を下回っている間に
// 受信バッファが空いた場合、Data ACKで新しい右端を通知します。
func (s *Session) windowUpdate() {
	if s.remoteKey == 0 || s.flags&flagFallback != 0 || s.rcvAdv == s.rcvAdvSent {
		return
	}
	if int64(s.rcvAdvSent-s.rcvNxt) >= int64(s.cfg.MaxSegmentSize) {
		return
	}
	sf := s.lookup(s.activeID)
	if sf == nil || !sf.usable() || sf.conn == nil {
		sf = nil
		for _, o := range s.subflows {
			if o.usable() && o.conn != nil && o.flags.Has(SubflowMPCapable) {
				sf = o
				break
			}
		}
	}
	if sf == nil {
		return
	}
	s.logger.Debugf(s.subflowCtx(sf), "Window update %d -> %d", s.rcvAdvSent, s.rcvAdv)
	s.sendDataAck(sf)
}

// setDataAckは、segにData ACKと受信ウィンドウを載せます。
func (s *Session) setDataAck(seg *dss.Segment) {
	seg.HasDataAck = true
	seg.DataAck = s.rcvNxt
	seg.Window = windowSize(s.rcvAdv - s.rcvNxt)
	s.rcvAdvSent = s.rcvAdv
}

func windowSize(n uint64) uint32 {
	return uint32(min(n, math.MaxUint32))
}

func (s *Session) sendDataAck(sf *subflow) {
	if sf.conn == nil || !sf.usable() {
		return
	}
	seg := &dss.Segment{DSN64: s.flags&flagDSN64 != 0}
	s.setDataAck(seg)
	if _, err := sf.conn.Send(seg); err != nil {
		s.logger.Warnf(s.subflowCtx(sf), "Failed to send data ack: %v", err)
		s.abortSubflow(sf, err)
	}
}

// peerDataFINは、ピアのDATA_FINを受信した場合の状態遷移です。
func (s *Session) peerDataFIN() {
	if s.peerFIN {
		return
	}
	s.peerFIN = true
	switch s.state {
	case StateEstablished:
		s.state = StateCloseWait
	case StateFinWait1:
		s.state = StateClosing
	case StateFinWait2:
		s.enterTimeWait()
	}
	s.logger.Infof(s.ctx, "Peer DATA_FIN received, now %v", s.state)
}
