package mptcp

import (
	"net/netip"
	"slices"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/nic"
)

func (s *Session) onProtocolError(sf *subflow, _ Event) eventResult {
	st := sf.status()
	if st.Err != nil && errors.Is(st.Err, errors.ErrProtocolViolation) {
		s.notify(SessionEventProtocolError, sf.id, st.Err)
	}
	return resultOK
}

func (s *Session) onCantRcvMore(sf *subflow, _ Event) eventResult {
	if s.flags&flagFallback != 0 {
		// TCPのFINがDATA_FINを兼ねる
		s.peerDataFIN()
	}
	if s.state == StateCloseWait {
		s.notify(SessionEventCantRcvMore, sf.id, nil)
	}
	return resultOK
}

// onFailoverは、sfの未確認データを再送キューへ移し、別のサブフローをアクティブにします。
func (s *Session) onFailover(sf *subflow, _ Event) eventResult {
	if s.flags&flagFallback != 0 {
		return resultOK
	}
	s.reinjectFrom(sf)

	alt := s.alternate(sf)
	if alt == nil {
		s.logger.Debugf(s.subflowCtx(sf), "No alternate subflow for failover")
		return resultOK
	}
	if alt.flags.Has(SubflowFailingOver) {
		if alt.outstanding() > 0 || alt.metrics().RetransmitShift() > 0 {
			return resultOK
		}
		alt.flags &^= SubflowFailingOver
	}
	if cur := s.lookup(s.activeID); cur != nil {
		cur.flags &^= SubflowActive
	}
	sf.flags &^= SubflowActive
	sf.flags |= SubflowFailingOver
	alt.flags |= SubflowActive
	s.activeID = alt.id
	if st := s.ifStats[alt.ifCurrent]; st != nil {
		st.switches++
	}
	s.needOutput = true
	s.logger.Infof(s.subflowCtx(sf), "Failing over to subflow %d", alt.id)
	return resultOK
}

// alternateは、フェイルオーバー先のサブフローを選びます。
//
// FAILING_OVERでないもの、PREFERREDのもの、RTTの小さいものの順に優先します。
func (s *Session) alternate(sf *subflow) *subflow {
	var best *subflow
	for _, o := range s.subflows {
		if o == sf || !o.usable() || !o.flags.HasAny(SubflowMPCapable|SubflowMPDegraded) {
			continue
		}
		if best == nil || betterAlternate(o, best) {
			best = o
		}
	}
	return best
}

func betterAlternate(a, b *subflow) bool {
	if af, bf := a.flags.Has(SubflowFailingOver), b.flags.Has(SubflowFailingOver); af != bf {
		return !af
	}
	if ap, bp := a.flags.Has(SubflowPreferred), b.flags.Has(SubflowPreferred); ap != bp {
		return ap
	}
	return a.metrics().RTT() < b.metrics().RTT()
}

// onPropagateは、リセットやタイムアウトを、他に使えるサブフローがない場合にアプリケーションへ伝えます。
func (s *Session) onPropagate(sf *subflow, ev Event) eventResult {
	propagate := s.state < StateEstablished ||
		(s.flags&flagJoinReady == 0 && !sf.flags.Has(SubflowMPReady)) ||
		(s.flags&flagFallback != 0 && sf.flags.Has(SubflowActive)) ||
		!s.hasOtherUsable(sf)
	if !propagate {
		return resultOK
	}
	if ev&EventConnReset != 0 {
		s.notify(SessionEventConnReset, sf.id, errors.ErrConnectionReset)
	}
	if ev&EventCantSendMore != 0 {
		s.notify(SessionEventCantSendMore, sf.id, nil)
	}
	if ev&EventTimeout != 0 {
		s.notify(SessionEventTimeout, sf.id, errors.ErrTimeout)
	}
	return resultOK
}

func (s *Session) hasOtherUsable(sf *subflow) bool {
	for _, o := range s.subflows {
		if o != sf && o.usable() {
			return true
		}
	}
	return false
}

// onMustResetは、サブフローをリセットします。ピアのFast Closeの場合はセッション全体を終了します。
func (s *Session) onMustReset(sf *subflow, _ Event) eventResult {
	st := sf.status()
	err := errOr(st.Err, errors.ErrConnectionReset)
	fastClose := s.flags&flagFallback == 0 && st.FastClose

	s.abortSubflow(sf, err)
	if fastClose {
		s.logger.Warnf(s.subflowCtx(sf), "Fast close received")
		for _, o := range s.subflows {
			if o != sf {
				s.abortSubflow(o, errors.ErrFastClose)
			}
		}
		s.notify(SessionEventConnReset, sf.id, errors.ErrFastClose)
		s.drop(errors.ErrFastClose)
	}
	if s.gcTicks > s.cfg.FastGCTicks {
		s.gcTicks = s.cfg.FastGCTicks
	}
	return resultDelete
}

func (s *Session) onNoSourceAddress(sf *subflow, _ Event) eventResult {
	s.logger.Infof(s.subflowCtx(sf), "Source address lost (address id %d)", sf.localAddrID)
	s.abortSubflow(sf, errors.Errorf("source address lost: %w", errors.ErrAddress))
	return resultDelete
}

func (s *Session) onInterfaceDenied(sf *subflow, _ Event) eventResult {
	s.notify(SessionEventInterfaceDenied, sf.id, errors.ErrInterfaceDenied)
	s.abortSubflow(sf, errors.ErrInterfaceDenied)
	return resultDelete
}

// onConnectedは、サブフローの接続完了を処理します。最初のサブフローの場合はセッションを確立します。
func (s *Session) onConnected(sf *subflow, _ Event) eventResult {
	if sf.flags.Has(SubflowConnected) {
		return resultOK
	}
	if sf.flags.HasAny(SubflowDisconnecting|SubflowDisconnected) || s.state >= StateTimeWait {
		sf.flags &^= SubflowDisconnecting
		s.disconnectSubflow(sf)
		return resultOK
	}

	st := sf.status()
	sf.flags &^= SubflowConnecting
	sf.flags |= SubflowConnected
	if st.MPCapable {
		sf.flags |= SubflowMPCapable
	}
	if st.MPReady {
		sf.flags |= SubflowMPReady
	}
	s.bookInterface(sf)

	switch {
	case s.state == StateClosed:
		s.state = StateEstablished
		s.setChecksum(s.cfg.Checksum || st.ChecksumRequired)
		if st.RemoteKey != 0 {
			s.setRemoteKey(st.RemoteKey)
		}
		if st.Window != 0 {
			s.sndAdv = s.sndUna + uint64(st.Window)
		}
		sf.flags |= SubflowActive
		s.activeID = sf.id
		if st.MPCapable {
			s.countMPCapable(sf)
		} else {
			s.enterFallback(sf)
		}
		s.logger.Infof(s.subflowCtx(sf), "Session established (mp capable %t)", st.MPCapable)
	case st.MPCapable:
		s.countMPCapable(sf)
		s.logger.Infof(s.subflowCtx(sf), "Subflow joined on interface %d", sf.ifCurrent)
	default:
		s.logger.Infof(s.subflowCtx(sf), "Subflow is not MPTCP capable")
		s.tryAlternatePort(sf)
		s.post(sf.id, EventMustReset)
		return resultOK
	}
	s.needEvaluate = true
	s.needOutput = true
	return resultOK
}

func (s *Session) countMPCapable(sf *subflow) {
	if !sf.flags.Has(subflowMPCapCounted) {
		sf.flags |= subflowMPCapCounted
		s.numMPCapable++
	}
	if s.isMetered(sf) && s.needBackup() {
		sf.flags |= SubflowBackup
	} else {
		sf.flags |= SubflowPreferred
	}
}

// bookInterfaceは、サブフローが実際に使っているインターフェースを記録します。
func (s *Session) bookInterface(sf *subflow) {
	if id := sf.conn.CurrentInterface(); id != nic.NoInterface {
		sf.ifCurrent = id
	}
	if sf.ifCurrent == nic.NoInterface {
		return
	}
	metered := s.cfg.Interfaces.IsMetered(sf.ifCurrent)
	if _, ok := s.ifStats[sf.ifCurrent]; !ok {
		s.ifStats[sf.ifCurrent] = &interfaceStats{metered: metered}
	}
	if metered {
		s.flags |= flagCellUsed
		sf.flags |= SubflowCellIconSet
	} else {
		s.flags |= flagWifiUsed
	}
}

// onMPStatusは、MPTCPのネゴシエーション状態の変化を処理します。
func (s *Session) onMPStatus(sf *subflow, _ Event) eventResult {
	st := sf.status()
	if st.MPCapable {
		sf.flags |= SubflowMPCapable
	} else {
		sf.flags &^= SubflowMPCapable
	}
	if st.MPReady {
		sf.flags |= SubflowMPReady
	} else {
		sf.flags &^= SubflowMPReady
	}
	if st.Degraded {
		sf.flags |= SubflowMPDegraded
	}

	if sf.flags.Has(SubflowMPDegraded) && s.flags&flagFallback == 0 {
		if !sf.flags.Has(SubflowInitial) || s.joinConfirmed(sf) {
			// 後から追加したサブフローの失敗はそのサブフローのみリセットする
			s.post(sf.id, EventMustReset)
			return resultOK
		}
		s.enterFallback(sf)
	}

	if s.flags&flagFallback != 0 {
		s.reinject.Clear()
		return resultDisconnectFallback
	}
	if sf.flags.Has(SubflowMPReady) {
		s.flags |= flagJoinReady
		return resultConnectPending
	}
	return resultOK
}

// joinConfirmedは、sf以外にMPTCPで動作しているサブフローがあるかを返却します。
func (s *Session) joinConfirmed(sf *subflow) bool {
	for _, o := range s.subflows {
		if o != sf && o.usable() && o.flags.Has(SubflowMPReady) {
			return true
		}
	}
	return false
}

// enterFallbackは、セッションを単一経路のTCPへフォールバックさせます。フォールバックは解除しません。
func (s *Session) enterFallback(sf *subflow) {
	if s.flags&flagFallback != 0 {
		return
	}
	s.flags |= flagFallback
	s.flags &^= flagJoinReady
	sf.flags |= SubflowMPDegraded
	s.reinject.Clear()
	s.finRetransmit = false
	s.logger.Warnf(s.subflowCtx(sf), "Falling back to single-path TCP")
	s.notify(SessionEventFallback, sf.id, nil)
}

// fallbackOthersは、フォールバックを報告したサブフロー以外をリセットします。
//
// 報告したサブフローで送信済みのデータはTCPが届けるため確認済みとして扱います。
func (s *Session) fallbackOthers(reporting *subflow) {
	for _, sf := range s.subflows {
		sf.flags |= SubflowMPDegraded
		if sf == reporting || sf.flags.HasAny(SubflowDisconnecting|SubflowDisconnected) {
			continue
		}
		s.post(sf.id, EventMustReset)
	}
	reporting.inflight = nil
	s.reinject.Clear()
	s.acknowledge(s.sndNxt)
}

func (s *Session) onDisconnected(sf *subflow, _ Event) eventResult {
	if sf.flags.Has(SubflowDisconnected) {
		return resultDelete
	}
	connected := sf.flags.Has(SubflowConnected)
	sf.flags |= SubflowDisconnected
	sf.flags &^= SubflowConnecting | SubflowConnectPending
	if sf.err == nil {
		if st := sf.status(); st.Err != nil {
			sf.err = &errors.SubflowError{ID: uint32(sf.id), Err: st.Err}
		}
	}
	if !connected && !sf.flags.Has(SubflowInitial) {
		s.tryAlternatePort(sf)
	}
	if s.state < StateEstablished || (s.flags&flagFallback != 0 && sf.flags.Has(SubflowActive)) {
		s.drop(errOr(sf.err, errors.ErrNotConnected))
	}
	return resultDelete
}

func (s *Session) onReadStall(sf *subflow, _ Event) eventResult {
	sf.flags |= SubflowReadStall
	if !s.anyUsableWithout(SubflowReadStall) {
		s.notify(SessionEventReadStall, sf.id, nil)
	}
	return resultOK
}

func (s *Session) onWriteStall(sf *subflow, _ Event) eventResult {
	sf.flags |= SubflowWriteStall
	if !s.anyUsableWithout(SubflowWriteStall) {
		s.notify(SessionEventWriteStall, sf.id, nil)
	}
	return resultOK
}

func (s *Session) anyUsableWithout(f SubflowFlag) bool {
	for _, sf := range s.subflows {
		if sf.usable() && !sf.flags.Has(f) {
			return true
		}
	}
	return false
}

// tryAlternatePortは、MPTCPを使えなかったサブフローの宛先を別ポートで1度だけ試します。
//
// 試せない場合はインターフェースをMPTCP非対応として記録します。
func (s *Session) tryAlternatePort(sf *subflow) {
	port := s.cfg.AlternatePort
	if port != 0 && sf.dst.Port() != port && !sf.altPortTried && s.okToCreate() {
		sf.altPortTried = true
		dst := netip.AddrPortFrom(sf.dst.Addr(), port)
		if _, err := s.addSubflowLocked(s.ctx, netip.AddrPort{}, dst, sf.ifScope, false); err != nil {
			s.logger.Warnf(s.subflowCtx(sf), "Failed to retry on port %d: %v", port, err)
		}
		return
	}
	s.markNoMPTCP(sf.ifCurrent)
}

// connectPendingは、JOIN_READYを待っていたサブフローの接続を開始します。
func (s *Session) connectPending() {
	for _, sf := range slices.Clone(s.subflows) {
		if !sf.flags.Has(SubflowConnectPending) {
			continue
		}
		sf.flags &^= SubflowConnectPending
		if err := s.connect(s.ctx, sf); err != nil {
			s.logger.Warnf(s.subflowCtx(sf), "Failed to connect pending subflow: %v", err)
			s.abortSubflow(sf, err)
		}
	}
}
