package mptcp

import (
	"net/netip"
	"slices"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/nic"
	"github.com/aptpod/mptcp-go/policy"
)

// okToCreateは、経路管理がサブフローを追加してよい状態かを返却します。
func (s *Session) okToCreate() bool {
	return !s.destroyed && s.state >= StateEstablished && s.state < StateFinWait1 && s.flags&flagFallback == 0
}

// needBackupは、従量課金のサブフローをバックアップとして扱うサービスタイプかを返却します。
func (s *Session) needBackup() bool {
	switch s.serviceType {
	case policy.ServiceTypeHandover, policy.ServiceTypePureHandover, policy.ServiceTypeTargetBased:
		return true
	}
	return false
}

func (s *Session) isMetered(sf *subflow) bool {
	if sf.ifCurrent == nic.NoInterface {
		return false
	}
	return s.cfg.Interfaces.IsMetered(sf.ifCurrent)
}

func (s *Session) destination(f nic.Family) netip.AddrPort {
	switch f {
	case nic.FamilyIPv4:
		return s.dstV4
	case nic.FamilyIPv6:
		return s.dstV6
	}
	return netip.AddrPort{}
}

func (s *Session) policyView(adv policy.Advisory) policy.View {
	v := policy.View{
		ServiceType: s.serviceType,
		OKToCreate:  s.okToCreate(),
		Destinations: policy.Destinations{
			Primary: nic.FamilyOf(s.dst.Addr()),
			HasV4:   s.dstV4.IsValid(),
			HasV6:   s.dstV6.IsValid(),
		},
		FirstParty:    s.flags&flagFirstParty != 0,
		AccessGranted: s.flags&flagAccessGranted != 0,
		DeveloperMode: s.cfg.DeveloperMode,
		TimeTarget:    s.timeTarget,
		Now:           s.now(),
		SendBuffered:  len(s.sndBuf),
		Advisory:      adv,
		Thresholds:    s.cfg.thresholds(),
		Interfaces:    s.interfaces,
	}
	for _, sf := range s.subflows {
		p := policy.Path{
			ID:              uint32(sf.id),
			Scope:           sf.ifScope,
			Family:          sf.family,
			Metered:         s.isMetered(sf),
			Connected:       sf.flags.Has(SubflowConnected),
			Established:     sf.flags.Has(SubflowConnected) || sf.status().Established,
			Disconnecting:   sf.flags.HasAny(SubflowDisconnecting | SubflowDisconnected),
			CloseRequired:   sf.flags.Has(SubflowCloseRequired),
			RetransmitShift: sf.metrics().RetransmitShift(),
		}
		if sf.flags.HasAny(SubflowConnected|SubflowConnecting) || sf.ifScope != nic.NoInterface {
			p.Interface = sf.ifCurrent
		}
		v.Subflows = append(v.Subflows, p)
	}
	return v
}

// policyAllowsは、ifScopeへの明示的な追加を経路選択のポリシーが許すかを返却します。
//
// 一覧にないインターフェースと、切断中でないサブフローが既にあるインターフェースは判定しません。
func (s *Session) policyAllows(ifScope nic.InterfaceID, adv policy.Advisory) bool {
	if !slices.ContainsFunc(s.interfaces, func(itf policy.Interface) bool { return itf.ID == ifScope }) {
		return true
	}
	v := s.policyView(adv)
	if slices.ContainsFunc(v.Subflows, func(p policy.Path) bool { return p.Interface == ifScope && !p.Disconnecting }) {
		return true
	}
	return slices.ContainsFunc(policy.EvaluateAdd(v).Add, func(c policy.Candidate) bool { return c.Interface == ifScope })
}

// applyPolicyは、経路選択の評価結果をセッションへ反映します。
func (s *Session) applyPolicy(adv policy.Advisory) {
	if s.destroyed || s.state >= StateTimeWait {
		return
	}
	d := policy.Evaluate(s.policyView(adv))
	if !s.ifKnown {
		// インターフェース一覧を受け取るまでは消失を判定できない
		d.Lost = nil
	}
	if !d.Empty() {
		s.logger.Debugf(s.ctx, "Path policy %v (advisory %v): %+v", s.serviceType, adv, d)
	}

	for _, c := range d.Add {
		s.addCandidate(c)
	}
	for _, id := range d.Remove {
		s.post(SubflowID(id), EventMustReset)
	}
	for _, id := range d.Lost {
		s.post(SubflowID(id), EventNoSourceAddress)
	}
	if d.RequestPermission && s.flags&flagAccessAsked == 0 {
		s.flags |= flagAccessAsked
		advisor, id := s.cfg.Advisor, s.id
		s.deferred = append(s.deferred, func() { advisor.RequestPermission(id) })
	}
	if d.TriggerMeteredBringup && s.flags&flagTriggeredCell == 0 {
		s.flags |= flagTriggeredCell
		advisor, id, logger, ctx := s.cfg.Advisor, s.id, s.logger, s.ctx
		s.deferred = append(s.deferred, func() {
			if err := advisor.RequestMeteredBringup(id); err != nil {
				logger.Warnf(ctx, "Failed to request metered interface: %v", err)
			}
		})
	}

	if s.flags&flagOrphaned != 0 {
		s.flags &^= flagOrphaned
		if len(s.subflows) == 0 {
			s.drop(errOr(s.lastErr, errors.ErrNotConnected))
		}
	}
}

func (s *Session) addCandidate(c policy.Candidate) {
	var dst netip.AddrPort
	if c.NAT64 {
		v4 := s.dstV4
		if !v4.IsValid() {
			return
		}
		addr, ok := s.cfg.Interfaces.SynthesizeAddress(nic.FamilyIPv6, c.Interface, v4.Addr())
		if !ok {
			s.logger.Debugf(s.ctx, "No NAT64 address for %v on interface %d", v4, c.Interface)
			return
		}
		dst = netip.AddrPortFrom(addr, v4.Port())
	} else {
		dst = s.destination(c.Family)
	}
	if !dst.IsValid() {
		return
	}
	sf, err := s.addSubflowChecked(s.ctx, netip.AddrPort{}, dst, c.Interface)
	if err != nil {
		s.logger.Warnf(s.ctx, "Failed to add subflow on interface %d: %v", c.Interface, err)
		return
	}
	s.logger.Infof(s.subflowCtx(sf), "Subflow added on interface %d to %v", c.Interface, dst)
}

// markNoMPTCPは、インターフェースをMPTCP非対応として以降の候補から外します。
func (s *Session) markNoMPTCP(id nic.InterfaceID) {
	if id == nic.NoInterface {
		return
	}
	for i := range s.interfaces {
		if s.interfaces[i].ID == id {
			s.interfaces[i].NoMPTCPSupport = true
			s.logger.Infof(s.ctx, "Interface %d marked as not supporting MPTCP", id)
		}
	}
}
