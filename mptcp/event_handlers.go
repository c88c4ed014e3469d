package mptcp

import (
	"net/netip"

	"github.com/aptpod/mptcp-go/nic"
	"github.com/aptpod/mptcp-go/policy"
	uuid "github.com/google/uuid"
)

type (
	nopSessionEventHandler struct{}
	nopAdvisor             struct{}
	nopInterfaces          struct{}
)

func (h nopSessionEventHandler) OnSessionEvent(ev *SessionEvent) {}

func (a nopAdvisor) UnmeteredUnusable(bool, policy.ServiceType) policy.Advisory {
	return policy.AdvisoryGood
}
func (a nopAdvisor) RequestPermission(uuid.UUID)           {}
func (a nopAdvisor) RequestMeteredBringup(uuid.UUID) error { return nil }

func (nopInterfaces) IsMetered(nic.InterfaceID) bool                  { return false }
func (nopInterfaces) SupportsFamily(nic.InterfaceID, nic.Family) bool { return true }
func (nopInterfaces) SynthesizeAddress(nic.Family, nic.InterfaceID, netip.Addr) (netip.Addr, bool) {
	return netip.Addr{}, false
}

// SessionEventKindは、アプリケーションへ通知するイベントの種類です。
type SessionEventKind uint8

const (
	// SessionEventFallbackは、単一経路のTCPへフォールバックしたことを表します。
	SessionEventFallback SessionEventKind = iota + 1
	SessionEventConnReset
	SessionEventCantRcvMore
	SessionEventCantSendMore
	SessionEventTimeout
	SessionEventProtocolError
	SessionEventInterfaceDenied
	// SessionEventReadStallは、全てのサブフローで受信が滞っていることを表します。
	SessionEventReadStall
	SessionEventWriteStall
	// SessionEventTerminatedは、セッションがエラーで終了したことを表します。
	SessionEventTerminated
)

func (k SessionEventKind) String() string {
	switch k {
	case SessionEventFallback:
		return "fallback"
	case SessionEventConnReset:
		return "conn-reset"
	case SessionEventCantRcvMore:
		return "cant-rcv-more"
	case SessionEventCantSendMore:
		return "cant-send-more"
	case SessionEventTimeout:
		return "timeout"
	case SessionEventProtocolError:
		return "protocol-error"
	case SessionEventInterfaceDenied:
		return "interface-denied"
	case SessionEventReadStall:
		return "read-stall"
	case SessionEventWriteStall:
		return "write-stall"
	case SessionEventTerminated:
		return "terminated"
	}
	return "unknown"
}

// SessionEventは、アプリケーションへ通知するイベントです。
type SessionEvent struct {
	SessionID uuid.UUID
	Kind      SessionEventKind
	// 契機となったサブフロー
	Subflow SubflowID
	Err     error
}

// SessionEventHandlerは、セッションイベントのハンドラです。
//
// ハンドラはセッションのロックを解放した状態で呼び出されます。
type SessionEventHandler interface {
	OnSessionEvent(ev *SessionEvent)
}

// SessionEventHandlerFuncは、SessionEventHandlerの関数です。
type SessionEventHandlerFunc func(ev *SessionEvent)

func (f SessionEventHandlerFunc) OnSessionEvent(ev *SessionEvent) {
	f(ev)
}
