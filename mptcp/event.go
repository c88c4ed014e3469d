package mptcp

import "strings"

// Eventは、サブフローから通知されるイベントのビット集合です。
//
// 複数のビットが同時に立っている場合、ハンドラは定義順に実行されます。
type Event uint32

const (
	EventProtocolError Event = 1 << iota
	EventCantRcvMore
	EventFailover
	EventConnReset
	EventMustReset
	EventCantSendMore
	EventTimeout
	EventNoSourceAddress
	EventInterfaceDenied
	EventConnected
	EventMPStatus
	EventDisconnected
	EventReadStall
	EventWriteStall
)

// failoverTriggersは、EventFailoverを伴うイベントです。
const failoverTriggers = EventConnReset | EventMustReset | EventCantSendMore | EventTimeout |
	EventNoSourceAddress | EventInterfaceDenied | EventDisconnected

var eventNames = [...]string{
	"protocol-error",
	"cant-rcv-more",
	"failover",
	"conn-reset",
	"must-reset",
	"cant-send-more",
	"timeout",
	"no-source-address",
	"interface-denied",
	"connected",
	"mp-status",
	"disconnected",
	"read-stall",
	"write-stall",
}

func (e Event) String() string {
	if e == 0 {
		return "none"
	}
	var names []string
	for i, name := range eventNames {
		if e&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// eventResultは、ハンドラの実行結果です。大きいほど後処理が強くなります。
type eventResult int8

const (
	resultDelete eventResult = iota + 1
	resultOK
	resultConnectPending
	resultDisconnectFallback
)

// combineは、これまでの結果curにハンドラの結果rを合成します。
func (cur eventResult) combine(r eventResult) eventResult {
	if r >= resultOK {
		return max(cur, r)
	}
	return r
}

type eventHandler struct {
	mask   Event
	handle func(s *Session, sf *subflow, ev Event) eventResult
}

// eventHandlersは、実行順に並んだハンドラの表です。
var eventHandlers []eventHandler

func init() {
	eventHandlers = []eventHandler{
		{EventProtocolError, (*Session).onProtocolError},
		{EventCantRcvMore, (*Session).onCantRcvMore},
		{EventFailover, (*Session).onFailover},
		{EventConnReset, (*Session).onPropagate},
		{EventMustReset, (*Session).onMustReset},
		{EventCantSendMore | EventTimeout, (*Session).onPropagate},
		{EventNoSourceAddress, (*Session).onNoSourceAddress},
		{EventInterfaceDenied, (*Session).onInterfaceDenied},
		{EventConnected, (*Session).onConnected},
		{EventMPStatus, (*Session).onMPStatus},
		{EventDisconnected, (*Session).onDisconnected},
		{EventReadStall, (*Session).onReadStall},
		{EventWriteStall, (*Session).onWriteStall},
	}
}

// dispatchは、evに含まれるイベントを順にハンドラへ渡し、合成した結果を返却します。
//
// 結果がresultOK未満になった後はEventDisconnectedのハンドラのみ実行します。
func (s *Session) dispatch(sf *subflow, ev Event) eventResult {
	if ev&failoverTriggers != 0 {
		ev |= EventFailover
	}
	ret := resultOK
	for _, h := range eventHandlers {
		if ev == 0 {
			break
		}
		matched := ev & h.mask
		if matched == 0 {
			continue
		}
		if ret < resultOK && h.mask != EventDisconnected {
			continue
		}
		ev &^= matched
		ret = ret.combine(h.handle(s, sf, matched))
	}
	return ret
}
