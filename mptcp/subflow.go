package mptcp

import (
	"net/netip"
	"strings"

	"github.com/aptpod/mptcp-go/dss"
	"github.com/aptpod/mptcp-go/keys"
	"github.com/aptpod/mptcp-go/metrics"
	"github.com/aptpod/mptcp-go/nic"
	"github.com/aptpod/mptcp-go/reinject"
	"github.com/aptpod/mptcp-go/scheduler"
)

// SubflowIDは、セッション内でサブフローを識別するIDです。
type SubflowID uint32

const (
	// NoSubflowは、サブフローがないことを表します。
	NoSubflow SubflowID = 0
	// AnySubflowは、予約済みの全ビットが立ったIDです。割り当てには使いません。
	AnySubflow SubflowID = ^SubflowID(0)
)

// SubflowFlagは、サブフローの状態フラグです。
type SubflowFlag uint32

const (
	SubflowConnecting SubflowFlag = 1 << iota
	SubflowConnectPending
	SubflowConnected
	SubflowDisconnecting
	SubflowDisconnected
	SubflowMPCapable
	SubflowMPReady
	SubflowMPDegraded
	SubflowInitial
	SubflowActive
	SubflowBackup
	SubflowPreferred
	SubflowFailingOver
	SubflowCloseRequired
	SubflowReadStall
	SubflowWriteStall
	SubflowCellIconSet

	// subflowMPCapCountedは、numMPCapableに計上済みであることを表します。
	subflowMPCapCounted
)

var subflowFlagNames = [...]string{
	"connecting", "connect-pending", "connected", "disconnecting", "disconnected",
	"mp-capable", "mp-ready", "mp-degraded", "initial", "active", "backup",
	"preferred", "failing-over", "close-required", "read-stall", "write-stall", "cell-icon",
}

func (f SubflowFlag) Has(v SubflowFlag) bool {
	return f&v == v
}

func (f SubflowFlag) HasAny(v SubflowFlag) bool {
	return f&v != 0
}

func (f SubflowFlag) String() string {
	var names []string
	for i, name := range subflowFlagNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

// PathStatusは、Connectionが報告する経路の状態です。
type PathStatus struct {
	MPCapable        bool
	MPReady          bool
	Degraded         bool
	FastClose        bool
	ChecksumRequired bool
	RemoteKey        keys.Key
	// Windowは、ハンドシェイクでピアが通知した受信ウィンドウです。0の場合は不明です。
	Window      uint32
	Established bool
	CloseWait   bool
	Err         error
}

// SocketOptionは、全てのサブフローへ適用するソケットオプションです。
type SocketOption struct {
	Level int
	Name  int
	Value int
}

// inflightは、送信済みで未確認のマッピングです。
type inflight struct {
	dsn     uint64
	payload []byte
	fin     bool
}

func (r inflight) end() uint64 {
	end := r.dsn + uint64(len(r.payload))
	if r.fin {
		end++
	}
	return end
}

// subflowは、セッションが所有する1本の経路です。
//
// subflowのフィールドはセッションのロック下でのみ操作します。
type subflow struct {
	id    SubflowID
	conn  Connection
	flags SubflowFlag

	localAddrID  uint8
	remoteAddrID uint8
	relSeq       uint32

	ifScope   nic.InterfaceID
	ifCurrent nic.InterfaceID
	src       netip.AddrPort
	dst       netip.AddrPort
	family    nic.Family

	inflight []inflight
	receiver *dss.Receiver
	path     *scheduler.PathInfo

	txBytes uint64
	rxBytes uint64
	err     error

	altPortTried bool
	// mappingSeenは、1度でもマッピングを受信したことを表します。
	mappingSeen bool
}

func newSubflow(id SubflowID, src, dst netip.AddrPort, ifScope nic.InterfaceID, checksum bool) *subflow {
	return &subflow{
		id:        id,
		relSeq:    1,
		ifScope:   ifScope,
		ifCurrent: ifScope,
		src:       src,
		dst:       dst,
		family:    nic.FamilyOf(dst.Addr()),
		receiver:  dss.NewReceiver(checksum),
		path:      scheduler.NewPathInfo(uint32(id), metrics.NewNopProvider()),
	}
}

func (sf *subflow) status() PathStatus {
	if sf.conn == nil {
		return PathStatus{}
	}
	return sf.conn.Status()
}

func (sf *subflow) metrics() metrics.Provider {
	if sf.conn == nil {
		return metrics.NewNopProvider()
	}
	if p := sf.conn.Metrics(); p != nil {
		return p
	}
	return metrics.NewNopProvider()
}

// usableは、データを送受信できる状態かどうかを返却します。
func (sf *subflow) usable() bool {
	return sf.flags.Has(SubflowConnected) && !sf.flags.HasAny(SubflowDisconnecting|SubflowDisconnected)
}

// outstandingは、未確認のバイト数を返却します。
func (sf *subflow) outstanding() int {
	n := 0
	for _, r := range sf.inflight {
		n += len(r.payload)
	}
	return n
}

// ackは、sndUnaより前の記録を捨てます。
func (sf *subflow) ack(sndUna uint64) {
	n := 0
	for _, r := range sf.inflight {
		if int64(r.end()-sndUna) > 0 {
			break
		}
		n++
	}
	sf.inflight = sf.inflight[n:]
}

// reinjectToは、未確認のデータを再送キューへ複製します。
func (sf *subflow) reinjectTo(q *reinject.Queue, sndUna uint64) int {
	n := 0
	for _, r := range sf.inflight {
		if len(r.payload) == 0 {
			continue
		}
		n += q.Insert(reinject.Entry{DSN: r.dsn, Payload: r.payload}, sndUna)
	}
	return n
}

// Subflowは、サブフローの状態のスナップショットです。
type Subflow struct {
	ID          SubflowID
	Flags       SubflowFlag
	LocalAddrID uint8
	Interface   nic.InterfaceID
	Source      netip.AddrPort
	Destination netip.AddrPort
	TxBytes     uint64
	RxBytes     uint64
	Outstanding int
	Err         error
}

func (sf *subflow) snapshot() Subflow {
	return Subflow{
		ID:          sf.id,
		Flags:       sf.flags,
		LocalAddrID: sf.localAddrID,
		Interface:   sf.ifCurrent,
		Source:      sf.src,
		Destination: sf.dst,
		TxBytes:     sf.txBytes,
		RxBytes:     sf.rxBytes,
		Outstanding: sf.outstanding(),
		Err:         sf.err,
	}
}
