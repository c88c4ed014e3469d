package mptcp

import (
	"context"
	"net/netip"

	"github.com/aptpod/mptcp-go/dss"
	"github.com/aptpod/mptcp-go/keys"
	"github.com/aptpod/mptcp-go/metrics"
	"github.com/aptpod/mptcp-go/nic"
	"github.com/aptpod/mptcp-go/policy"
	uuid "github.com/google/uuid"
)

//go:generate mockgen -destination ./${GOPACKAGE}mock/${GOFILE} -package ${GOPACKAGE}mock -source ./${GOFILE}

// DialRequestは、サブフローを1本接続するための要求です。
type DialRequest struct {
	SessionID   uuid.UUID
	SubflowID   SubflowID
	Source      netip.AddrPort // ゼロ値の場合は指定なし
	Destination netip.AddrPort
	// Interfaceは、送信元インターフェースの指定です。nic.NoInterfaceの場合は経路に任せます。
	Interface nic.InterfaceID
	// Initialが真の場合はMP_CAPABLEで、偽の場合はMP_JOINでハンドシェイクします。
	Initial     bool
	LocalKey    keys.Key
	RemoteKey   keys.Key
	RemoteToken keys.Token
	LocalAddrID uint8
	Backup      bool
	Checksum    bool
	// ReceiveWindowは、ハンドシェイクで通知するコネクションレベルの受信ウィンドウです。
	ReceiveWindow uint32
}

// Dialerは、単一経路のトランスポートを接続します。
type Dialer interface {
	// Dialは接続を開始します。接続の完了はNotifierへEventConnectedで通知します。
	//
	// ctxはDialの呼び出し中のみ有効です。
	Dial(ctx context.Context, req DialRequest, n Notifier) (Connection, error)
}

// Connectionは、1本のサブフローが所有する単一経路のトランスポートです。
type Connection interface {
	// Sendは、セグメントをまとめて送信します。部分的な送信は行いません。
	Send(seg *dss.Segment) (int, error)
	// Closeは、FINで切断を開始します。
	Close() error
	// Abortは、RSTで即座に切断します。
	Abort(err error)
	// CurrentInterfaceは、実際に送信しているインターフェースを返却します。
	CurrentInterface() nic.InterfaceID
	Status() PathStatus
	Metrics() metrics.Provider
}

// OptionSetterは、ソケットオプションを設定できるConnectionです。
type OptionSetter interface {
	SetOption(opt SocketOption) error
}

// Notifierは、Connectionからセッションへのアップコールです。
type Notifier interface {
	Notify(ev Event)
	Receive(seg *dss.Segment)
}

// InterfaceFacilityは、ホストのインターフェース情報です。nic.Managerが実装します。
type InterfaceFacility interface {
	IsMetered(id nic.InterfaceID) bool
	SupportsFamily(id nic.InterfaceID, f nic.Family) bool
	SynthesizeAddress(f nic.Family, id nic.InterfaceID, addr netip.Addr) (netip.Addr, bool)
}

// Advisorは、経路品質の判定と、従量課金経路の利用許可を扱う外部機能です。
//
// セッションはロックを解放した状態でAdvisorを呼び出します。
type Advisor interface {
	UnmeteredUnusable(firstParty bool, st policy.ServiceType) policy.Advisory
	RequestPermission(session uuid.UUID)
	RequestMeteredBringup(session uuid.UUID) error
}
