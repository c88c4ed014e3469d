// Package policyは、サービスタイプごとにサブフローの追加と削除を決定します。
//
// Evaluateはセッションの状態と外部の経路品質アドバイザリのみから結果を決める純粋関数です。
package policy

import (
	"time"

	"github.com/aptpod/mptcp-go/nic"
)

// ServiceTypeは、セッション全体の経路選択方針です。
type ServiceType uint8

const (
	// ServiceTypeHandoverは、非従量課金の経路を優先し、使えない場合のみ従量課金の経路を使います。
	ServiceTypeHandover ServiceType = iota
	// ServiceTypeInteractiveは、全ての経路を張り、最も遅延の小さい経路を使います。
	ServiceTypeInteractive
	// ServiceTypeAggregateは、全ての経路を同時に使います。
	ServiceTypeAggregate
	// ServiceTypeTargetBasedは、期限までは非従量課金の経路を維持します。
	ServiceTypeTargetBased
	// ServiceTypePureHandoverは、Handoverに加え、従量課金の経路のみが動作している場合は非従量課金の経路を削除します。
	ServiceTypePureHandover
)

func (s ServiceType) String() string {
	switch s {
	case ServiceTypeHandover:
		return "handover"
	case ServiceTypeInteractive:
		return "interactive"
	case ServiceTypeAggregate:
		return "aggregate"
	case ServiceTypeTargetBased:
		return "target-based"
	case ServiceTypePureHandover:
		return "pure-handover"
	}
	return "unknown"
}

func (s ServiceType) isHandover() bool {
	return s == ServiceTypeHandover || s == ServiceTypePureHandover
}

// Advisoryは、非従量課金の経路が使えないかどうかに関する外部の判定です。
type Advisory int8

const (
	AdvisoryGood    Advisory = 0
	AdvisoryBad     Advisory = 1
	AdvisoryUnknown Advisory = -1
)

func (a Advisory) String() string {
	switch a {
	case AdvisoryGood:
		return "good"
	case AdvisoryBad:
		return "bad"
	}
	return "unknown"
}

// unusableは、Good以外を使えない可能性があるものとして扱います。
func (a Advisory) unusable() bool {
	return a != AdvisoryGood
}

// Interfaceは、評価対象のインターフェースです。
type Interface struct {
	ID             nic.InterfaceID
	Metered        bool
	HasV4          bool
	HasV6          bool
	HasNAT64       bool
	NoMPTCPSupport bool
}

// Pathは、評価対象の既存サブフローです。
type Path struct {
	ID uint32
	// Interfaceは実際に送信しているインターフェースです。未確定の場合はnic.NoInterfaceです。
	Interface       nic.InterfaceID
	Scope           nic.InterfaceID
	Family          nic.Family
	Metered         bool
	Connected       bool
	Established     bool
	Disconnecting   bool
	CloseRequired   bool
	RetransmitShift int
}

// Destinationsは、セッションが持つ宛先アドレスのファミリーです。
type Destinations struct {
	Primary nic.Family
	HasV4   bool
	HasV6   bool
}

// Selectは、インターフェースの接続性に応じて使う宛先のファミリーを選びます。
func (d Destinations) Select(hasV6, hasV4 bool) nic.Family {
	switch {
	case hasV6 && d.HasV6:
		return nic.FamilyIPv6
	case hasV4 && d.HasV4:
		return nic.FamilyIPv4
	}
	return d.Primary
}

// Thresholdsは、Handover系で従量課金の経路を使うかを判断する再送回数の閾値です。
type Thresholds struct {
	FailThreshold int
	// RetransmitFactorは、FailThresholdに掛ける係数です。
	RetransmitFactor int
}

// DefaultThresholdsは、デフォルトの閾値です。
var DefaultThresholds = Thresholds{
	FailThreshold:    1,
	RetransmitFactor: 2,
}

func (t Thresholds) retransmitLimit() int {
	return t.FailThreshold * t.RetransmitFactor
}

// Viewは、評価に必要なセッションの状態です。
type View struct {
	ServiceType ServiceType
	// OKToCreateは、ESTABLISHED以上FIN_WAIT_1未満でフォールバックしていないことを表します。
	OKToCreate    bool
	Destinations  Destinations
	FirstParty    bool
	AccessGranted bool
	DeveloperMode bool
	TimeTarget    time.Time
	Now           time.Time
	SendBuffered  int
	Advisory      Advisory
	Thresholds    Thresholds
	Interfaces    []Interface
	Subflows      []Path
}

// Candidateは、サブフローを追加するインターフェースと宛先ファミリーです。
type Candidate struct {
	Interface nic.InterfaceID
	Family    nic.Family
	// NAT64は、IPv4宛先をNAT64で合成したIPv6アドレスで接続することを表します。
	NAT64 bool
}

// Decisionは評価結果です。
type Decision struct {
	Add []Candidate
	// Removeは、リセットすべきサブフローです。
	Remove []uint32
	// Lostは、インターフェースやアドレスを失ったサブフローです。
	Lost                  []uint32
	RequestPermission     bool
	TriggerMeteredBringup bool
}

// Emptyは、何も変更しない結果かどうかを返却します。
func (d Decision) Empty() bool {
	return len(d.Add) == 0 && len(d.Remove) == 0 && len(d.Lost) == 0 && !d.RequestPermission && !d.TriggerMeteredBringup
}

// Evaluateは、追加、削除、消失の全てを評価します。
func Evaluate(v View) Decision {
	d := EvaluateAdd(v)
	d.Remove = EvaluateRemove(v)
	d.Lost = EvaluateLost(v)
	return d
}

// UseMeteredは、Handover系で、非従量課金のサブフローの状態から従量課金の経路を使うべきかを返却します。
//
// アドバイザリがBadで送信中でなければ使います。送信中であれば再送回数で判断します。
// Unknownの場合は送信中かつ再送回数が閾値以上の場合のみ使います。
func UseMetered(v View, p Path) bool {
	switch v.Advisory {
	case AdvisoryGood:
		return false
	case AdvisoryUnknown:
		return v.SendBuffered != 0 && p.RetransmitShift >= v.Thresholds.retransmitLimit()
	case AdvisoryBad:
		if v.SendBuffered != 0 {
			return p.RetransmitShift >= v.Thresholds.retransmitLimit()
		}
		return true
	}
	return false
}

func (v View) targetPassed() bool {
	return !v.TimeTarget.IsZero() && !v.TimeTarget.After(v.Now)
}
