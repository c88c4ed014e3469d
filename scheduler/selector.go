package scheduler

import (
	"fmt"
	"maps"
	"sync"

	"github.com/aptpod/mptcp-go/policy"
)

// Selector は、候補のサブフローから次にデータを送信するサブフローを選択するインターフェースです。
type Selector interface {
	// Select は選択したサブフローIDを返します。送信すべきサブフローがない、または待機すべき場合は false を返します。
	// queueSize は送信待ちのバイト数です。
	Select(paths []*PathInfo, queueSize uint64) (uint32, bool)
}

// Kind はSelectorの種類です。
type Kind string

const (
	KindAuto         Kind = ""
	KindActive       Kind = "active"
	KindRoundRobin   Kind = "round-robin"
	KindByteBalanced Kind = "byte-balanced"
	KindMinRTT       Kind = "min-rtt"
	KindECF          Kind = "ecf"
)

// UnmarshalText は設定ファイルの文字列を Kind に変換します。
func (k *Kind) UnmarshalText(b []byte) error {
	switch v := Kind(b); v {
	case KindAuto, "auto", KindActive, KindRoundRobin, KindByteBalanced, KindMinRTT, KindECF:
		if v == "auto" {
			v = KindAuto
		}
		*k = v
		return nil
	}
	return fmt.Errorf("unknown scheduler %q", string(b))
}

// New は kind に対応する Selector を作成します。KindAuto の場合はサービスタイプから決定します。
func New(kind Kind, st policy.ServiceType) Selector {
	switch kind {
	case KindActive:
		return NewActiveSelector()
	case KindRoundRobin:
		return NewRoundRobinSelector()
	case KindByteBalanced:
		return NewByteBalancedSelector()
	case KindMinRTT:
		return NewMinRTTSelector()
	case KindECF:
		return NewECFSelector()
	}
	return ForServiceType(st)
}

// ForServiceType はサービスタイプに適した Selector を作成します。
func ForServiceType(st policy.ServiceType) Selector {
	switch st {
	case policy.ServiceTypeInteractive:
		return NewMinRTTSelector()
	case policy.ServiceTypeAggregate:
		return NewByteBalancedSelector()
	}
	return NewActiveSelector()
}

// Stats は Selector の統計情報を保持します。
type Stats struct {
	// SelectionCounts はサブフローごとの選択回数です。
	SelectionCounts map[uint32]uint64
	// TotalSelections は総選択回数です。
	TotalSelections uint64
	// SwitchCount はサブフロー切り替え回数です。
	SwitchCount uint64
}

// recorder は選択結果の統計を記録します。
type recorder struct {
	mu              sync.Mutex
	hasLast         bool
	lastSelected    uint32
	totalSelections uint64
	switchCount     uint64
	selectionCounts map[uint32]uint64
}

func (r *recorder) record(id uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.selectionCounts == nil {
		r.selectionCounts = make(map[uint32]uint64)
	}
	r.totalSelections++
	if r.hasLast && r.lastSelected != id {
		r.switchCount++
	}
	r.hasLast = true
	r.lastSelected = id
	r.selectionCounts[id]++
}

// Stats は現在の統計情報のスナップショットを返します。
func (r *recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := maps.Clone(r.selectionCounts)
	if counts == nil {
		counts = make(map[uint32]uint64)
	}
	return Stats{
		SelectionCounts: counts,
		TotalSelections: r.totalSelections,
		SwitchCount:     r.switchCount,
	}
}

// ResetStats は統計情報をリセットします。
func (r *recorder) ResetStats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hasLast = false
	r.lastSelected = 0
	r.totalSelections = 0
	r.switchCount = 0
	r.selectionCounts = make(map[uint32]uint64)
}
