// Package nicは、セッションが利用できるネットワークインターフェースの一覧を管理します。
package nic

import (
	"net/netip"
	"strings"
)

// InterfaceIDは、インターフェースのインデックスです。0はインターフェース指定なしを表します。
type InterfaceID uint32

// NoInterfaceは、インターフェースを指定しないことを表します。
const NoInterface InterfaceID = 0

// Familyはアドレスファミリーです。
type Family uint8

const (
	FamilyUnspec Family = iota
	FamilyIPv4
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	}
	return "unspec"
}

// FamilyOfは、addrのアドレスファミリーを返却します。
func FamilyOf(addr netip.Addr) Family {
	switch {
	case !addr.IsValid():
		return FamilyUnspec
	case addr.Is4() || addr.Is4In6():
		return FamilyIPv4
	}
	return FamilyIPv6
}

// Interfaceは、1つのネットワークインターフェースの状態です。
type Interface struct {
	ID      InterfaceID
	Name    string
	Metered bool // セルラーなど従量課金の経路
	HasV4   bool
	HasV6   bool
	// NAT64Prefixが有効な場合、IPv4宛先をNAT64経由で到達できます。
	NAT64Prefix netip.Prefix
}

// HasNAT64は、NAT64プレフィックスを持つかどうかを返却します。
func (i Interface) HasNAT64() bool {
	return i.NAT64Prefix.IsValid()
}

// Supportsは、インターフェースがfのアドレスで接続できるかを返却します。
func (i Interface) Supports(f Family) bool {
	switch f {
	case FamilyIPv4:
		return i.HasV4
	case FamilyIPv6:
		return i.HasV6
	}
	return false
}

// DefaultMeteredPrefixesは、名前からセルラーインターフェースとみなすプレフィックスです。
var DefaultMeteredPrefixes = []string{"wwan", "rmnet", "pdp_ip", "ccmni", "usb"}

// IsMeteredNameは、インターフェース名がprefixesのいずれかで始まるかを返却します。
func IsMeteredName(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
