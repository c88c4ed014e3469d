package nic

import (
	"net/netip"
)

var (
	wellKnownNAT64Prefix = netip.MustParsePrefix("64:ff9b::/96")

	nonSynthesizable = []netip.Prefix{
		netip.MustParsePrefix("0.0.0.0/8"),
		netip.MustParsePrefix("127.0.0.0/8"),
		netip.MustParsePrefix("169.254.0.0/16"),
		netip.MustParsePrefix("192.0.0.0/29"),
		netip.MustParsePrefix("192.88.99.0/24"),
		netip.MustParsePrefix("224.0.0.0/4"),
		netip.MustParsePrefix("255.255.255.255/32"),
	}
	// Well-Knownプレフィックスでは合成しない範囲
	nonGlobal = []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("172.16.0.0/12"),
		netip.MustParsePrefix("192.168.0.0/16"),
		netip.MustParsePrefix("100.64.0.0/10"),
	}
)

func containedIn(addr netip.Addr, prefixes []netip.Prefix) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// SynthesizeNAT64は、RFC 6052に従いIPv4アドレスをNAT64プレフィックスに埋め込んだIPv6アドレスを生成します。
//
// 合成できないアドレスやプレフィックス長の場合はfalseを返却します。
func SynthesizeNAT64(prefix netip.Prefix, v4 netip.Addr) (netip.Addr, bool) {
	v4 = v4.Unmap()
	if !v4.Is4() || !prefix.Addr().Is6() {
		return netip.Addr{}, false
	}
	if containedIn(v4, nonSynthesizable) {
		return netip.Addr{}, false
	}
	if prefix.Masked() == wellKnownNAT64Prefix && containedIn(v4, nonGlobal) {
		return netip.Addr{}, false
	}

	a := prefix.Masked().Addr().As16()
	b := v4.As4()
	switch prefix.Bits() {
	case 96:
		copy(a[12:], b[:])
	case 64:
		copy(a[9:], b[:])
	case 56:
		a[7] = b[0]
		copy(a[9:], b[1:])
	case 48:
		copy(a[6:], b[:2])
		copy(a[9:], b[2:])
	case 40:
		copy(a[5:], b[:3])
		a[9] = b[3]
	case 32:
		copy(a[4:], b[:])
	default:
		return netip.Addr{}, false
	}
	return netip.AddrFrom16(a), true
}
