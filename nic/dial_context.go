package nic

import (
	"context"
	"fmt"
	"net"
	"net/netip"
)

type DialContext struct {
	dialer *net.Dialer
}

type DialContextConfig struct {
	// Interfaceは送信元アドレスを選ぶインターフェース名です。空の場合はOSに任せます。
	Interface string
	Family    Family
	// Sourceが有効な場合はInterfaceより優先します。
	Source netip.Addr
}

func NewDialContext(c DialContextConfig) (*DialContext, error) {
	d := &net.Dialer{}
	switch {
	case c.Source.IsValid():
		d.LocalAddr = &net.TCPAddr{IP: c.Source.AsSlice(), Zone: c.Source.Zone()}
	case c.Interface != "":
		localAddr, err := getLocalAddrFromNIC(c.Interface, c.Family)
		if err != nil {
			return nil, fmt.Errorf("get local address: %w", err)
		}
		d.LocalAddr = localAddr
	}
	return &DialContext{dialer: d}, nil
}

func (n *DialContext) DialContext(ctx context.Context, network string, address string) (net.Conn, error) {
	return n.dialer.DialContext(ctx, network, address)
}

func getLocalAddrFromNIC(nicName string, family Family) (*net.TCPAddr, error) {
	iface, err := net.InterfaceByName(nicName)
	if err != nil {
		return nil, fmt.Errorf("get interface by name: %w", err)
	}

	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("get interface addresses: %w", err)
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		is4 := ipNet.IP.To4() != nil
		if (family == FamilyIPv6 && is4) || (family != FamilyIPv6 && !is4) {
			continue
		}
		if !is4 && ipNet.IP.IsLinkLocalUnicast() {
			continue
		}
		return &net.TCPAddr{IP: ipNet.IP}, nil
	}

	return nil, fmt.Errorf("no valid %v address found for interface %s", family, nicName)
}

// Discoverは、ホストのインターフェース一覧からInterfaceを組み立てます。
//
// 名前がmeteredPrefixesのいずれかで始まるインターフェースを従量課金とみなします。
func Discover(meteredPrefixes []string) ([]Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	var res []Interface
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		info := Interface{
			ID:      InterfaceID(iface.Index),
			Name:    iface.Name,
			Metered: IsMeteredName(iface.Name, meteredPrefixes),
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			if ipNet.IP.To4() != nil {
				info.HasV4 = true
			} else if !ipNet.IP.IsLinkLocalUnicast() {
				info.HasV6 = true
			}
		}
		if info.HasV4 || info.HasV6 {
			res = append(res, info)
		}
	}
	return res, nil
}
