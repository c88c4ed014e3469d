package policy

import (
	"github.com/aptpod/mptcp-go/nic"
)

// EvaluateAddは、サブフローを追加すべきインターフェースを評価します。
//
// 従量課金のインターフェースを初めて使う場合で許可が得られていなければ、それまでの候補とともに
// RequestPermissionを返却し、以降のインターフェースは評価しません。
func EvaluateAdd(v View) Decision {
	var d Decision
	if !v.OKToCreate || v.Destinations.Primary == nic.FamilyUnspec {
		return d
	}

	meteredViable := false
	wantMetered := true

	for _, itf := range v.Interfaces {
		if itf.ID == nic.NoInterface || itf.NoMPTCPSupport {
			continue
		}
		if itf.Metered {
			meteredViable = true
			if v.ServiceType.isHandover() && !v.Advisory.unusable() {
				continue
			}
		}

		needToAsk := false
		found := false
		for _, p := range v.Subflows {
			if p.Interface == nic.NoInterface {
				continue
			}
			if !p.Metered && !p.Disconnecting && itf.Metered {
				needToAsk = true
			}

			switch {
			case v.ServiceType.isHandover():
				if !p.Metered && !p.Disconnecting && p.Connected && !UseMetered(v, p) {
					found = true
					wantMetered = false
				}
			case v.ServiceType == ServiceTypeTargetBased:
				if !p.Metered && !p.Disconnecting &&
					(v.TimeTarget.IsZero() || v.TimeTarget.After(v.Now) || !v.Advisory.unusable()) {
					found = true
					wantMetered = false
				}
			}
			if found {
				break
			}
			if p.Interface == itf.ID && !p.Disconnecting {
				found = true
				break
			}
		}
		if found {
			continue
		}

		if needToAsk && !v.FirstParty && !v.AccessGranted && !v.DeveloperMode {
			d.RequestPermission = true
			return d
		}

		c := Candidate{Interface: itf.ID, Family: v.Destinations.Select(itf.HasV6, itf.HasV4)}
		if c.Family == nic.FamilyIPv4 && !itf.HasV4 && itf.HasNAT64 {
			c.Family = nic.FamilyIPv6
			c.NAT64 = true
		}
		if c.Family == nic.FamilyIPv4 && !itf.HasV4 {
			continue
		}
		if c.Family == nic.FamilyIPv6 && !itf.HasV6 {
			continue
		}
		d.Add = append(d.Add, c)
	}

	if !meteredViable && wantMetered {
		d.TriggerMeteredBringup = true
	}
	return d
}
