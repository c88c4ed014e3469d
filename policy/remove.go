package policy

import (
	"github.com/aptpod/mptcp-go/nic"
)

// EvaluateRemoveは、サービスタイプに従ってリセットすべきサブフローを評価します。
func EvaluateRemove(v View) []uint32 {
	if !v.OKToCreate {
		return nil
	}
	switch v.ServiceType {
	case ServiceTypeHandover:
		return handoverRemove(v)
	case ServiceTypePureHandover:
		return pureHandoverRemove(v)
	case ServiceTypeTargetBased:
		return targetBasedRemove(v)
	}
	return nil
}

func working(p Path) bool {
	return p.Connected && p.Established && !p.Disconnecting
}

func collect(v View, metered bool) []uint32 {
	var res []uint32
	for _, p := range v.Subflows {
		if p.Interface == nic.NoInterface || p.Metered != metered {
			continue
		}
		res = append(res, p.ID)
	}
	return res
}

func handoverRemove(v View) []uint32 {
	for _, p := range v.Subflows {
		if p.Interface == nic.NoInterface || p.Metered {
			continue
		}
		if !p.Connected || !p.Established {
			continue
		}
		if !UseMetered(v, p) {
			return collect(v, true)
		}
	}
	return nil
}

func pureHandoverRemove(v View) []uint32 {
	foundUnmetered := false
	foundMetered := false
	for _, p := range v.Subflows {
		if p.Interface == nic.NoInterface || !working(p) {
			continue
		}
		if p.Metered {
			foundMetered = true
		} else if !UseMetered(v, p) {
			foundUnmetered = true
		}
	}
	if !foundUnmetered && v.Advisory.unusable() {
		if foundMetered {
			return collect(v, false)
		}
		return nil
	}
	return collect(v, true)
}

func targetBasedRemove(v View) []uint32 {
	if v.targetPassed() && v.Advisory.unusable() {
		return nil
	}
	for _, p := range v.Subflows {
		if p.Interface == nic.NoInterface || p.Metered {
			continue
		}
		if p.Connected && !p.Disconnecting {
			return collect(v, true)
		}
	}
	return nil
}

// EvaluateLostは、クローズ要求済み、またはインターフェースやアドレスファミリーを失ったサブフローを評価します。
func EvaluateLost(v View) []uint32 {
	if !v.OKToCreate {
		return nil
	}
	var res []uint32
	for _, p := range v.Subflows {
		if p.CloseRequired {
			res = append(res, p.ID)
			continue
		}
		id := p.Interface
		if id == nic.NoInterface {
			id = p.Scope
		}
		if id == nic.NoInterface {
			continue
		}
		found := false
		for _, itf := range v.Interfaces {
			if itf.ID != id {
				continue
			}
			if p.Family == nic.FamilyIPv6 && (itf.HasV6 || itf.HasNAT64) {
				found = true
			}
			if p.Family == nic.FamilyIPv4 && itf.HasV4 {
				found = true
			}
		}
		if !found {
			res = append(res, p.ID)
		}
	}
	return res
}
