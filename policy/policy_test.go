package policy_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/aptpod/mptcp-go/nic"
	. "github.com/aptpod/mptcp-go/policy"
)

var (
	now     = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	wifiItf = Interface{ID: 1, HasV4: true, HasV6: true}
	cellItf = Interface{ID: 2, Metered: true, HasV6: true, HasNAT64: true}
	dstV4   = Destinations{Primary: nic.FamilyIPv4, HasV4: true}

	wifiPath = Path{ID: 10, Interface: 1, Family: nic.FamilyIPv4, Connected: true, Established: true}
	cellPath = Path{ID: 20, Interface: 2, Family: nic.FamilyIPv6, Metered: true, Connected: true, Established: true}
)

func baseView(st ServiceType) View {
	return View{
		ServiceType:  st,
		OKToCreate:   true,
		Destinations: dstV4,
		Now:          now,
		Advisory:     AdvisoryGood,
		Thresholds:   DefaultThresholds,
		Interfaces:   []Interface{wifiItf, cellItf},
		Subflows:     []Path{wifiPath},
	}
}

func TestEvaluateAdd(t *testing.T) {
	cellCandidate := Candidate{Interface: 2, Family: nic.FamilyIPv6, NAT64: true}
	tests := []struct {
		name   string
		modify func(*View)
		want   Decision
	}{
		{
			name:   "handover keeps healthy wifi only",
			modify: func(v *View) {},
			want:   Decision{},
		},
		{
			name: "handover asks permission when wifi is bad",
			modify: func(v *View) {
				v.Advisory = AdvisoryBad
			},
			want: Decision{RequestPermission: true},
		},
		{
			name: "handover adds cell for first party when wifi is bad",
			modify: func(v *View) {
				v.Advisory = AdvisoryBad
				v.FirstParty = true
			},
			want: Decision{Add: []Candidate{cellCandidate}},
		},
		{
			name: "handover bad while sending needs retransmissions",
			modify: func(v *View) {
				v.Advisory = AdvisoryBad
				v.AccessGranted = true
				v.SendBuffered = 100
				v.Subflows[0].RetransmitShift = 1
			},
			want: Decision{},
		},
		{
			name: "handover unknown adds cell after retransmissions",
			modify: func(v *View) {
				v.Advisory = AdvisoryUnknown
				v.AccessGranted = true
				v.SendBuffered = 100
				v.Subflows[0].RetransmitShift = 2
			},
			want: Decision{Add: []Candidate{cellCandidate}},
		},
		{
			name: "handover unknown idle keeps wifi",
			modify: func(v *View) {
				v.Advisory = AdvisoryUnknown
				v.FirstParty = true
			},
			want: Decision{},
		},
		{
			name: "interactive adds every interface",
			modify: func(v *View) {
				v.ServiceType = ServiceTypeInteractive
				v.DeveloperMode = true
			},
			want: Decision{Add: []Candidate{cellCandidate}},
		},
		{
			name: "disconnecting subflow does not occupy its interface",
			modify: func(v *View) {
				v.ServiceType = ServiceTypeAggregate
				v.FirstParty = true
				v.Subflows[0].Disconnecting = true
			},
			want: Decision{Add: []Candidate{{Interface: 1, Family: nic.FamilyIPv4}, cellCandidate}},
		},
		{
			name: "interface without multipath support is skipped",
			modify: func(v *View) {
				v.ServiceType = ServiceTypeAggregate
				v.FirstParty = true
				v.Interfaces[1].NoMPTCPSupport = true
			},
			want: Decision{TriggerMeteredBringup: true},
		},
		{
			name: "not ok to create",
			modify: func(v *View) {
				v.ServiceType = ServiceTypeAggregate
				v.OKToCreate = false
			},
			want: Decision{},
		},
		{
			name: "aggregate without metered interface triggers bringup",
			modify: func(v *View) {
				v.ServiceType = ServiceTypeAggregate
				v.Interfaces = []Interface{wifiItf}
			},
			want: Decision{TriggerMeteredBringup: true},
		},
		{
			name: "family unavailable on interface",
			modify: func(v *View) {
				v.ServiceType = ServiceTypeAggregate
				v.FirstParty = true
				v.Interfaces[1].HasNAT64 = false
			},
			want: Decision{},
		},
		{
			name: "target based before deadline keeps wifi",
			modify: func(v *View) {
				v.ServiceType = ServiceTypeTargetBased
				v.Advisory = AdvisoryBad
				v.FirstParty = true
				v.TimeTarget = now.Add(time.Minute)
			},
			want: Decision{},
		},
		{
			name: "target based after deadline with bad wifi adds cell",
			modify: func(v *View) {
				v.ServiceType = ServiceTypeTargetBased
				v.Advisory = AdvisoryBad
				v.FirstParty = true
				v.TimeTarget = now.Add(-time.Minute)
			},
			want: Decision{Add: []Candidate{cellCandidate}},
		},
		{
			name: "ipv6 destination preferred on dual stack",
			modify: func(v *View) {
				v.ServiceType = ServiceTypeAggregate
				v.FirstParty = true
				v.Destinations = Destinations{Primary: nic.FamilyIPv4, HasV4: true, HasV6: true}
				v.Subflows = nil
			},
			want: Decision{Add: []Candidate{
				{Interface: 1, Family: nic.FamilyIPv6},
				{Interface: 2, Family: nic.FamilyIPv6},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := baseView(ServiceTypeHandover)
			v.Interfaces = append([]Interface(nil), v.Interfaces...)
			v.Subflows = append([]Path(nil), v.Subflows...)
			tt.modify(&v)
			assert.Equal(t, tt.want, EvaluateAdd(v))
		})
	}
}

func TestEvaluateAdd_HandoverRefusesCellWhileWifiHealthy(t *testing.T) {
	v := baseView(ServiceTypeHandover)
	v.FirstParty = true
	d := Evaluate(v)
	assert.Empty(t, d.Add)
	assert.False(t, d.RequestPermission)
}

func TestEvaluateRemove(t *testing.T) {
	tests := []struct {
		name     string
		st       ServiceType
		advisory Advisory
		paths    []Path
		target   time.Time
		sending  int
		want     []uint32
	}{
		{
			name:  "handover removes cell when wifi works",
			st:    ServiceTypeHandover,
			paths: []Path{wifiPath, cellPath},
			want:  []uint32{20},
		},
		{
			name:     "handover keeps cell when wifi retransmits",
			st:       ServiceTypeHandover,
			advisory: AdvisoryBad,
			sending:  10,
			paths:    []Path{{ID: 10, Interface: 1, Connected: true, Established: true, RetransmitShift: 4}, cellPath},
		},
		{
			name:     "pure handover removes wifi when only cell works",
			st:       ServiceTypePureHandover,
			advisory: AdvisoryBad,
			paths:    []Path{{ID: 10, Interface: 1, Connected: true}, cellPath},
			want:     []uint32{10},
		},
		{
			name:  "pure handover removes cell when wifi works",
			st:    ServiceTypePureHandover,
			paths: []Path{wifiPath, cellPath},
			want:  []uint32{20},
		},
		{
			name:     "pure handover without working paths removes nothing",
			st:       ServiceTypePureHandover,
			advisory: AdvisoryBad,
			paths:    []Path{{ID: 10, Interface: 1}, {ID: 20, Interface: 2, Metered: true}},
		},
		{
			name:     "target based after deadline with bad wifi removes nothing",
			st:       ServiceTypeTargetBased,
			advisory: AdvisoryBad,
			target:   now.Add(-time.Second),
			paths:    []Path{wifiPath, cellPath},
		},
		{
			name:   "target based removes cell while wifi connected",
			st:     ServiceTypeTargetBased,
			target: now.Add(time.Hour),
			paths:  []Path{wifiPath, cellPath},
			want:   []uint32{20},
		},
		{
			name:  "aggregate never removes",
			st:    ServiceTypeAggregate,
			paths: []Path{wifiPath, cellPath},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := baseView(tt.st)
			v.Advisory = tt.advisory
			v.Subflows = tt.paths
			v.TimeTarget = tt.target
			v.SendBuffered = tt.sending
			assert.Equal(t, tt.want, EvaluateRemove(v))
		})
	}
}

func TestEvaluateLost(t *testing.T) {
	v := baseView(ServiceTypeAggregate)
	v.Interfaces = []Interface{{ID: 1, HasV6: true}, {ID: 3, HasNAT64: true}}
	v.Subflows = []Path{
		{ID: 1, Interface: 1, Family: nic.FamilyIPv4},
		{ID: 2, Interface: 1, Family: nic.FamilyIPv6},
		{ID: 3, Interface: 2, Family: nic.FamilyIPv6},
		{ID: 4, Scope: 3, Family: nic.FamilyIPv6},
		{ID: 5, Family: nic.FamilyIPv4},
		{ID: 6, Interface: 1, Family: nic.FamilyIPv6, CloseRequired: true},
	}
	assert.Equal(t, []uint32{1, 3, 6}, EvaluateLost(v))

	v.OKToCreate = false
	assert.Nil(t, EvaluateLost(v))
}

func TestUseMetered(t *testing.T) {
	v := View{Thresholds: Thresholds{FailThreshold: 2, RetransmitFactor: 2}}
	p := Path{RetransmitShift: 3}

	v.Advisory = AdvisoryGood
	assert.False(t, UseMetered(v, p))

	v.Advisory = AdvisoryBad
	assert.True(t, UseMetered(v, p), "idle and bad")
	v.SendBuffered = 1
	assert.False(t, UseMetered(v, p))
	p.RetransmitShift = 4
	assert.True(t, UseMetered(v, p))

	v.Advisory = AdvisoryUnknown
	assert.True(t, UseMetered(v, p))
	v.SendBuffered = 0
	assert.False(t, UseMetered(v, p))
}

func TestDecision_Empty(t *testing.T) {
	assert.True(t, Decision{}.Empty())
	assert.False(t, Decision{Lost: []uint32{1}}.Empty())
	assert.False(t, Decision{TriggerMeteredBringup: true}.Empty())
}
