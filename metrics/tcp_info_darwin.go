//go:build darwin

package metrics

import (
	"time"

	"golang.org/x/sys/unix"
)

// samplerは、TCP_CONNECTION_INFOを読み込みます。
//
// バックオフ回数は公開されていないため、再送パケット数が増え続けた取得回数で近似します。
type sampler struct {
	lastRetransmits uint64
	shift           int
}

func (s *sampler) read(fd int) (kernelSample, error) {
	info, err := unix.GetsockoptTCPConnectionInfo(fd, unix.IPPROTO_TCP, unix.TCP_CONNECTION_INFO)
	if err != nil {
		return kernelSample{}, err
	}
	if info.Txretransmitpackets > s.lastRetransmits {
		s.shift++
	} else {
		s.shift = 0
	}
	s.lastRetransmits = info.Txretransmitpackets
	// Darwin では RTT と RTTVar はミリ秒単位
	return kernelSample{
		rtt:         time.Duration(info.Srtt) * time.Millisecond,
		rttvar:      time.Duration(info.Rttvar) * time.Millisecond,
		cwnd:        uint64(info.Snd_cwnd),
		shift:       s.shift,
		inFlight:    uint64(info.Snd_sbbytes),
		hasInFlight: true,
	}, nil
}
