//go:build linux

package metrics

import (
	"time"

	"golang.org/x/sys/unix"
)

// samplerは、TCP_INFOを読み込みます。
type sampler struct{}

func (sampler) read(fd int) (kernelSample, error) {
	ti, err := unix.GetsockoptTCPInfo(fd, unix.IPPROTO_TCP, unix.TCP_INFO)
	if err != nil {
		return kernelSample{}, err
	}
	return kernelSample{
		rtt:    time.Duration(ti.Rtt) * time.Microsecond,
		rttvar: time.Duration(ti.Rttvar) * time.Microsecond,
		cwnd:   uint64(ti.Snd_cwnd) * uint64(ti.Snd_mss),
		// icsk_backoff
		shift: int(ti.Backoff),
	}, nil
}
