//go:build unix

package pathconn

import (
	"net"
	"syscall"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/mptcp"
	"golang.org/x/sys/unix"
)

func setSockopt(nc net.Conn, opt mptcp.SocketOption) error {
	sc, ok := nc.(syscall.Conn)
	if !ok {
		return errors.Errorf("%T is not a socket: %w", nc, errors.ErrState)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), opt.Level, opt.Name, opt.Value)
	}); err != nil {
		return err
	}
	if serr != nil {
		return errors.Errorf("setsockopt level=%d name=%d: %w", opt.Level, opt.Name, serr)
	}
	return nil
}
