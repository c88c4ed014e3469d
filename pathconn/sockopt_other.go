//go:build !unix

package pathconn

import (
	"net"
	"runtime"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/mptcp"
)

func setSockopt(_ net.Conn, _ mptcp.SocketOption) error {
	return errors.Errorf("socket options are not supported on %s", runtime.GOOS)
}
