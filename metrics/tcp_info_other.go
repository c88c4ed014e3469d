//go:build !linux && !darwin

package metrics

import (
	"net"
	"time"
)

// ForConn は、このプラットフォームではカーネルからメトリクスを取得できないため、固定値を返すプロバイダーを返却します。
func ForConn(_ net.Conn, _ time.Duration) ManagedProvider {
	return NewNopProvider()
}
