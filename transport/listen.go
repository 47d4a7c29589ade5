//go:build !linux

package transport

import kcp "github.com/xtaci/kcp-go/v5"

// Listen binds a KCP listener on addr. TCP emulation (tcpraw) is
// linux-only, mirroring kcptun's own build-tag split (server/listen.go vs
// server/listen_linux.go); on other platforms "-tcp" is a no-op.
func Listen(addr string, block kcp.BlockCrypt, dataShard, parityShard int, tcp bool) (*kcp.Listener, error) {
	return kcp.ListenWithOptions(addr, block, dataShard, parityShard)
}
