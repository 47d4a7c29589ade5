//go:build linux

package transport

import (
	"github.com/pkg/errors"
	kcp "github.com/xtaci/kcp-go/v5"
	"github.com/xtaci/tcpraw"
)

// Listen binds a KCP listener on addr, optionally over a raw-TCP dual-stack
// packet conn (tcpraw) when tcp is set, exactly as kcptun's
// server/listen_linux.go chooses between tcpraw.Listen and a plain UDP KCP
// listener.
func Listen(addr string, block kcp.BlockCrypt, dataShard, parityShard int, tcp bool) (*kcp.Listener, error) {
	if tcp {
		conn, err := tcpraw.Listen("tcp", addr)
		if err != nil {
			return nil, errors.Wrap(err, "transport.Listen: tcpraw.Listen")
		}
		return kcp.ServeConn(block, dataShard, parityShard, conn)
	}
	return kcp.ListenWithOptions(addr, block, dataShard, parityShard)
}
