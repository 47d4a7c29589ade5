package transport

import kcp "github.com/xtaci/kcp-go/v5"

// Dial establishes a KCP session to addr, mirroring kcptun's client/dial.go.
func Dial(addr string, block kcp.BlockCrypt, dataShard, parityShard int) (*kcp.UDPSession, error) {
	return kcp.DialWithOptions(addr, block, dataShard, parityShard)
}
