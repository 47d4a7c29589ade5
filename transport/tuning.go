package transport

import (
	"log"

	kcp "github.com/xtaci/kcp-go/v5"
)

// Tuning collects the KCP session knobs kcptun exposes as CLI flags
// ("-mode", "-mtu", "-sndwnd", ...). ApplyTuning configures a freshly
// dialed or accepted session the same way kcptun's client createConn /
// server accept loop do.
type Tuning struct {
	NoDelay      int
	Interval     int
	Resend       int
	NoCongestion int
	MTU          int
	SndWnd       int
	RcvWnd       int
	AckNodelay   bool
	RateLimit    int
	DSCP         int
	SockBuf      int
}

// ModeTuning expands a named profile ("normal", "fast", "fast2", "fast3")
// into nodelay/interval/resend/nc parameters, as kcptun's mode switch does.
func ModeTuning(mode string) (noDelay, interval, resend, nc int) {
	switch mode {
	case "normal":
		return 0, 40, 2, 1
	case "fast":
		return 0, 30, 2, 1
	case "fast2":
		return 1, 20, 2, 1
	case "fast3":
		return 1, 10, 2, 1
	default:
		return 0, 0, 0, 0
	}
}

// ApplyTuning configures sess per t, logging (not failing) on any setter
// that rejects the value -- the same best-effort policy kcptun's main.go
// uses for SetDSCP/SetReadBuffer/SetWriteBuffer.
func ApplyTuning(sess *kcp.UDPSession, t Tuning) {
	sess.SetStreamMode(true)
	sess.SetWriteDelay(false)
	sess.SetNoDelay(t.NoDelay, t.Interval, t.Resend, t.NoCongestion)
	sess.SetMtu(t.MTU)
	sess.SetWindowSize(t.SndWnd, t.RcvWnd)
	sess.SetACKNoDelay(t.AckNodelay)
	sess.SetRateLimit(uint32(t.RateLimit))

	if err := sess.SetDSCP(t.DSCP); err != nil {
		log.Println("transport: SetDSCP:", err)
	}
	if err := sess.SetReadBuffer(t.SockBuf); err != nil {
		log.Println("transport: SetReadBuffer:", err)
	}
	if err := sess.SetWriteBuffer(t.SockBuf); err != nil {
		log.Println("transport: SetWriteBuffer:", err)
	}
}
