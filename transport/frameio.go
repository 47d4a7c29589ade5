// Package transport binds the abstract stream-transport contract to a
// concrete connection: a KCP (github.com/xtaci/kcp-go/v5) session, optionally
// wrapped in link encryption, snappy compression, or QPP obfuscation,
// terminating in this protocol's frame codec instead of a multiplexed stream.
package transport

import (
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/xtaci/danptun/frame"
)

// ErrTimeout is returned by ReadFrame when no frame arrives within the
// caller's deadline; it is non-recoverable at the session layer.
var ErrTimeout = errors.New("transport: read timeout")

// ReadFrame receives exactly one frame from conn, self-delimited by the
// header's payload_length field, honoring the supplied deadline. A timed-out
// read returns ErrTimeout; any other I/O failure is wrapped and returned.
func ReadFrame(conn net.Conn, timeout time.Duration, maxPayload int) (frame.Frame, error) {
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return frame.Frame{}, errors.Wrap(err, "transport.ReadFrame: SetReadDeadline")
		}
		defer conn.SetReadDeadline(time.Time{})
	}

	header := make([]byte, frame.HeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		if isTimeout(err) {
			return frame.Frame{}, ErrTimeout
		}
		return frame.Frame{}, errors.Wrap(err, "transport.ReadFrame: header")
	}

	payloadLen := int(header[4]) | int(header[5])<<8
	if payloadLen > maxPayload {
		return frame.Frame{}, frame.ErrOversize
	}

	buf := make([]byte, frame.HeaderSize+payloadLen)
	copy(buf, header)
	if payloadLen > 0 {
		if _, err := io.ReadFull(conn, buf[frame.HeaderSize:]); err != nil {
			if isTimeout(err) {
				return frame.Frame{}, ErrTimeout
			}
			return frame.Frame{}, errors.Wrap(err, "transport.ReadFrame: payload")
		}
	}

	f, err := frame.Decode(buf, maxPayload)
	if err != nil {
		if err == frame.ErrCRCMismatch {
			atomic.AddUint64(&DefaultSnmp.CRCFailures, 1)
		}
		return f, err
	}

	atomic.AddUint64(&DefaultSnmp.FramesRecv, 1)
	atomic.AddUint64(&DefaultSnmp.BytesRecv, uint64(len(f.Payload)))
	if f.Type == frame.Nack {
		atomic.AddUint64(&DefaultSnmp.NACKsRecv, 1)
	}
	return f, nil
}

// WriteFrame encodes and sends one frame, writing all bytes before
// returning, per the transport contract's all-or-nothing send guarantee.
func WriteFrame(conn net.Conn, timeout time.Duration, typ frame.Type, flags frame.Flags, seq uint16, payload []byte) error {
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return errors.Wrap(err, "transport.WriteFrame: SetWriteDeadline")
		}
		defer conn.SetWriteDeadline(time.Time{})
	}

	buf := frame.Encode(typ, flags, seq, payload)
	n, err := conn.Write(buf)
	if err != nil {
		if isTimeout(err) {
			return ErrTimeout
		}
		return errors.Wrap(err, "transport.WriteFrame")
	}
	if n != len(buf) {
		return errors.Errorf("transport.WriteFrame: short write %d/%d", n, len(buf))
	}

	atomic.AddUint64(&DefaultSnmp.FramesSent, 1)
	atomic.AddUint64(&DefaultSnmp.BytesSent, uint64(len(payload)))
	if typ == frame.Nack {
		atomic.AddUint64(&DefaultSnmp.NACKsSent, 1)
	}
	return nil
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
