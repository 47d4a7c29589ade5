package session

import (
	"log"
	"net"
	"sync/atomic"
	"time"

	"github.com/xtaci/danptun/frame"
	"github.com/xtaci/danptun/storage"
	"github.com/xtaci/danptun/transport"
)

// RunRead drives one read session end-to-end: service reads fileID from fs
// and streams it to the peer over conn. States: OpenFile -> Responded ->
// SendChunk -> AwaitAck -> {SendChunk | Done} -> Closed.
//
// The look-ahead probe (reading one extra byte past the current chunk) lets
// SendChunk mark LAST_CHUNK before the receiver sees EOF itself, saving a
// trailing empty frame -- this is why probeBuf is sized MaxPayload+1 rather
// than reusing the chunk buffer, which would risk writing the probe byte
// past a full MaxPayload-sized read.
func RunRead(conn net.Conn, fs storage.FS, fileID []byte, maxPayload int, timeout time.Duration) (int64, error) {
	handle, err := fs.Open(fileID, storage.ModeRead)
	if err != nil {
		var resp byte
		if err == storage.ErrNotFound {
			log.Printf("session: read: file not found: %q", fileID)
			resp = frame.RespFileNotFound
		} else {
			log.Printf("session: read: open failed: %v", err)
			resp = frame.RespError
		}
		if werr := transport.WriteFrame(conn, timeout, frame.Response, 0, 0, []byte{resp}); werr != nil {
			log.Printf("session: read: failed to send error response: %v", werr)
		}
		if err == storage.ErrNotFound {
			return 0, ErrFileNotFound
		}
		return 0, err
	}

	fileOpen := true
	defer func() {
		if fileOpen {
			if cerr := fs.Close(handle); cerr != nil {
				log.Printf("session: read: close failed: %v", cerr)
			}
		}
	}()

	seq := uint16(0)
	if err := transport.WriteFrame(conn, timeout, frame.Response, 0, seq, []byte{frame.RespOK}); err != nil {
		log.Printf("session: read: failed to send OK response: %v", err)
		return 0, err
	}
	seq++

	var offset int64
	probeBuf := make([]byte, maxPayload+1)

	for {
		n, err := fs.Read(handle, offset, probeBuf[:maxPayload])
		if err != nil {
			log.Printf("session: read: fs.Read failed: %v", err)
			return offset, err
		}

		var flags frame.Flags
		if offset == 0 {
			flags |= frame.FirstChunk
		}

		more := false
		if n > 0 {
			peekN, perr := fs.Read(handle, offset+int64(n), probeBuf[n:n+1])
			if perr == nil && peekN > 0 {
				more = true
			}
		}
		if !more {
			flags |= frame.LastChunk
		}

		if err := transport.WriteFrame(conn, timeout, frame.Data, flags, seq, probeBuf[:n]); err != nil {
			log.Printf("session: read: failed to send data chunk: %v", err)
			return offset, err
		}

		ack, err := transport.ReadFrame(conn, timeout, maxPayload)
		if err != nil {
			log.Printf("session: read: await ack failed: %v", err)
			atomic.AddUint64(&transport.DefaultSnmp.SessionsFailed, 1)
			return offset, err
		}
		if ack.Type == frame.Nack {
			log.Printf("session: read: received NACK for seq=%d", seq)
			atomic.AddUint64(&transport.DefaultSnmp.SessionsFailed, 1)
			return offset, ErrProtocol
		}
		if ack.Type != frame.Ack || ack.Seq != seq {
			log.Printf("session: read: unexpected ack frame type=%v seq=%d (want seq=%d)", ack.Type, ack.Seq, seq)
			atomic.AddUint64(&transport.DefaultSnmp.SessionsFailed, 1)
			return offset, ErrProtocol
		}

		offset += int64(n)
		seq++

		if !more {
			break
		}
	}

	if err := fs.Close(handle); err != nil {
		log.Printf("session: read: close failed: %v", err)
	}
	fileOpen = false

	atomic.AddUint64(&transport.DefaultSnmp.SessionsOK, 1)
	log.Printf("session: read complete: %d bytes", offset)
	return offset, nil
}
