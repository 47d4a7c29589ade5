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

// RunWrite drives one write session end-to-end: service receives fileID's
// contents from the peer over conn and writes them to fs. States:
// OpenFile -> Responded -> AwaitData -> Writing -> {AwaitData | Done}.
func RunWrite(conn net.Conn, fs storage.FS, fileID []byte, maxPayload int, timeout time.Duration) (int64, error) {
	handle, err := fs.Open(fileID, storage.ModeWrite)
	if err != nil {
		log.Printf("session: write: open failed: %v", err)
		if werr := transport.WriteFrame(conn, timeout, frame.Response, 0, 0, []byte{frame.RespError}); werr != nil {
			log.Printf("session: write: failed to send error response: %v", werr)
		}
		return 0, err
	}

	fileOpen := true
	defer func() {
		if fileOpen {
			if cerr := fs.Close(handle); cerr != nil {
				log.Printf("session: write: close failed: %v", cerr)
			}
		}
	}()

	peerSeq := uint16(0)
	if err := transport.WriteFrame(conn, timeout, frame.Response, 0, peerSeq, []byte{frame.RespOK}); err != nil {
		log.Printf("session: write: failed to send OK response: %v", err)
		return 0, err
	}
	peerSeq++

	var offset int64
	for {
		in, err := transport.ReadFrame(conn, timeout, maxPayload)
		if err == frame.ErrCRCMismatch {
			log.Printf("session: write: crc mismatch awaiting seq=%d, nacking for retry", peerSeq)
			atomic.AddUint64(&transport.DefaultSnmp.Retries, 1)
			if werr := transport.WriteFrame(conn, timeout, frame.Nack, 0, peerSeq, nil); werr != nil {
				log.Printf("session: write: failed to send NACK: %v", werr)
				atomic.AddUint64(&transport.DefaultSnmp.SessionsFailed, 1)
				return offset, werr
			}
			continue
		}
		if err != nil {
			log.Printf("session: write: receive failed: %v", err)
			atomic.AddUint64(&transport.DefaultSnmp.SessionsFailed, 1)
			return offset, err
		}

		if in.Type != frame.Data || in.Seq != peerSeq {
			log.Printf("session: write: protocol mismatch type=%v seq=%d (want DATA seq=%d)", in.Type, in.Seq, peerSeq)
			atomic.AddUint64(&transport.DefaultSnmp.Retries, 1)
			if werr := transport.WriteFrame(conn, timeout, frame.Nack, 0, in.Seq, nil); werr != nil {
				log.Printf("session: write: failed to send NACK: %v", werr)
				atomic.AddUint64(&transport.DefaultSnmp.SessionsFailed, 1)
				return offset, werr
			}
			continue
		}

		if _, err := fs.Write(handle, offset, in.Payload); err != nil {
			log.Printf("session: write: fs.Write failed: %v", err)
			if werr := transport.WriteFrame(conn, timeout, frame.Nack, 0, in.Seq, nil); werr != nil {
				log.Printf("session: write: failed to send NACK after write failure: %v", werr)
			}
			atomic.AddUint64(&transport.DefaultSnmp.SessionsFailed, 1)
			return offset, err
		}

		if err := transport.WriteFrame(conn, timeout, frame.Ack, 0, peerSeq, nil); err != nil {
			log.Printf("session: write: failed to send ACK: %v", err)
			atomic.AddUint64(&transport.DefaultSnmp.SessionsFailed, 1)
			return offset, err
		}

		offset += int64(len(in.Payload))
		peerSeq++

		if in.HasFlag(frame.LastChunk) {
			break
		}
	}

	if err := fs.Close(handle); err != nil {
		log.Printf("session: write: close failed: %v", err)
	}
	fileOpen = false

	atomic.AddUint64(&transport.DefaultSnmp.SessionsOK, 1)
	log.Printf("session: write complete: %d bytes", offset)
	return offset, nil
}
