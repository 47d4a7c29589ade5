package session

import (
	"net"
	"testing"
	"time"

	"github.com/xtaci/danptun/frame"
	"github.com/xtaci/danptun/storage"
	"github.com/xtaci/danptun/transport"
)

const testTimeout = 2 * time.Second

func TestRunWriteRoundTrip(t *testing.T) {
	fs := storage.NewMemFS()
	serverConn, clientConn := net.Pipe()

	done := make(chan struct{})
	var n int64
	var runErr error
	go func() {
		n, runErr = RunWrite(serverConn, fs, []byte("up.bin"), frame.DefaultMaxPayload, testTimeout)
		close(done)
	}()

	resp, err := transport.ReadFrame(clientConn, testTimeout, frame.DefaultMaxPayload)
	if err != nil || resp.Type != frame.Response || resp.Payload[0] != frame.RespOK {
		t.Fatalf("expected RESPONSE{OK}, got %+v, err=%v", resp, err)
	}

	payload := []byte("hello world")
	if err := transport.WriteFrame(clientConn, testTimeout, frame.Data, frame.FirstChunk|frame.LastChunk, 1, payload); err != nil {
		t.Fatalf("WriteFrame(DATA) error: %v", err)
	}

	ack, err := transport.ReadFrame(clientConn, testTimeout, frame.DefaultMaxPayload)
	if err != nil || ack.Type != frame.Ack || ack.Seq != 1 {
		t.Fatalf("expected ACK{seq=1}, got %+v, err=%v", ack, err)
	}

	<-done
	if runErr != nil {
		t.Fatalf("RunWrite error: %v", runErr)
	}
	if n != int64(len(payload)) {
		t.Fatalf("RunWrite returned %d bytes, want %d", n, len(payload))
	}
	got, ok := fs.Get("up.bin")
	if !ok || string(got) != string(payload) {
		t.Fatalf("fs contents = %q, want %q", got, payload)
	}
}

// TestRunWriteCRCMismatchRetries reproduces scenario 3: a CRC-corrupted DATA
// frame during a write session must draw a NACK and leave the session in
// AwaitData, not terminate it -- the peer retries the same seq and succeeds.
func TestRunWriteCRCMismatchRetries(t *testing.T) {
	fs := storage.NewMemFS()
	serverConn, clientConn := net.Pipe()

	done := make(chan struct{})
	var n int64
	var runErr error
	go func() {
		n, runErr = RunWrite(serverConn, fs, []byte("up.bin"), frame.DefaultMaxPayload, testTimeout)
		close(done)
	}()

	resp, err := transport.ReadFrame(clientConn, testTimeout, frame.DefaultMaxPayload)
	if err != nil || resp.Type != frame.Response || resp.Payload[0] != frame.RespOK {
		t.Fatalf("expected RESPONSE{OK}, got %+v, err=%v", resp, err)
	}

	payload := []byte("payload bytes")
	buf := frame.Encode(frame.Data, frame.FirstChunk|frame.LastChunk, 1, payload)
	// Flip every bit of one byte of the header's crc field (bytes 6:10) so the decoder's
	// checksum fails without touching payload_length or the payload itself.
	buf[9] ^= 0xFF
	if err := clientConn.SetWriteDeadline(time.Now().Add(testTimeout)); err != nil {
		t.Fatalf("SetWriteDeadline error: %v", err)
	}
	if _, err := clientConn.Write(buf); err != nil {
		t.Fatalf("write corrupted frame: %v", err)
	}

	nack, err := transport.ReadFrame(clientConn, testTimeout, frame.DefaultMaxPayload)
	if err != nil {
		t.Fatalf("ReadFrame(NACK) error: %v", err)
	}
	if nack.Type != frame.Nack || nack.Seq != 1 {
		t.Fatalf("expected NACK{seq=1} after CRC mismatch, got %+v", nack)
	}

	// Second attempt, same seq, uncorrupted: must succeed.
	if err := transport.WriteFrame(clientConn, testTimeout, frame.Data, frame.FirstChunk|frame.LastChunk, 1, payload); err != nil {
		t.Fatalf("WriteFrame(DATA) retry error: %v", err)
	}

	ack, err := transport.ReadFrame(clientConn, testTimeout, frame.DefaultMaxPayload)
	if err != nil || ack.Type != frame.Ack || ack.Seq != 1 {
		t.Fatalf("expected ACK{seq=1} on retry, got %+v, err=%v", ack, err)
	}

	<-done
	if runErr != nil {
		t.Fatalf("RunWrite error: %v", runErr)
	}
	if n != int64(len(payload)) {
		t.Fatalf("RunWrite returned %d bytes, want %d", n, len(payload))
	}
	got, ok := fs.Get("up.bin")
	if !ok || string(got) != string(payload) {
		t.Fatalf("fs contents = %q, want %q", got, payload)
	}
}

func TestRunWriteSequenceMismatchNacksAndContinues(t *testing.T) {
	fs := storage.NewMemFS()
	serverConn, clientConn := net.Pipe()

	done := make(chan struct{})
	go func() {
		RunWrite(serverConn, fs, []byte("up.bin"), frame.DefaultMaxPayload, testTimeout)
		close(done)
	}()

	if _, err := transport.ReadFrame(clientConn, testTimeout, frame.DefaultMaxPayload); err != nil {
		t.Fatalf("ReadFrame(RESPONSE) error: %v", err)
	}

	// Wrong sequence number: service should NACK and remain in AwaitData.
	if err := transport.WriteFrame(clientConn, testTimeout, frame.Data, 0, 7, []byte("x")); err != nil {
		t.Fatalf("WriteFrame(DATA) error: %v", err)
	}
	nack, err := transport.ReadFrame(clientConn, testTimeout, frame.DefaultMaxPayload)
	if err != nil || nack.Type != frame.Nack {
		t.Fatalf("expected NACK, got %+v, err=%v", nack, err)
	}

	if err := transport.WriteFrame(clientConn, testTimeout, frame.Data, frame.FirstChunk|frame.LastChunk, 1, []byte("ok")); err != nil {
		t.Fatalf("WriteFrame(DATA) error: %v", err)
	}
	ack, err := transport.ReadFrame(clientConn, testTimeout, frame.DefaultMaxPayload)
	if err != nil || ack.Type != frame.Ack || ack.Seq != 1 {
		t.Fatalf("expected ACK{seq=1}, got %+v, err=%v", ack, err)
	}

	<-done
}

func TestRunWriteOpenFailureSendsErrorResponse(t *testing.T) {
	serverConn, clientConn := net.Pipe()

	done := make(chan struct{})
	go func() {
		// MemFS.Open never fails on write (it creates on demand); use DirFS
		// with an invalid, traversal-style id to force an open error instead.
		dirFS, err := storage.NewDirFS(t.TempDir())
		if err != nil {
			t.Errorf("NewDirFS error: %v", err)
			close(done)
			return
		}
		RunWrite(serverConn, dirFS, []byte("../escape"), frame.DefaultMaxPayload, testTimeout)
		close(done)
	}()

	resp, err := transport.ReadFrame(clientConn, testTimeout, frame.DefaultMaxPayload)
	if err != nil {
		t.Fatalf("ReadFrame(RESPONSE) error: %v", err)
	}
	if resp.Type != frame.Response || resp.Payload[0] != frame.RespError {
		t.Fatalf("expected RESPONSE{ERROR}, got %+v", resp)
	}

	<-done
}
