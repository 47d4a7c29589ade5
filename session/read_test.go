package session

import (
	"net"
	"testing"

	"github.com/xtaci/danptun/frame"
	"github.com/xtaci/danptun/storage"
	"github.com/xtaci/danptun/transport"
)

func TestRunReadRoundTrip(t *testing.T) {
	fs := storage.NewMemFS()
	fs.Put("down.bin", []byte("some bytes for the peer to read"))
	serverConn, clientConn := net.Pipe()

	done := make(chan struct{})
	var n int64
	var runErr error
	go func() {
		n, runErr = RunRead(serverConn, fs, []byte("down.bin"), frame.DefaultMaxPayload, testTimeout)
		close(done)
	}()

	resp, err := transport.ReadFrame(clientConn, testTimeout, frame.DefaultMaxPayload)
	if err != nil || resp.Type != frame.Response || resp.Payload[0] != frame.RespOK {
		t.Fatalf("expected RESPONSE{OK}, got %+v, err=%v", resp, err)
	}

	var got []byte
	seq := uint16(1)
	for {
		data, err := transport.ReadFrame(clientConn, testTimeout, frame.DefaultMaxPayload)
		if err != nil {
			t.Fatalf("ReadFrame(DATA) error: %v", err)
		}
		if data.Type != frame.Data || data.Seq != seq {
			t.Fatalf("unexpected frame %+v", data)
		}
		got = append(got, data.Payload...)
		if err := transport.WriteFrame(clientConn, testTimeout, frame.Ack, 0, seq, nil); err != nil {
			t.Fatalf("WriteFrame(ACK) error: %v", err)
		}
		if data.HasFlag(frame.LastChunk) {
			break
		}
		seq++
	}

	<-done
	if runErr != nil {
		t.Fatalf("RunRead error: %v", runErr)
	}
	if n != int64(len(got)) {
		t.Fatalf("RunRead returned %d, collected %d", n, len(got))
	}
	if string(got) != "some bytes for the peer to read" {
		t.Fatalf("unexpected contents: %q", got)
	}
}

func TestRunReadFileNotFound(t *testing.T) {
	fs := storage.NewMemFS()
	serverConn, clientConn := net.Pipe()

	done := make(chan struct{})
	var runErr error
	go func() {
		_, runErr = RunRead(serverConn, fs, []byte("missing.bin"), frame.DefaultMaxPayload, testTimeout)
		close(done)
	}()

	resp, err := transport.ReadFrame(clientConn, testTimeout, frame.DefaultMaxPayload)
	if err != nil {
		t.Fatalf("ReadFrame(RESPONSE) error: %v", err)
	}
	if resp.Type != frame.Response || resp.Payload[0] != frame.RespFileNotFound {
		t.Fatalf("expected RESPONSE{FILE_NOT_FOUND}, got %+v", resp)
	}

	<-done
	if runErr != ErrFileNotFound {
		t.Fatalf("expected ErrFileNotFound, got %v", runErr)
	}
}

// TestRunReadNackEndsSession matches AwaitAck's documented policy: unlike
// AwaitData on the write side, a NACK received while awaiting an ACK ends
// the read session in failure -- retransmission here is the initiator's
// job, not the service's.
func TestRunReadNackEndsSession(t *testing.T) {
	fs := storage.NewMemFS()
	fs.Put("down.bin", []byte("abc"))
	serverConn, clientConn := net.Pipe()

	done := make(chan struct{})
	var runErr error
	go func() {
		_, runErr = RunRead(serverConn, fs, []byte("down.bin"), frame.DefaultMaxPayload, testTimeout)
		close(done)
	}()

	if _, err := transport.ReadFrame(clientConn, testTimeout, frame.DefaultMaxPayload); err != nil {
		t.Fatalf("ReadFrame(RESPONSE) error: %v", err)
	}
	data, err := transport.ReadFrame(clientConn, testTimeout, frame.DefaultMaxPayload)
	if err != nil || data.Type != frame.Data {
		t.Fatalf("expected DATA, got %+v, err=%v", data, err)
	}
	if err := transport.WriteFrame(clientConn, testTimeout, frame.Nack, 0, data.Seq, nil); err != nil {
		t.Fatalf("WriteFrame(NACK) error: %v", err)
	}

	<-done
	if runErr != ErrProtocol {
		t.Fatalf("expected ErrProtocol, got %v", runErr)
	}
}
