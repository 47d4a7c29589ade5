package ftpclient

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/xtaci/danptun/server"
	"github.com/xtaci/danptun/storage"
)

const testTimeout = 2 * time.Second

func dispatchOne(t *testing.T, serverConn net.Conn, fs storage.FS, maxPayload int) <-chan struct{} {
	t.Helper()
	done := make(chan struct{})
	go func() {
		server.HandleClient(serverConn, fs, maxPayload, testTimeout)
		close(done)
	}()
	return done
}

func TestTransmitWriteRoundTrip(t *testing.T) {
	fs := storage.NewMemFS()
	serverConn, clientConn := net.Pipe()
	done := dispatchOne(t, serverConn, fs, 512)

	cli, status := Init(clientConn)
	if status != StatusOK {
		t.Fatalf("Init status = %v", status)
	}
	defer cli.Deinit()

	payload := []byte("the quick brown fox jumps over the lazy dog")
	src := SourceFunc(func(offset int64, buf []byte) (int, bool, error) {
		remaining := payload[offset:]
		n := copy(buf, remaining)
		return n, int64(n) < int64(len(remaining)), nil
	})

	n, err := cli.Transmit(TransferConfig{FileID: []byte("up.txt"), ChunkSize: 8, Timeout: testTimeout, MaxRetries: 2}, src)
	if err != nil {
		t.Fatalf("Transmit error: %v", err)
	}
	if n != int64(len(payload)) {
		t.Fatalf("Transmit returned %d bytes, want %d", n, len(payload))
	}

	<-done

	got, ok := fs.Get("up.txt")
	if !ok {
		t.Fatalf("file not found in fs after transmit")
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("fs contents = %q, want %q", got, payload)
	}
}

func TestReceiveReadRoundTrip(t *testing.T) {
	fs := storage.NewMemFS()
	fs.Put("down.txt", []byte("some bytes for the client to receive"))

	serverConn, clientConn := net.Pipe()
	done := dispatchOne(t, serverConn, fs, 512)

	cli, status := Init(clientConn)
	if status != StatusOK {
		t.Fatalf("Init status = %v", status)
	}
	defer cli.Deinit()

	var got bytes.Buffer
	sink := SinkFunc(func(offset int64, data []byte, more bool) error {
		_, err := got.Write(data)
		return err
	})

	n, err := cli.Receive(TransferConfig{FileID: []byte("down.txt"), ChunkSize: 8, Timeout: testTimeout, MaxRetries: 2}, sink)
	if err != nil {
		t.Fatalf("Receive error: %v", err)
	}
	if n != int64(got.Len()) {
		t.Fatalf("Receive returned %d, sink got %d bytes", n, got.Len())
	}
	if got.String() != "some bytes for the client to receive" {
		t.Fatalf("unexpected contents: %q", got.String())
	}

	<-done
}

func TestReceiveFileNotFound(t *testing.T) {
	fs := storage.NewMemFS()
	serverConn, clientConn := net.Pipe()
	done := dispatchOne(t, serverConn, fs, 512)

	cli, _ := Init(clientConn)
	defer cli.Deinit()

	_, err := cli.Receive(TransferConfig{FileID: []byte("missing.txt"), ChunkSize: 8, Timeout: testTimeout}, SinkFunc(func(int64, []byte, bool) error { return nil }))
	if err == nil {
		t.Fatalf("expected an error for a missing file")
	}
	te, ok := err.(*TransferError)
	if !ok || te.Status != StatusFileNotFound {
		t.Fatalf("expected StatusFileNotFound, got %v", err)
	}

	<-done
}

func TestTransmitInvalidParam(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	serverConn.Close()

	cli, _ := Init(clientConn)
	defer cli.Deinit()

	_, err := cli.Transmit(TransferConfig{FileID: nil, ChunkSize: 8, Timeout: testTimeout}, SourceFunc(func(int64, []byte) (int, bool, error) { return 0, false, nil }))
	te, ok := err.(*TransferError)
	if !ok || te.Status != StatusInvalidParam {
		t.Fatalf("expected StatusInvalidParam, got %v", err)
	}
}
