// Package ftpclient is the initiator-side counterpart to the session
// engine: transmit and receive operations driven against a remote service
// over one connection, mirroring the service state machines in reverse role.
package ftpclient

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/xtaci/danptun/frame"
	"github.com/xtaci/danptun/transport"
)

// Status is the outcome a caller sees from Transmit/Receive, matching the
// status codes a byte-oriented C API would return as negative values.
type Status int

const (
	StatusOK Status = iota
	StatusInvalidParam
	StatusTransferFailed
	StatusFileNotFound
	StatusTimeout
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusInvalidParam:
		return "INVALID_PARAM"
	case StatusTransferFailed:
		return "TRANSFER_FAILED"
	case StatusFileNotFound:
		return "FILE_NOT_FOUND"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// TransferError pairs a Status with the underlying cause, so callers can
// either switch on Status or unwrap for detail.
type TransferError struct {
	Status Status
	Err    error
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return e.Status.String() + ": " + e.Err.Error()
	}
	return e.Status.String()
}

func (e *TransferError) Unwrap() error { return e.Err }

// Source produces the bytes a Transmit call sends. Fill fills buf starting
// at offset and reports whether more data follows this chunk -- the same
// shape as the source_callback(offset, buf, len, &more, user) contract, but
// expressed as a capability interface instead of a raw function pointer.
type Source interface {
	Fill(offset int64, buf []byte) (n int, more bool, err error)
}

// Sink consumes the bytes a Receive call delivers. Consume is handed
// exactly one chunk's payload; it must consume all of it.
type Sink interface {
	Consume(offset int64, data []byte, more bool) error
}

// SourceFunc adapts a plain function to Source.
type SourceFunc func(offset int64, buf []byte) (n int, more bool, err error)

func (f SourceFunc) Fill(offset int64, buf []byte) (int, bool, error) { return f(offset, buf) }

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(offset int64, data []byte, more bool) error

func (f SinkFunc) Consume(offset int64, data []byte, more bool) error { return f(offset, data, more) }

// TransferConfig configures one transmit or receive call.
type TransferConfig struct {
	FileID     []byte
	ChunkSize  int
	Timeout    time.Duration
	MaxRetries int
}

func (c TransferConfig) validate() error {
	if len(c.FileID) == 0 {
		return errors.New("ftpclient: file id required")
	}
	if c.ChunkSize <= 0 || c.ChunkSize > frame.DefaultMaxPayload {
		return errors.New("ftpclient: chunk size out of range")
	}
	if c.MaxRetries < 0 {
		return errors.New("ftpclient: max retries must be non-negative")
	}
	return nil
}

// Validate is the CLI-facing counterpart to validate: it runs the same
// fatal checks but also surfaces non-fatal warnings about values that are
// in range yet likely to misbehave, the same warnings/error split as
// transport.ValidateQPPParams. Callers print warnings via color.Red and
// fatal on a non-nil error before ever dialing.
func (c TransferConfig) Validate() ([]string, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if c.Timeout <= 0 {
		return nil, fmt.Errorf("ftpclient: timeout must be greater than 0, got %v", c.Timeout)
	}

	var warnings []string
	if c.MaxRetries == 0 {
		warnings = append(warnings, "config warning: max-retries is 0, a single dropped or corrupted frame fails the whole transfer")
	}
	if c.ChunkSize > frame.DefaultMaxPayload-frame.HeaderSize {
		warnings = append(warnings, fmt.Sprintf("config warning: chunksize %d leaves no headroom under the default max payload %d", c.ChunkSize, frame.DefaultMaxPayload))
	}
	return warnings, nil
}

// Client is one initiator-side connection handle. It is not safe for
// concurrent use: a session is single-threaded on the caller's goroutine,
// mirroring the service's own per-connection single-threading.
type Client struct {
	conn net.Conn
}

// Init establishes the stream connection backing every subsequent Transmit
// or Receive call. Dialing and tuning are left to the caller (transport.Dial,
// transport.ApplyTuning) -- Init wraps an already-connected net.Conn so
// tests can substitute net.Pipe.
func Init(conn net.Conn) (*Client, Status) {
	if conn == nil {
		return nil, StatusInvalidParam
	}
	return &Client{conn: conn}, StatusOK
}

// Deinit closes the connection. Idempotent: closing twice is harmless.
func (c *Client) Deinit() {
	if c.conn != nil {
		c.conn.Close()
	}
}

// Transmit sends cfg.FileID's contents to the service (a WRITE session from
// the service's perspective), reading chunks from src until src reports no
// more data. Returns the number of bytes sent.
func (c *Client) Transmit(cfg TransferConfig, src Source) (int64, error) {
	if err := cfg.validate(); err != nil || src == nil {
		if err == nil {
			err = errors.New("ftpclient: nil source")
		}
		return 0, &TransferError{Status: StatusInvalidParam, Err: err}
	}

	cmdPayload, err := frame.EncodeCommand(frame.CmdWrite, cfg.FileID)
	if err != nil {
		return 0, &TransferError{Status: StatusInvalidParam, Err: err}
	}
	if err := transport.WriteFrame(c.conn, cfg.Timeout, frame.Command, 0, 0, cmdPayload); err != nil {
		return 0, transferErr(err)
	}

	resp, err := transport.ReadFrame(c.conn, cfg.Timeout, frame.DefaultMaxPayload)
	if err != nil {
		return 0, transferErr(err)
	}
	if resp.Type != frame.Response || len(resp.Payload) < 1 || resp.Payload[0] != frame.RespOK {
		log.Printf("ftpclient: transmit open rejected: %+v", resp)
		return 0, &TransferError{Status: StatusTransferFailed, Err: errors.New("ftpclient: open rejected")}
	}

	var offset int64
	seq := uint16(1)
	buf := make([]byte, cfg.ChunkSize)

	for {
		n, more, err := src.Fill(offset, buf)
		if err != nil {
			return offset, &TransferError{Status: StatusError, Err: err}
		}

		var flags frame.Flags
		if offset == 0 {
			flags |= frame.FirstChunk
		}
		if !more {
			flags |= frame.LastChunk
		}

		acked := false
		for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
			if err := transport.WriteFrame(c.conn, cfg.Timeout, frame.Data, flags, seq, buf[:n]); err != nil {
				return offset, transferErr(err)
			}

			ack, err := transport.ReadFrame(c.conn, cfg.Timeout, frame.DefaultMaxPayload)
			if err != nil {
				log.Printf("ftpclient: transmit: ack wait failed (attempt %d): %v", attempt, err)
				continue
			}
			if ack.Type == frame.Ack && ack.Seq == seq {
				acked = true
				break
			}
			log.Printf("ftpclient: transmit: unexpected reply type=%v seq=%d (want ACK seq=%d)", ack.Type, ack.Seq, seq)
		}
		if !acked {
			return offset, &TransferError{Status: StatusTransferFailed, Err: errors.Errorf("ftpclient: no ACK for seq=%d after %d retries", seq, cfg.MaxRetries)}
		}

		offset += int64(n)
		seq++

		if !more {
			break
		}
	}

	return offset, nil
}

// Receive pulls cfg.FileID's contents from the service (a READ session from
// the service's perspective), handing each chunk to sink as it arrives.
// Returns the number of bytes received.
func (c *Client) Receive(cfg TransferConfig, sink Sink) (int64, error) {
	if err := cfg.validate(); err != nil || sink == nil {
		if err == nil {
			err = errors.New("ftpclient: nil sink")
		}
		return 0, &TransferError{Status: StatusInvalidParam, Err: err}
	}

	cmdPayload, err := frame.EncodeCommand(frame.CmdRead, cfg.FileID)
	if err != nil {
		return 0, &TransferError{Status: StatusInvalidParam, Err: err}
	}
	if err := transport.WriteFrame(c.conn, cfg.Timeout, frame.Command, 0, 0, cmdPayload); err != nil {
		return 0, transferErr(err)
	}

	resp, err := transport.ReadFrame(c.conn, cfg.Timeout, frame.DefaultMaxPayload)
	if err != nil {
		return 0, transferErr(err)
	}
	if resp.Type != frame.Response || len(resp.Payload) < 1 {
		return 0, &TransferError{Status: StatusTransferFailed, Err: errors.New("ftpclient: malformed open response")}
	}
	switch resp.Payload[0] {
	case frame.RespOK:
	case frame.RespFileNotFound:
		return 0, &TransferError{Status: StatusFileNotFound, Err: errors.New("ftpclient: file not found")}
	default:
		return 0, &TransferError{Status: StatusTransferFailed, Err: errors.New("ftpclient: open rejected")}
	}

	var offset int64
	seq := uint16(1)

	// Unlike Transmit, the service never retransmits a DATA frame it has
	// already sent (RunRead fails the session outright on a NACK), so
	// MaxRetries has nothing to apply to here: one mismatch ends the
	// session, matching the service's own behavior.
	for {
		data, err := transport.ReadFrame(c.conn, cfg.Timeout, frame.DefaultMaxPayload)
		if err != nil {
			return offset, transferErr(err)
		}
		if data.Type != frame.Data || data.Seq != seq {
			log.Printf("ftpclient: receive: unexpected frame type=%v seq=%d (want DATA seq=%d)", data.Type, data.Seq, seq)
			if werr := transport.WriteFrame(c.conn, cfg.Timeout, frame.Nack, 0, seq, nil); werr != nil {
				return offset, transferErr(werr)
			}
			return offset, &TransferError{Status: StatusTransferFailed, Err: errors.New("ftpclient: protocol violation awaiting DATA")}
		}

		more := !data.HasFlag(frame.LastChunk)
		if err := sink.Consume(offset, data.Payload, more); err != nil {
			return offset, &TransferError{Status: StatusError, Err: err}
		}
		if err := transport.WriteFrame(c.conn, cfg.Timeout, frame.Ack, 0, seq, nil); err != nil {
			return offset, transferErr(err)
		}

		offset += int64(len(data.Payload))
		seq++

		if !more {
			break
		}
	}

	return offset, nil
}

func transferErr(err error) *TransferError {
	if err == transport.ErrTimeout {
		return &TransferError{Status: StatusTimeout, Err: err}
	}
	return &TransferError{Status: StatusError, Err: err}
}
