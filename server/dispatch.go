package server

import (
	"log"
	"net"
	"time"

	"github.com/xtaci/danptun/frame"
	"github.com/xtaci/danptun/session"
	"github.com/xtaci/danptun/storage"
	"github.com/xtaci/danptun/transport"
)

// HandleClient is the per-connection client handler: parse the opening
// COMMAND frame, select a session role, drive it to completion, and close
// the connection exactly once regardless of outcome.
func HandleClient(conn net.Conn, fs storage.FS, maxPayload int, timeout time.Duration) {
	defer conn.Close()

	log.Printf("server: client handler started for %v", conn.RemoteAddr())
	defer log.Printf("server: client handler terminated for %v", conn.RemoteAddr())

	opening, err := transport.ReadFrame(conn, timeout, maxPayload)
	if err != nil {
		log.Printf("server: command receive failed: %v", err)
		return
	}

	if opening.Type != frame.Command {
		log.Printf("server: expected COMMAND, got %v", opening.Type)
		sendError(conn, timeout)
		return
	}

	cmd, fileID, err := frame.DecodeCommand(opening.Payload)
	if err != nil {
		log.Printf("server: malformed command: %v", err)
		sendError(conn, timeout)
		return
	}

	switch cmd {
	case frame.CmdRead:
		if _, err := session.RunRead(conn, fs, fileID, maxPayload, timeout); err != nil {
			log.Printf("server: read session failed: %v", err)
		}
	case frame.CmdWrite:
		if _, err := session.RunWrite(conn, fs, fileID, maxPayload, timeout); err != nil {
			log.Printf("server: write session failed: %v", err)
		}
	case frame.CmdAbort:
		log.Printf("server: received abort command")
		// Confirm the abort with a response so the peer knows the connection
		// is closing cleanly rather than dropping silently (see DESIGN.md).
		if err := transport.WriteFrame(conn, timeout, frame.Response, 0, 0, []byte{frame.RespOK}); err != nil {
			log.Printf("server: failed to confirm abort: %v", err)
		}
	default:
		log.Printf("server: unknown command code: %#x", cmd)
		sendError(conn, timeout)
	}
}

func sendError(conn net.Conn, timeout time.Duration) {
	if err := transport.WriteFrame(conn, timeout, frame.Response, 0, 0, []byte{frame.RespError}); err != nil {
		log.Printf("server: failed to send error response: %v", err)
	}
}
