// Package session drives one read or one write session to completion over
// one connection -- the protocol core's state machines.
package session

import "github.com/pkg/errors"

// Sentinel errors of the session engine. RunRead returns ErrFileNotFound
// and ErrProtocol; ErrAborted is not returned by RunRead or RunWrite.
var (
	ErrFileNotFound = errors.New("session: file not found")
	ErrProtocol     = errors.New("session: protocol violation")
	ErrAborted      = errors.New("session: aborted by peer")
)
