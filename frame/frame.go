// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package frame implements the wire framing for the danptun file-transfer
// protocol: a fixed header, CRC-32 payload integrity, and encode/decode
// between in-memory frames and the byte stream a net.Conn carries.
package frame

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"
)

// Type identifies the kind of frame on the wire.
type Type uint8

const (
	Command Type = iota + 1
	Response
	Data
	Ack
	Nack
)

func (t Type) String() string {
	switch t {
	case Command:
		return "COMMAND"
	case Response:
		return "RESPONSE"
	case Data:
		return "DATA"
	case Ack:
		return "ACK"
	case Nack:
		return "NACK"
	default:
		return "UNKNOWN"
	}
}

// Flags is a bitfield carried in every frame header.
type Flags uint8

const (
	LastChunk Flags = 1 << 0
	FirstChunk Flags = 1 << 1
)

// HeaderSize is the fixed, little-endian on-wire header: type, flags,
// sequence_number, payload_length, crc.
const HeaderSize = 1 + 1 + 2 + 2 + 4

// DefaultMaxFrame mirrors the reference deployment's KCP/MTU sizing (see
// kcptun's "-mtu" default of 1350, rounded up to the classic 1500-byte
// Ethernet frame this protocol was originally tuned for).
const DefaultMaxFrame = 1500

// DefaultMaxPayload is the payload cap for DefaultMaxFrame.
const DefaultMaxPayload = DefaultMaxFrame - HeaderSize

// Command codes carried in a Command frame's payload byte 0.
const (
	CmdRead  byte = 0x01
	CmdWrite byte = 0x02
	CmdAbort byte = 0x03
)

// Response codes carried in a Response frame's single payload byte.
const (
	RespOK            byte = 0x00
	RespError         byte = 0x01
	RespFileNotFound  byte = 0x02
	RespBusy          byte = 0x03
)

// Frame is one decoded wire unit.
type Frame struct {
	Type    Type
	Flags   Flags
	Seq     uint16
	Payload []byte
}

func (f Frame) HasFlag(fl Flags) bool { return f.Flags&fl != 0 }

// Framing errors, returned by Decode. Session and transport code compare
// these by identity (==), so they must remain sentinel values, not formatted
// per call.
var (
	ErrTooShort        = errors.New("frame: too short for header")
	ErrLengthMismatch  = errors.New("frame: declared payload_length does not match buffer size")
	ErrCRCMismatch     = errors.New("frame: crc mismatch")
	ErrOversize        = errors.New("frame: payload_length exceeds MaxPayload")
)

// crc computes the CRC-32 over payload only: polynomial 0xEDB88320
// (reversed), init/final 0xFFFFFFFF, reflected in/out. That is exactly the
// IEEE CRC-32 hash/crc32 already implements, so the standard table is used
// directly rather than hand-rolled.
func crc(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

// Encode packs header fields little-endian and appends payload, computing
// the CRC over payload only (not the header), which allows cheap in-place
// frame assembly.
func Encode(typ Type, flags Flags, seq uint16, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = byte(typ)
	buf[1] = byte(flags)
	binary.LittleEndian.PutUint16(buf[2:4], seq)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(payload)))
	binary.LittleEndian.PutUint32(buf[6:10], crc(payload))
	copy(buf[HeaderSize:], payload)
	return buf
}

// Decode parses a complete on-wire frame (header + payload) already
// assembled by the caller (the session layer reads HeaderSize bytes first,
// then exactly payload_length more -- see transport.ReadFrame).
func Decode(b []byte, maxPayload int) (Frame, error) {
	if len(b) < HeaderSize {
		return Frame{}, ErrTooShort
	}

	payloadLen := int(binary.LittleEndian.Uint16(b[4:6]))
	if payloadLen > maxPayload {
		return Frame{}, ErrOversize
	}
	if len(b)-HeaderSize != payloadLen {
		return Frame{}, ErrLengthMismatch
	}

	payload := b[HeaderSize:]
	wantCRC := binary.LittleEndian.Uint32(b[6:10])
	if crc(payload) != wantCRC {
		return Frame{}, ErrCRCMismatch
	}

	f := Frame{
		Type:  Type(b[0]),
		Flags: Flags(b[1]),
		Seq:   binary.LittleEndian.Uint16(b[2:4]),
	}
	if payloadLen > 0 {
		f.Payload = append([]byte(nil), payload...)
	}
	return f, nil
}

// EncodeCommand builds the payload for a Command frame: command code,
// file_id_len, then the opaque identifier bytes.
func EncodeCommand(cmd byte, fileID []byte) ([]byte, error) {
	if len(fileID) > 253 {
		return nil, errors.New("frame: file id too long")
	}
	buf := make([]byte, 2+len(fileID))
	buf[0] = cmd
	buf[1] = byte(len(fileID))
	copy(buf[2:], fileID)
	return buf, nil
}

// DecodeCommand splits a Command frame's payload into command code and file
// id, validating that payload_length >= 2 and file_id_len+2 <= payload_length.
func DecodeCommand(payload []byte) (cmd byte, fileID []byte, err error) {
	if len(payload) < 2 {
		return 0, nil, errors.New("frame: command payload too short")
	}
	cmd = payload[0]
	idLen := int(payload[1])
	if idLen+2 > len(payload) {
		return 0, nil, errors.New("frame: invalid file_id_len")
	}
	fileID = payload[2 : 2+idLen]
	return cmd, fileID, nil
}
