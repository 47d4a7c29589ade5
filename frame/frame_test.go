package frame

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload := []byte("hello chunk")
	b := Encode(Data, FirstChunk|LastChunk, 7, payload)

	f, err := Decode(b, DefaultMaxPayload)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if f.Type != Data || f.Seq != 7 || !f.HasFlag(FirstChunk) || !f.HasFlag(LastChunk) {
		t.Fatalf("unexpected frame: %+v", f)
	}
	if !bytes.Equal(f.Payload, payload) {
		t.Fatalf("payload mismatch: got %q want %q", f.Payload, payload)
	}
}

func TestEncodeDecodeEmptyPayloadCRC(t *testing.T) {
	b := Encode(Data, FirstChunk|LastChunk, 1, nil)
	f, err := Decode(b, DefaultMaxPayload)
	if err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if len(f.Payload) != 0 {
		t.Fatalf("expected empty payload, got %d bytes", len(f.Payload))
	}
	// spec: empty payload yields CRC 0x00000000 after final XOR
	if crc(nil) != 0 {
		t.Fatalf("expected crc(nil) == 0, got %#x", crc(nil))
	}
}

func TestDecodeTooShort(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3}, DefaultMaxPayload)
	if err != ErrTooShort {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestDecodeLengthMismatch(t *testing.T) {
	b := Encode(Data, 0, 1, []byte("abc"))
	// truncate the payload without adjusting the declared length
	truncated := b[:len(b)-1]
	_, err := Decode(truncated, DefaultMaxPayload)
	if err != ErrLengthMismatch {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

func TestDecodeCRCMismatchOnBitFlip(t *testing.T) {
	b := Encode(Data, 0, 1, []byte("abcdef"))
	// flip a single bit in the payload
	b[HeaderSize] ^= 0x01
	_, err := Decode(b, DefaultMaxPayload)
	if err != ErrCRCMismatch {
		t.Fatalf("expected ErrCRCMismatch, got %v", err)
	}
}

func TestDecodeOversize(t *testing.T) {
	b := Encode(Data, 0, 1, make([]byte, 100))
	_, err := Decode(b, 50)
	if err != ErrOversize {
		t.Fatalf("expected ErrOversize, got %v", err)
	}
}

func TestDecodeUnknownTypeSucceeds(t *testing.T) {
	b := Encode(Type(0xEE), 0, 1, []byte("x"))
	f, err := Decode(b, DefaultMaxPayload)
	if err != nil {
		t.Fatalf("unexpected error decoding unknown type: %v", err)
	}
	if f.Type != Type(0xEE) {
		t.Fatalf("expected type preserved, got %v", f.Type)
	}
}

func TestCommandEncodeDecode(t *testing.T) {
	payload, err := EncodeCommand(CmdRead, []byte("f"))
	if err != nil {
		t.Fatalf("EncodeCommand error: %v", err)
	}
	cmd, fileID, err := DecodeCommand(payload)
	if err != nil {
		t.Fatalf("DecodeCommand error: %v", err)
	}
	if cmd != CmdRead || string(fileID) != "f" {
		t.Fatalf("unexpected command/fileID: %v %q", cmd, fileID)
	}
}

func TestCommandEmptyFileID(t *testing.T) {
	payload, err := EncodeCommand(CmdWrite, nil)
	if err != nil {
		t.Fatalf("EncodeCommand error: %v", err)
	}
	cmd, fileID, err := DecodeCommand(payload)
	if err != nil {
		t.Fatalf("DecodeCommand error: %v", err)
	}
	if cmd != CmdWrite || len(fileID) != 0 {
		t.Fatalf("unexpected command/fileID: %v %q", cmd, fileID)
	}
}

func TestCommandPayloadTooShort(t *testing.T) {
	if _, _, err := DecodeCommand([]byte{1}); err == nil {
		t.Fatalf("expected error for payload shorter than 2 bytes")
	}
}

func TestCommandInvalidFileIDLen(t *testing.T) {
	if _, _, err := DecodeCommand([]byte{CmdRead, 10, 'a'}); err == nil {
		t.Fatalf("expected error for file_id_len exceeding payload")
	}
}
