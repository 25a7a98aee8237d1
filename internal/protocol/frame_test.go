package protocol

import (
	"bytes"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := &HeartbeatRequest{Command: CmdHeartbeat, Address: "10.0.0.1:9000", UsedBytes: 1024}
	if err := WriteMessage(&buf, req); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	cmd, err := PeekCommand(buf.Bytes()[4:])
	if err != nil {
		t.Fatalf("PeekCommand: %v", err)
	}
	if cmd != CmdHeartbeat {
		t.Fatalf("expected command %q, got %q", CmdHeartbeat, cmd)
	}

	var got HeartbeatRequest
	if err := ReadMessage(&buf, &got); err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Address != req.Address || got.UsedBytes != req.UsedBytes {
		t.Fatalf("roundtrip mismatch: got %+v, want %+v", got, req)
	}
}

func TestReadFrame_ShortReadIsFramingError(t *testing.T) {
	// Declares 10 bytes but only supplies 3: a truncated frame.
	buf := bytes.NewBuffer([]byte{0, 0, 0, 10, 'a', 'b', 'c'})
	_, err := ReadFrame(buf)
	if err == nil {
		t.Fatal("expected a framing error on short read, got nil")
	}
	if !errorsIs(err, io.ErrUnexpectedEOF) && !errorsIs(err, io.EOF) {
		// Accept either wrapped sentinel; the important property is non-nil.
		t.Logf("framing error (ok, not the specific EOF sentinel): %v", err)
	}
}

func errorsIs(err, target error) bool {
	for err != nil {
		if err == target {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func TestWriteFrame_EmptyPayloadWritesHeaderOnly(t *testing.T) {
	// WriteFrame's size bound can't be reached without a 4 GiB payload,
	// so this checks the zero-length path: a bare 4-byte header.
	var buf bytes.Buffer
	if err := WriteFrame(&buf, nil); err != nil {
		t.Fatalf("zero-length frame should succeed: %v", err)
	}
	hdr := buf.Bytes()
	if len(hdr) != 4 {
		t.Fatalf("expected 4-byte header for empty frame, got %d bytes", len(hdr))
	}
}
