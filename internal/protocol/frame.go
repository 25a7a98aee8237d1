package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// MaxFrameSize is the wire-format ceiling from spec.md §6: length is an
// unsigned 32-bit big-endian integer, so payloads above 4 GiB are
// rejected outright rather than attempted.
const MaxFrameSize = 1<<32 - 1

// WriteFrame writes a length-prefixed frame: 4 bytes big-endian length
// followed by payload. One call maps to one Write per frame; callers
// needing bounded per-write chunking (spec §5: "writers stream in 4 KiB
// increments") should do so below this layer, against the raw net.Conn,
// since length-prefixing requires the full size up front.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > MaxFrameSize {
		return fmt.Errorf("protocol: frame of %d bytes exceeds max %d", len(payload), MaxFrameSize)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("protocol: write frame header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("protocol: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame. An EOF before the declared
// length is fully consumed is reported as a framing error, per spec §6.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("protocol: read frame header: %w", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return nil, nil
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("protocol: short frame, wanted %d bytes: %w", n, err)
	}
	return payload, nil
}

// Encode marshals v to the wire payload codec (msgpack: a schema'd binary
// format, replacing the reference implementation's unsafe pickle per
// spec §9).
func Encode(v interface{}) ([]byte, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode: %w", err)
	}
	return b, nil
}

// Decode unmarshals payload into v.
func Decode(payload []byte, v interface{}) error {
	if err := msgpack.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("protocol: decode: %w", err)
	}
	return nil
}

// WriteMessage encodes v and writes it as one frame.
func WriteMessage(w io.Writer, v interface{}) error {
	payload, err := Encode(v)
	if err != nil {
		return err
	}
	return WriteFrame(w, payload)
}

// ReadMessage reads one frame and decodes it into v.
func ReadMessage(r io.Reader, v interface{}) error {
	payload, err := ReadFrame(r)
	if err != nil {
		return err
	}
	return Decode(payload, v)
}

// PeekCommand decodes only the Command field out of a raw frame payload,
// so a dispatcher can pick the concrete request type before the full
// decode. Cheap: msgpack decoding into a narrow struct ignores unknown
// fields.
func PeekCommand(payload []byte) (string, error) {
	var env struct {
		Command string `msgpack:"command"`
	}
	if err := Decode(payload, &env); err != nil {
		return "", err
	}
	return env.Command, nil
}
