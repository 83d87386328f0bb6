package session

import (
	"bytes"
	"encoding/binary"
	"log"
	"os"
	"strings"
	"testing"
)

func encodeImageRequest(rows, cols int, data []byte) []byte {
	buf := &bytes.Buffer{}
	buf.WriteByte(FunctionImage)
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(data)))
	buf.Write(sizeBuf[:])
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(rows))
	buf.Write(sizeBuf[:])
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(cols))
	buf.Write(sizeBuf[:])
	buf.Write(data)
	return buf.Bytes()
}

func TestReadRequestImage(t *testing.T) {
	data := make([]byte, 2*3*3)
	raw := encodeImageRequest(2, 3, data)

	fn, img, cfg, err := ReadRequest(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fn != FunctionImage {
		t.Fatalf("expected image function id, got 0x%02x", fn)
	}
	if cfg != nil {
		t.Fatal("expected no config request")
	}
	if img.Rows != 2 || img.Cols != 3 || len(img.Data) != len(data) {
		t.Fatalf("unexpected image request: %+v", img)
	}
}

func TestReadRequestRejectsFrameSizeMismatch(t *testing.T) {
	raw := encodeImageRequest(2, 3, make([]byte, 5)) // should be 18 bytes

	_, _, _, err := ReadRequest(bytes.NewReader(raw))
	if err != ErrFrameMismatch {
		t.Fatalf("expected ErrFrameMismatch, got %v", err)
	}
}

func TestReadRequestShortReadIsTerminal(t *testing.T) {
	raw := encodeImageRequest(2, 3, make([]byte, 18))
	truncated := raw[:len(raw)-5]

	_, _, _, err := ReadRequest(bytes.NewReader(truncated))
	if err == nil {
		t.Fatal("expected an error on truncated pixel data")
	}
}

func TestReadRequestConfig(t *testing.T) {
	payload := []byte(`{"action":"set","variable":"overwrite_text","value":"hold still"}`)
	buf := &bytes.Buffer{}
	buf.WriteByte(FunctionConfig)
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(payload)))
	buf.Write(sizeBuf[:])
	buf.Write(payload)

	fn, img, cfg, err := ReadRequest(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fn != FunctionConfig || img != nil {
		t.Fatal("expected a config-only request")
	}
	if cfg == nil || cfg.Variable != "overwrite_text" || cfg.Value != "hold still" {
		t.Fatalf("unexpected config request: %+v", cfg)
	}
}

func TestReadRequestMalformedConfigIsIgnoredNotTerminal(t *testing.T) {
	payload := []byte(`{not valid json`)
	buf := &bytes.Buffer{}
	buf.WriteByte(FunctionConfig)
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(payload)))
	buf.Write(sizeBuf[:])
	buf.Write(payload)

	var logBuf bytes.Buffer
	log.SetOutput(&logBuf)
	defer log.SetOutput(os.Stderr)

	fn, _, cfg, err := ReadRequest(buf)
	if err != nil {
		t.Fatalf("malformed JSON must not be a terminal error, got %v", err)
	}
	if fn != FunctionConfig || cfg != nil {
		t.Fatalf("expected nil config on malformed JSON, got %+v", cfg)
	}
	if !strings.Contains(logBuf.String(), "malformed config payload") {
		t.Fatalf("expected a malformed-config log line, got %q", logBuf.String())
	}
}

func TestReadRequestUnknownFunctionID(t *testing.T) {
	_, _, _, err := ReadRequest(bytes.NewReader([]byte{0x99}))
	if err == nil {
		t.Fatal("expected an error for an unknown function id")
	}
}

func TestWriteEventAndFrameOmitsEmptyEvent(t *testing.T) {
	buf := &bytes.Buffer{}
	frame := []byte{1, 2, 3, 4, 5, 6}
	if err := WriteEventAndFrame(buf, Event{}, 1, 2, frame); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.Bytes()
	if out[0] != FunctionImage {
		t.Fatalf("expected the frame to be the only sub-message, got leading byte 0x%02x", out[0])
	}
}

func TestWriteEventAndFrameIncludesNonEmptyEvent(t *testing.T) {
	buf := &bytes.Buffer{}
	alive := true
	frame := []byte{1, 2, 3}
	if err := WriteEventAndFrame(buf, Event{TakeAPicture: true, ReportAlive: &alive}, 1, 1, frame); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.Bytes()
	if out[0] != FunctionConfig {
		t.Fatalf("expected event sub-message first, got leading byte 0x%02x", out[0])
	}

	eventLen := binary.BigEndian.Uint32(out[1:5])
	frameIDOffset := 5 + int(eventLen)
	if out[frameIDOffset] != FunctionImage {
		t.Fatalf("expected the frame sub-message to follow the event, got 0x%02x", out[frameIDOffset])
	}
}
