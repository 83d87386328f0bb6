// Package session implements the length-prefixed local-socket protocol
// described for the liveness server: one connection at a time, a
// one-byte function_id per request, and up to two framed sub-messages
// per reply (an optional event blob followed by the annotated frame).
package session

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
)

// Function identifiers, shared by request and response framing.
const (
	FunctionImage  byte = 0x01
	FunctionConfig byte = 0x02
)

// ErrFrameMismatch reports that the declared frame size is inconsistent
// with the declared rows/cols for a 3-channel 8-bit image.
var ErrFrameMismatch = errors.New("session: frame size does not match rows*cols*3")

// ImageRequest is one decoded 0x01 request: a raw BGR24 frame.
type ImageRequest struct {
	Rows int
	Cols int
	Data []byte
}

// ConfigRequest is one decoded 0x02 request payload.
type ConfigRequest struct {
	Action   string `json:"action"`
	Variable string `json:"variable"`
	Value    string `json:"value"`
}

// Event is the accumulator reported alongside an image reply.
type Event struct {
	TakeAPicture bool  `json:"takeAPicture,omitempty"`
	ReportAlive  *bool `json:"reportAlive,omitempty"`
}

// IsEmpty reports whether the event carries nothing worth sending.
func (e Event) IsEmpty() bool {
	return !e.TakeAPicture && e.ReportAlive == nil
}

// ReadRequest reads one client request: the function_id byte and, for
// 0x01, the frame header and pixel payload; for 0x02, the JSON command.
// Any I/O or framing error is terminal for the connection, matching the
// reference server's behavior.
func ReadRequest(r io.Reader) (functionID byte, image *ImageRequest, config *ConfigRequest, err error) {
	var idBuf [1]byte
	if _, err = io.ReadFull(r, idBuf[:]); err != nil {
		return 0, nil, nil, fmt.Errorf("reading function id: %w", err)
	}
	functionID = idBuf[0]

	switch functionID {
	case FunctionImage:
		image, err = readImageRequest(r)
		return functionID, image, nil, err
	case FunctionConfig:
		config, err = readConfigRequest(r)
		return functionID, nil, config, err
	default:
		return functionID, nil, nil, fmt.Errorf("session: unknown function id 0x%02x", functionID)
	}
}

func readImageRequest(r io.Reader) (*ImageRequest, error) {
	frameSize, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("reading frame size: %w", err)
	}
	rows, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("reading rows: %w", err)
	}
	cols, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("reading cols: %w", err)
	}
	if uint64(frameSize) != uint64(rows)*uint64(cols)*3 {
		return nil, ErrFrameMismatch
	}

	data := make([]byte, frameSize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("reading pixel data: %w", err)
	}

	return &ImageRequest{Rows: int(rows), Cols: int(cols), Data: data}, nil
}

func readConfigRequest(r io.Reader) (*ConfigRequest, error) {
	length, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("reading config length: %w", err)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("reading config payload: %w", err)
	}

	var cfg ConfigRequest
	if err := json.Unmarshal(payload, &cfg); err != nil {
		log.Printf("session: malformed config payload: %v", err)
		return nil, nil // logged above; ignored by the caller, not terminal
	}
	return &cfg, nil
}

// WriteEventAndFrame writes the optional event sub-message (only if
// non-empty) followed by the always-present annotated frame.
func WriteEventAndFrame(w io.Writer, event Event, rows, cols int, frameData []byte) error {
	if !event.IsEmpty() {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshaling event: %w", err)
		}
		if err := writeByte(w, FunctionConfig); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(payload))); err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("writing event payload: %w", err)
		}
	}

	if err := writeByte(w, FunctionImage); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(frameData))); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(rows)); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(cols)); err != nil {
		return err
	}
	if _, err := w.Write(frameData); err != nil {
		return fmt.Errorf("writing frame data: %w", err)
	}
	return nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}
