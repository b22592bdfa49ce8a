package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrFrameTooLarge is returned when a frame body exceeds the configured limit.
var ErrFrameTooLarge = errors.New("frame too large")

type header struct {
	kind        Kind
	requestType RequestType
	bodyLen     uint32
}

func parseHeader(b []byte) (header, error) {
	if len(b) < HeaderSize {
		return header{}, &DecodeError{Op: "header", Err: io.ErrUnexpectedEOF}
	}
	if magic := binary.BigEndian.Uint16(b[0:2]); magic != Magic {
		return header{}, &DecodeError{Op: "header", Err: fmt.Errorf("bad magic 0x%04x", magic)}
	}
	if v := b[2]; v != Version {
		return header{}, &DecodeError{Op: "header", Err: fmt.Errorf("unsupported version %d", v)}
	}
	return header{
		kind:        kindFromWire(b[3]),
		requestType: RequestType(binary.BigEndian.Uint16(b[4:6])),
		bodyLen:     binary.BigEndian.Uint32(b[6:10]),
	}, nil
}

// ReadEnvelope reads exactly one frame from r. A clean close before the
// first header byte returns io.EOF.
func ReadEnvelope(r io.Reader, maxBody int) (Envelope, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Envelope{}, err
	}
	h, err := parseHeader(hdr[:])
	if err != nil {
		return Envelope{}, err
	}
	if maxBody > 0 && int(h.bodyLen) > maxBody {
		return Envelope{}, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, h.bodyLen, maxBody)
	}

	payload := make([]byte, HeaderSize+int(h.bodyLen))
	copy(payload, hdr[:])
	if _, err := io.ReadFull(r, payload[HeaderSize:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return Envelope{}, err
	}

	return Envelope{kind: h.kind, requestType: h.requestType, payload: payload}, nil
}

// ParseEnvelope decodes a frame delivered as a single message (websocket,
// dispatcher stream). The slice is retained, not copied.
func ParseEnvelope(frame []byte, maxBody int) (Envelope, error) {
	h, err := parseHeader(frame)
	if err != nil {
		return Envelope{}, err
	}
	if maxBody > 0 && int(h.bodyLen) > maxBody {
		return Envelope{}, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, h.bodyLen, maxBody)
	}
	if len(frame)-HeaderSize != int(h.bodyLen) {
		return Envelope{}, &DecodeError{
			Op:  "frame",
			Err: fmt.Errorf("body length %d, header says %d", len(frame)-HeaderSize, h.bodyLen),
		}
	}
	return Envelope{kind: h.kind, requestType: h.requestType, payload: frame}, nil
}

// WriteEnvelope writes the raw frame to w.
func WriteEnvelope(w io.Writer, env Envelope) error {
	_, err := w.Write(env.Payload())
	return err
}
