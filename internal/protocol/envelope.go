package protocol

import (
	"encoding/binary"
	"fmt"
)

// Frame header layout (big-endian):
//
//	magic(2) version(1) kind(1) requestType(2) bodyLen(4)
const (
	Magic      uint16 = 0x5048 // "PH"
	Version    uint8  = 1
	HeaderSize        = 10
)

// Kind classifies an envelope for routing.
type Kind uint8

const (
	KindOther    Kind = 0
	KindRequest  Kind = 1
	KindResponse Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResponse:
		return "response"
	default:
		return "other"
	}
}

// kindFromWire maps any unrecognized kind byte to KindOther.
func kindFromWire(b byte) Kind {
	switch Kind(b) {
	case KindRequest, KindResponse:
		return Kind(b)
	default:
		return KindOther
	}
}

// RequestType discriminates message families on the wire.
type RequestType uint16

const (
	RequestTypeAuthenticate RequestType = 1
	RequestTypeLogin        RequestType = 2
	RequestTypeLogout       RequestType = 3
	RequestTypeSendMessage  RequestType = 4
	RequestTypeFetchMessage RequestType = 5
	RequestTypeNotify       RequestType = 6
)

var requestTypeNames = map[RequestType]string{
	RequestTypeAuthenticate: "AUTHENTICATE",
	RequestTypeLogin:        "LOGIN",
	RequestTypeLogout:       "LOGOUT",
	RequestTypeSendMessage:  "SEND_MESSAGE",
	RequestTypeFetchMessage: "FETCH_MESSAGE",
	RequestTypeNotify:       "NOTIFY",
}

func (t RequestType) String() string {
	if name, ok := requestTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
}

// Envelope is one wire message. The payload is the complete encoded frame
// (header and body) and is never modified after construction.
type Envelope struct {
	kind        Kind
	requestType RequestType
	payload     []byte
}

// NewEnvelope encodes a frame around body.
func NewEnvelope(kind Kind, requestType RequestType, body []byte) Envelope {
	payload := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint16(payload[0:2], Magic)
	payload[2] = Version
	payload[3] = byte(kind)
	binary.BigEndian.PutUint16(payload[4:6], uint16(requestType))
	binary.BigEndian.PutUint32(payload[6:10], uint32(len(body)))
	copy(payload[HeaderSize:], body)
	return Envelope{
		kind:        kindFromWire(byte(kind)),
		requestType: requestType,
		payload:     payload,
	}
}

// Kind returns the routing kind.
func (e Envelope) Kind() Kind { return e.kind }

// RequestType returns the family discriminator.
func (e Envelope) RequestType() RequestType { return e.requestType }

// Payload returns the raw frame bytes. Callers must not modify them.
func (e Envelope) Payload() []byte { return e.payload }

// Body returns the frame body following the header.
func (e Envelope) Body() []byte {
	if len(e.payload) < HeaderSize {
		return nil
	}
	return e.payload[HeaderSize:]
}

// Len returns the encoded frame size.
func (e Envelope) Len() int { return len(e.payload) }
