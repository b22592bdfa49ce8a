package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Response codes carried in Response.Code.
const (
	CodeOK           int32 = 200
	CodeBadRequest   int32 = 400
	CodeUnauthorized int32 = 401
	CodeRouteFailed  int32 = 503
)

var errWireType = errors.New("unexpected wire type")

// AuthenticateRequest binds a connection to the token subject.
type AuthenticateRequest struct {
	RequestID string // 1
	Token     string // 2
}

// UserRequest is the body of LOGIN and LOGOUT.
type UserRequest struct {
	RequestID string // 1
	UID       string // 2
	Device    string // 3
}

// ChatRequest is the body of SEND_MESSAGE and FETCH_MESSAGE.
type ChatRequest struct {
	RequestID   string // 1
	SenderUID   string // 2
	ReceiverUID string // 3
	Content     []byte // 4
	Timestamp   int64  // 5
}

// Response is the body shared by every response family. UID names the
// client the response must be delivered to.
type Response struct {
	RequestID string // 1
	UID       string // 2
	Code      int32  // 3
	Message   string // 4
	Data      []byte // 5
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// walk visits every field of a protobuf-encoded body. Unknown fields are skipped.
func walk(op string, b []byte, visit func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return &DecodeError{Op: op, Err: protowire.ParseError(n)}
		}
		b = b[n:]
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return &DecodeError{Op: op, Err: protowire.ParseError(m)}
		}
		if err := visit(num, typ, b[:m]); err != nil {
			return &DecodeError{Op: op, Err: fmt.Errorf("field %d: %w", num, err)}
		}
		b = b[m:]
	}
	return nil
}

func consumeString(typ protowire.Type, v []byte) (string, error) {
	if typ != protowire.BytesType {
		return "", errWireType
	}
	s, n := protowire.ConsumeString(v)
	if n < 0 {
		return "", protowire.ParseError(n)
	}
	return s, nil
}

func consumeBytes(typ protowire.Type, v []byte) ([]byte, error) {
	if typ != protowire.BytesType {
		return nil, errWireType
	}
	b, n := protowire.ConsumeBytes(v)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	return append([]byte(nil), b...), nil
}

func consumeVarint(typ protowire.Type, v []byte) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, errWireType
	}
	x, n := protowire.ConsumeVarint(v)
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return x, nil
}

// Marshal encodes the request body.
func (m AuthenticateRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.RequestID)
	b = appendString(b, 2, m.Token)
	return b
}

// UnmarshalAuthenticateRequest decodes an AUTHENTICATE body.
func UnmarshalAuthenticateRequest(body []byte) (AuthenticateRequest, error) {
	var m AuthenticateRequest
	err := walk("authenticate request", body, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		switch num {
		case 1:
			m.RequestID, err = consumeString(typ, v)
		case 2:
			m.Token, err = consumeString(typ, v)
		}
		return err
	})
	return m, err
}

// Marshal encodes the request body.
func (m UserRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.RequestID)
	b = appendString(b, 2, m.UID)
	b = appendString(b, 3, m.Device)
	return b
}

// UnmarshalUserRequest decodes a LOGIN or LOGOUT body.
func UnmarshalUserRequest(body []byte) (UserRequest, error) {
	var m UserRequest
	err := walk("user request", body, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		switch num {
		case 1:
			m.RequestID, err = consumeString(typ, v)
		case 2:
			m.UID, err = consumeString(typ, v)
		case 3:
			m.Device, err = consumeString(typ, v)
		}
		return err
	})
	return m, err
}

// Marshal encodes the request body.
func (m ChatRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.RequestID)
	b = appendString(b, 2, m.SenderUID)
	b = appendString(b, 3, m.ReceiverUID)
	b = appendBytes(b, 4, m.Content)
	b = appendVarint(b, 5, uint64(m.Timestamp))
	return b
}

// UnmarshalChatRequest decodes a SEND_MESSAGE or FETCH_MESSAGE body.
func UnmarshalChatRequest(body []byte) (ChatRequest, error) {
	var m ChatRequest
	err := walk("chat request", body, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		switch num {
		case 1:
			m.RequestID, err = consumeString(typ, v)
		case 2:
			m.SenderUID, err = consumeString(typ, v)
		case 3:
			m.ReceiverUID, err = consumeString(typ, v)
		case 4:
			m.Content, err = consumeBytes(typ, v)
		case 5:
			var x uint64
			x, err = consumeVarint(typ, v)
			m.Timestamp = int64(x)
		}
		return err
	})
	return m, err
}

// Marshal encodes the response body.
func (m Response) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.RequestID)
	b = appendString(b, 2, m.UID)
	b = appendVarint(b, 3, uint64(int64(m.Code)))
	b = appendString(b, 4, m.Message)
	b = appendBytes(b, 5, m.Data)
	return b
}

// UnmarshalResponse decodes a response body.
func UnmarshalResponse(body []byte) (Response, error) {
	var m Response
	err := walk("response", body, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		switch num {
		case 1:
			m.RequestID, err = consumeString(typ, v)
		case 2:
			m.UID, err = consumeString(typ, v)
		case 3:
			var x uint64
			x, err = consumeVarint(typ, v)
			m.Code = int32(x)
		case 4:
			m.Message, err = consumeString(typ, v)
		case 5:
			m.Data, err = consumeBytes(typ, v)
		}
		return err
	})
	return m, err
}

// ResponseUID extracts only the target uid (field 2) from a response body.
func ResponseUID(body []byte) (string, error) {
	var uid string
	err := walk("response uid", body, func(num protowire.Number, typ protowire.Type, v []byte) (err error) {
		if num == 2 {
			uid, err = consumeString(typ, v)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	if uid == "" {
		return "", &DecodeError{Op: "response uid", Err: errors.New("missing uid")}
	}
	return uid, nil
}
