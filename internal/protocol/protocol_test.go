package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestReadEnvelope(t *testing.T) {
	body := ChatRequest{RequestID: "r1", SenderUID: "alice", ReceiverUID: "bob", Content: []byte("hi")}.Marshal()
	want := NewEnvelope(KindRequest, RequestTypeSendMessage, body)

	var stream bytes.Buffer
	stream.Write(want.Payload())
	stream.Write(NewEnvelope(KindResponse, RequestTypeLogin, nil).Payload())

	got, err := ReadEnvelope(&stream, 1024)
	if err != nil {
		t.Fatalf("ReadEnvelope failed: %v", err)
	}
	if got.Kind() != KindRequest {
		t.Errorf("Kind = %v, want request", got.Kind())
	}
	if got.RequestType() != RequestTypeSendMessage {
		t.Errorf("RequestType = %v, want SEND_MESSAGE", got.RequestType())
	}
	if !bytes.Equal(got.Payload(), want.Payload()) {
		t.Error("payload differs from encoded frame")
	}
	if !bytes.Equal(got.Body(), body) {
		t.Error("body differs from encoded body")
	}

	second, err := ReadEnvelope(&stream, 1024)
	if err != nil {
		t.Fatalf("second ReadEnvelope failed: %v", err)
	}
	if second.Kind() != KindResponse || len(second.Body()) != 0 {
		t.Errorf("second frame = %v/%d bytes, want empty response", second.Kind(), len(second.Body()))
	}

	if _, err := ReadEnvelope(&stream, 1024); err != io.EOF {
		t.Errorf("ReadEnvelope at end = %v, want io.EOF", err)
	}
}

func TestReadEnvelope_Errors(t *testing.T) {
	valid := NewEnvelope(KindRequest, RequestTypeLogin, []byte{1, 2, 3, 4}).Payload()

	badMagic := append([]byte(nil), valid...)
	badMagic[0] = 0xFF

	badVersion := append([]byte(nil), valid...)
	badVersion[2] = 9

	tests := []struct {
		name       string
		data       []byte
		maxBody    int
		wantDecode bool
		wantErr    error
	}{
		{name: "bad magic", data: badMagic, maxBody: 1024, wantDecode: true},
		{name: "bad version", data: badVersion, maxBody: 1024, wantDecode: true},
		{name: "too large", data: valid, maxBody: 2, wantErr: ErrFrameTooLarge},
		{name: "truncated body", data: valid[:len(valid)-1], maxBody: 1024, wantErr: io.ErrUnexpectedEOF},
		{name: "truncated header", data: valid[:4], maxBody: 1024, wantErr: io.ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadEnvelope(bytes.NewReader(tt.data), tt.maxBody)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var de *DecodeError
			if tt.wantDecode && !errors.As(err, &de) {
				t.Errorf("error = %v, want *DecodeError", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseEnvelope(t *testing.T) {
	frame := NewEnvelope(KindResponse, RequestTypeNotify, []byte("abc")).Payload()

	env, err := ParseEnvelope(frame, 0)
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}
	if env.Kind() != KindResponse || env.RequestType() != RequestTypeNotify {
		t.Errorf("got %v/%v, want response/NOTIFY", env.Kind(), env.RequestType())
	}

	if _, err := ParseEnvelope(append(frame, 'x'), 0); err == nil {
		t.Error("expected error for trailing bytes")
	}
}

func TestUnknownKindIsOther(t *testing.T) {
	env := NewEnvelope(Kind(7), RequestTypeLogin, nil)
	if env.Kind() != KindOther {
		t.Errorf("Kind = %v, want other", env.Kind())
	}

	raw := NewEnvelope(KindRequest, RequestTypeLogin, nil).Payload()
	raw[3] = 42
	parsed, err := ParseEnvelope(raw, 0)
	if err != nil {
		t.Fatalf("ParseEnvelope failed: %v", err)
	}
	if parsed.Kind() != KindOther {
		t.Errorf("parsed Kind = %v, want other", parsed.Kind())
	}
}

func TestUnmarshalChatRequest(t *testing.T) {
	in := ChatRequest{
		RequestID:   "req-1",
		SenderUID:   "alice",
		ReceiverUID: "bob",
		Content:     []byte("hello"),
		Timestamp:   1705328200,
	}
	body := in.Marshal()
	// unknown field 9 must be skipped
	body = protowire.AppendTag(body, 9, protowire.VarintType)
	body = protowire.AppendVarint(body, 77)

	out, err := UnmarshalChatRequest(body)
	if err != nil {
		t.Fatalf("UnmarshalChatRequest failed: %v", err)
	}
	if out.RequestID != in.RequestID || out.SenderUID != in.SenderUID || out.ReceiverUID != in.ReceiverUID {
		t.Errorf("got %+v, want %+v", out, in)
	}
	if !bytes.Equal(out.Content, in.Content) || out.Timestamp != in.Timestamp {
		t.Errorf("content/timestamp = %q/%d, want %q/%d", out.Content, out.Timestamp, in.Content, in.Timestamp)
	}
}

func TestUnmarshal_Malformed(t *testing.T) {
	wrongType := protowire.AppendTag(nil, 2, protowire.VarintType)
	wrongType = protowire.AppendVarint(wrongType, 1)

	truncated := protowire.AppendTag(nil, 2, protowire.BytesType)
	truncated = append(truncated, 10, 'a')

	for name, body := range map[string][]byte{
		"wrong wire type": wrongType,
		"truncated":       truncated,
		"garbage":         {0xFF, 0xFF, 0xFF},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalUserRequest(body)
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Errorf("error = %v, want *DecodeError", err)
			}
		})
	}
}

func TestResponseUID(t *testing.T) {
	body := Response{RequestID: "r", UID: "carol", Code: CodeOK}.Marshal()
	uid, err := ResponseUID(body)
	if err != nil {
		t.Fatalf("ResponseUID failed: %v", err)
	}
	if uid != "carol" {
		t.Errorf("uid = %q, want carol", uid)
	}

	if _, err := ResponseUID(Response{Code: CodeOK}.Marshal()); err == nil {
		t.Error("expected error for missing uid")
	}
}

func TestRequestTypeString(t *testing.T) {
	if got := RequestTypeLogin.String(); got != "LOGIN" {
		t.Errorf("String() = %q, want LOGIN", got)
	}
	if got := RequestType(999).String(); got != "UNKNOWN(999)" {
		t.Errorf("String() = %q, want UNKNOWN(999)", got)
	}
}
