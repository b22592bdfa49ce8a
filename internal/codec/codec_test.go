package codec

import (
	"errors"
	"testing"

	"github.com/a783925458/phantom-acceptor/internal/protocol"
)

func TestUserCodec_Decode(t *testing.T) {
	env := protocol.NewEnvelope(protocol.KindRequest, protocol.RequestTypeLogin,
		protocol.UserRequest{RequestID: "r1", UID: "alice", Device: "ios"}.Marshal())

	var c UserCodec
	msg, err := c.Decode(env)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Type != protocol.RequestTypeLogin || msg.UID != "alice" || msg.Device != "ios" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if got := c.RecipientOf(msg); got != "alice" {
		t.Errorf("RecipientOf = %q, want alice", got)
	}
}

func TestUserCodec_DecodeRejectsMissingUID(t *testing.T) {
	env := protocol.NewEnvelope(protocol.KindRequest, protocol.RequestTypeLogout,
		protocol.UserRequest{RequestID: "r1"}.Marshal())

	_, err := UserCodec{}.Decode(env)
	var de *protocol.DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("Decode error = %v, want DecodeError", err)
	}
}

func TestChatCodec_Decode(t *testing.T) {
	req := protocol.ChatRequest{
		RequestID:   "r7",
		SenderUID:   "alice",
		ReceiverUID: "bob",
		Content:     []byte("hi"),
		Timestamp:   1700000000,
	}
	env := protocol.NewEnvelope(protocol.KindRequest, protocol.RequestTypeSendMessage, req.Marshal())

	var c ChatCodec
	msg, err := c.Decode(env)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := c.RecipientOf(msg); got != "bob" {
		t.Errorf("RecipientOf = %q, want bob", got)
	}
	if string(msg.Content) != "hi" || msg.Timestamp != 1700000000 {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestChatCodec_DecodeErrors(t *testing.T) {
	cases := []struct {
		name string
		body []byte
	}{
		{"garbage", []byte{0xff, 0xff, 0xff}},
		{"no sender", protocol.ChatRequest{ReceiverUID: "bob"}.Marshal()},
		{"no receiver", protocol.ChatRequest{SenderUID: "alice"}.Marshal()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := protocol.NewEnvelope(protocol.KindRequest, protocol.RequestTypeSendMessage, tc.body)
			_, err := ChatCodec{}.Decode(env)
			var de *protocol.DecodeError
			if !errors.As(err, &de) {
				t.Errorf("Decode error = %v, want DecodeError", err)
			}
		})
	}
}

func TestErrorResponseFor(t *testing.T) {
	msg := ChatMessage{
		Type:        protocol.RequestTypeFetchMessage,
		ChatRequest: protocol.ChatRequest{RequestID: "r9", SenderUID: "alice", ReceiverUID: "bob"},
	}
	env := ChatCodec{}.ErrorResponseFor(msg)

	if env.Kind() != protocol.KindResponse {
		t.Errorf("kind = %v, want RESPONSE", env.Kind())
	}
	if env.RequestType() != protocol.RequestTypeFetchMessage {
		t.Errorf("type = %v, want FETCH_MESSAGE", env.RequestType())
	}
	resp, err := protocol.UnmarshalResponse(env.Body())
	if err != nil {
		t.Fatalf("UnmarshalResponse failed: %v", err)
	}
	if resp.RequestID != "r9" || resp.UID != "alice" || resp.Code != protocol.CodeRouteFailed {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestUserCodec_ErrorResponseFor(t *testing.T) {
	msg := UserMessage{
		Type:        protocol.RequestTypeLogin,
		UserRequest: protocol.UserRequest{RequestID: "login-1", UID: "alice"},
	}
	var c UserCodec
	env := c.ErrorResponseFor(msg)

	if env.Kind() != protocol.KindResponse || env.RequestType() != protocol.RequestTypeLogin {
		t.Errorf("envelope = %v/%v, want RESPONSE/LOGIN", env.Kind(), env.RequestType())
	}
	resp, err := protocol.UnmarshalResponse(env.Body())
	if err != nil {
		t.Fatalf("UnmarshalResponse failed: %v", err)
	}
	if resp.RequestID != "login-1" || resp.UID != "alice" || resp.Code != protocol.CodeRouteFailed {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestResponseTargetOf(t *testing.T) {
	env := protocol.NewEnvelope(protocol.KindResponse, protocol.RequestTypeLogin,
		protocol.Response{RequestID: "r1", UID: "carol", Code: protocol.CodeOK}.Marshal())

	uid, err := UserCodec{}.ResponseTargetOf(env)
	if err != nil || uid != "carol" {
		t.Errorf("ResponseTargetOf = %q, %v; want carol", uid, err)
	}

	empty := protocol.NewEnvelope(protocol.KindResponse, protocol.RequestTypeLogin, nil)
	if _, err := (ChatCodec{}).ResponseTargetOf(empty); err == nil {
		t.Error("expected error for response without uid")
	}
}
