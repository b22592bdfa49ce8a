// Package codec implements the message families routed by the acceptor.
package codec

import (
	"errors"

	"github.com/a783925458/phantom-acceptor/internal/protocol"
)

// Family names, used as log and metric labels.
const (
	FamilyUser = "user"
	FamilyChat = "chat"
)

// UserMessage is a decoded LOGIN or LOGOUT request.
type UserMessage struct {
	Type protocol.RequestType
	protocol.UserRequest
}

// UserCodec handles LOGIN and LOGOUT. Requests are routed to the
// dispatcher owning the uid being logged in or out.
type UserCodec struct{}

func (UserCodec) Decode(env protocol.Envelope) (UserMessage, error) {
	req, err := protocol.UnmarshalUserRequest(env.Body())
	if err != nil {
		return UserMessage{}, err
	}
	if req.UID == "" {
		return UserMessage{}, missing("user request", "uid")
	}
	return UserMessage{Type: env.RequestType(), UserRequest: req}, nil
}

func (UserCodec) RecipientOf(m UserMessage) string { return m.UID }

func (UserCodec) ResponseTargetOf(env protocol.Envelope) (string, error) {
	return protocol.ResponseUID(env.Body())
}

func (UserCodec) ErrorResponseFor(m UserMessage) protocol.Envelope {
	return routeFailed(m.Type, m.RequestID, m.UID)
}

// ChatMessage is a decoded SEND_MESSAGE or FETCH_MESSAGE request.
type ChatMessage struct {
	Type protocol.RequestType
	protocol.ChatRequest
}

// ChatCodec handles SEND_MESSAGE and FETCH_MESSAGE. Requests are routed to
// the dispatcher owning the receiver.
type ChatCodec struct{}

func (ChatCodec) Decode(env protocol.Envelope) (ChatMessage, error) {
	req, err := protocol.UnmarshalChatRequest(env.Body())
	if err != nil {
		return ChatMessage{}, err
	}
	switch {
	case req.SenderUID == "":
		return ChatMessage{}, missing("chat request", "sender uid")
	case req.ReceiverUID == "":
		return ChatMessage{}, missing("chat request", "receiver uid")
	}
	return ChatMessage{Type: env.RequestType(), ChatRequest: req}, nil
}

func (ChatCodec) RecipientOf(m ChatMessage) string { return m.ReceiverUID }

func (ChatCodec) ResponseTargetOf(env protocol.Envelope) (string, error) {
	return protocol.ResponseUID(env.Body())
}

func (ChatCodec) ErrorResponseFor(m ChatMessage) protocol.Envelope {
	return routeFailed(m.Type, m.RequestID, m.SenderUID)
}

// Reply builds a response envelope of type t addressed to uid.
func Reply(t protocol.RequestType, requestID, uid string, code int32, message string) protocol.Envelope {
	body := protocol.Response{
		RequestID: requestID,
		UID:       uid,
		Code:      code,
		Message:   message,
	}.Marshal()
	return protocol.NewEnvelope(protocol.KindResponse, t, body)
}

func routeFailed(t protocol.RequestType, requestID, uid string) protocol.Envelope {
	return Reply(t, requestID, uid, protocol.CodeRouteFailed, "route failed")
}

func missing(op, field string) error {
	return &protocol.DecodeError{Op: op, Err: errors.New("missing " + field)}
}
