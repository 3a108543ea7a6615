package types

import (
	"encoding/json"
	"errors"

	"github.com/lightforgemedia/go-maxclient/pkg/protocol"
)

var errMissingMessage = errors.New("payload has no message object")

// DecodeMessage decodes a NOTIF_MESSAGE payload: {"chatId": .., "message": {..}}.
// The chat id from the envelope wins over one inside the message object.
func DecodeMessage(payload json.RawMessage) (*Message, error) {
	var env struct {
		ChatID  int64           `json:"chatId"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &protocol.ParseError{Op: "decode message", Err: err}
	}
	if len(env.Message) == 0 || string(env.Message) == "null" {
		return nil, &protocol.ParseError{Op: "decode message", Err: errMissingMessage}
	}
	var msg Message
	if err := json.Unmarshal(env.Message, &msg); err != nil {
		return nil, &protocol.ParseError{Op: "decode message", Err: err}
	}
	if env.ChatID != 0 {
		msg.ChatID = env.ChatID
	}
	return &msg, nil
}

// DecodeChat decodes a single chat object.
func DecodeChat(raw json.RawMessage) (*Chat, error) {
	var c Chat
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, &protocol.ParseError{Op: "decode chat", Err: err}
	}
	return &c, nil
}

// DecodeUser decodes a single user object.
func DecodeUser(raw json.RawMessage) (*User, error) {
	var u User
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, &protocol.ParseError{Op: "decode user", Err: err}
	}
	return &u, nil
}

// ReactionUpdate is the payload of NOTIF_MSG_REACTIONS_CHANGED.
type ReactionUpdate struct {
	ChatID    int64
	MessageID ID
	Info      ReactionInfo
}

// DecodeReactionUpdate decodes a reaction-change notification. Both the chat
// id and the message id are required.
func DecodeReactionUpdate(payload json.RawMessage) (*ReactionUpdate, error) {
	var p struct {
		ChatID    int64 `json:"chatId"`
		MessageID ID    `json:"messageId"`
		ReactionInfo
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, &protocol.ParseError{Op: "decode reactions", Err: err}
	}
	if p.ChatID == 0 || p.MessageID == "" {
		return nil, &protocol.ParseError{Op: "decode reactions", Err: errors.New("missing chatId or messageId")}
	}
	return &ReactionUpdate{ChatID: p.ChatID, MessageID: p.MessageID, Info: p.ReactionInfo}, nil
}
