// Package types decodes the domain entities carried in frame payloads.
// The session core only routes these; it never validates their contents.
package types

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ID is an identifier the server sends either as a JSON number or a string.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Int64 parses the id as a decimal integer.
func (id ID) Int64() (int64, bool) {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return n, err == nil
}

// MessageStatus is set on edited and removed messages; empty for new ones.
type MessageStatus string

const (
	StatusEdited  MessageStatus = "EDITED"
	StatusRemoved MessageStatus = "REMOVED"
)

// ChatType discriminates chat entries in the sync response.
type ChatType string

const (
	ChatDialog  ChatType = "DIALOG"
	ChatGroup   ChatType = "CHAT"
	ChatChannel ChatType = "CHANNEL"
)

// Name is one of a user's display names.
type Name struct {
	Name      string `json:"name"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Type      string `json:"type"`
}

// User is a contact or the session's own profile.
type User struct {
	ID          int64  `json:"id"`
	Names       []Name `json:"names"`
	Phone       int64  `json:"phone,omitempty"`
	Description string `json:"description,omitempty"`
	BaseURL     string `json:"baseUrl,omitempty"`
	UpdateTime  int64  `json:"updateTime,omitempty"`
}

// DisplayName returns the first name entry, or an empty string.
func (u *User) DisplayName() string {
	if len(u.Names) == 0 {
		return ""
	}
	if n := u.Names[0]; n.Name != "" {
		return n.Name
	}
	return u.Names[0].FirstName
}

// Chat is a dialog, group chat or channel.
type Chat struct {
	ID               int64            `json:"id"`
	Type             ChatType         `json:"type"`
	Status           string           `json:"status,omitempty"`
	Title            string           `json:"title,omitempty"`
	Owner            int64            `json:"owner,omitempty"`
	Participants     map[string]int64 `json:"participants,omitempty"`
	LastEventTime    int64            `json:"lastEventTime,omitempty"`
	ParticipantCount int              `json:"participantsCount,omitempty"`
	LastMessage      *Message         `json:"lastMessage,omitempty"`
}

// Message is a chat message as delivered by NOTIF_MESSAGE or history calls.
type Message struct {
	ChatID   int64         `json:"chatId,omitempty"`
	ID       ID            `json:"id"`
	Sender   int64         `json:"sender,omitempty"`
	Text     string        `json:"text"`
	Time     int64         `json:"time,omitempty"`
	Type     string        `json:"type,omitempty"`
	Status   MessageStatus `json:"status,omitempty"`
	Attaches Attaches      `json:"attaches,omitempty"`
}

// ReactionCounter is the count of one reaction on a message.
type ReactionCounter struct {
	Reaction string `json:"reaction"`
	Count    int    `json:"count"`
}

// ReactionInfo aggregates the reactions on a message.
type ReactionInfo struct {
	TotalCount   int               `json:"totalCount"`
	YourReaction string            `json:"yourReaction,omitempty"`
	Counters     []ReactionCounter `json:"counters"`
}
