// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

// Package canon holds the protocol-agnostic messages exchanged between the
// origin session and the sinks.
package canon

import (
	"encoding/json"
	"fmt"
)

// Type distinguishes the kinds of canonical message.
type Type uint

const (
	uninitializedMessage Type = iota
	// Chat is a channel message, flowing in either direction.
	Chat
	// JoinedChannel notifies sinks that someone joined a channel.
	JoinedChannel
	// JoinChannel asks the origin to join a channel.
	JoinChannel
	// UsersList is the complete membership of a channel, one per NAMES cycle.
	UsersList
)

var typeNames = map[Type]string{
	Chat:          "Chat",
	JoinedChannel: "JoinedChannel",
	JoinChannel:   "JoinChannel",
	UsersList:     "UsersList",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint(t))
}

func (t Type) MarshalText() ([]byte, error) {
	name, ok := typeNames[t]
	if !ok {
		return nil, fmt.Errorf("invalid message type %d", uint(t))
	}
	return []byte(name), nil
}

func (t *Type) UnmarshalText(text []byte) error {
	for typ, name := range typeNames {
		if name == string(text) {
			*t = typ
			return nil
		}
	}
	return fmt.Errorf("unknown message type %q", text)
}

// Message is a canonical message. Which fields are meaningful depends on Type:
//
//	Chat:          Sender, Channel, Content
//	JoinedChannel: Sender, Channel
//	JoinChannel:   Channel
//	UsersList:     Channel, Users
type Message struct {
	Type    Type     `json:"type"`
	Sender  string   `json:"sender,omitempty"`
	Channel string   `json:"channel"`
	Content string   `json:"content,omitempty"`
	Users   []string `json:"users,omitempty"`
}

func NewChat(sender, channel, content string) Message {
	return Message{Type: Chat, Sender: sender, Channel: channel, Content: content}
}

func NewJoinedChannel(sender, channel string) Message {
	return Message{Type: JoinedChannel, Sender: sender, Channel: channel}
}

func NewJoinChannel(channel string) Message {
	return Message{Type: JoinChannel, Channel: channel}
}

// NewUsersList copies users, so the caller may reuse its slice.
func NewUsersList(channel string, users []string) Message {
	result := make([]string, len(users))
	copy(result, users)
	return Message{Type: UsersList, Channel: channel, Users: result}
}

func (m Message) String() string {
	switch m.Type {
	case Chat:
		return fmt.Sprintf("Chat{%s -> %s: %q}", m.Sender, m.Channel, m.Content)
	case JoinedChannel:
		return fmt.Sprintf("JoinedChannel{%s -> %s}", m.Sender, m.Channel)
	case JoinChannel:
		return fmt.Sprintf("JoinChannel{%s}", m.Channel)
	case UsersList:
		return fmt.Sprintf("UsersList{%s: %d users}", m.Channel, len(m.Users))
	default:
		return m.Type.String()
	}
}

// Validate checks that the message is well-formed for its type.
func (m Message) Validate() error {
	if _, ok := typeNames[m.Type]; !ok {
		return fmt.Errorf("invalid message type %d", uint(m.Type))
	}
	if m.Channel == "" {
		return fmt.Errorf("%s message has no channel", m.Type)
	}
	return nil
}

// Decode parses the JSON form of a message, e.g. as received by the API.
func Decode(data []byte) (m Message, err error) {
	if err = json.Unmarshal(data, &m); err != nil {
		return
	}
	err = m.Validate()
	return
}
