// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package history

import (
	"github.com/ergochat/irc-go/ircfmt"
	"github.com/ergochat/irc-go/ircmsg"

	"github.com/ergochat/bouncer/irc/canon"
	"github.com/ergochat/bouncer/irc/logger"
)

// Sink records everything the origin sends into a Buffer. It never
// produces messages of its own.
type Sink struct {
	buffer *Buffer
	logger *logger.Manager
}

func NewSink(size int, logger *logger.Manager) *Sink {
	return &Sink{
		buffer: NewHistoryBuffer(size),
		logger: logger,
	}
}

// Buffer exposes the recorded history for inspection.
func (s *Sink) Buffer() *Buffer {
	return s.buffer
}

// Messages returns nil: the history recorder has nothing to say.
func (s *Sink) Messages() <-chan canon.Message {
	return nil
}

// Broadcast records the message; it cannot fail.
func (s *Sink) Broadcast(message canon.Message) error {
	item := Item{
		Type:    message.Type,
		Nick:    nickFromSender(message.Sender),
		Channel: message.Channel,
	}
	switch message.Type {
	case canon.Chat:
		item.Message = ircfmt.Strip(message.Content)
	case canon.UsersList:
		item.Users = len(message.Users)
	}
	s.buffer.Add(item)
	if s.logger != nil {
		s.logger.Debug("history", "recorded", message.String())
	}
	return nil
}

// nickFromSender reduces a nick!user@host prefix to the nick.
func nickFromSender(sender string) string {
	if sender == "" {
		return ""
	}
	nuh, err := ircmsg.ParseNUH(sender)
	if err != nil || nuh.Name == "" {
		return sender
	}
	return nuh.Name
}
