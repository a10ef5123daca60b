// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

// Package wire implements the line-oriented IRC wire format used on both
// sides of the bouncer.
package wire

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
)

var (
	// ErrBadParam is returned by Line when a parameter cannot be represented:
	// only the final parameter may be empty, contain a space, or begin with ':'.
	ErrBadParam = errors.New("parameter cannot be represented on the wire")
	// ErrBadCommand is returned by Line for an empty command or one containing a space.
	ErrBadCommand = errors.New("command is empty or malformed")
	// ErrBadPrefix is returned by Line for a prefix containing a space.
	ErrBadPrefix = errors.New("prefix is malformed")
	// ErrBadChar is returned by Line when a field contains NUL, CR or LF.
	ErrBadChar = errors.New("line contains a forbidden character")

	crlf = "\r\n"
)

// ProtocolError is a malformed line, or a recognized command whose parameters
// are missing or unusable. It is always recoverable: the offending message is
// dropped and the connection carries on.
type ProtocolError struct {
	Line   string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s [%s]", e.Reason, e.Line)
}

// NewArityError reports a recognized command carrying too few parameters.
func NewArityError(msg Message, want int) *ProtocolError {
	line, _ := msg.Line()
	return &ProtocolError{
		Line:   strings.TrimSuffix(line, crlf),
		Reason: fmt.Sprintf("%s needs %d parameters, got %d", msg.Command, want, len(msg.Params)),
	}
}

// Message is one parsed IRC line.
type Message struct {
	Prefix  Prefix
	Command string
	Params  []string
}

// MakeMessage is a convenience constructor; pass a zero Prefix for none.
func MakeMessage(prefix Prefix, command string, params ...string) Message {
	return Message{
		Prefix:  prefix,
		Command: command,
		Params:  params,
	}
}

// Param returns the i'th parameter, or "" if there are not that many.
func (msg *Message) Param(i int) string {
	if i < len(msg.Params) {
		return msg.Params[i]
	}
	return ""
}

// String renders the message without its line terminator, for logging.
// Unrepresentable messages are rendered on a best-effort basis.
func (msg Message) String() string {
	line, err := msg.Line()
	if err != nil {
		return fmt.Sprintf("%s %q (%v)", msg.Command, msg.Params, err)
	}
	return strings.TrimSuffix(line, crlf)
}

// Parse parses one line (with or without its terminator) into a Message.
// Tags are accepted and discarded; the command is normalized to upper case.
func Parse(line string) (msg Message, err error) {
	parsed, err := ircmsg.ParseLine(line)
	if err != nil {
		return msg, &ProtocolError{Line: strings.TrimRight(line, crlf), Reason: err.Error()}
	}
	if parsed.Source != "" {
		msg.Prefix = ParsePrefix(parsed.Source)
	}
	msg.Command = parsed.Command
	msg.Params = parsed.Params
	return msg, nil
}

// IsMiddleParam reports whether param can appear before the last position.
func IsMiddleParam(param string) bool {
	return len(param) != 0 && strings.IndexByte(param, ' ') == -1 && param[0] != ':'
}

// Line serializes the message, always terminated with CRLF.
func (msg *Message) Line() (string, error) {
	line, err := msg.LineBytes()
	if err != nil {
		return "", err
	}
	return string(line), nil
}

// LineBytes is like Line but returns a byte slice ready for writing to a socket.
func (msg *Message) LineBytes() ([]byte, error) {
	if strings.IndexByte(msg.Command, ' ') != -1 {
		return nil, ErrBadCommand
	}
	var source string
	if msg.Prefix.Kind != NoPrefix {
		if len(msg.Prefix.Raw) == 0 || strings.IndexByte(msg.Prefix.Raw, ' ') != -1 {
			return nil, ErrBadPrefix
		}
		source = msg.Prefix.Raw
	}
	out := ircmsg.MakeMessage(nil, source, msg.Command, msg.Params...)
	line, err := out.LineBytes()
	switch err {
	case nil:
		return line, nil
	case ircmsg.ErrorBadParam:
		return nil, ErrBadParam
	case ircmsg.ErrorCommandMissing:
		return nil, ErrBadCommand
	case ircmsg.ErrorLineContainsBadChar:
		return nil, ErrBadChar
	default:
		return nil, err
	}
}
