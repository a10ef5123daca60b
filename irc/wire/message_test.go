// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package wire

import (
	"errors"
	"reflect"
	"testing"
)

func assertEqual(supplied, expected interface{}, t *testing.T) {
	t.Helper()
	if !reflect.DeepEqual(supplied, expected) {
		t.Errorf("expected %#v but got %#v", expected, supplied)
	}
}

func mustParse(line string, t *testing.T) Message {
	t.Helper()
	msg, err := Parse(line)
	if err != nil {
		t.Fatalf("could not parse %q: %v", line, err)
	}
	return msg
}

func TestParseSimple(t *testing.T) {
	msg := mustParse("NICK test\r\n", t)
	assertEqual(msg.Prefix.Kind, NoPrefix, t)
	assertEqual(msg.Command, "NICK", t)
	assertEqual(msg.Params, []string{"test"}, t)
}

func TestParseTrailing(t *testing.T) {
	msg := mustParse("PRIVMSG #test :test test\r\n", t)
	assertEqual(msg.Command, "PRIVMSG", t)
	assertEqual(msg.Params, []string{"#test", "test test"}, t)

	// the trailing parameter is everything after the colon, colons included
	msg = mustParse("PRIVMSG #test :a :b  c", t)
	assertEqual(msg.Params, []string{"#test", "a :b  c"}, t)

	msg = mustParse("TOPIC #test :", t)
	assertEqual(msg.Params, []string{"#test", ""}, t)
}

func TestParsePrefix(t *testing.T) {
	msg := mustParse(":test@test PRIVMSG #test :hi\r\n", t)
	assertEqual(msg.Prefix, Prefix{Kind: UserPrefix, Raw: "test@test"}, t)
	assertEqual(msg.Params, []string{"#test", "hi"}, t)

	msg = mustParse(":server1.com PRIVMSG #test :hi\r\n", t)
	assertEqual(msg.Prefix, Prefix{Kind: ServerPrefix, Raw: "server1.com"}, t)
	assertEqual(msg.Command, "PRIVMSG", t)
}

func TestParsePrefixClassification(t *testing.T) {
	testCases := []struct {
		raw  string
		kind PrefixKind
	}{
		{"irc.example.com", ServerPrefix},
		{"nick!user@host.example.com", UserPrefix},
		{"nick", UserPrefix},
		{"nick!user", UserPrefix},
		// only one of ! and @ is present, so the dot wins
		{"user@host.com", ServerPrefix},
		{"localhost", UserPrefix},
	}
	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			assertEqual(ParsePrefix(tc.raw), Prefix{Kind: tc.kind, Raw: tc.raw}, t)
		})
	}
}

func TestParseIgnoresTagsAndExtraSpaces(t *testing.T) {
	msg := mustParse("@time=2026-01-01T00:00:00.000Z :nick!u@h JOIN  #chan\r\n", t)
	assertEqual(msg.Prefix, Prefix{Kind: UserPrefix, Raw: "nick!u@h"}, t)
	assertEqual(msg.Command, "JOIN", t)
	assertEqual(msg.Params, []string{"#chan"}, t)

	msg = mustParse("PING", t)
	assertEqual(msg.Command, "PING", t)
	if msg.Params != nil {
		t.Errorf("expected no params, got %#v", msg.Params)
	}
}

func TestParseErrors(t *testing.T) {
	for _, line := range []string{"", "\r\n", "    ", ":prefix.only", ":prefix   ", "@tags-only", "PRIVMSG #test :nul\x00byte"} {
		_, err := Parse(line)
		var perr *ProtocolError
		if !errors.As(err, &perr) {
			t.Errorf("expected a ProtocolError for %q, got %v", line, err)
		}
	}
}

func TestParseKeepsFormattingCharacters(t *testing.T) {
	msg := mustParse(":alice!a@example.com PRIVMSG #test :\x01ACTION waves\x01\r\n", t)
	assertEqual(msg.Params, []string{"#test", "\x01ACTION waves\x01"}, t)

	msg = mustParse("PRIVMSG #test :\x02bold\x02 and reset\x0f", t)
	assertEqual(msg.Params[1], "\x02bold\x02 and reset\x0f", t)

	// only the terminator is stripped, never surrounding spaces
	msg = mustParse("PRIVMSG #test : padded \n", t)
	assertEqual(msg.Params[1], " padded ", t)
}

func TestParseNormalizesCommand(t *testing.T) {
	msg := mustParse("privmsg #test :hi", t)
	assertEqual(msg.Command, "PRIVMSG", t)

	// an empty prefix is no prefix at all
	msg = mustParse(": NICK x", t)
	assertEqual(msg.Prefix, Prefix{}, t)
	assertEqual(msg.Command, "NICK", t)
}

func TestIsMiddleParam(t *testing.T) {
	assertEqual(IsMiddleParam("#test"), true, t)
	assertEqual(IsMiddleParam(""), false, t)
	assertEqual(IsMiddleParam("#a b"), false, t)
	assertEqual(IsMiddleParam(":x"), false, t)
}

func TestLine(t *testing.T) {
	msg := MakeMessage(Prefix{}, "PING", "12341234")
	line, err := msg.Line()
	assertEqual(err, nil, t)
	assertEqual(line, "PING 12341234\r\n", t)

	msg = MakeMessage(ParsePrefix("test@test"), "PRIVMSG", "#test", "test test")
	line, _ = msg.Line()
	assertEqual(line, ":test@test PRIVMSG #test :test test\r\n", t)

	msg = MakeMessage(ParsePrefix("test@test"), "PING", "12341234")
	line, _ = msg.Line()
	assertEqual(line, ":test@test PING 12341234\r\n", t)

	// empty or colon-initial final params go in trailing position
	msg = MakeMessage(ServerName("irc.proxy"), RPL_NAMREPLY, "nick", "=", "#c", "")
	line, _ = msg.Line()
	assertEqual(line, ":irc.proxy 353 nick = #c :\r\n", t)

	msg = MakeMessage(Prefix{}, PRIVMSG, "#c", ":)")
	line, _ = msg.Line()
	assertEqual(line, "PRIVMSG #c ::)\r\n", t)
}

func TestLineErrors(t *testing.T) {
	testCases := []struct {
		msg Message
		err error
	}{
		{MakeMessage(Prefix{}, "PRIVMSG", "#a b", "hi"), ErrBadParam},
		{MakeMessage(Prefix{}, "PRIVMSG", "", "hi"), ErrBadParam},
		{MakeMessage(Prefix{}, ""), ErrBadCommand},
		{MakeMessage(Prefix{}, "PRIV MSG"), ErrBadCommand},
		{MakeMessage(Prefix{Kind: UserPrefix, Raw: "a b"}, "NICK", "x"), ErrBadPrefix},
		{MakeMessage(Prefix{Kind: UserPrefix}, "NICK", "x"), ErrBadPrefix},
		{MakeMessage(Prefix{}, "PRIVMSG", "#test", "line\r\nbreak"), ErrBadChar},
	}
	for _, tc := range testCases {
		if _, err := tc.msg.Line(); err != tc.err {
			t.Errorf("expected %v serializing %#v, got %v", tc.err, tc.msg, err)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	messages := []Message{
		MakeMessage(Prefix{}, "NICK", "testtest"),
		MakeMessage(Prefix{}, "USER", "test", "0", "*", "real name"),
		MakeMessage(ParsePrefix("nick!user@host"), "PRIVMSG", "#chan", "hello there, world"),
		MakeMessage(ParsePrefix("irc.example.com"), RPL_ENDOFNAMES, "nick", "#chan", "End of /NAMES list."),
		MakeMessage(ParsePrefix("irc.example.com"), RPL_NAMREPLY, "nick", "=", "#chan", "a b c"),
		MakeMessage(ParsePrefix("nick"), "TOPIC", "#chan", ""),
		MakeMessage(Prefix{}, "PRIVMSG", "#chan", ":starts with a colon"),
		MakeMessage(Prefix{}, "PRIVMSG", "#chan", " leading and trailing "),
		MakeMessage(Prefix{}, "QUIT"),
		MakeMessage(ParsePrefix("nick!user@host"), "PRIVMSG", "#chan", "\x01ACTION waves\x01"),
	}
	for _, msg := range messages {
		line, err := msg.Line()
		if err != nil {
			t.Fatalf("could not serialize %#v: %v", msg, err)
		}
		parsed := mustParse(line, t)
		assertEqual(parsed, msg, t)
	}
}
