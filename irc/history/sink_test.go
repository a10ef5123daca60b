// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package history

import (
	"testing"
	"time"

	"github.com/ergochat/bouncer/irc/canon"
)

func TestSinkRecords(t *testing.T) {
	sink := NewSink(8, nil)
	if sink.Messages() != nil {
		t.Errorf("the history sink must never produce messages")
	}

	for _, message := range []canon.Message{
		canon.NewChat("alice!a@example.com", "#ergo", "\x02hello\x02 world"),
		canon.NewJoinedChannel("bob", "#ergo"),
		canon.NewUsersList("#ergo", []string{"alice", "bob", "carol"}),
	} {
		if err := sink.Broadcast(message); err != nil {
			t.Fatal(err)
		}
	}

	items, complete := sink.Buffer().Between(time.Time{}, time.Time{}, nil, 0)
	assertEqual(complete, true, t)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	assertEqual(items[0].Type, canon.Chat, t)
	assertEqual(items[0].Nick, "alice", t)
	assertEqual(items[0].Message, "hello world", t)
	assertEqual(items[1].Nick, "bob", t)
	assertEqual(items[1].Channel, "#ergo", t)
	assertEqual(items[2].Type, canon.UsersList, t)
	assertEqual(items[2].Users, 3, t)
}

func TestNickFromSender(t *testing.T) {
	assertEqual(nickFromSender("alice!a@example.com"), "alice", t)
	assertEqual(nickFromSender("alice"), "alice", t)
	assertEqual(nickFromSender(""), "", t)
	// a bare host has no nick to extract
	assertEqual(nickFromSender("@example.com"), "@example.com", t)
}
