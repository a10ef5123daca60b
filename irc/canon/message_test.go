// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package canon

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestJSONShape(t *testing.T) {
	data, err := json.Marshal(NewChat("nick!u@h", "#chan", "hi there"))
	if err != nil {
		t.Fatal(err)
	}
	expected := `{"type":"Chat","sender":"nick!u@h","channel":"#chan","content":"hi there"}`
	if string(data) != expected {
		t.Errorf("got %s, expected %s", data, expected)
	}

	data, _ = json.Marshal(NewUsersList("#chan", []string{"a", "b"}))
	expected = `{"type":"UsersList","channel":"#chan","users":["a","b"]}`
	if string(data) != expected {
		t.Errorf("got %s, expected %s", data, expected)
	}
}

func TestDecode(t *testing.T) {
	m, err := Decode([]byte(`{"type":"JoinChannel","channel":"#ergo"}`))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(m, NewJoinChannel("#ergo")) {
		t.Errorf("unexpected message %#v", m)
	}

	for _, bad := range []string{
		`{"type":"Bogus","channel":"#ergo"}`,
		`{"channel":"#ergo"}`,
		`{"type":"Chat","content":"no channel"}`,
		`not json`,
	} {
		if _, err := Decode([]byte(bad)); err == nil {
			t.Errorf("expected an error decoding %s", bad)
		}
	}
}

func TestNewUsersListCopies(t *testing.T) {
	users := []string{"a", "b"}
	m := NewUsersList("#c", users)
	users[0] = "z"
	if m.Users[0] != "a" {
		t.Errorf("UsersList shares its caller's slice")
	}
}
