// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package irc

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/ergochat/bouncer/irc/history"
)

const rehashConfigTemplate = `
history:
    enabled: %t
    length: %d

logging:
    -
        method: stderr
        type: "*"
        level: error
`

func TestRehashResizesHistory(t *testing.T) {
	filename := writeTestConfig(t, fmt.Sprintf(rehashConfigTemplate, true, 8))
	current, err := LoadConfig(filename)
	if err != nil {
		t.Fatal(err)
	}
	current.SetEndpoints("irc.example.com", 6667, 6667)
	if err := current.Postprocess(); err != nil {
		t.Fatal(err)
	}
	logman := newTestLogger(t)

	hist := history.NewHistoryBuffer(current.History.BufferLength())
	for _, nick := range []string{"a", "b", "c", "d", "e"} {
		hist.Add(history.Item{Nick: nick, Channel: "#test"})
	}

	rewrite := func(contents string) {
		t.Helper()
		if err := os.WriteFile(filename, []byte(contents), 0600); err != nil {
			t.Fatal(err)
		}
	}

	rewrite(fmt.Sprintf(rehashConfigTemplate, true, 2))
	if err := Rehash(current, logman, hist); err != nil {
		t.Fatal(err)
	}
	assertEqual(hist.Len(), 2, t)
	if hist.LastDiscarded().IsZero() {
		t.Error("shrinking the buffer should record what it discarded")
	}

	// a broken file leaves everything as it was
	rewrite("history: [")
	if err := Rehash(current, logman, hist); err == nil {
		t.Error("expected an error from an unparseable config")
	}
	assertEqual(hist.Len(), 2, t)

	rewrite(fmt.Sprintf(rehashConfigTemplate, false, 2))
	if err := Rehash(current, logman, hist); err != nil {
		t.Fatal(err)
	}
	assertEqual(hist.Enabled(), false, t)
	assertEqual(hist.Len(), 0, t)

	rewrite(fmt.Sprintf(rehashConfigTemplate, true, 4))
	if err := Rehash(current, logman, hist); err != nil {
		t.Fatal(err)
	}
	assertEqual(hist.Enabled(), true, t)
}

func TestRehashWithoutConfigFile(t *testing.T) {
	config := DefaultConfig()
	if err := Rehash(config, newTestLogger(t), nil); !errors.Is(err, ErrNoConfigFile) {
		t.Errorf("expected ErrNoConfigFile, got %v", err)
	}
}
