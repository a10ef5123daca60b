// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/ergochat/bouncer/irc/wire"
)

func pipe(maxBytes int) (*Transport, net.Conn) {
	local, remote := net.Pipe()
	return New(NewIRCStreamConn(local, maxBytes)), remote
}

func TestReadMessage(t *testing.T) {
	tr, remote := pipe(0)
	go func() {
		io.WriteString(remote, "NICK a\r\n\r\n   \r\nPRIVMSG #c :hi there\r\n")
		remote.Close()
	}()

	msg, err := tr.ReadMessage()
	if err != nil || msg.Command != "NICK" {
		t.Fatalf("unexpected first message %v: %v", msg, err)
	}

	// the whitespace-only line is a protocol error, not the end of the stream
	_, err = tr.ReadMessage()
	var perr *wire.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected a protocol error, got %v", err)
	}

	msg, err = tr.ReadMessage()
	if err != nil || msg.Command != "PRIVMSG" || msg.Param(1) != "hi there" {
		t.Fatalf("unexpected third message %v: %v", msg, err)
	}

	_, err = tr.ReadMessage()
	var cerr *ConnectionError
	if !errors.As(err, &cerr) || !IsClosed(err) {
		t.Fatalf("expected a closed-connection error, got %v", err)
	}
	// the stream is not restartable
	_, again := tr.ReadMessage()
	if again != err {
		t.Errorf("expected the same terminal error, got %v", again)
	}
}

func TestReadQ(t *testing.T) {
	tr, remote := pipe(64)
	go func() {
		io.WriteString(remote, "PRIVMSG #c :"+strings.Repeat("a", 200)+"\r\n")
	}()
	defer remote.Close()

	_, err := tr.ReadMessage()
	if !errors.Is(err, ErrReadQ) {
		t.Errorf("expected ErrReadQ, got %v", err)
	}
}

func TestConcurrentSendsDoNotInterleave(t *testing.T) {
	tr, remote := pipe(0)
	const senders = 8
	const batches = 20

	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < batches; j++ {
				tag := fmt.Sprintf("%d-%d", i, j)
				err := tr.SendBatch([]wire.Message{
					wire.MakeMessage(wire.Prefix{}, "FIRST", tag),
					wire.MakeMessage(wire.Prefix{}, "SECOND", tag),
				})
				if err != nil {
					t.Error(err)
				}
			}
		}(i)
	}
	go func() {
		wg.Wait()
		tr.Close()
	}()

	reader := bufio.NewReader(remote)
	count := 0
	for {
		first, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		second, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("batch cut short after %q", first)
		}
		f, _ := wire.Parse(first)
		s, _ := wire.Parse(second)
		if f.Command != "FIRST" || s.Command != "SECOND" || f.Param(0) != s.Param(0) {
			t.Fatalf("interleaved batch: %q then %q", first, second)
		}
		count++
	}
	if count != senders*batches {
		t.Errorf("expected %d batches, got %d", senders*batches, count)
	}
}

func TestSendFailureIsConnectionError(t *testing.T) {
	tr, remote := pipe(0)
	remote.Close()
	err := tr.Send(wire.MakeMessage(wire.Prefix{}, "PING", "x"))
	var cerr *ConnectionError
	if !errors.As(err, &cerr) || cerr.Op != "write" {
		t.Errorf("expected a write ConnectionError, got %v", err)
	}

	// unrepresentable messages fail before touching the socket
	err = tr.Send(wire.MakeMessage(wire.Prefix{}, "PRIVMSG", "a b", "c"))
	if err != wire.ErrBadParam {
		t.Errorf("expected ErrBadParam, got %v", err)
	}
}

func TestDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = Dial(addr, nil, 0)
	var cerr *ConnectionError
	if !errors.As(err, &cerr) || cerr.Op != "dial" {
		t.Errorf("expected a dial ConnectionError, got %v", err)
	}
}
