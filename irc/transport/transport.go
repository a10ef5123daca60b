// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

// Package transport turns a socket into a duplex stream of IRC messages,
// with independently locked read and write halves.
package transport

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/ergochat/bouncer/irc/wire"
)

// ConnectionError is an IO failure on one connection. It only ever affects
// the Transport it came from.
type ConnectionError struct {
	Op   string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsClosed reports whether err just means the peer went away.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}

// Transport is one IRC connection. A single goroutine drives ReadMessage;
// any number may call Send concurrently, and their writes never interleave.
type Transport struct {
	conn IRCConn
	addr string

	readMutex sync.Mutex
	readErr   error

	writeMutex sync.Mutex
}

// New wraps an accepted or dialed connection.
func New(conn IRCConn) *Transport {
	var addr string
	if remote := conn.RemoteAddr(); remote != nil {
		addr = remote.String()
	}
	return &Transport{
		conn: conn,
		addr: addr,
	}
}

// Dial connects to an IRC server, over TLS if tlsConfig is non-nil.
func Dial(address string, tlsConfig *tls.Config, maxLineBytes int) (*Transport, error) {
	var conn net.Conn
	var err error
	if tlsConfig != nil {
		conn, err = tls.Dial("tcp", address, tlsConfig)
	} else {
		conn, err = net.Dial("tcp", address)
	}
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Addr: address, Err: err}
	}
	return New(NewIRCStreamConn(conn, maxLineBytes)), nil
}

// RemoteAddr is the peer's address, for logging.
func (t *Transport) RemoteAddr() string {
	return t.addr
}

// ReadMessage returns the next message from the peer. A malformed line yields
// a *wire.ProtocolError and the stream carries on; any IO error (including the
// peer closing) ends the stream for good, and every later call returns the
// same *ConnectionError.
func (t *Transport) ReadMessage() (msg wire.Message, err error) {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	if t.readErr != nil {
		return msg, t.readErr
	}

	for {
		line, err := t.conn.ReadLine()
		if err != nil {
			t.readErr = &ConnectionError{Op: "read", Addr: t.addr, Err: err}
			return msg, t.readErr
		}
		// blank lines are legal keepalives from some clients
		if len(line) == 0 {
			continue
		}
		return wire.Parse(string(line))
	}
}

// Send serializes and writes one message.
func (t *Transport) Send(msg wire.Message) error {
	return t.SendBatch([]wire.Message{msg})
}

// SendBatch writes several messages as one contiguous run.
func (t *Transport) SendBatch(msgs []wire.Message) error {
	lines := make([][]byte, len(msgs))
	for i := range msgs {
		line, err := msgs[i].LineBytes()
		if err != nil {
			return err
		}
		lines[i] = line
	}
	return t.WriteLines(lines)
}

// WriteLines writes already-serialized lines as one contiguous run.
// The lines are not modified, so one batch can be shared between transports.
func (t *Transport) WriteLines(lines [][]byte) error {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	if err := t.conn.WriteBuffers(lines); err != nil {
		return &ConnectionError{Op: "write", Addr: t.addr, Err: err}
	}
	return nil
}

// Close closes the underlying connection, which also ends the read stream.
func (t *Transport) Close() error {
	return t.conn.Close()
}
