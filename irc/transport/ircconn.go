// Copyright (c) 2020 Shivaram Lingamneni <slingamn@cs.stanford.edu>
// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package transport

import (
	"bufio"
	"bytes"
	"errors"
	"net"
	"unicode/utf8"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/gorilla/websocket"
)

const (
	// DefaultMaxLineBytes leaves room for a full tag section plus a
	// 512-byte message plus some slack, as ergo does for its readq.
	DefaultMaxLineBytes = ircmsg.MaxlenTagsFromClient + 512 + 1024
)

var (
	// ErrReadQ means the peer sent a line longer than the read buffer.
	ErrReadQ = errors.New("ReadQ Exceeded")

	crlf = []byte{'\r', '\n'}
)

// IRCConn abstracts away the distinction between a regular
// net.Conn (which includes both raw TCP and TLS) and a websocket.
// it doesn't expose Read and Write because websockets are message-oriented,
// not stream-oriented.
type IRCConn interface {
	RemoteAddr() net.Addr

	WriteBuffers([][]byte) error
	ReadLine() (line []byte, err error)

	Close() error
}

// IRCStreamConn is an IRCConn over a regular stream connection.
type IRCStreamConn struct {
	conn     net.Conn
	reader   *bufio.Reader
	maxBytes int
}

// NewIRCStreamConn wraps conn; lines longer than maxBytes are rejected
// with ErrReadQ (zero selects DefaultMaxLineBytes).
func NewIRCStreamConn(conn net.Conn, maxBytes int) *IRCStreamConn {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxLineBytes
	}
	return &IRCStreamConn{
		conn:     conn,
		maxBytes: maxBytes,
	}
}

func (cc *IRCStreamConn) RemoteAddr() net.Addr {
	return cc.conn.RemoteAddr()
}

func (cc *IRCStreamConn) WriteBuffers(buffers [][]byte) (err error) {
	// on Linux, with a plaintext TCP or Unix domain socket,
	// the Go runtime will optimize this into a single writev(2) call.
	// WriteTo consumes the slice it is given, so hand it a copy:
	bufs := make(net.Buffers, len(buffers))
	copy(bufs, buffers)
	_, err = bufs.WriteTo(cc.conn)
	return
}

func (cc *IRCStreamConn) ReadLine() (line []byte, err error) {
	// lazy initialize the reader, most connections never get this far
	if cc.reader == nil {
		cc.reader = bufio.NewReaderSize(cc.conn, cc.maxBytes)
	}

	var isPrefix bool
	line, isPrefix, err = cc.reader.ReadLine()
	if isPrefix {
		return nil, ErrReadQ
	}
	line = bytes.TrimSuffix(line, crlf)
	return
}

func (cc *IRCStreamConn) Close() (err error) {
	return cc.conn.Close()
}

// IRCWSConn is an IRCConn over a websocket.
type IRCWSConn struct {
	conn *websocket.Conn
}

func NewIRCWSConn(conn *websocket.Conn) IRCWSConn {
	return IRCWSConn{conn: conn}
}

func (wc IRCWSConn) RemoteAddr() net.Addr {
	return wc.conn.RemoteAddr()
}

func (wc IRCWSConn) write(buf []byte) (err error) {
	buf = bytes.TrimSuffix(buf, crlf)
	// there's not much we can do about this;
	// silently drop the message
	if !utf8.Valid(buf) {
		return nil
	}
	return wc.conn.WriteMessage(websocket.TextMessage, buf)
}

func (wc IRCWSConn) WriteBuffers(buffers [][]byte) (err error) {
	for _, buf := range buffers {
		err = wc.write(buf)
		if err != nil {
			return
		}
	}
	return
}

func (wc IRCWSConn) ReadLine() (line []byte, err error) {
	for {
		var messageType int
		messageType, line, err = wc.conn.ReadMessage()
		// on empty message or non-text message, try again, block if necessary
		if err != nil || (messageType == websocket.TextMessage && len(line) != 0) {
			return
		}
	}
}

func (wc IRCWSConn) Close() (err error) {
	return wc.conn.Close()
}
