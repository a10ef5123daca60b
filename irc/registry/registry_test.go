// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package registry

import (
	"bufio"
	"errors"
	"math"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/ergochat/bouncer/irc/transport"
	"github.com/ergochat/bouncer/irc/wire"
)

// peer is the far end of a registered transport, collecting what it receives
type peer struct {
	transport *transport.Transport
	remote    net.Conn
	lines     chan string
}

func newPeer() *peer {
	local, remote := net.Pipe()
	p := &peer{
		transport: transport.New(transport.NewIRCStreamConn(local, 0)),
		remote:    remote,
		lines:     make(chan string, 64),
	}
	go func() {
		reader := bufio.NewReader(remote)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				close(p.lines)
				return
			}
			p.lines <- line
		}
	}()
	return p
}

func (p *peer) expect(t *testing.T, expected ...string) {
	t.Helper()
	for _, e := range expected {
		select {
		case line, ok := <-p.lines:
			if !ok {
				t.Fatalf("connection closed while waiting for %q", e)
			}
			if line != e {
				t.Fatalf("expected %q, got %q", e, line)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", e)
		}
	}
}

func (p *peer) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case line, ok := <-p.lines:
		if ok {
			t.Fatalf("unexpected line %q", line)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInsertSkipsLiveIDsAfterWrap(t *testing.T) {
	reg := NewRegistry()
	reg.Insert(newPeer().transport)
	second := reg.Insert(newPeer().transport)
	reg.Remove(second)

	reg.nextID = math.MaxUint32
	var ids []uint32
	for i := 0; i < 3; i++ {
		ids = append(ids, reg.Insert(newPeer().transport))
	}
	// 0 is still live, 1 was released
	if !reflect.DeepEqual(reg.IDs(), []uint32{0, 1, 2, math.MaxUint32}) {
		t.Errorf("unexpected ids after wrap: %v", reg.IDs())
	}
	if !reflect.DeepEqual(ids, []uint32{math.MaxUint32, 1, 2}) {
		t.Errorf("unexpected assignment order: %v", ids)
	}
}

func TestInsertAssignsIncreasingIDs(t *testing.T) {
	reg := NewRegistry()
	var ids []uint32
	for i := 0; i < 5; i++ {
		ids = append(ids, reg.Insert(newPeer().transport))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Fatalf("ids not strictly increasing: %v", ids)
		}
	}

	reg.Remove(ids[2])
	reg.Remove(ids[2]) // idempotent
	expected := []uint32{ids[0], ids[1], ids[3], ids[4]}
	if !reflect.DeepEqual(reg.IDs(), expected) {
		t.Errorf("expected ids %v, got %v", expected, reg.IDs())
	}

	// ids are never reused
	next := reg.Insert(newPeer().transport)
	if next <= ids[4] {
		t.Errorf("id %d was reused or went backwards", next)
	}
	if reg.Len() != 5 {
		t.Errorf("expected 5 connections, got %d", reg.Len())
	}
}

func TestBroadcastSkipsRemoved(t *testing.T) {
	reg := NewRegistry()
	a, b, c := newPeer(), newPeer(), newPeer()
	reg.Insert(a.transport)
	idB := reg.Insert(b.transport)
	reg.Insert(c.transport)
	reg.Remove(idB)

	batch := []wire.Message{
		wire.MakeMessage(wire.ServerName("irc.proxy"), wire.RPL_NAMREPLY, "n", "=", "#c", "x y"),
		wire.MakeMessage(wire.ServerName("irc.proxy"), wire.RPL_ENDOFNAMES, "n", "#c", "End of /NAMES list."),
	}
	if err := reg.Broadcast(batch); err != nil {
		t.Fatal(err)
	}
	for _, p := range []*peer{a, c} {
		p.expect(t,
			":irc.proxy 353 n = #c :x y\r\n",
			":irc.proxy 366 n #c :End of /NAMES list.\r\n",
		)
	}
	b.expectNothing(t)
}

func TestBroadcastContinuesPastFailure(t *testing.T) {
	reg := NewRegistry()
	a, dead, c := newPeer(), newPeer(), newPeer()
	reg.Insert(a.transport)
	reg.Insert(dead.transport)
	reg.Insert(c.transport)
	dead.remote.Close()

	err := reg.Broadcast([]wire.Message{wire.MakeMessage(wire.Prefix{}, "PING", "x")})
	var berr *BroadcastError
	if !errors.As(err, &berr) || berr.Failed != 1 {
		t.Fatalf("expected one failed connection, got %v", err)
	}
	var cerr *transport.ConnectionError
	if !errors.As(err, &cerr) {
		t.Errorf("expected the failure to unwrap to a ConnectionError, got %v", err)
	}
	a.expect(t, "PING x\r\n")
	c.expect(t, "PING x\r\n")
}

func TestBroadcastRejectsBadBatch(t *testing.T) {
	reg := NewRegistry()
	a := newPeer()
	reg.Insert(a.transport)

	err := reg.Broadcast([]wire.Message{
		wire.MakeMessage(wire.Prefix{}, "PING", "ok"),
		wire.MakeMessage(wire.Prefix{}, "PRIVMSG", "bad target", "x"),
	})
	if err != wire.ErrBadParam {
		t.Fatalf("expected ErrBadParam, got %v", err)
	}
	// nothing from a rejected batch is sent
	a.expectNothing(t)
}

func TestCloseAll(t *testing.T) {
	reg := NewRegistry()
	a, b := newPeer(), newPeer()
	reg.Insert(a.transport)
	reg.Insert(b.transport)

	reg.CloseAll()
	for _, p := range []*peer{a, b} {
		if _, ok := <-p.lines; ok {
			t.Errorf("expected the connection to be closed")
		}
	}
}
