// Copyright (c) 2020 Shivaram Lingamneni <slingamn@cs.stanford.edu>
// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package irc

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ergochat/bouncer/irc/transport"
)

// IRCListener is an abstract wrapper for a listener (TCP port or unix domain socket).
type IRCListener interface {
	Addr() net.Addr
	Stop() error
}

func createBaseListener(addr string, tlsConfig *tls.Config) (listener net.Listener, err error) {
	addr = strings.TrimPrefix(addr, "unix:")
	if strings.HasPrefix(addr, "/") {
		// https://stackoverflow.com/a/34881585
		os.Remove(addr)
		listener, err = net.Listen("unix", addr)
	} else {
		listener, err = net.Listen("tcp", addr)
	}
	if err == nil && tlsConfig != nil {
		listener = tls.NewListener(listener, tlsConfig)
	}
	return
}

// NetListener is an IRCListener for a regular stream socket (TCP or unix domain)
type NetListener struct {
	listener net.Listener
	server   *Server
	addr     string
}

func NewNetListener(server *Server, addr string, tlsConfig *tls.Config) (result *NetListener, err error) {
	listener, err := createBaseListener(addr, tlsConfig)
	if err != nil {
		return
	}
	nl := NetListener{
		server:   server,
		listener: listener,
		addr:     addr,
	}
	go nl.serve()
	return &nl, nil
}

func (nl *NetListener) Addr() net.Addr {
	return nl.listener.Addr()
}

func (nl *NetListener) Stop() error {
	return nl.listener.Close()
}

func (nl *NetListener) serve() {
	defer HandlePanic(nl.server.logger)

	for {
		conn, err := nl.listener.Accept()

		if err == nil {
			// hand off the connection
			go nl.server.RunClient(transport.NewIRCStreamConn(conn, nl.server.config.maxLineBytes), listenerTCP)
		} else if errors.Is(err, net.ErrClosed) {
			return
		} else {
			nl.server.logger.Error("internal", "accept error", nl.addr, err.Error())
		}
	}
}

// WSListener is a listener for IRC-over-websockets (initially HTTP, then upgraded to a
// different application protocol that provides a message-based API, possibly with TLS)
type WSListener struct {
	listener   net.Listener
	httpServer *http.Server
	server     *Server
	addr       string
}

func NewWSListener(server *Server, addr string, tlsConfig *tls.Config) (result *WSListener, err error) {
	listener, err := createBaseListener(addr, tlsConfig)
	if err != nil {
		return
	}
	result = &WSListener{
		listener: listener,
		server:   server,
		addr:     addr,
	}
	result.httpServer = &http.Server{
		Handler:      http.HandlerFunc(result.handle),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go result.httpServer.Serve(listener)
	return
}

func (wl *WSListener) Addr() net.Addr {
	return wl.listener.Addr()
}

func (wl *WSListener) Stop() error {
	return wl.httpServer.Close()
}

func (wl *WSListener) handle(w http.ResponseWriter, r *http.Request) {
	wsUpgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			allowed := wl.server.config.WebsocketAllowedOrigins
			if len(allowed) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if len(origin) == 0 {
				return false
			}
			for _, candidate := range allowed {
				if strings.EqualFold(candidate, origin) {
					return true
				}
			}
			return false
		},
		Subprotocols: []string{"text.ircv3.net"},
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		wl.server.logger.Info("internal", "websocket upgrade error", wl.addr, err.Error())
		return
	}

	// avoid a DoS attack from buffering excessively large messages:
	conn.SetReadLimit(int64(wl.server.config.maxLineBytes))

	go wl.server.RunClient(transport.NewIRCWSConn(conn), listenerWebsocket)
}
