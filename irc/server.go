// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2014-2015 Edmund Huber
// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package irc

import (
	"errors"
	"net"
	"strings"
	"sync"

	"github.com/ergochat/irc-go/ircutils"

	"github.com/ergochat/bouncer/irc/canon"
	"github.com/ergochat/bouncer/irc/logger"
	"github.com/ergochat/bouncer/irc/registry"
	"github.com/ergochat/bouncer/irc/transport"
	"github.com/ergochat/bouncer/irc/wire"
)

const (
	listenerTCP       = "tcp"
	listenerWebsocket = "websocket"
)

// inboundMessage is a line from a downstream client, tagged with where it
// came from so replies can go back to the same connection.
type inboundMessage struct {
	id        uint32
	transport *transport.Transport
	message   wire.Message
}

// Server accepts downstream IRC clients and presents the origin session
// to all of them. It is a Sink of the bounce loop.
type Server struct {
	config   *ServerConfig
	logger   *logger.Manager
	registry *registry.Registry

	netListener *NetListener
	wsListener  *WSListener

	// every reader feeds this one queue; one dispatcher drains it
	incoming chan inboundMessage
	messages chan canon.Message

	closed    chan struct{}
	closeOnce sync.Once
}

// NewServer binds the configured listeners and starts accepting clients.
func NewServer(config *ServerConfig, logger *logger.Manager) (server *Server, err error) {
	server = &Server{
		config:   config,
		logger:   logger,
		registry: registry.NewRegistry(),
		incoming: make(chan inboundMessage, config.QueueSize),
		messages: make(chan canon.Message, config.QueueSize),
		closed:   make(chan struct{}),
	}

	server.netListener, err = NewNetListener(server, config.Listen, config.tlsConfig)
	if err != nil {
		return nil, err
	}
	logger.Info("server", "listening", server.netListener.Addr().String())

	if config.WebsocketListen != "" {
		server.wsListener, err = NewWSListener(server, config.WebsocketListen, config.tlsConfig)
		if err != nil {
			server.netListener.Stop()
			return nil, err
		}
		logger.Info("server", "listening for websockets", server.wsListener.Addr().String())
	}

	go server.dispatch()
	return server, nil
}

// Addr is the address of the plain listener.
func (server *Server) Addr() net.Addr {
	return server.netListener.Addr()
}

// Len returns the number of connected clients.
func (server *Server) Len() int {
	return server.registry.Len()
}

// Messages carries what clients ask to be relayed to the origin.
func (server *Server) Messages() <-chan canon.Message {
	return server.messages
}

// Close stops the listeners and disconnects every client.
func (server *Server) Close() error {
	server.closeOnce.Do(func() {
		close(server.closed)
		server.netListener.Stop()
		if server.wsListener != nil {
			server.wsListener.Stop()
		}
		server.registry.CloseAll()
	})
	return nil
}

// RunClient reads one client connection until it ends.
func (server *Server) RunClient(conn transport.IRCConn, listener string) {
	defer HandlePanic(server.logger)

	t := transport.New(conn)
	id := server.registry.Insert(t)
	connectionsTotal.WithLabelValues(listener).Inc()
	connectionsCurrent.WithLabelValues(listener).Inc()
	server.logger.Info("server", "client connected", t.RemoteAddr())

	defer func() {
		server.registry.Remove(id)
		t.Close()
		connectionsCurrent.WithLabelValues(listener).Dec()
		server.logger.Info("server", "client disconnected", t.RemoteAddr())
	}()

	var perr *wire.ProtocolError
	for {
		msg, err := t.ReadMessage()
		if err != nil {
			if errors.As(err, &perr) {
				server.protocolError(t, perr)
				continue
			}
			if !transport.IsClosed(err) {
				server.logger.Debug("server", "client connection failed", err.Error())
			}
			return
		}

		if server.logger.IsLoggingRawIO() {
			server.logger.Debug("client-io", t.RemoteAddr(), "<-", msg.String())
		}

		select {
		case server.incoming <- inboundMessage{id: id, transport: t, message: msg}:
		case <-server.closed:
			return
		}
	}
}

func (server *Server) protocolError(t *transport.Transport, err *wire.ProtocolError) {
	protocolErrors.WithLabelValues(sideClient).Inc()
	server.logger.Warning("server", "dropping malformed message", t.RemoteAddr(), err.Error())
}

func (server *Server) dispatch() {
	defer HandlePanic(server.logger)

	for {
		select {
		case in := <-server.incoming:
			message, ok := server.handle(in)
			if !ok {
				continue
			}
			select {
			case server.messages <- message:
			case <-server.closed:
				return
			}
		case <-server.closed:
			return
		}
	}
}

// handle answers what can be answered locally and translates the rest.
func (server *Server) handle(in inboundMessage) (result canon.Message, ok bool) {
	msg := in.message
	switch msg.Command {
	case wire.USER:
		server.reply(in, wire.MakeMessage(server.prefix(), wire.ERR_NOMOTD, server.config.nick, "MOTD File is missing"))

	case wire.CAP, wire.NICK:
		// absorbed

	case wire.PING:
		server.reply(in, wire.MakeMessage(server.prefix(), wire.PONG, msg.Params...))

	case wire.PRIVMSG:
		if len(msg.Params) < 2 {
			server.protocolError(in.transport, wire.NewArityError(msg, 2))
			return
		}
		sender := msg.Prefix.Raw
		if sender == "" {
			sender = server.config.nick
		}
		content := ircutils.SanitizeText(msg.Params[1], server.config.maxLineBytes)
		return canon.NewChat(sender, msg.Params[0], content), true

	case wire.JOIN:
		if len(msg.Params) < 1 {
			server.protocolError(in.transport, wire.NewArityError(msg, 1))
			return
		}
		return canon.NewJoinChannel(msg.Params[0]), true

	default:
		server.logger.Debug("server", "unhandled client command", msg.Command)
	}
	return
}

func (server *Server) reply(in inboundMessage, msg wire.Message) {
	if server.logger.IsLoggingRawIO() {
		server.logger.Debug("client-io", in.transport.RemoteAddr(), "->", msg.String())
	}
	if err := in.transport.Send(msg); err != nil {
		// the reader notices the dead connection and cleans up
		server.logger.Debug("server", "could not reply to client", err.Error())
	}
}

func (server *Server) prefix() wire.Prefix {
	return wire.ServerName(server.config.Name)
}

func (server *Server) senderPrefix(sender string) wire.Prefix {
	if sender == "" {
		return server.prefix()
	}
	return wire.ParsePrefix(sender)
}

// translate renders a canonical message as the lines clients should see.
func (server *Server) translate(message canon.Message) ([]wire.Message, error) {
	switch message.Type {
	case canon.Chat:
		return []wire.Message{
			wire.MakeMessage(server.senderPrefix(message.Sender), wire.PRIVMSG, message.Channel, message.Content),
		}, nil
	case canon.JoinedChannel:
		return []wire.Message{
			wire.MakeMessage(server.senderPrefix(message.Sender), wire.JOIN, message.Channel),
		}, nil
	case canon.UsersList:
		return []wire.Message{
			wire.MakeMessage(server.prefix(), wire.RPL_NAMREPLY, server.config.nick, "=", message.Channel, strings.Join(message.Users, " ")),
			wire.MakeMessage(server.prefix(), wire.RPL_ENDOFNAMES, server.config.nick, message.Channel, "End of /NAMES list."),
		}, nil
	default:
		return nil, ErrUnroutable
	}
}

// Broadcast delivers a canonical message to every connected client, as one
// uninterrupted run of lines per client. Clients that cannot be written to
// are dropped, and so are messages that cannot be serialized; neither is an
// error for the caller.
func (server *Server) Broadcast(message canon.Message) error {
	batch, err := server.translate(message)
	if err != nil {
		return err
	}

	if server.logger.IsLoggingRawIO() {
		for _, msg := range batch {
			server.logger.Debug("client-io", "*", "->", msg.String())
		}
	}

	err = server.registry.Broadcast(batch)
	var berr *registry.BroadcastError
	switch {
	case err == nil:
	case errors.As(err, &berr):
		broadcastFailures.Add(float64(berr.Failed))
		server.logger.Warning("server", "dropped clients during broadcast", berr.Error())
	case isUnrepresentable(err):
		// nothing was written to any client
		unrepresentable.WithLabelValues(directionDownstream).Inc()
		server.logger.Warning("server", "dropping message that cannot be sent", message.String(), err.Error())
	default:
		return err
	}
	return nil
}
