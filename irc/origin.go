// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package irc

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ergochat/bouncer/irc/canon"
	"github.com/ergochat/bouncer/irc/logger"
	"github.com/ergochat/bouncer/irc/transport"
	"github.com/ergochat/bouncer/irc/wire"
)

// Origin is the bouncer's single session with the upstream IRC server.
// It is the Source of the bounce loop.
type Origin struct {
	config    *OriginConfig
	logger    *logger.Manager
	transport *transport.Transport
	address   string

	messages chan canon.Message

	// NAMES replies accumulate here, keyed by casefolded channel,
	// until the matching end-of-names arrives
	namesMutex sync.Mutex
	names      map[string][]string

	stateMutex sync.Mutex
	err        error
}

// NewOrigin connects to the origin and registers the session. When it returns,
// the handshake has been written and the read loop is running.
func NewOrigin(config *OriginConfig, logger *logger.Manager) (*Origin, error) {
	address := config.Address()
	t, err := transport.Dial(address, config.TLSConfig(), config.maxLineBytes)
	if err != nil {
		return nil, err
	}

	origin := &Origin{
		config:    config,
		logger:    logger,
		transport: t,
		address:   address,
		messages:  make(chan canon.Message, defaultQueueSize),
		names:     make(map[string][]string),
	}

	if err := origin.handshake(); err != nil {
		t.Close()
		return nil, err
	}
	logger.Info("origin", "connected", address)

	go origin.run()
	return origin, nil
}

func (origin *Origin) handshake() error {
	var batch []wire.Message
	if origin.config.Password != "" {
		batch = append(batch, wire.MakeMessage(wire.Prefix{}, wire.PASS, origin.config.Password))
	}
	batch = append(batch,
		wire.MakeMessage(wire.Prefix{}, wire.USER, origin.config.User, "0", "*", origin.config.Realname),
		wire.MakeMessage(wire.Prefix{}, wire.NICK, origin.config.Nick),
	)
	return origin.send(batch...)
}

// Address is the host:port of the origin.
func (origin *Origin) Address() string {
	return origin.address
}

// Messages is closed once the session ends; Err then reports why.
func (origin *Origin) Messages() <-chan canon.Message {
	return origin.messages
}

// Err returns the error that ended the session, or nil while it is live.
func (origin *Origin) Err() error {
	origin.stateMutex.Lock()
	defer origin.stateMutex.Unlock()
	return origin.err
}

// Close disconnects from the origin, which ends the read loop.
func (origin *Origin) Close() error {
	return origin.transport.Close()
}

// Send relays a canonical message to the origin. Only Chat and JoinChannel
// have an upstream form; anything else is ErrUnroutable. A message that
// cannot be serialized is logged and dropped.
func (origin *Origin) Send(message canon.Message) (err error) {
	switch message.Type {
	case canon.Chat:
		err = origin.send(wire.MakeMessage(wire.Prefix{}, wire.PRIVMSG, message.Channel, message.Content))
	case canon.JoinChannel:
		err = origin.send(wire.MakeMessage(wire.Prefix{}, wire.JOIN, message.Channel))
	default:
		return fmt.Errorf("%w: %s to origin", ErrUnroutable, message.Type)
	}
	if isUnrepresentable(err) {
		unrepresentable.WithLabelValues(directionUpstream).Inc()
		origin.logger.Warning("origin", "dropping message that cannot be sent", message.String(), err.Error())
		return nil
	}
	return err
}

func (origin *Origin) send(batch ...wire.Message) error {
	if origin.logger.IsLoggingRawIO() {
		for _, msg := range batch {
			origin.logger.Debug("origin-io", "->", msg.String())
		}
	}
	return origin.transport.SendBatch(batch)
}

func (origin *Origin) run() {
	defer close(origin.messages)
	defer HandlePanic(origin.logger)

	var perr *wire.ProtocolError
	for {
		msg, err := origin.transport.ReadMessage()
		if err != nil {
			if errors.As(err, &perr) {
				origin.protocolError(perr)
				continue
			}
			origin.stateMutex.Lock()
			origin.err = err
			origin.stateMutex.Unlock()
			if transport.IsClosed(err) {
				origin.logger.Info("origin", "disconnected", origin.address)
			} else {
				origin.logger.Error("origin", "connection failed", origin.address, err.Error())
			}
			return
		}

		if origin.logger.IsLoggingRawIO() {
			origin.logger.Debug("origin-io", "<-", msg.String())
		}

		if err := origin.handle(msg); err != nil {
			if errors.As(err, &perr) {
				origin.protocolError(perr)
			} else {
				origin.logger.Warning("origin", "could not handle message", msg.Command, err.Error())
			}
		}
	}
}

func (origin *Origin) protocolError(err *wire.ProtocolError) {
	protocolErrors.WithLabelValues(sideOrigin).Inc()
	origin.logger.Warning("origin", "dropping malformed message", err.Error())
}

// handle applies the upstream command table to one message.
func (origin *Origin) handle(msg wire.Message) error {
	switch msg.Command {
	case wire.PING:
		return origin.send(wire.MakeMessage(wire.Prefix{}, wire.PONG, msg.Params...))

	case wire.RPL_ENDOFMOTD, wire.ERR_NOMOTD:
		origin.onConnected()

	case wire.PRIVMSG:
		if len(msg.Params) < 2 {
			return wire.NewArityError(msg, 2)
		}
		if !wire.IsMiddleParam(msg.Params[0]) {
			return invalidChannelError(msg, msg.Params[0])
		}
		origin.emit(canon.NewChat(msg.Prefix.Raw, msg.Params[0], msg.Params[1]))

	case wire.JOIN:
		if len(msg.Params) < 1 {
			return wire.NewArityError(msg, 1)
		}
		if !wire.IsMiddleParam(msg.Params[0]) {
			return invalidChannelError(msg, msg.Params[0])
		}
		origin.emit(canon.NewJoinedChannel(msg.Prefix.Raw, msg.Params[0]))

	case wire.RPL_NAMREPLY:
		// <client> <symbol> <channel> :<names>; some servers omit the symbol
		var channel, names string
		switch {
		case len(msg.Params) >= 4:
			channel, names = msg.Params[2], msg.Params[3]
		case len(msg.Params) == 3:
			channel, names = msg.Params[1], msg.Params[2]
		default:
			return wire.NewArityError(msg, 4)
		}
		if !wire.IsMiddleParam(channel) {
			return invalidChannelError(msg, channel)
		}
		origin.accumulateNames(channel, strings.Fields(names))

	case wire.RPL_ENDOFNAMES:
		// <client> <channel> :End of /NAMES list.
		if len(msg.Params) < 2 {
			return wire.NewArityError(msg, 2)
		}
		channel := msg.Params[1]
		if !wire.IsMiddleParam(channel) {
			return invalidChannelError(msg, channel)
		}
		origin.emit(canon.NewUsersList(channel, origin.takeNames(channel)))

	default:
		origin.logger.Debug("origin", "unhandled", msg.Command)
	}
	return nil
}

// invalidChannelError reports a channel that clients could not be sent.
func invalidChannelError(msg wire.Message, channel string) *wire.ProtocolError {
	return &wire.ProtocolError{
		Line:   msg.String(),
		Reason: fmt.Sprintf("%s names an invalid channel %q", msg.Command, channel),
	}
}

func (origin *Origin) accumulateNames(channel string, names []string) {
	key := channelKey(channel)

	origin.namesMutex.Lock()
	defer origin.namesMutex.Unlock()
	origin.names[key] = append(origin.names[key], names...)
}

func (origin *Origin) takeNames(channel string) (names []string) {
	key := channelKey(channel)

	origin.namesMutex.Lock()
	defer origin.namesMutex.Unlock()
	names = origin.names[key]
	delete(origin.names, key)
	return
}

func (origin *Origin) emit(message canon.Message) {
	origin.messages <- message
}

// onConnected runs when the origin finishes registration (end of MOTD, or
// no MOTD at all).
func (origin *Origin) onConnected() {
	origin.logger.Info("origin", "registered", origin.address, origin.config.Nick)
	for _, channel := range origin.config.Autojoin {
		if err := origin.send(wire.MakeMessage(wire.Prefix{}, wire.JOIN, channel)); err != nil {
			origin.logger.Warning("origin", "could not autojoin", channel, err.Error())
		}
	}
}
