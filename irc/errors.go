// Copyright (c) 2012-2014 Jeremy Latt
// Copyright (c) 2014-2015 Edmund Huber
// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package irc

import (
	"errors"
	"fmt"

	"github.com/ergochat/bouncer/irc/wire"
)

// Routing Errors
var (
	// ErrUnroutable means a canonical message was offered to a party that
	// has no way to express it.
	ErrUnroutable = errors.New("Message type cannot be routed to this destination")
	// ErrOriginClosed ends the bounce loop when the origin session goes away.
	ErrOriginClosed = errors.New("Origin session closed")
	// ErrAPIQueueFull is returned when control requests arrive faster than
	// the bouncer can forward them.
	ErrAPIQueueFull = errors.New("API request queue is full")
)

// String Errors
var (
	errCouldNotStabilize = errors.New("Could not stabilize string while casefolding")
	errStringIsEmpty     = errors.New("String is empty")
	errInvalidCharacter  = errors.New("Invalid character")
)

// Config Errors
var (
	ErrOriginHostMissing     = errors.New("Origin host missing")
	ErrOriginPortInvalid     = errors.New("Origin port must be between 1 and 65535")
	ErrOriginNickMissing     = errors.New("Origin nickname missing")
	ErrInvalidCertKeyPair    = errors.New("tls cert+key: invalid pair")
	ErrNoListenersDefined    = errors.New("Server listening address missing")
	ErrQueueSizeInvalid      = errors.New("Queue size must be at least 1")
	ErrLineLengthTooSmall    = errors.New("Max line length must be 512 or greater")
	ErrServerNameMissing     = errors.New("Server name missing")
	ErrServerNameNotHostname = errors.New("Server name must match the format of a hostname")
	ErrAPIListenerMissing    = errors.New("API is enabled but has no listening address")
	ErrAPINoCredentials      = errors.New("API is enabled but neither bearer tokens nor JWT are configured")
	ErrNoConfigFile          = errors.New("No configuration file to reload")
)

// RoutingError is a failure to deliver a message to one of the bouncer's
// parties. It is fatal to the bounce loop.
type RoutingError struct {
	Sink string
	Err  error
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("routing to %s failed: %v", e.Sink, e.Err)
}

func (e *RoutingError) Unwrap() error {
	return e.Err
}

// isUnrepresentable reports a message that failed to serialize, so that
// nothing was written for it.
func isUnrepresentable(err error) bool {
	switch err {
	case wire.ErrBadParam, wire.ErrBadCommand, wire.ErrBadPrefix, wire.ErrBadChar:
		return true
	}
	return false
}
