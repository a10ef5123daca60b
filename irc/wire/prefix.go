// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package wire

import (
	"strings"
)

// PrefixKind says what sort of entity a message prefix names.
type PrefixKind uint8

const (
	// NoPrefix is the zero value: the message carries no prefix.
	NoPrefix PrefixKind = iota
	// ServerPrefix is a server name, e.g. `irc.example.com`.
	ServerPrefix
	// UserPrefix is a user, usually `nick!user@host`.
	UserPrefix
)

func (k PrefixKind) String() string {
	switch k {
	case ServerPrefix:
		return "server"
	case UserPrefix:
		return "user"
	default:
		return "none"
	}
}

// Prefix is the source of a message.
type Prefix struct {
	Kind PrefixKind
	Raw  string
}

// ParsePrefix classifies a raw prefix (without the leading ':').
//
// This is a heuristic: a prefix is taken to be a server name if it contains
// a '.' and does not contain both '!' and '@'. Nicknames with dots or
// single-label server names are misclassified.
func ParsePrefix(raw string) Prefix {
	if strings.IndexByte(raw, '.') != -1 &&
		!(strings.IndexByte(raw, '!') != -1 && strings.IndexByte(raw, '@') != -1) {
		return Prefix{Kind: ServerPrefix, Raw: raw}
	}
	return Prefix{Kind: UserPrefix, Raw: raw}
}

// ServerName returns a server prefix without running the classifier.
func ServerName(name string) Prefix {
	return Prefix{Kind: ServerPrefix, Raw: name}
}

// IsServer reports whether the prefix was classified as a server.
func (p Prefix) IsServer() bool {
	return p.Kind == ServerPrefix
}

// IsUser reports whether the prefix was classified as a user.
func (p Prefix) IsUser() bool {
	return p.Kind == UserPrefix
}
