// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package wire

// commands the bouncer interprets
const (
	CAP     = "CAP"
	JOIN    = "JOIN"
	NICK    = "NICK"
	PASS    = "PASS"
	PING    = "PING"
	PONG    = "PONG"
	PRIVMSG = "PRIVMSG"
	USER    = "USER"
)

// numeric replies the bouncer interprets or emits
const (
	RPL_WELCOME    = "001"
	RPL_NAMREPLY   = "353"
	RPL_ENDOFNAMES = "366"
	RPL_ENDOFMOTD  = "376"
	ERR_NOMOTD     = "422"
)
