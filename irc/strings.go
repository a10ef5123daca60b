// Copyright (c) 2016-2017 Daniel Oaks <daniel@danieloaks.net>
// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package irc

import (
	"strings"

	"golang.org/x/text/secure/precis"
)

// Each pass of PRECIS casefolding is a composition of idempotent operations,
// but not idempotent itself, so repeat it until it converges (at most four times).
func iterateFolding(profile *precis.Profile, oldStr string) (str string, err error) {
	str = oldStr
	for i := 0; i < 4; i++ {
		str, err = profile.CompareKey(str)
		if err != nil {
			return "", err
		}
		if oldStr == str {
			break
		}
		oldStr = str
	}
	if oldStr != str {
		return "", errCouldNotStabilize
	}
	return str, nil
}

// Casefold returns a casefolded string, without doing any name or channel character checks.
func Casefold(str string) (string, error) {
	return iterateFolding(precis.UsernameCaseMapped, str)
}

// CasefoldChannel returns a casefolded version of a channel name.
// Any leading sigil (#, &, + or !) is kept as-is.
func CasefoldChannel(name string) (string, error) {
	if len(name) == 0 {
		return "", errStringIsEmpty
	}

	var start int
	for start = 0; start < len(name) && strings.IndexByte(channelSigils, name[start]) != -1; start += 1 {
	}

	if start == 0 {
		return "", errInvalidCharacter
	}

	lowered, err := Casefold(name[start:])
	if err != nil {
		return "", err
	}

	// space and , can't appear on the wire inside a channel name
	if strings.ContainsAny(lowered, " ,") {
		return "", errInvalidCharacter
	}

	return name[:start] + lowered, err
}

const channelSigils = "#&+!"

// channelKey is the key a channel is tracked under: its casefolded name,
// or the name as given if it does not casefold.
func channelKey(name string) string {
	if cfname, err := CasefoldChannel(name); err == nil {
		return cfname
	}
	return name
}
