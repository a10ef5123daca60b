// Copyright (c) 2021 Shivaram Lingamneni
// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package irc

import (
	"fmt"
	"runtime/debug"

	"github.com/ergochat/bouncer/irc/logger"
)

// HandlePanic is a general-purpose panic handler for ad-hoc goroutines.
// Because of the semantics of `recover`, it must be called directly
// from the routine on whose call stack the panic would occur, with `defer`,
// e.g. `defer HandlePanic(logger)`
func HandlePanic(logger *logger.Manager) {
	if r := recover(); r != nil {
		logger.Error("internal", fmt.Sprintf("Panic encountered: %v\n%s", r, debug.Stack()))
	}
}
