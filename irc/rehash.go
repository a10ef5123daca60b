// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

package irc

import (
	"fmt"
	"strconv"

	"github.com/ergochat/bouncer/irc/history"
	"github.com/ergochat/bouncer/irc/logger"
)

// Rehash reloads the configuration file and applies what can change while
// running: the logging setup and the history length. The endpoints given on
// the command line are kept. hist may be nil.
func Rehash(current *Config, logman *logger.Manager, hist *history.Buffer) error {
	if current.Filename == "" {
		return ErrNoConfigFile
	}
	logman.Debug("rehash", "Starting rehash")

	config, err := LoadConfig(current.Filename)
	if err != nil {
		return fmt.Errorf("Error loading config file config: %w", err)
	}
	config.Origin.Host = current.Origin.Host
	config.Origin.Port = current.Origin.Port
	config.Server.Listen = current.Server.Listen
	if err = config.Postprocess(); err != nil {
		return fmt.Errorf("Error applying config changes: %w", err)
	}

	if err = logman.ApplyConfig(config.Logging); err != nil {
		return fmt.Errorf("Error applying logging config: %w", err)
	}
	if hist != nil {
		length := config.History.BufferLength()
		hist.Resize(length)
		logman.Info("rehash", "History length is now", strconv.Itoa(length))
	}
	return nil
}
