// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

// Package flock keeps two bouncers from running against the same lock file.
package flock

// documentation for github.com/gofrs/flock incorrectly claims that
// Flock implements sync.Locker; it does not because the Unlock method
// has a return type (err).
type Flocker interface {
	Unlock() error
}

type noopFlocker struct{}

func (n *noopFlocker) Unlock() error {
	return nil
}
