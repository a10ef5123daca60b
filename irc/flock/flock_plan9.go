// Copyright (c) 2026 the Ergo bouncer authors
// released under the MIT license

//go:build plan9 || solaris

package flock

// gofrs/flock does not support these platforms; locking is skipped.
func TryAcquireFlock(path string) (fl Flocker, err error) {
	return &noopFlocker{}, nil
}
