// File: reactor/reactor.go
// Author: driftws contributors
// SPDX-License-Identifier: MIT

package reactor

import "errors"

// ErrUnsupportedPlatform is returned by New on platforms with no
// readiness-wait backend.
var ErrUnsupportedPlatform = errors.New("reactor: no readiness-wait backend for this platform")

// Reactor is the readiness-wait primitive (spec.md glossary): it owns a
// set of registered file descriptors and blocks in Wait until a subset
// of them is readable or the timeout elapses.
type Reactor interface {
	// Register adds fd to the watched set for read-readiness.
	Register(fd uintptr) error

	// Unregister removes fd from the watched set. It is a no-op if fd
	// was never registered or already removed.
	Unregister(fd uintptr) error

	// Wait blocks until at least one registered fd is readable or
	// timeoutMs elapses (a negative timeoutMs blocks indefinitely). It
	// returns the readable subset in arbitrary order (spec.md section
	// 5: "no ordering is promised across connections").
	Wait(timeoutMs int) ([]uintptr, error)

	// Close releases the underlying OS resources.
	Close() error
}

// New constructs the platform's Reactor implementation.
func New() (Reactor, error) {
	return newReactor()
}
