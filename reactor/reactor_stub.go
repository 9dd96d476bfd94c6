//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: driftws contributors
//
// Non-Linux platforms have no readiness-wait backend wired up: epoll is
// Linux-only, and a completion-port model (Windows IOCP) doesn't fit
// this package's readiness-set abstraction without a substantially
// different Connection read path, which is out of scope for this core
// (spec.md "Non-goals: multi-process/multi-host scaling" extends in
// spirit to multi-platform backends beyond the reference one).

package reactor

func newReactor() (Reactor, error) {
	return nil, ErrUnsupportedPlatform
}
