// Copyright (c) 2025
// Author: driftws contributors
//
// Package reactor provides the readiness-wait primitive the server loop
// blocks on (spec.md section 5, glossary "Readiness wait"): a bound set
// of file descriptors plus a call that blocks until some subset of them
// is readable or a timeout elapses. The only production backend is
// Linux epoll; other platforms get an explicit "unsupported" error
// rather than a silently degraded emulation.
package reactor
