package server

import "errors"

var (
	// ErrAlreadyRunning is returned by every Start call after the first.
	ErrAlreadyRunning = errors.New("server: already running")

	// ErrNoHandlerFactory is returned by New when no WithHandlerFactory option
	// was supplied: without it no connection can ever receive events.
	ErrNoHandlerFactory = errors.New("server: no connect handler configured")
)
