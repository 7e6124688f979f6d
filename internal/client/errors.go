package client

import "errors"

var (
	// ErrConnect is returned by Run when the very first connection fails; the
	// caller usually asks for a different address and tries again.
	ErrConnect = errors.New("unable to connect to the server")
	// ErrGivenUp means the user declined to reconnect or every attempt failed.
	ErrGivenUp = errors.New("gave up reconnecting")
	// ErrRejected means the server sent a notice that ends the session for good
	// (full, invalid or taken name).
	ErrRejected = errors.New("rejected by server")

	errDisconnected = errors.New("disconnected from server")
)
