package server

import "errors"

// Failures a connection can run into. Each one is contained to the connection
// that caused it and never reaches the accept loop.
var (
	// ErrAdmissionRejected means the server was at capacity; the transport was
	// closed after the full-capacity notice and no Session exists.
	ErrAdmissionRejected = errors.New("admission rejected: server is full")
	// ErrInvalidHandshake means the first line was missing, blank or unusable as a name.
	ErrInvalidHandshake = errors.New("invalid handshake")
	// ErrNameTaken means another Session already holds the requested name.
	ErrNameTaken = errors.New("name already taken")
	// ErrMalformedCommand is a /pm without a recipient/message separator.
	ErrMalformedCommand = errors.New("malformed command")
	// ErrRecipientNotFound is a /pm to a name that is not registered.
	ErrRecipientNotFound = errors.New("recipient not found")
	// ErrTransportFailure wraps read/write errors on a Session's transport.
	ErrTransportFailure = errors.New("transport failure")
	// ErrShutdownInProgress is returned for registrations attempted after shutdown began.
	ErrShutdownInProgress = errors.New("shutdown in progress")
)
