package domain

import "errors"

var (
	// ErrSessionActive is returned by SetFile while a media session already
	// exists. Caller contract violation, fatal to that call.
	ErrSessionActive = errors.New("media session already active")

	// ErrNoSession is returned by operations that require a loaded file.
	ErrNoSession = errors.New("no media session")

	// ErrClientGone means the addressed connection is no longer registered
	// with the transport.
	ErrClientGone = errors.New("client not connected")

	// ErrRequestTimeout means a peer did not reply within its bound.
	ErrRequestTimeout = errors.New("peer request timed out")

	// ErrInvalidReply means a peer replied with a payload that does not
	// decode into the expected shape.
	ErrInvalidReply = errors.New("invalid peer reply")

	// ErrProtocolViolation covers unrecognized tags and undecodable
	// payloads on inbound messages. Connection fatal.
	ErrProtocolViolation = errors.New("protocol violation")
)
