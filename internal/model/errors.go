package model

import "errors"

var (
	// ErrSessionNotFound is returned when a session is not found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoHandlerAvailable is returned when no handler can take a message.
	ErrNoHandlerAvailable = errors.New("no handler available")

	// ErrNoResponderConfigured is returned when no response back end is registered.
	ErrNoResponderConfigured = errors.New("no responder configured")

	// ErrMalformedFrame is returned when an inbound frame cannot be decoded.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrEmptyContent is returned when a chat message has no content.
	ErrEmptyContent = errors.New("message content is required")
)
