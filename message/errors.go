package message

import "errors"

// Codec and protocol errors. These are sentinel values, not
// exception types: call sites compare against them and translate to a
// DISCONNECT reason or a ban.
var (
	ErrEmptyMessage          = errors.New("message: empty message")
	ErrParseMessageFailed    = errors.New("message: parse failed (truncated input)")
	ErrMessageWithWrongLength = errors.New("message: declared length does not match body")
	ErrBadMessage            = errors.New("message: invalid scalar value")
	ErrBigMessage            = errors.New("message: frame exceeds maximum body size")
	ErrNoSuchMessage         = errors.New("message: no handler for message type")
	ErrBadProtocol           = errors.New("message: protocol violation")
	ErrTypeAlreadyRegistered = errors.New("message: handler type already registered")
)
