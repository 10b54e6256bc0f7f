package dnsdisc

import "fmt"

// Code is a stable string identifying the kind of dnsdisc failure, usable
// as a log field or a disconnect-reason lookup key without string
// matching on Error().
type Code string

const (
	CodeInvalidRoot      Code = "INVALID_ROOT"
	CodeInvalidSignature Code = "INVALID_SIGNATURE"
	CodeHashMissMatch    Code = "HASH_MISS_MATCH"
	CodeNodesInLinkTree  Code = "NODES_IN_LINK_TREE"
	CodeLinkInNodesTree  Code = "LINK_IN_NODES_TREE"
	CodeMalformedEntry   Code = "MALFORMED_ENTRY"
	CodeDeltaTooLarge    Code = "DELTA_TOO_LARGE"
)

// Error wraps a dnsdisc failure with its stable Code.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("dnsdisc: %s", e.Code)
	}
	return fmt.Sprintf("dnsdisc: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func fail(code Code, err error) error {
	return &Error{Code: code, Err: err}
}
