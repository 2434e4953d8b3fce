// Package certerr defines the error categories shared by the chaincode and its clients.
//
// The chaincode can only return a message string across the Fabric wire, so an
// Error renders as "<CODE>: <message>" and Parse recovers the category on the
// client side.
package certerr

import (
	"errors"
	"strings"
)

// Code is a stable error category independent of transport.
type Code string

const (
	CodeValidation     Code = "VALIDATION"
	CodeAuthorization  Code = "AUTHORIZATION"
	CodeDuplicate      Code = "DUPLICATE"
	CodeNotFound       Code = "NOT_FOUND"
	CodeAlreadyRevoked Code = "ALREADY_REVOKED"
	CodeConnection     Code = "CONNECTION"
	CodeIdentity       Code = "IDENTITY"
	CodeTimeout        Code = "TIMEOUT"
	CodeEndorsement    Code = "ENDORSEMENT"
	CodeCommit         Code = "COMMIT"
	CodeHashing        Code = "HASHING"
	CodeInternal       Code = "INTERNAL"
)

var knownCodes = []Code{
	CodeValidation,
	CodeAuthorization,
	CodeDuplicate,
	CodeNotFound,
	CodeAlreadyRevoked,
	CodeConnection,
	CodeIdentity,
	CodeTimeout,
	CodeEndorsement,
	CodeCommit,
	CodeHashing,
	CodeInternal,
}

// Error carries a Code alongside a human-readable message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates an error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates an error wrapping err.
// If err already carries a code, that code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if err carries the given code anywhere in its chain.
func HasCode(err error, code Code) bool {
	return CodeOf(err) == code
}

// CodeOf returns the outermost code in err's chain, or "" if there is none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Parse recovers a categorized error from a message produced by Error.Error.
// The code may appear anywhere in msg because transports prepend their own
// context (for example "chaincode response 500, VALIDATION: ...").
func Parse(msg string) (*Error, bool) {
	best := -1
	var found Code
	for _, code := range knownCodes {
		idx := strings.Index(msg, string(code)+": ")
		if idx < 0 {
			continue
		}
		if idx > 0 && isCodeChar(msg[idx-1]) {
			continue
		}
		if best < 0 || idx < best {
			best = idx
			found = code
		}
	}
	if best < 0 {
		return nil, false
	}
	rest := msg[best+len(found)+2:]
	return &Error{Code: found, Message: strings.TrimSpace(rest)}, true
}

func isCodeChar(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z')
}
