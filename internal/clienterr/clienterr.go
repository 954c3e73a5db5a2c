// Package clienterr defines the error taxonomy shared by every layer of the
// client: transport failures, lost connections, authentication failures,
// protocol anomalies, connect failures and the terminal failed state.
//
// Errors are matched by kind, so a wrapped error still satisfies
// errors.Is(err, clienterr.ErrConnectionLost).
package clienterr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error
type Kind int

const (
	// KindUnknown is any error not produced by this client
	KindUnknown Kind = iota
	// KindTransport is an I/O failure on the live connection
	KindTransport
	// KindConnectionLost means the connection dropped while a call was pending
	KindConnectionLost
	// KindAuthentication means the token was missing, invalid or denied
	KindAuthentication
	// KindProtocol is a malformed or unexpected frame
	KindProtocol
	// KindApplication is a well-formed error response unrelated to auth
	KindApplication
	// KindConnect is a connector failure
	KindConnect
	// KindFailed means reconnect attempts were exhausted
	KindFailed
	// KindEncode means the request could not be serialized
	KindEncode
	// KindClosed means the client was closed by the caller
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport error"
	case KindConnectionLost:
		return "connection lost"
	case KindAuthentication:
		return "authentication error"
	case KindProtocol:
		return "protocol error"
	case KindApplication:
		return "application error"
	case KindConnect:
		return "connect error"
	case KindFailed:
		return "connection failed"
	case KindEncode:
		return "encode error"
	case KindClosed:
		return "client closed"
	default:
		return "unknown error"
	}
}

// Error is a classified client error
type Error struct {
	Kind Kind
	// Op names the operation that failed, e.g. "mux.read"
	Op  string
	Err error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrTransport      = &Error{Kind: KindTransport}
	ErrConnectionLost = &Error{Kind: KindConnectionLost}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrProtocol       = &Error{Kind: KindProtocol}
	ErrApplication    = &Error{Kind: KindApplication}
	ErrConnect        = &Error{Kind: KindConnect}
	ErrFailed         = &Error{Kind: KindFailed}
	ErrEncode         = &Error{Kind: KindEncode}
	ErrClosed         = &Error{Kind: KindClosed}
)

// New creates an Error of the given kind
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates an Error of the given kind with a formatted cause
func Newf(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether a call that failed with err may be retried on
// a fresh connection. Only lost connections qualify; authentication failures
// are retried by the authentication layer itself.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnectionLost)
}
