package micclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed call so callers can react without parsing
// messages.
type Kind int

const (
	// KindValidation means the request was rejected locally and never sent.
	KindValidation Kind = iota + 1
	// KindConflict means an anonymous signup used an account's email; the
	// user should log in.  Error.Email carries the address.
	KindConflict
	// KindBadRequest means a domain rule was violated.  Msg is meant to be
	// shown to the user as is.
	KindBadRequest
	KindUnauthorized
	KindNotFound
	// KindNetwork means the server was not reached or the exchange broke
	// off.  Only these are retried.
	KindNetwork
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	}
	return "unknown"
}

// Error is returned by every Client and Session call that fails.
type Error struct {
	Kind   Kind
	Status int // HTTP status, 0 when no response was received
	Msg    string
	Email  string
	Err    error
	// Retried is set when an earlier attempt of the same call failed in
	// transit.  That attempt may have been applied by the server.
	Retried bool
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "":
		return fmt.Sprintf("micclient: %s: %s", e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("micclient: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("micclient: %s (status %d)", e.Kind, e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of err, 0 when err is not an *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool { return KindOf(err) == KindNetwork }

// WasRetried reports whether err came back from a call that was retried.
func WasRetried(err error) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Retried
}

func validationError(err error) error {
	return &Error{Kind: KindValidation, Msg: err.Error(), Err: err}
}

func networkError(err error) error {
	return &Error{Kind: KindNetwork, Err: err}
}

// statusError classifies a non-2xx response.  body is the (possibly empty)
// response body; the server answers {"error": msg[, "email": addr]}.
func statusError(status int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		payload.Error = http.StatusText(status)
	}
	e := &Error{Status: status, Msg: payload.Error, Email: payload.Email}
	switch {
	case status == http.StatusBadRequest:
		e.Kind = KindBadRequest
	case status == http.StatusUnauthorized:
		e.Kind = KindUnauthorized
	case status == http.StatusForbidden && payload.Email != "":
		e.Kind = KindConflict
	case status == http.StatusForbidden:
		e.Kind = KindUnauthorized
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status == http.StatusTooManyRequests, status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		// Overload and proxies in front of a restarting server.
		e.Kind = KindNetwork
	default:
		e.Kind = KindServer
	}
	return e
}
