package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/open-mic/internal/micstate"
	"github.com/iliyamo/open-mic/internal/repository"
)

// Kind classifies a failure for the transport layer.
type Kind int

const (
	KindInternal   Kind = iota
	KindValidation      // malformed input, 400
	KindBadRequest      // domain rule violated, 400, message shown to the user
	KindConflict        // email belongs to an account, 403 with the email
	KindForbidden       // caller may not act on this mic, 403
	KindNotFound        // unknown mic or performer, 404
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBadRequest:
		return "bad_request"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	}
	return "internal"
}

// Error is a classified service failure.  Msg is safe to show to users.
type Error struct {
	Kind  Kind
	Msg   string
	Email string // set for KindConflict
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound lets transports without a service import detect KindNotFound.
func (e *Error) NotFound() bool { return e.Kind == KindNotFound }

func validation(err error) error {
	return &Error{Kind: KindValidation, Msg: err.Error(), Err: err}
}

func badRequest(msg string) error {
	return &Error{Kind: KindBadRequest, Msg: msg}
}

// errCheckinClosed rejects lineup operations before the host opens
// check-in.
var errCheckinClosed = badRequest("check-in is not open")

func forbidden(msg string) error {
	return &Error{Kind: KindForbidden, Msg: msg, Err: repository.ErrForbidden}
}

func notFound(msg string, err error) error {
	return &Error{Kind: KindNotFound, Msg: msg, Err: err}
}

// KindOf returns the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// classify maps store and roster errors onto service errors.  Already
// classified errors pass through.
func classify(err error) error {
	var se *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &se):
		return err
	case errors.Is(err, repository.ErrMicNotFound):
		return notFound("mic not found", err)
	case errors.Is(err, micstate.ErrPerformerNotFound):
		return notFound("performer not found", err)
	case errors.Is(err, micstate.ErrAlreadyCheckedIn),
		errors.Is(err, micstate.ErrAlreadySkipped),
		errors.Is(err, micstate.ErrSetComplete),
		errors.Is(err, micstate.ErrNotCheckedIn),
		errors.Is(err, micstate.ErrNotSkipped),
		errors.Is(err, micstate.ErrAlreadyCurrent):
		return &Error{Kind: KindBadRequest, Msg: err.Error(), Err: err}
	}
	return fmt.Errorf("service: %w", err)
}
