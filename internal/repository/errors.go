// Package repository holds the persistence layer: MySQL-backed stores
// for mics, rosters, users and refresh tokens, plus in-memory versions
// of the same contracts.  Sentinel errors below let the service layer
// tell failure scenarios apart without inspecting driver errors.
package repository

import "errors"

// ErrForbidden is returned when the caller attempts an operation
// on a mic they do not host.
var ErrForbidden = errors.New("forbidden")

// ErrConflict signals that a row cannot be written because of
// conflicting state, such as a duplicate roster entry.
var ErrConflict = errors.New("conflict")

var (
    ErrMicNotFound  = errors.New("mic not found")
    ErrUserNotFound = errors.New("user not found")
    ErrEmailExists  = errors.New("email already exists")
    // ErrTokenInvalid covers unknown, revoked and expired refresh tokens.
    ErrTokenInvalid = errors.New("refresh token invalid")
)
