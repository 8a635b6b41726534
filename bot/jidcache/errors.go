package jidcache

import (
	"errors"
	"fmt"
)

// Errors that can be checked with errors.Is.
var (
	// ErrNotLID is returned when ResolveLID is given something that is not a linked identifier.
	ErrNotLID = errors.New("jidcache: not a lid")

	// ErrUnresolved is returned when a LID has no known phone-number mapping.
	// Once returned for a LID, later calls fail fast without contacting the socket.
	ErrUnresolved = errors.New("jidcache: lid unresolved")

	// ErrInvalidJID is returned when an identifier cannot be normalized.
	ErrInvalidJID = errors.New("jidcache: invalid jid")

	// ErrNotGroup is returned when group metadata is requested for a non-group identifier.
	ErrNotGroup = errors.New("jidcache: not a group jid")

	// ErrGroupNotFound is returned when the socket has no metadata for a group.
	ErrGroupNotFound = errors.New("jidcache: group not found")

	// ErrNotOnWhatsApp is returned when a phone number is not registered.
	ErrNotOnWhatsApp = errors.New("jidcache: phone not on whatsapp")
)

// ResolveError wraps a failure with the operation and identifier involved.
type ResolveError struct {
	// Op is the operation that failed, e.g. "resolve lid" or "group metadata".
	Op string

	// ID is the identifier the operation was called with, normalized when possible.
	ID string

	Err error
}

func (e *ResolveError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ResolveError) Unwrap() error {
	return e.Err
}

func newUnresolvedError(lid string, cause error) error {
	err := ErrUnresolved
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrUnresolved, cause)
	}
	return &ResolveError{Op: "resolve lid", ID: lid, Err: err}
}
