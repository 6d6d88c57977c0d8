package domain

import (
	"errors"
	"fmt"
)

// Kind is the error-kind taxonomy from the error handling design: a closed
// set of recoverable/terminal outcomes distinguished by value, not by type
// hierarchy, so callers switch on Kind rather than unwind a stack.
type Kind string

const (
	KindMalformed       Kind = "malformed"
	KindNotFound        Kind = "not_found"
	KindUpstream        Kind = "upstream"
	KindUnavailable     Kind = "unavailable"
	KindInvalidOrder    Kind = "invalid_order"
	KindLockUnavailable Kind = "lock_unavailable"
	KindDuplicate       Kind = "duplicate"
	KindStorage         Kind = "storage"
	KindRetryStore      Kind = "retry_store"
)

// Error is the single error type carrying a Kind plus context. Components
// never wrap it in custom error structs; they construct one of the New*
// helpers below and compare kinds with errors.As/Is.
type Error struct {
	Kind   Kind
	Entity string
	ID     string
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
	case KindInvalidOrder:
		return fmt.Sprintf("invalid order: %s", e.Reason)
	case KindDuplicate:
		return fmt.Sprintf("duplicate order %s", e.ID)
	case KindMalformed:
		return fmt.Sprintf("malformed message: %s", e.Reason)
	case KindLockUnavailable:
		return fmt.Sprintf("lock unavailable for order %s", e.ID)
	default:
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
		}
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, domain.ErrKind(KindX)) match any *Error of kind X.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

// ErrKind builds a sentinel of the given kind for use with errors.Is.
func ErrKind(k Kind) error { return &Error{Kind: k} }

func NewMalformed(reason string) error {
	return &Error{Kind: KindMalformed, Reason: reason}
}

func NewNotFound(entity, id string) error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: id}
}

func NewUpstream(cause error) error {
	return &Error{Kind: KindUpstream, Cause: cause}
}

func NewUnavailable(entity string) error {
	return &Error{Kind: KindUnavailable, Entity: entity}
}

func NewInvalidOrder(reason string) error {
	return &Error{Kind: KindInvalidOrder, Reason: reason}
}

func NewLockUnavailable(orderID string) error {
	return &Error{Kind: KindLockUnavailable, ID: orderID}
}

func NewDuplicate(orderID string) error {
	return &Error{Kind: KindDuplicate, ID: orderID}
}

func NewStorage(cause error) error {
	return &Error{Kind: KindStorage, Cause: cause}
}

func NewRetryStore(cause error) error {
	return &Error{Kind: KindRetryStore, Cause: cause}
}

// KindOf extracts the Kind of err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
