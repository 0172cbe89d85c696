package service

import (
	"errors"
	"fmt"
)

// Kind classifies engine failures for callers.
type Kind string

const (
	KindNotFound       Kind = "NOT_FOUND"
	KindConflict       Kind = "CONFLICT"
	KindForbidden      Kind = "FORBIDDEN"
	KindInvalidRequest Kind = "INVALID_REQUEST"
)

// Error is a classified failure with a stable message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func notFound(msg string) error       { return &Error{Kind: KindNotFound, Message: msg} }
func conflict(msg string) error       { return &Error{Kind: KindConflict, Message: msg} }
func forbidden(msg string) error      { return &Error{Kind: KindForbidden, Message: msg} }
func invalidRequest(msg string) error { return &Error{Kind: KindInvalidRequest, Message: msg} }

// KindOf returns the kind of a classified error, or "" for internal errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err is classified as k.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }

// Sentinel errors returned by Store implementations.
var (
	ErrNotFound   = errors.New("not found")
	ErrOverlap    = errors.New("booking overlaps an active booking")
	ErrDuplicate  = errors.New("duplicate key")
	ErrContention = errors.New("transaction aborted by concurrent update")
)

// errOperationFailed is reported when a guarded write matched no row.
const errOperationFailed = "operation failed"

// classifyStore maps store sentinels onto the taxonomy. Unknown errors
// are wrapped with op and returned as internal failures.
func classifyStore(op string, err error, missing string) error {
	switch {
	case err == nil:
		return nil
	case KindOf(err) != "":
		return err
	case errors.Is(err, ErrNotFound):
		return notFound(missing)
	case errors.Is(err, ErrOverlap):
		return &Error{Kind: KindConflict, Message: "seat already booked for this interval", Err: err}
	case errors.Is(err, ErrContention):
		return &Error{Kind: KindConflict, Message: errOperationFailed, Err: err}
	case errors.Is(err, ErrDuplicate):
		return &Error{Kind: KindConflict, Message: "already exists", Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
