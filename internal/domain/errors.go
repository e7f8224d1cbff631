package domain

import (
	"errors"
	"fmt"
)

// Kind identifies a class of engine error. Wire error bodies carry the
// same names in their "id" field, which is why these are strings.
type Kind string

const (
	KindInvalidFields          Kind = "InvalidFieldsError"
	KindExternal               Kind = "ExternalError"
	KindTimeout                Kind = "TimeoutError"
	KindTransferNotFound       Kind = "TransferNotFoundError"
	KindTransferNotConditional Kind = "TransferNotConditionalError"
	KindAlreadyRolledBack      Kind = "AlreadyRolledBackError"
	KindAlreadyFulfilled       Kind = "AlreadyFulfilledError"
	KindMissingFulfillment     Kind = "MissingFulfillmentError"
	KindDuplicateID            Kind = "DuplicateIdError"
	KindNotAccepted            Kind = "NotAcceptedError"
	KindNoSubscriptions        Kind = "NoSubscriptionsError"
	KindUnrelatedNotification  Kind = "UnrelatedNotificationError"
)

// Error is the single error type surfaced across the engine boundary.
// Status carries the originating HTTP status when one exists, zero
// otherwise.
type Error struct {
	Kind    Kind
	Message string
	Status  int
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is match two engine errors by kind alone, so callers
// can compare against a bare kinded sentinel.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NewHTTPError(kind Kind, status int, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Status: status}
}

// IsKind reports whether err or anything it wraps is an engine Error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// KindOf returns the kind of the innermost engine Error, or "" when err
// is not one.
func KindOf(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
