package trade

import (
	"errors"
	"fmt"
)

// Kind classifies an engine error for callers and transports.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindConflict      Kind = "conflict"
	KindBusiness      Kind = "business"
	KindNotFound      Kind = "not_found"
)

// Error is the engine's machine-readable failure. Two errors match under
// errors.Is when their codes are equal, so sentinels work after With.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Retryable reports whether repeating the same call may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindConflict
}

// With returns a copy of e carrying a more specific message.
func (e *Error) With(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...)}
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrValidation            = newError(KindValidation, "ValidationFailed", "invalid request")
	ErrSelfTradeNotAllowed   = newError(KindBusiness, "SelfTradeNotAllowed", "cannot trade with yourself")
	ErrCashOutOfBounds       = newError(KindBusiness, "CashOutOfBounds", "cash amount out of bounds")
	ErrInvalidRefundAmount   = newError(KindBusiness, "InvalidRefundAmount", "refund amount out of bounds")
	ErrInvalidItemOwnership  = newError(KindValidation, "InvalidItemOwnership", "item is not owned by the offering party")
	ErrItemNotTradable       = newError(KindValidation, "ItemNotTradable", "item is not available for trade")
	ErrInvalidAddress        = newError(KindValidation, "InvalidAddress", "address does not belong to the sender")
	ErrProductNotFound       = newError(KindNotFound, "ProductNotFound", "product not found")
	ErrTradeNotFound         = newError(KindNotFound, "TradeNotFound", "trade not found")
	ErrItemAlreadyCommitted  = newError(KindConflict, "ItemAlreadyCommitted", "item is committed to another active trade")
	ErrItemNoLongerAvailable = newError(KindConflict, "ItemNoLongerAvailable", "item is no longer available")
	ErrConcurrentUpdate      = newError(KindConflict, "ConcurrentUpdate", "trade was modified concurrently")
	ErrInvalidActor          = newError(KindAuthorization, "InvalidActor", "actor may not perform this action")
	ErrUnauthorizedResolver  = newError(KindAuthorization, "UnauthorizedResolver", "only moderators may resolve disputes")
	ErrInvalidStateForAction = newError(KindState, "InvalidStateForAction", "action not allowed in current status")
	ErrAlreadyShipped        = newError(KindState, "AlreadyShipped", "leg already marked shipped")
	ErrNothingToConfirm      = newError(KindState, "NothingToConfirm", "counterparty has not shipped yet")
	ErrAlreadyConfirmed      = newError(KindState, "AlreadyConfirmed", "receipt already confirmed")
	ErrDisputeAlreadyOpen    = newError(KindState, "DisputeAlreadyOpen", "a dispute is already open")
	ErrDisputeNotOpen        = newError(KindState, "DisputeNotOpen", "no open dispute on this trade")
)

// AsError extracts the engine error from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func invalidState(op string, s Status) *Error {
	return ErrInvalidStateForAction.With("cannot %s a trade in status %s", op, s)
}
