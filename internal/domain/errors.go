package domain

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindBusinessRule ErrorKind = "business_rule"
	KindForbidden    ErrorKind = "forbidden"
	KindNotFound     ErrorKind = "not_found"
	KindRaceAbort    ErrorKind = "race_abort"
	KindInternal     ErrorKind = "internal"
)

// Error is a rule violation surfaced to callers. Two errors match under
// errors.Is when their codes are equal, so sentinels can be decorated with With.
type Error struct {
	Kind       ErrorKind
	Code       string
	Message    string
	Candidates []LocationAvailability
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// With returns a copy carrying a more specific message.
func (e *Error) With(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func (e *Error) WithCandidates(candidates []LocationAvailability) *Error {
	cp := *e
	cp.Candidates = candidates
	return &cp
}

func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidRequest = newError(KindValidation, "InvalidRequest", "request is malformed")
	ErrUnauthorized   = newError(KindForbidden, "Unauthorized", "identity required")
	ErrForbidden      = newError(KindForbidden, "Forbidden", "operation not permitted for this identity")

	ErrNoOpenSession                  = newError(KindForbidden, "NoOpenSession", "no open cash session for seller at location")
	ErrSessionAlreadyOpen             = newError(KindBusinessRule, "SessionAlreadyOpen", "a cash session is already open for seller at location")
	ErrSessionClosed                  = newError(KindBusinessRule, "SessionClosed", "cash session is already closed")
	ErrInsufficientStock              = newError(KindBusinessRule, "InsufficientStock", "insufficient stock")
	ErrInsufficientStockSuggestRemote = newError(KindBusinessRule, "InsufficientStockSuggestRemote", "insufficient stock at location, other locations can fulfil")
	ErrPaymentMismatch                = newError(KindBusinessRule, "PaymentMismatch", "payment does not cover the sale total")
	ErrAlreadyCancelled               = newError(KindBusinessRule, "AlreadyCancelled", "sale is already cancelled")

	ErrProductNotFound  = newError(KindNotFound, "ProductNotFound", "product not found or inactive")
	ErrClientNotFound   = newError(KindNotFound, "ClientNotFound", "client not found or inactive")
	ErrLocationNotFound = newError(KindNotFound, "LocationNotFound", "location not found or inactive")
	ErrSaleNotFound     = newError(KindNotFound, "SaleNotFound", "sale not found")
	ErrSessionNotFound  = newError(KindNotFound, "SessionNotFound", "cash session not found")

	ErrStockRace              = newError(KindRaceAbort, "StockRace", "concurrent stock update")
	ErrDuplicateTierThreshold = newError(KindInternal, "DuplicateTierThreshold", "two active tiers share a minimum quantity")
	ErrNegativePrice          = newError(KindInternal, "NegativePrice", "resolved price is negative")
	ErrInternal               = newError(KindInternal, "Internal", "internal error")
)

// KindOf reports the kind of err, defaulting to KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
