package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies business failures. A Kind is itself an error so callers can
// match with errors.Is(err, apperr.InsufficientStock).
type Kind string

const (
	NotFound             Kind = "NOT_FOUND"
	InvalidInput         Kind = "INVALID_INPUT"
	InvalidTransition    Kind = "INVALID_TRANSITION"
	InvalidState         Kind = "INVALID_STATE"
	TableUnavailable     Kind = "TABLE_UNAVAILABLE"
	InsufficientStock    Kind = "INSUFFICIENT_STOCK"
	ItemNotOnSale        Kind = "ITEM_NOT_ON_SALE"
	CouponExhausted      Kind = "COUPON_EXHAUSTED"
	CouponNotActive      Kind = "COUPON_NOT_ACTIVE"
	LevelTooLow          Kind = "LEVEL_TOO_LOW"
	PerUserLimitExceeded Kind = "PER_USER_LIMIT_EXCEEDED"
	CouponNotUsable      Kind = "COUPON_NOT_USABLE"
	InsufficientPoints   Kind = "INSUFFICIENT_POINTS"
	PaymentProviderError Kind = "PAYMENT_PROVIDER_ERROR"
	AmountMismatch       Kind = "AMOUNT_MISMATCH"
)

func (k Kind) Error() string { return string(k) }

type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WithDetails(kind Kind, message string, details map[string]any) *Error {
	return &Error{Kind: kind, Message: message, Details: details}
}

// Wrap attaches a kind to an underlying error, e.g. a gateway failure.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message + ": " + err.Error(), cause: err}
}

// KindOf returns the kind carried by err, or "" for infrastructure errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}

func IsBusiness(err error) bool { return KindOf(err) != "" }
