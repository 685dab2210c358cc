// internal/pkg/apperror/apperror.go
package apperror

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind classifies domain errors so callers can translate them
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindInvalidState        Kind = "invalid_state"
	KindInvalidArgument     Kind = "invalid_argument"
	KindInsufficientStock   Kind = "insufficient_stock"
	KindConcurrencyConflict Kind = "concurrency_conflict"
	KindInternal            Kind = "internal"
)

// Error is a domain error carrying a kind
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Sentinels for errors.Is checks
var (
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrInvalidState        = &Error{Kind: KindInvalidState}
	ErrInvalidArgument     = &Error{Kind: KindInvalidArgument}
	ErrInsufficientStock   = &Error{Kind: KindInsufficientStock}
	ErrConcurrencyConflict = &Error{Kind: KindConcurrencyConflict}
)

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NotFound creates a not found error
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// InvalidState creates an invalid lifecycle state error
func InvalidState(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument creates a validation error
func InvalidArgument(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// ConcurrencyConflict wraps a lost update or lock failure. Callers must retry.
func ConcurrencyConflict(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConcurrencyConflict, Message: fmt.Sprintf(format, args...), Err: err}
}

// InsufficientStockError reports the shortfall for one requested item
type InsufficientStockError struct {
	ItemName  string
	Brand     string
	Requested decimal.Decimal
	Available decimal.Decimal
	Shortfall decimal.Decimal
}

// InsufficientStock creates an insufficient stock error
func InsufficientStock(itemName, brand string, requested, available decimal.Decimal) *InsufficientStockError {
	shortfall := requested.Sub(available)
	if shortfall.IsNegative() {
		shortfall = decimal.Zero
	}
	return &InsufficientStockError{
		ItemName:  itemName,
		Brand:     brand,
		Requested: requested,
		Available: available,
		Shortfall: shortfall,
	}
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (%s): requested %s, available %s, short by %s",
		e.ItemName, e.Brand, e.Requested.String(), e.Available.String(), e.Shortfall.String())
}

// Is matches ErrInsufficientStock
func (e *InsufficientStockError) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == KindInsufficientStock
}

// KindOf returns the kind of err, KindInternal for anything unclassified
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var insufficient *InsufficientStockError
	if errors.As(err, &insufficient) {
		return KindInsufficientStock
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsConflict reports whether err should be retried by the caller
func IsConflict(err error) bool {
	return KindOf(err) == KindConcurrencyConflict
}
