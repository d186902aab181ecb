package apperrors

import "errors"

// Standardized Exchange Errors
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrOrderRejected     = errors.New("order rejected")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrNetwork           = errors.New("network error")
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrPriceUnavailable  = errors.New("price unavailable")
)

// Book and constraint errors
var (
	ErrDuplicateSymbol  = errors.New("duplicate symbol")
	ErrPositionNotFound = errors.New("position not found")
	ErrBelowMinNotional = errors.New("amount below min notional")
)

// IsTransient reports whether an exchange error may succeed on a later
// tick. Constraint violations and unknown symbols are permanent for the
// amounts involved and must not be retried as-is.
func IsTransient(err error) bool {
	switch {
	case errors.Is(err, ErrNetwork),
		errors.Is(err, ErrRateLimitExceeded),
		errors.Is(err, ErrOrderRejected),
		errors.Is(err, ErrPriceUnavailable):
		return true
	default:
		return false
	}
}
