package payments

import (
	"errors"
	"fmt"
)

// Machine-readable error codes surfaced to API callers so clients can branch
// without string matching.
const (
	CodeConfiguration         = "configuration_error"
	CodePaymentMethodRequired = "payment_method_required"
	CodeAlreadySubscribed     = "already_subscribed"
	CodeNotFound              = "not_found"
	CodeForbidden             = "forbidden"
	CodeProviderUnavailable   = "provider_unavailable"
	CodeSignatureInvalid      = "signature_invalid"
)

// Error carries a stable code alongside the human-readable message.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches by code so errors.Is(err, ErrAlreadySubscribed) works for any
// wrapped instance carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

var (
	ErrConfiguration         = &Error{Code: CodeConfiguration, Message: "billing configuration error"}
	ErrPaymentMethodRequired = &Error{Code: CodePaymentMethodRequired, Message: "a saved payment method is required"}
	ErrAlreadySubscribed     = &Error{Code: CodeAlreadySubscribed, Message: "a subscription already exists"}
	ErrNotFound              = &Error{Code: CodeNotFound, Message: "not found"}
	ErrForbidden             = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrProviderUnavailable   = &Error{Code: CodeProviderUnavailable, Message: "payment provider unavailable"}
	ErrSignatureInvalid      = &Error{Code: CodeSignatureInvalid, Message: "invalid webhook signature"}
)

func configurationError(format string, args ...any) error {
	return &Error{Code: CodeConfiguration, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func providerError(msg string, err error) error {
	return &Error{Code: CodeProviderUnavailable, Message: msg, Err: err}
}

// CodeOf extracts the machine-readable code, defaulting to an internal
// marker for errors outside the taxonomy.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal_error"
}
