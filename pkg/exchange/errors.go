package exchange

import (
	"errors"
	"fmt"
)

// Common errors for rate refreshes. Every refresh failure is reported as an
// *APIError that unwraps to one of these.
var (
	// ErrMissingCredential indicates the pricing-source credential is not set.
	ErrMissingCredential = errors.New("missing pricing source credential")

	// ErrTransport indicates the request failed or returned a non-2xx status.
	ErrTransport = errors.New("pricing source request failed")

	// ErrInvalidResponse indicates the response body could not be decoded.
	ErrInvalidResponse = errors.New("invalid pricing source response")

	// ErrInvalidRateFormat indicates a rate entry was not a number.
	ErrInvalidRateFormat = errors.New("invalid rate format")

	// ErrInvalidTimestamp indicates the response timestamp was unusable and
	// strict timestamps are enabled.
	ErrInvalidTimestamp = errors.New("invalid response timestamp")

	// ErrRateNotFound indicates a refresh succeeded but did not price the
	// requested currency.
	ErrRateNotFound = errors.New("exchange rate not found")
)

// APIError is a failed refresh or lookup. Message is meant for end users.
type APIError struct {
	Message string
	Err     error
}

// NewAPIError builds an APIError around a sentinel with a formatted message.
func NewAPIError(sentinel error, format string, args ...any) *APIError {
	return &APIError{Message: fmt.Sprintf(format, args...), Err: sentinel}
}

func (e *APIError) Error() string {
	if e.Message == "" && e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsAPIError reports whether err is or wraps an *APIError.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
