package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// RequestError is a dispatch failure surfaced to the webhook caller with an
// HTTP status. Estimation and journaling failures never become RequestErrors;
// only input errors and adapter/order failures do.
type RequestError struct {
	Status int
	Detail string
}

func (e *RequestError) Error() string {
	return e.Detail
}

// BadRequest builds a 400 error for malformed or insufficient input.
func BadRequest(format string, args ...any) *RequestError {
	return &RequestError{Status: http.StatusBadRequest, Detail: fmt.Sprintf(format, args...)}
}

// Unauthorized builds a 401 error for a passphrase mismatch.
func Unauthorized(detail string) *RequestError {
	return &RequestError{Status: http.StatusUnauthorized, Detail: detail}
}

// Unavailable builds a 500 error for an unconfigured adapter or a broker
// failure.
func Unavailable(format string, args ...any) *RequestError {
	return &RequestError{Status: http.StatusInternalServerError, Detail: fmt.Sprintf(format, args...)}
}

// StatusOf extracts the HTTP status from an error chain, defaulting to 500.
func StatusOf(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Status
	}
	return http.StatusInternalServerError
}
