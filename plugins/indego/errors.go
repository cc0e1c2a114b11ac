package indego

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers network failures, timeouts and refused requests.
	ErrTransport = errors.New("indego transport error")
	// ErrProtocol covers unexpected status codes and unparseable bodies.
	ErrProtocol = errors.New("indego protocol error")
	// ErrAuthExpired is returned when a protected call answers 401.
	ErrAuthExpired = errors.New("indego session expired")
	// ErrUnknownStatus is returned for a valid body with an unmapped status code.
	ErrUnknownStatus = errors.New("indego unknown status code")
	// ErrBusy is returned when a request is dropped because another is in flight.
	ErrBusy = errors.New("indego request already in flight")
)

// RequestError describes a failed exchange with the Indego API.
type RequestError struct {
	Op         string
	StatusCode int
	Err        error
	Cause      error
}

func (e *RequestError) Error() string {
	msg := e.Op + ": " + e.Err.Error()
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (http %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel kind and the underlying cause.
func (e *RequestError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func requestError(op string, kind error, status int, cause error) *RequestError {
	return &RequestError{Op: op, StatusCode: status, Err: kind, Cause: cause}
}
