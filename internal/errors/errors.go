package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// default error is internal service error at handler level
// if error has different status code use ErrorWithStatusCode
type ErrorWithStatusCode struct {
	Message    string
	StatusCode int
}

func (e *ErrorWithStatusCode) Error() string {
	return e.Message
}

// Error taxonomy of the thread service. Constructors so every layer
// produces the same wording and status code.

func NotAuthorized() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Not authorized to view this thread", StatusCode: http.StatusForbidden}
}

func NotOwner() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Thread is claimed by another counselor", StatusCode: http.StatusForbidden}
}

func ThreadClosed() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Thread is closed", StatusCode: http.StatusConflict}
}

func ThreadNotFound() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Thread not found", StatusCode: http.StatusNotFound}
}

func EmptyText() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Message text is empty", StatusCode: http.StatusBadRequest}
}

func TextTooLong(limit int) *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: fmt.Sprintf("Message text exceeds the allowed length of %d characters", limit), StatusCode: http.StatusBadRequest}
}

func ServiceUnavailable() *ErrorWithStatusCode {
	return &ErrorWithStatusCode{Message: "Temporary failure, please retry", StatusCode: http.StatusServiceUnavailable}
}

// ErrTransientConflict marks a lost atomic-update race (claim or
// ensure). Services retry a bounded number of times before escalating
// to ServiceUnavailable; it never reaches a handler.
var ErrTransientConflict = errors.New("transient store conflict")

func IsTransientConflict(err error) bool {
	return errors.Is(err, ErrTransientConflict)
}
