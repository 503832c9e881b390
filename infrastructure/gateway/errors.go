package gateway

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindNetwork      ErrorKind = "Network"
	KindUnauthorized ErrorKind = "Unauthorized"
	KindNotFound     ErrorKind = "NotFound"
	KindRateLimited  ErrorKind = "RateLimited"
	KindServer       ErrorKind = "Server"
	KindMalformed    ErrorKind = "Malformed"
)

// Error is the typed failure every gateway call returns. Network,
// RateLimited and Server are retriable by the caller; the rest are not.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("gateway %s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Message)
}

func (e *Error) Retriable() bool {
	return e.Kind == KindNetwork || e.Kind == KindRateLimited || e.Kind == KindServer
}

// IsRetriable reports whether err is a retriable gateway error.
func IsRetriable(err error) bool {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Retriable()
	}
	return false
}

func errorFromStatus(status int, body string) *Error {
	switch {
	case status == 401 || status == 403:
		return &Error{Kind: KindUnauthorized, Status: status, Message: body}
	case status == 404:
		return &Error{Kind: KindNotFound, Status: status, Message: body}
	case status == 429:
		return &Error{Kind: KindRateLimited, Status: status, Message: body}
	case status >= 500:
		return &Error{Kind: KindServer, Status: status, Message: body}
	default:
		return &Error{Kind: KindMalformed, Status: status, Message: body}
	}
}
