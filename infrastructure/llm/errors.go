package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
)

type Kind string

const (
	KindTransient   Kind = "TransientError"
	KindPermanent   Kind = "PermanentError"
	KindUnsupported Kind = "Unsupported"
	KindTooLarge    Kind = "TooLarge"
)

type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("llm %s: %s", e.Kind, e.Message) }

// IsRetriable reports whether err is worth another transcription attempt.
// Network failures, rate limits, 5xx and timeouts qualify.
func IsRetriable(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind == KindTransient
	}
	return false
}

func classify(err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTransient, Message: "request timed out"}
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			return &Error{Kind: KindTransient, Message: err.Error()}
		}
		return &Error{Kind: KindPermanent, Message: err.Error()}
	}
	// Anything that never produced an HTTP status is a transport failure.
	return &Error{Kind: KindTransient, Message: err.Error()}
}
