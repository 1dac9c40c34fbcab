// Package provider abstracts the text-generation backend a persona's
// review is produced by. Implementations classify their failures into
// a fixed taxonomy so the invoker can decide what is retryable.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindRateLimit  ErrorKind = "rate_limit"
	KindConnection ErrorKind = "connection"
	KindBadRequest ErrorKind = "bad_request"
	KindOther      ErrorKind = "other"
)

// Error is a classified provider failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("provider %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient. Only rate-limit
// and connection failures qualify; auth and bad-request errors will
// fail the same way on a retry.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimit || e.Kind == KindConnection
}

// KindOf extracts the ErrorKind from an error chain, or KindOther.
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindOther
}

// Generator produces raw review output for one persona prompt against
// one document. The returned string is untrusted structured output;
// parsing and validation happen at the anchoring boundary.
type Generator interface {
	// Name identifies the provider (e.g. "anthropic").
	Name() string
	// Generate runs one completion. systemPrompt carries the persona
	// instructions; content is the document snapshot text.
	Generate(ctx context.Context, systemPrompt, content string) (string, error)
}
