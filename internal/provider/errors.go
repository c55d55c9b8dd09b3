package provider

import (
	"errors"
	"fmt"
)

// Standard errors shared by providers and adapters.
var (
	// ErrUnknownKind indicates a request or notification kind that is not
	// part of the closed set.
	ErrUnknownKind = errors.New("unknown request kind")

	// ErrNotStarted indicates the provider has not been started.
	ErrNotStarted = errors.New("provider not started")

	// ErrShutdown indicates the provider has been shut down.
	ErrShutdown = errors.New("provider shut down")

	// ErrUnsupportedLanguage indicates the provider does not serve the language.
	ErrUnsupportedLanguage = errors.New("language not supported by provider")

	// ErrInvalidConfig indicates a provider configuration that cannot be used.
	ErrInvalidConfig = errors.New("invalid provider configuration")
)

// ErrPanic wraps a panic recovered from a provider call.
var ErrPanic = errors.New("provider panicked")

// Safe runs fn and converts a panic into an error wrapping ErrPanic. The core
// uses it around every call into provider code so a misbehaving backend is
// treated as producing no response.
func Safe(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}
