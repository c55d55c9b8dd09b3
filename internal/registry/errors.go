package registry

import (
	"errors"
	"fmt"

	"github.com/dshills/codeintel/internal/provider"
)

// Errors returned by registry operations.
var (
	// ErrUnknownProvider indicates a name that was never registered.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrDuplicateProvider indicates a second registration under one name.
	ErrDuplicateProvider = errors.New("provider already registered")

	// ErrNoFactory indicates a registration without a factory.
	ErrNoFactory = errors.New("provider factory is nil")

	// ErrInvalidTransition indicates a state change the machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// TransitionError describes a rejected status change.
type TransitionError struct {
	Name string
	From provider.Status
	To   provider.Status
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("provider %s: %s -> %s: %v", e.Name, e.From, e.To, ErrInvalidTransition)
}

// Unwrap returns ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
