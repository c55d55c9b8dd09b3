package config

import (
	"errors"
	"fmt"
)

// Errors returned by configuration operations.
var (
	// ErrInvalidVersion indicates a malformed MAJOR.MINOR.PATCH string.
	ErrInvalidVersion = errors.New("invalid version")

	// ErrUnknownProvider indicates a provider name with no declared defaults.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrStoreClosed indicates use of a closed store watcher.
	ErrStoreClosed = errors.New("store watcher is closed")
)

// VersionError describes a version string that could not be parsed.
type VersionError struct {
	// Value is the offending input.
	Value string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *VersionError) Error() string {
	return fmt.Sprintf("version %q: %v", e.Value, e.Err)
}

// Unwrap returns the underlying error.
func (e *VersionError) Unwrap() error {
	return e.Err
}

// ParseError represents an error while parsing a configuration file.
type ParseError struct {
	// Path is the file path that failed to parse.
	Path string
	// Line is the line number where the error occurred (if available).
	Line int
	// Column is the column number where the error occurred (if available).
	Column int
	// Message describes the parse error.
	Message string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}
