// Package nexuserr defines the error taxonomy shared by all nexus components.
// Every error carries a stable Category (for exit-code mapping and automation)
// separate from its human-readable message, plus an optional hint shown to the
// user alongside the message.
package nexuserr

import (
	"errors"
	"fmt"
)

// Category classifies an error for exit-code mapping.
type Category string

const (
	CategoryGeneral  Category = "general"
	CategoryUsage    Category = "usage"    // invalid CLI arguments or options
	CategoryFile     Category = "file"     // filesystem access (missing, denied, blocked)
	CategoryResource Category = "resource" // external resources unavailable
	CategoryProvider Category = "provider" // provider API errors (network, auth, rate limit)
	CategorySecurity Category = "security" // path traversal, rejected names
	CategoryConfig   Category = "config"   // config file, missing keys, bad defaults
)

// exitCodes follows the sysexits convention used by the CLI.
var exitCodes = map[Category]int{
	CategoryGeneral:  1,
	CategoryUsage:    64,
	CategoryFile:     66,
	CategoryResource: 75,
	CategoryProvider: 75,
	CategorySecurity: 77,
	CategoryConfig:   78,
}

// Error is the concrete error type for all categorized nexus errors.
type Error struct {
	Category Category
	Message  string
	Hint     string
	Err      error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode returns the process exit code for this error's category.
func (e *Error) ExitCode() int {
	if code, ok := exitCodes[e.Category]; ok {
		return code
	}
	return 1
}

// New creates a categorized error.
func New(cat Category, msg string) *Error {
	return &Error{Category: cat, Message: msg}
}

// Newf creates a categorized error with a formatted message.
func Newf(cat Category, format string, args ...any) *Error {
	return &Error{Category: cat, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a categorized error wrapping a cause.
func Wrap(cat Category, msg string, err error) *Error {
	return &Error{Category: cat, Message: msg, Err: err}
}

// WithHint attaches a remedy hint and returns the same error.
func (e *Error) WithHint(hint string) *Error {
	e.Hint = hint
	return e
}

// CategoryOf reports the category of err, or CategoryGeneral for
// uncategorized errors.
func CategoryOf(err error) Category {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Category
	}
	return CategoryGeneral
}

// ExitCodeOf reports the exit code for err (1 for uncategorized errors).
func ExitCodeOf(err error) int {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.ExitCode()
	}
	return 1
}

// HintOf returns the attached hint, if any.
func HintOf(err error) string {
	var ne *Error
	if errors.As(err, &ne) {
		return ne.Hint
	}
	return ""
}
