// Package errors provides error handling for qntx-caption.
//
// This package re-exports github.com/cockroachdb/errors so every package
// gets stack traces, wrapping, hints and details from one import, and it
// declares the sentinels shared by the pointer engine and the caption
// session.
//
// Usage:
//
//	if _, err := pointer.Parse(p); err != nil {
//	    if errors.IsInvalidPointer(err) {
//	        // treat as "no image"
//	    }
//	}
//
//	return errors.WithHint(err, "pointers start with / or <depth>/")
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
	Mark        = crdb.Mark
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

// AssertionFailedf reports a broken internal invariant.
var AssertionFailedf = crdb.AssertionFailedf

// Sentinel errors shared across packages. Wrap them with Wrap/Mark to add
// context while keeping errors.Is working.
var (
	// ErrInvalidPointer indicates a pointer string that does not match the
	// pointer grammar, or a relative pointer that cannot be resolved.
	ErrInvalidPointer = New("invalid pointer")

	// ErrNoParent is returned when asking for the parent of the root pointer.
	ErrNoParent = Mark(New("root pointer has no parent"), ErrInvalidPointer)

	// ErrNoImage indicates that no image reference could be resolved for the field
	ErrNoImage = New("no image to caption")

	// ErrRequestFailed indicates a caption request ended without a caption
	ErrRequestFailed = New("caption request failed")

	// ErrNotConfigured indicates a required collaborator or credential is missing
	ErrNotConfigured = New("not configured")
)

// IsInvalidPointer checks if an error is or wraps ErrInvalidPointer
func IsInvalidPointer(err error) bool {
	return err != nil && Is(err, ErrInvalidPointer)
}

// IsRequestFailed checks if an error is or wraps ErrRequestFailed
func IsRequestFailed(err error) bool {
	return err != nil && Is(err, ErrRequestFailed)
}

// NewInvalidPointerError creates an invalid-pointer error carrying the
// offending pointer as a detail.
func NewInvalidPointerError(pointer string, format string, args ...interface{}) error {
	err := Mark(Newf(format, args...), ErrInvalidPointer)
	return WithDetailf(err, "pointer: %q", pointer)
}

// WrapRequestFailed marks err as a failed caption request with context.
func WrapRequestFailed(err error, context string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, context), ErrRequestFailed)
}
