// Package errors provides error handling for strata.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Marking errors with a sentinel while keeping the original message
//
// On top of that it defines the error taxonomy every strata component uses.
// Concrete errors are marked with one of the sentinels below so callers can
// test the kind with Is() (or the Is* helpers) regardless of the message:
//
//	if errors.IsPolicyViolation(err) {
//	    // write refused by read-only or instance policy
//	}
//
// Absence of a record is never an error; lookups return found=false instead.
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
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
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

// GetStack is an alias for GetReportableStackTrace for convenience.
var GetStack = crdb.GetReportableStackTrace

// AssertionFailedf reports a broken internal invariant.
var AssertionFailedf = crdb.AssertionFailedf

// Error taxonomy. Use these with Is() for kind checks; never compare messages.
var (
	// ErrMalformedID indicates a TID could not be parsed
	ErrMalformedID = New("malformed id")

	// ErrPrecondition indicates a caller-supplied value breaks an invariant
	// (dataset parent ordering, empty key, floating-point key element)
	ErrPrecondition = New("precondition violation")

	// ErrPolicy indicates an operation refused by data source policy
	// (read-only source, destructive call on a non-test instance, wrong lifecycle state)
	ErrPolicy = New("policy violation")

	// ErrTypeMismatch indicates a stored discriminator has no compatible local type
	ErrTypeMismatch = New("type mismatch")

	// ErrTransientIO indicates a store network or timeout failure; callers may retry
	ErrTransientIO = New("transient io")

	// ErrConflict indicates the store rejected a write (e.g. duplicate id)
	ErrConflict = New("conflict")

	// ErrNotFound is used by outer surfaces (CLI) when absence must be reported as a failure
	ErrNotFound = New("not found")
)

// NewMalformedID creates a malformed-id error with a formatted message
func NewMalformedID(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrMalformedID)
}

// NewPrecondition creates a precondition-violation error with a formatted message
func NewPrecondition(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrPrecondition)
}

// NewPolicyViolation creates a policy-violation error with a formatted message
func NewPolicyViolation(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrPolicy)
}

// NewTypeMismatch creates a type-mismatch error with a formatted message
func NewTypeMismatch(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrTypeMismatch)
}

// NewNotFound creates a not-found error with a formatted message
func NewNotFound(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// MarkTransientIO wraps a store failure with context and marks it transient.
// Returns nil for a nil error.
func MarkTransientIO(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, format, args...), ErrTransientIO)
}

// MarkConflict wraps a rejected write with context and marks it as a conflict.
// Returns nil for a nil error.
func MarkConflict(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Mark(Wrapf(err, format, args...), ErrConflict)
}

// IsMalformedID checks if an error is or is marked as ErrMalformedID
func IsMalformedID(err error) bool {
	return err != nil && Is(err, ErrMalformedID)
}

// IsPrecondition checks if an error is or is marked as ErrPrecondition
func IsPrecondition(err error) bool {
	return err != nil && Is(err, ErrPrecondition)
}

// IsPolicyViolation checks if an error is or is marked as ErrPolicy
func IsPolicyViolation(err error) bool {
	return err != nil && Is(err, ErrPolicy)
}

// IsTypeMismatch checks if an error is or is marked as ErrTypeMismatch
func IsTypeMismatch(err error) bool {
	return err != nil && Is(err, ErrTypeMismatch)
}

// IsTransientIO checks if an error is or is marked as ErrTransientIO
func IsTransientIO(err error) bool {
	return err != nil && Is(err, ErrTransientIO)
}

// IsConflict checks if an error is or is marked as ErrConflict
func IsConflict(err error) bool {
	return err != nil && Is(err, ErrConflict)
}

// IsNotFoundError checks if an error is or is marked as ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}
