package model

import (
	"errors"
	"fmt"
)

// ErrClaimNotFound is returned by the flattened view when no claim has the key.
var ErrClaimNotFound = errors.New("claim not found")

// ValidationError means a record lacks its natural key. Only that record is skipped.
type ValidationError struct {
	Label  string
	Field  string
	Source string
}

func (e *ValidationError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("validation: %s record from %s has no %q", e.Label, e.Source, e.Field)
	}
	return fmt.Sprintf("validation: %s record has no %q", e.Label, e.Field)
}

// ReferenceNotFoundError means a foreign key matched no vertex.
type ReferenceNotFoundError struct {
	Label string
	Field string
	Value string
}

func (e *ReferenceNotFoundError) Error() string {
	return fmt.Sprintf("reference not found: no %s with %s=%s", e.Label, e.Field, e.Value)
}

// FatalSetupError aborts the run before any store work starts.
type FatalSetupError struct {
	Reason string
	Err    error
}

func (e *FatalSetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("setup: %s: %v", e.Reason, e.Err)
	}
	return "setup: " + e.Reason
}

func (e *FatalSetupError) Unwrap() error { return e.Err }
