package driver

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// StoreError wraps any transport or query failure. Temporary errors
// (connectivity, timeouts) are retryable and abort the current phase once
// retries are exhausted; the rest are query-level failures.
type StoreError struct {
	Op        string
	Query     string
	Err       error
	Temporary bool
}

func (e *StoreError) Error() string {
	if e.Query != "" {
		return fmt.Sprintf("store %s failed: %v (query: %s)", e.Op, e.Err, truncate(e.Query, 240))
	}
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IsTemporary reports whether err is a retryable StoreError.
func IsTemporary(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Temporary
}

// wrap builds a StoreError, classifying network and deadline errors as
// temporary. An existing StoreError is returned unchanged.
func wrap(op, query string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Query: query, Err: err, Temporary: isTransient(err)}
}

func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
