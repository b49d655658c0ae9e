// Package lock serializes writers per identity key so that the
// find-then-create sequences of the upsert engine and the edge linker never
// interleave for the same vertex or edge.
package lock

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyKey is returned when Lock is called without a key.
var ErrEmptyKey = errors.New("lock key is empty")

// Unlock releases a held key. It is safe to call more than once.
type Unlock func()

// Locker hands out exclusive access to a key. Lock blocks until the key is
// free or ctx ends.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// VertexKey identifies a (label, natural key) pair.
func VertexKey(label, key string) string {
	return strings.Join([]string{"v", label, key}, "|")
}

// EdgeKey identifies a (from, label, to) triple by store ids.
func EdgeKey(from, label, to string) string {
	return strings.Join([]string{"e", from, label, to}, "|")
}
