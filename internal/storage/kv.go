package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// ErrTransport marks failures of the backing service (network, auth, I/O).
// Callers may retry these; the store itself never does.
var ErrTransport = errors.New("storage transport error")

// KV is a flat key-value store with byte values.
//
// Get returns ErrNotFound for absent keys. Delete of an absent key succeeds.
// Every other backend failure wraps ErrTransport.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// transportErr wraps err so that errors.Is(err, ErrTransport) holds while the
// original cause stays inspectable.
func transportErr(op string, err error) error {
	return &opError{op: op, err: err}
}

type opError struct {
	op  string
	err error
}

func (e *opError) Error() string {
	return e.op + ": " + e.err.Error()
}

func (e *opError) Unwrap() []error {
	return []error{ErrTransport, e.err}
}
