package routes

import (
	"errors"
	"fmt"

	"github.com/kalambet/routesmith/internal/storage"
)

var (
	// ErrValidation marks malformed or missing input. Nothing was read or written.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned by Create when the normalized key already exists.
	ErrConflict = errors.New("route already exists")
	// ErrNotFound is returned when the route key is absent.
	ErrNotFound = errors.New("route not found")
	// ErrCorrupt is returned when a stored value cannot be decoded as an envelope.
	ErrCorrupt = errors.New("stored route data is corrupted")
	// ErrIncomplete is returned by Refresh when the stored route lacks the
	// sources, query or schema needed to re-run extraction.
	ErrIncomplete = errors.New("stored route config is incomplete")
	// ErrTransport is the store's transport failure; retryable by the caller.
	ErrTransport = storage.ErrTransport
)

// GatewayError carries an extraction provider's failure message verbatim.
type GatewayError struct {
	Message string
}

func (e *GatewayError) Error() string {
	return e.Message
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
