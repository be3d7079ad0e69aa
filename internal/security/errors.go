package security

import (
	"errors"
	"fmt"

	"github.com/festeja/festeja/internal/platform/httpx"
	"github.com/festeja/festeja/internal/store"
)

// Domain error kinds. They wrap the platform sentinels so the HTTP layer maps
// them to status codes without knowing this package.
var (
	ErrNotFound   = fmt.Errorf("security: %w", httpx.ErrNotFound)
	ErrForbidden  = fmt.Errorf("security: %w", httpx.ErrForbidden)
	ErrValidation = fmt.Errorf("security: %w", httpx.ErrValidation)
)

var errUnparseable = errors.New("unparseable row")

// notFound builds an entity-specific not-found error.
func notFound(entity, id string) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
}

// forbidden builds a referential-integrity rejection.
func forbidden(detail string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, detail)
}

// invalidWrite surfaces a store write rejection with its message embedded.
func invalidWrite(err error) error {
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// operation wraps unexpected failures. Already-classified kinds pass through
// unchanged so callers keep the distinction between not-found, forbidden,
// invalid input and internal failure.
func operation(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, httpx.ErrNotFound) || errors.Is(err, httpx.ErrForbidden) || errors.Is(err, httpx.ErrValidation) {
		return err
	}
	if errors.Is(err, store.ErrRejected) {
		return invalidWrite(err)
	}
	return fmt.Errorf("security: %s: %w", op, err)
}
