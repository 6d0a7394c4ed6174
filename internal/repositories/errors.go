package repositories

import (
	"errors"
	"fmt"
)

// ErrPaymentReferenceUsed marks a card payment reference that already settled a sale.
var ErrPaymentReferenceUsed = errors.New("payment reference already settled a sale")

// Error is the RepositoryError used by the in-memory backend.
type Error struct {
	Op          string
	Err         error
	NotFound    bool
	Conflict    bool
	Unavailable bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error       { return e.Err }
func (e *Error) IsNotFound() bool    { return e.NotFound }
func (e *Error) IsConflict() bool    { return e.Conflict }
func (e *Error) IsUnavailable() bool { return e.Unavailable }

func NewNotFoundError(op, format string, args ...any) *Error {
	return &Error{Op: op, Err: fmt.Errorf(format, args...), NotFound: true}
}

func NewConflictError(op, format string, args ...any) *Error {
	return &Error{Op: op, Err: fmt.Errorf(format, args...), Conflict: true}
}

// IsNotFound reports whether err carries a not-found classification.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// NewPaymentReferenceUsedError reports that reference already belongs to saleID.
func NewPaymentReferenceUsedError(op, reference, saleID string) *Error {
	return &Error{Op: op, Err: fmt.Errorf("%w: %s used by sale %s", ErrPaymentReferenceUsed, reference, saleID), Conflict: true}
}

func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
