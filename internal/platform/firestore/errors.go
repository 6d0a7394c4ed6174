package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Error classifies Firestore failures so repositories can map them without importing grpc.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return e != nil && e.conflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// WrapError attaches op to err and classifies its grpc status. Context errors and errors
// that did not come from Firestore (for example domain errors returned from a
// transaction function) pass through untouched.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	if errors.Is(err, ErrProviderClosed) || errors.Is(err, ErrNoProject) {
		return &Error{op: op, err: err, unavailable: true}
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	e := &Error{op: op, err: err}
	switch st.Code() {
	case codes.Canceled:
		return context.Canceled
	case codes.NotFound:
		e.notFound = true
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		e.conflict = true
	case codes.Unavailable, codes.ResourceExhausted, codes.Internal, codes.DeadlineExceeded, codes.Unknown:
		e.unavailable = true
	}
	return e
}
