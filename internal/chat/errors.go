package chat

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the store and the service boundary. Callers match
// with errors.Is; the gRPC layer maps each sentinel to a status code.
var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// FieldError is a validation failure attributed to a single input field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is makes every FieldError match ErrValidation.
func (e *FieldError) Is(target error) bool { return target == ErrValidation }

// Invalid returns a validation error for field.
func Invalid(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

// InternalError wraps an unexpected failure with the operation that produced it
// and the conversation or message id it concerned.
type InternalError struct {
	Op  string
	Ref string
	Err error
}

func (e *InternalError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Ref, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

// Internal tags err unless it already belongs to the domain taxonomy, in which
// case it is returned unchanged.
func Internal(op, ref string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) {
		return err
	}
	var ie *InternalError
	if errors.As(err, &ie) {
		return err
	}
	return &InternalError{Op: op, Ref: ref, Err: err}
}

// IsDomain reports whether err is one of the expected outcomes (validation,
// permission, visibility or conflict) rather than a fault.
func IsDomain(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict)
}
