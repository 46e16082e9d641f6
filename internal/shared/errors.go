package shared

import "errors"

// Error categories shared across the inventory domain. Package-level errors wrap one of
// these so transport code can classify them with errors.Is.
var (
	// ErrValidation indicates malformed input such as a non-positive quantity.
	ErrValidation = errors.New("validation failed")
	// ErrReferentialIntegrity indicates an operation referenced an unknown entity.
	ErrReferentialIntegrity = errors.New("referential integrity violation")
	// ErrConflict indicates the request is valid but conflicts with current state.
	ErrConflict = errors.New("conflict with current state")
	// ErrLockTimeout indicates a per-part lock was not acquired in time. Retryable.
	ErrLockTimeout = errors.New("lock acquisition timed out")
	// ErrIntegrity indicates persisted state failed an internal consistency check.
	ErrIntegrity = errors.New("data integrity check failed")
)

// ErrInvalidStateTransition is returned by lifecycle operations on the wrong state.
var ErrInvalidStateTransition = NewError(ErrConflict, "invalid state transition")

// DomainError is a sentinel with a readable message that unwraps to its category.
type DomainError struct {
	kind error
	msg  string
}

// NewError builds a sentinel error classified under kind.
func NewError(kind error, msg string) *DomainError {
	return &DomainError{kind: kind, msg: msg}
}

func (e *DomainError) Error() string { return e.msg }

// Unwrap exposes the category.
func (e *DomainError) Unwrap() error { return e.kind }

// IsRetryable reports whether err is worth retrying after a short delay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
