package core

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrColumnOutOfRange = errors.New("column index out of range")
	ErrTypeMismatch     = errors.New("incompatible operand types")
	ErrOverflow         = errors.New("numeric overflow")
	ErrDivisionByZero   = errors.New("division by zero")
	ErrNodeNotFound     = errors.New("node not found")
	ErrNodeExists       = errors.New("node already exists")
	ErrClosed           = errors.New("closed")
)

// GroupError carries the grouping-key values of the group whose fold failed.
type GroupError struct {
	Key   Row
	Cause error
}

func (e *GroupError) Error() string {
	return fmt.Sprintf("group %s: %v", e.Key, e.Cause)
}

func (e *GroupError) Unwrap() error {
	return e.Cause
}

func newGroupError(key GroupKey, cause error) error {
	return &GroupError{Key: key.Values(), Cause: cause}
}

func IsConstructionError(err error) bool {
	return errors.Is(err, ErrColumnOutOfRange)
}

func IsComputationError(err error) bool {
	return errors.Is(err, ErrTypeMismatch) ||
		errors.Is(err, ErrOverflow) ||
		errors.Is(err, ErrDivisionByZero)
}

// IsInternalError reports contract violations that indicate a bug upstream
// of the operator rather than bad input data.
func IsInternalError(err error) bool {
	return errors.HasAssertionFailure(err)
}

func errorClass(err error) string {
	switch {
	case IsInternalError(err):
		return "internal"
	case IsComputationError(err):
		return "computation"
	case IsConstructionError(err):
		return "construction"
	default:
		return "storage"
	}
}
