package table

import (
	"errors"
	"fmt"
)

// ErrValidation matches every *ValidationError via errors.Is.
var ErrValidation = errors.New("table: validation failed")

// ValidationError reports a descriptor that violates the store's schema rules.
type ValidationError struct {
	Table  string
	Column string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("invalid table descriptor %q: column %q: %s", e.Table, e.Column, e.Reason)
	}
	return fmt.Sprintf("invalid table descriptor %q: %s", e.Table, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(tableName, column, reason string) *ValidationError {
	return &ValidationError{Table: tableName, Column: column, Reason: reason}
}
