package domain

import (
	"errors"
	"fmt"
)

var (
	ErrClaimNotFound = errors.New("claim file not found")
	ErrInvalidInput  = errors.New("invalid input")
	// ErrStatementFormat marks a payment statement that is structurally
	// incompatible (wrong sheet, missing header or columns), as opposed to
	// ordinary data-quality noise inside the rows.
	ErrStatementFormat = errors.New("statement format error")
	ErrTemporary       = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
