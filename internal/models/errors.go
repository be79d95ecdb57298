package models

import (
	"errors"
	"fmt"
)

// ErrValidation is returned when input is malformed. It is always wrapped
// with a message naming the offending field.
var ErrValidation = errors.New("validation failed")

// Validationf returns an error wrapping ErrValidation with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
