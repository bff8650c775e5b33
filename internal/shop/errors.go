package shop

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned when a request body breaks a record invariant.
var ErrInvalidInput = errors.New("shop: invalid input")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
