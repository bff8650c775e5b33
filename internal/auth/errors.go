package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is the family of token verification failures.
	ErrInvalidToken = errors.New("auth: invalid token")

	ErrMalformed        = fmt.Errorf("%w: malformed", ErrInvalidToken)
	ErrExpired          = fmt.Errorf("%w: expired", ErrInvalidToken)
	ErrInvalidSignature = fmt.Errorf("%w: signature mismatch", ErrInvalidToken)

	ErrMissingSecret = errors.New("auth: signing secret is not configured")

	// ErrUnauthorized means no credential was presented.
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrForbidden means a credential was presented but does not grant access.
	ErrForbidden = errors.New("auth: forbidden")
)
