package engine

import (
	"errors"
	"fmt"
)

// ErrDuplicateUsername is returned when registering a username that is
// already taken.
var ErrDuplicateUsername = errors.New("username already taken")

// ErrInvalidCredentials is returned on login with an unknown username or a
// wrong password. Callers cannot tell which.
var ErrInvalidCredentials = errors.New("invalid credentials")

// InvalidInputError reports a single rejected field.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TotalMismatchError is returned when a supplied estimate or invoice total
// disagrees with the recomputed sum beyond the configured tolerance.
type TotalMismatchError struct {
	Supplied float64
	Computed float64
}

func (e TotalMismatchError) Error() string {
	return fmt.Sprintf("supplied total %.2f does not match computed total %.2f", e.Supplied, e.Computed)
}
