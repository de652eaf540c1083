package session

import (
	"errors"
	"fmt"
)

// ErrIdentity is the sentinel wrapped by every IdentityError.
var ErrIdentity = errors.New("session: cannot resolve client identity")

// IdentityError reports that the host identity could not be resolved.
type IdentityError struct {
	Err error
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("%v: %v", ErrIdentity, e.Err)
}

// Unwrap exposes both ErrIdentity and the underlying cause to errors.Is.
func (e *IdentityError) Unwrap() []error {
	return []error{ErrIdentity, e.Err}
}
