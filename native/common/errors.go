package common

import (
	"errors"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// ErrUnauthorized is the class of every caller identity failure.
var ErrUnauthorized = errors.New("unauthorized caller")

// UnauthorizedError reports the identity an operation expected alongside the
// caller that actually invoked it.
type UnauthorizedError struct {
	Expected ethcommon.Address
	Actual   ethcommon.Address
	Err      error
}

func (e *UnauthorizedError) Error() string {
	reason := ErrUnauthorized
	if e.Err != nil {
		reason = e.Err
	}
	return fmt.Sprintf("%v: expected %s, got %s", reason, e.Expected.Hex(), e.Actual.Hex())
}

func (e *UnauthorizedError) Unwrap() error { return e.Err }

// Is lets callers match the generic ErrUnauthorized class as well as the
// module specific sentinel carried in Err.
func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }

// NewUnauthorized wraps sentinel with the expected and actual identities.
func NewUnauthorized(sentinel error, expected, actual ethcommon.Address) error {
	return &UnauthorizedError{Expected: expected, Actual: actual, Err: sentinel}
}
