package listings

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilState   = errors.New("listings engine: state not configured")
	errNilCustody = errors.New("listings engine: custody not configured")
	errNilLoans   = errors.New("listings engine: protected listings not configured")
	errNilFeeSink = errors.New("listings engine: fee sink not configured")

	ErrCollectionNotInitialized   = errors.New("listings engine: collection not initialized")
	ErrNoTokenIDs                 = errors.New("listings engine: no token ids supplied")
	ErrOwnerIsZero                = errors.New("listings engine: listing owner is zero")
	ErrNewOwnerIsZero             = errors.New("listings engine: new owner is zero")
	ErrFloorMultipleOutOfRange    = errors.New("listings engine: floor multiple out of range")
	ErrDurationBelowMin           = errors.New("listings engine: duration below minimum")
	ErrDurationExceedsMax         = errors.New("listings engine: duration exceeds maximum")
	ErrInvalidListingType         = errors.New("listings engine: invalid listing type")
	ErrInsufficientTax            = errors.New("listings engine: insufficient tax")
	ErrCallerNotOwner             = errors.New("listings engine: caller is not owner")
	ErrCallerIsAlreadyOwner       = errors.New("listings engine: caller is already owner")
	ErrCallerNotProtectedListings = errors.New("listings engine: caller is not protected listings")
	ErrListingNotAvailable        = errors.New("listings engine: listing not available")
	ErrListingNotFound            = errors.New("listings engine: listing not found")
	ErrInvalidOwner               = errors.New("listings engine: token ids in group have different owners")
	ErrRelistSingleToken          = errors.New("listings engine: relist takes exactly one token id")
	ErrInvalidCollateral          = errors.New("listings engine: collateral out of range")
	ErrInvalidAmount              = errors.New("listings engine: amount must be positive")
)

// DurationError reports a duration outside the range of its listing type.
type DurationError struct {
	Duration uint64
	Bound    uint64
	Err      error
}

func (e *DurationError) Error() string {
	return fmt.Sprintf("%v: %d (bound %d)", e.Err, e.Duration, e.Bound)
}

func (e *DurationError) Unwrap() error { return e.Err }

// FloorMultipleError reports a premium outside (MinFloorMultiple,
// MaxFloorMultiple].
type FloorMultipleError struct {
	FloorMultiple uint64
}

func (e *FloorMultipleError) Error() string {
	return fmt.Sprintf("%v: %d not in (%d, %d]", ErrFloorMultipleOutOfRange, e.FloorMultiple, MinFloorMultiple, MaxFloorMultiple)
}

func (e *FloorMultipleError) Unwrap() error { return ErrFloorMultipleOutOfRange }

// InsufficientTaxError reports tax that exceeds the floor value received.
type InsufficientTaxError struct {
	Received *big.Int
	Required *big.Int
}

func (e *InsufficientTaxError) Error() string {
	return fmt.Sprintf("%v: received %s, required %s", ErrInsufficientTax, e.Received, e.Required)
}

func (e *InsufficientTaxError) Unwrap() error { return ErrInsufficientTax }
