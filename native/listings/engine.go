package listings

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorvault/core/events"
	nativecommon "floorvault/native/common"
	"floorvault/native/escrow"
	"floorvault/native/taxcalc"
)

// Engine owns the listing table: it lists vaulted assets at a premium over
// floor, prices them over time and settles the prepaid listing tax.
type Engine struct {
	state         engineState
	custody       Custody
	loans         Loans
	fees          FeeSink
	escrow        *escrow.Ledger
	emitter       events.Emitter
	nowFn         func() int64
	pauses        nativecommon.PauseView
	guard         nativecommon.ReentrancyGuard
	moduleAddress common.Address
}

// NewEngine constructs a listings engine whose collected tokens are held at
// moduleAddr.
func NewEngine(moduleAddr common.Address) *Engine {
	return &Engine{
		moduleAddress: moduleAddr,
		escrow:        escrow.NewLedger(),
		emitter:       events.NoopEmitter{},
		nowFn:         func() int64 { return time.Now().Unix() },
	}
}

// SetState wires the engine and its escrow ledger to persistence.
func (e *Engine) SetState(state engineState) {
	e.state = state
	e.escrow.SetState(state)
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
	} else {
		e.emitter = emitter
	}
	e.escrow.SetEmitter(emitter)
}

// SetNowFunc overrides the time source used by the engine.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) SetCustody(c Custody) { e.custody = c }

func (e *Engine) SetLoans(l Loans) { e.loans = l }

func (e *Engine) SetFeeSink(f FeeSink) { e.fees = f }

// ModuleAddress returns the account holding prepaid tax and escrowed credit.
func (e *Engine) ModuleAddress() common.Address { return e.moduleAddress }

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	ts := e.nowFn()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func (e *Engine) run(fn func() error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.custody == nil {
		return errNilCustody
	}
	if e.loans == nil {
		return errNilLoans
	}
	if e.fees == nil {
		return errNilFeeSink
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if err := e.guard.Enter(); err != nil {
		return err
	}
	defer e.guard.Exit()
	return nativecommon.Atomic(e.state, fn)
}

// CreateListings deposits the caller's assets and lists them. The lister
// receives one floor unit per asset minus the prepaid tax.
func (e *Engine) CreateListings(caller common.Address, batch []CreateListing) error {
	return e.run(func() error {
		now := e.now()
		for _, params := range batch {
			if err := e.validateCreateListing(params); err != nil {
				return err
			}
			listing := &Listing{
				Owner:         params.Owner,
				Created:       now,
				Duration:      params.Duration,
				FloorMultiple: params.FloorMultiple,
			}
			for _, id := range params.TokenIDs {
				if err := e.state.PutListing(params.Collection, id, listing); err != nil {
					return err
				}
			}
			denomination, err := e.custody.Denomination(params.Collection)
			if err != nil {
				return err
			}
			count := uint64(len(params.TokenIDs))
			received := taxcalc.FloorUnits(count, denomination)
			tax := e.taxRequired(listing, denomination)
			tax.Mul(tax, new(big.Int).SetUint64(count))
			if tax.Cmp(received) > 0 {
				return &InsufficientTaxError{Received: received, Required: tax}
			}
			if err := e.adjustCount(params.Collection, int64(count)); err != nil {
				return err
			}
			if err := e.custody.Deposit(caller, params.Collection, params.TokenIDs, e.moduleAddress); err != nil {
				return err
			}
			payout := new(big.Int).Sub(received, tax)
			if err := e.custody.Transfer(params.Collection, e.moduleAddress, params.Owner, payout); err != nil {
				return err
			}
			if _, err := e.loans.CreateCheckpoint(params.Collection); err != nil {
				return err
			}
			e.emitter.Emit(events.ListingsCreated{
				Collection:     params.Collection,
				TokenIDs:       append([]uint256.Int(nil), params.TokenIDs...),
				Owner:          params.Owner,
				ListingType:    listingType(listing, now).String(),
				Created:        now,
				Duration:       params.Duration,
				FloorMultiple:  params.FloorMultiple,
				TaxRequired:    tax,
				TokensReceived: payout,
				Sender:         caller,
			})
		}
		return nil
	})
}

// CreateLiquidationListing lists an asset from a liquidated loan as a tax
// free dutch auction owned by the borrower. Only the protected listings
// module may call it; the asset is already vaulted.
func (e *Engine) CreateLiquidationListing(caller, collection common.Address, id uint256.Int, owner common.Address) error {
	return e.run(func() error {
		expected := e.loans.ModuleAddress()
		if caller != expected {
			return nativecommon.NewUnauthorized(ErrCallerNotProtectedListings, expected, caller)
		}
		params := CreateListing{
			Collection:    collection,
			TokenIDs:      []uint256.Int{id},
			Owner:         owner,
			Duration:      LiquidationDuration,
			FloorMultiple: LiquidationFloorMultiple,
		}
		if err := e.validateCreateListing(params); err != nil {
			return err
		}
		now := e.now()
		listing := &Listing{
			Owner:         owner,
			Created:       now,
			Duration:      LiquidationDuration,
			FloorMultiple: LiquidationFloorMultiple,
			Liquidation:   true,
		}
		if err := e.state.PutListing(collection, id, listing); err != nil {
			return err
		}
		if err := e.adjustCount(collection, 1); err != nil {
			return err
		}
		if _, err := e.loans.CreateCheckpoint(collection); err != nil {
			return err
		}
		e.emitter.Emit(events.ListingsCreated{
			Collection:     collection,
			TokenIDs:       []uint256.Int{id},
			Owner:          owner,
			ListingType:    listingType(listing, now).String(),
			Created:        now,
			Duration:       LiquidationDuration,
			FloorMultiple:  LiquidationFloorMultiple,
			TaxRequired:    big.NewInt(0),
			TokensReceived: big.NewInt(0),
			Liquidation:    true,
			Sender:         caller,
		})
		return nil
	})
}

// ModifyListings changes the duration or premium of the caller's liquid
// listings. Outstanding tax is resolved first and the created time reset,
// so the new terms are taxed from now. Returns the new tax required and the
// refund netted against it.
func (e *Engine) ModifyListings(caller, collection common.Address, changes []ModifyListing, payWithEscrow bool) (*big.Int, *big.Int, error) {
	taxRequired := big.NewInt(0)
	refund := big.NewInt(0)
	err := e.run(func() error {
		if len(changes) == 0 {
			return ErrNoTokenIDs
		}
		denomination, err := e.custody.Denomination(collection)
		if err != nil {
			return err
		}
		now := e.now()
		fees := big.NewInt(0)
		ids := make([]uint256.Int, 0, len(changes))
		for _, change := range changes {
			listing, err := e.ownedListing(caller, collection, change.TokenID)
			if err != nil {
				return err
			}
			if listingType(listing, now) != ListingTypeLiquid {
				return ErrInvalidListingType
			}
			fee, ref := e.resolveListingTax(listing, denomination, now)
			fees.Add(fees, fee)
			refund.Add(refund, ref)

			oldDuration, oldMultiple := listing.Duration, listing.FloorMultiple
			if change.Duration != 0 {
				listing.Duration = change.Duration
			}
			if change.FloorMultiple != 0 {
				listing.FloorMultiple = change.FloorMultiple
			}
			listing.Created = now
			if err := validateFloorMultiple(listing.FloorMultiple); err != nil {
				return err
			}
			if err := validateLiquidDuration(listing.Duration); err != nil {
				return err
			}
			taxRequired.Add(taxRequired, e.taxRequired(listing, denomination))
			if err := e.state.PutListing(collection, change.TokenID, listing); err != nil {
				return err
			}
			if listing.Duration != oldDuration {
				e.emitter.Emit(events.ListingExtended{Collection: collection, TokenID: change.TokenID, OldDuration: oldDuration, NewDuration: listing.Duration})
			}
			if listing.FloorMultiple != oldMultiple {
				e.emitter.Emit(events.ListingRepriced{Collection: collection, TokenID: change.TokenID, OldFloorMultiple: oldMultiple, NewFloorMultiple: listing.FloorMultiple})
			}
			ids = append(ids, change.TokenID)
		}
		if taxRequired.Cmp(refund) > 0 {
			if err := e.collect(caller, collection, new(big.Int).Sub(taxRequired, refund), payWithEscrow); err != nil {
				return err
			}
		} else if err := e.escrow.Credit(caller, collection, new(big.Int).Sub(refund, taxRequired)); err != nil {
			return err
		}
		if err := e.depositFees(collection, fees); err != nil {
			return err
		}
		e.emitter.Emit(events.ListingsModified{
			Collection:  collection,
			TokenIDs:    ids,
			Owner:       caller,
			TaxRequired: new(big.Int).Set(taxRequired),
			Refund:      new(big.Int).Set(refund),
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return taxRequired, refund, nil
}

// CancelListings returns the caller's liquid listings. The caller repays one
// floor unit per asset, less the refund of unused tax.
func (e *Engine) CancelListings(caller, collection common.Address, ids []uint256.Int, payWithEscrow bool) error {
	return e.run(func() error {
		if len(ids) == 0 {
			return ErrNoTokenIDs
		}
		denomination, err := e.custody.Denomination(collection)
		if err != nil {
			return err
		}
		now := e.now()
		fees := big.NewInt(0)
		refund := big.NewInt(0)
		for _, id := range ids {
			listing, err := e.ownedListing(caller, collection, id)
			if err != nil {
				return err
			}
			if listingType(listing, now) != ListingTypeLiquid {
				return ErrInvalidListingType
			}
			fee, ref := e.resolveListingTax(listing, denomination, now)
			fees.Add(fees, fee)
			refund.Add(refund, ref)
			if err := e.state.DeleteListing(collection, id); err != nil {
				return err
			}
			if err := e.custody.WithdrawAsset(e.moduleAddress, collection, id, caller); err != nil {
				return err
			}
		}
		floorTotal := taxcalc.FloorUnits(uint64(len(ids)), denomination)
		required := new(big.Int).Sub(floorTotal, refund)
		if required.Sign() < 0 {
			if err := e.escrow.Credit(caller, collection, new(big.Int).Neg(required)); err != nil {
				return err
			}
			required.SetInt64(0)
		}
		if err := e.collect(caller, collection, required, payWithEscrow); err != nil {
			return err
		}
		if err := e.custody.Burn(collection, e.moduleAddress, floorTotal); err != nil {
			return err
		}
		if err := e.depositFees(collection, fees); err != nil {
			return err
		}
		if err := e.adjustCount(collection, -int64(len(ids))); err != nil {
			return err
		}
		if _, err := e.loans.CreateCheckpoint(collection); err != nil {
			return err
		}
		e.emitter.Emit(events.ListingsCancelled{
			Collection: collection,
			TokenIDs:   append([]uint256.Int(nil), ids...),
			Owner:      caller,
			Refund:     refund,
		})
		return nil
	})
}

// TransferListingOwnership reassigns the caller's listing to newOwner.
func (e *Engine) TransferListingOwnership(caller, collection common.Address, id uint256.Int, newOwner common.Address) error {
	return e.run(func() error {
		if newOwner == (common.Address{}) {
			return ErrNewOwnerIsZero
		}
		listing, err := e.ownedListing(caller, collection, id)
		if err != nil {
			return err
		}
		listing.Owner = newOwner
		if err := e.state.PutListing(collection, id, listing); err != nil {
			return err
		}
		e.emitter.Emit(events.ListingTransferred{Collection: collection, TokenID: id, From: caller, To: newOwner})
		return nil
	})
}

// Withdraw pays out escrowed credit to the caller's wallet.
func (e *Engine) Withdraw(caller, collection common.Address, amount *big.Int) error {
	return e.run(func() error {
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if err := e.escrow.Debit(caller, collection, amount); err != nil {
			return err
		}
		return e.custody.Transfer(collection, e.moduleAddress, caller, amount)
	})
}

// EscrowBalance returns the credit held for account.
func (e *Engine) EscrowBalance(account, collection common.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.escrow.Balance(account, collection)
}

func (e *Engine) validateCreateListing(params CreateListing) error {
	ok, err := e.custody.IsCollectionInitialized(params.Collection)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotInitialized, params.Collection.Hex())
	}
	if len(params.TokenIDs) == 0 {
		return ErrNoTokenIDs
	}
	if params.Owner == (common.Address{}) {
		return ErrOwnerIsZero
	}
	if err := validateFloorMultiple(params.FloorMultiple); err != nil {
		return err
	}
	probe := &Listing{Owner: params.Owner, Duration: params.Duration}
	switch listingType(probe, 0) {
	case ListingTypeDutch:
		if params.Duration < MinDutchDuration {
			return &DurationError{Duration: params.Duration, Bound: MinDutchDuration, Err: ErrDurationBelowMin}
		}
		if params.Duration > MaxDutchDuration {
			return &DurationError{Duration: params.Duration, Bound: MaxDutchDuration, Err: ErrDurationExceedsMax}
		}
	case ListingTypeLiquid:
		return validateLiquidDuration(params.Duration)
	default:
		return ErrInvalidListingType
	}
	return nil
}

func validateFloorMultiple(fm uint64) error {
	if fm <= MinFloorMultiple || fm > MaxFloorMultiple {
		return &FloorMultipleError{FloorMultiple: fm}
	}
	return nil
}

func validateLiquidDuration(duration uint64) error {
	if duration < MinLiquidDuration {
		return &DurationError{Duration: duration, Bound: MinLiquidDuration, Err: ErrDurationBelowMin}
	}
	if duration > MaxLiquidDuration {
		return &DurationError{Duration: duration, Bound: MaxLiquidDuration, Err: ErrDurationExceedsMax}
	}
	return nil
}

// collect takes amount from payer into the module, drawing on the payer's
// escrow first when payWithEscrow is set.
func (e *Engine) collect(payer, collection common.Address, amount *big.Int, payWithEscrow bool) error {
	if amount.Sign() == 0 {
		return nil
	}
	remaining := amount
	if payWithEscrow {
		var err error
		if remaining, err = e.escrow.DebitUpTo(payer, collection, amount); err != nil {
			return err
		}
	}
	if remaining.Sign() == 0 {
		return nil
	}
	return e.custody.Transfer(collection, payer, e.moduleAddress, remaining)
}

func (e *Engine) depositFees(collection common.Address, fees *big.Int) error {
	if fees.Sign() == 0 {
		return nil
	}
	return e.fees.DepositFees(e.moduleAddress, collection, nil, fees)
}

func (e *Engine) ownedListing(caller, collection common.Address, id uint256.Int) (*Listing, error) {
	listing, err := e.listing(collection, id)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		return nil, fmt.Errorf("%w: %s", ErrListingNotFound, id.Dec())
	}
	if listing.Owner != caller {
		return nil, nativecommon.NewUnauthorized(ErrCallerNotOwner, listing.Owner, caller)
	}
	return listing, nil
}

// listing returns the stored listing or nil when the asset has none.
func (e *Engine) listing(collection common.Address, id uint256.Int) (*Listing, error) {
	listing, err := e.state.Listing(collection, id)
	if err != nil {
		return nil, err
	}
	if listing == nil || listing.Owner == (common.Address{}) {
		return nil, nil
	}
	return listing.Clone(), nil
}

func (e *Engine) adjustCount(collection common.Address, delta int64) error {
	count, err := e.state.ListingCount(collection)
	if err != nil {
		return err
	}
	if delta < 0 && uint64(-delta) > count {
		return fmt.Errorf("listings engine: listing count underflow for %s", collection.Hex())
	}
	return e.state.SetListingCount(collection, uint64(int64(count)+delta))
}
