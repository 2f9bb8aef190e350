package protected

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorvault/core/events"
	"floorvault/native/checkpoint"
	nativecommon "floorvault/native/common"
	"floorvault/native/taxcalc"
)

var (
	errNilState    = errors.New("protected engine: state not configured")
	errNilCustody  = errors.New("protected engine: custody not configured")
	errNilFeeSink  = errors.New("protected engine: fee sink not configured")
	errNilListings = errors.New("protected engine: listings not configured")

	ErrCollectionNotInitialized  = errors.New("protected engine: collection not initialized")
	ErrNoTokenIDs                = errors.New("protected engine: no token ids supplied")
	ErrOwnerIsZero               = errors.New("protected engine: listing owner is zero")
	ErrTokenAmountIsZero         = errors.New("protected engine: token amount is zero")
	ErrTokenAmountExceedsMax     = errors.New("protected engine: token amount exceeds max")
	ErrListingNotFound           = errors.New("protected engine: protected listing not found")
	ErrCallerNotOwner            = errors.New("protected engine: caller is not owner")
	ErrNewOwnerIsZero            = errors.New("protected engine: new owner is zero")
	ErrNoPositionAdjustment      = errors.New("protected engine: no position adjustment")
	ErrIncorrectFunctionUse      = errors.New("protected engine: repayment clears position, unlock instead")
	ErrInsufficientCollateral    = errors.New("protected engine: insufficient collateral")
	ErrListingStillHasCollateral = errors.New("protected engine: listing still has collateral")
	ErrNothingToWithdraw         = errors.New("protected engine: no asset pending withdrawal")
)

var wad1e36 = new(big.Int).Mul(taxcalc.WAD, taxcalc.WAD)

// Engine manages protected listings: loans drawn against vaulted assets that
// accrue interest through the collection checkpoint ledger.
type Engine struct {
	state         engineState
	ledger        *checkpoint.Ledger
	custody       Custody
	fees          FeeSink
	listings      Listings
	emitter       events.Emitter
	pauses        nativecommon.PauseView
	guard         nativecommon.ReentrancyGuard
	moduleAddress common.Address
}

// NewEngine constructs a protected listing engine whose tokens and reserves
// are held at moduleAddr.
func NewEngine(moduleAddr common.Address) *Engine {
	e := &Engine{moduleAddress: moduleAddr, emitter: events.NoopEmitter{}}
	e.ledger = checkpoint.NewLedger(e)
	return e
}

// SetState wires the engine and its checkpoint ledger to persistence.
func (e *Engine) SetState(state engineState) {
	e.state = state
	e.ledger.SetState(state)
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
	} else {
		e.emitter = emitter
	}
	e.ledger.SetEmitter(emitter)
}

// SetNowFunc overrides the clock used for checkpoints.
func (e *Engine) SetNowFunc(now func() int64) { e.ledger.SetNowFunc(now) }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) SetCustody(c Custody) { e.custody = c }

func (e *Engine) SetFeeSink(f FeeSink) { e.fees = f }

func (e *Engine) SetListings(l Listings) { e.listings = l }

// ModuleAddress returns the account holding loan reserves.
func (e *Engine) ModuleAddress() common.Address { return e.moduleAddress }

// Ledger exposes the collection checkpoint ledger.
func (e *Engine) Ledger() *checkpoint.Ledger { return e.ledger }

func (e *Engine) run(fn func() error) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.custody == nil {
		return errNilCustody
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

// CreateCheckpoint refreshes the collection's interest checkpoint. It is
// shared with the listings engine, which calls it while holding its own
// guard.
func (e *Engine) CreateCheckpoint(collection common.Address) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	var index uint64
	err := nativecommon.Atomic(e.state, func() error {
		var err error
		index, err = e.ledger.CreateCheckpoint(collection)
		return err
	})
	return index, err
}

// UtilizationRate returns the number of open loans for the collection and
// the WAD share of the token supply they represent.
func (e *Engine) UtilizationRate(collection common.Address) (uint64, *big.Int, error) {
	if e == nil || e.state == nil {
		return 0, nil, errNilState
	}
	if e.custody == nil {
		return 0, nil, errNilCustody
	}
	count, err := e.state.LoanCount(collection)
	if err != nil {
		return 0, nil, err
	}
	supply, err := e.custody.TotalSupply(collection)
	if err != nil {
		return 0, nil, err
	}
	if count == 0 || supply.Sign() == 0 {
		return count, big.NewInt(0), nil
	}
	denomination, err := e.custody.Denomination(collection)
	if err != nil {
		return 0, nil, err
	}
	rate := new(big.Int).Mul(new(big.Int).SetUint64(count), wad1e36)
	rate.Mul(rate, taxcalc.DenominationMultiplier(denomination))
	return count, rate.Quo(rate, supply), nil
}

// CreateListings opens protected listings, depositing each asset from caller
// and sending the principal to the listing owner.
func (e *Engine) CreateListings(caller common.Address, batch []CreateListing) error {
	return e.run(func() error {
		stamped := make(map[common.Address]uint64)
		var order []common.Address
		for _, listing := range batch {
			if err := e.validateCreateListing(listing); err != nil {
				return err
			}
			index, ok := stamped[listing.Collection]
			if !ok {
				var err error
				if index, err = e.ledger.CreateCheckpoint(listing.Collection); err != nil {
					return err
				}
				stamped[listing.Collection] = index
				order = append(order, listing.Collection)
			}
			for _, id := range listing.TokenIDs {
				loan := &Loan{Owner: listing.Owner, TokenTaken: new(big.Int).Set(listing.TokenTaken), Checkpoint: index}
				if err := e.state.PutLoan(listing.Collection, id, loan); err != nil {
					return err
				}
			}
			if err := e.adjustCount(listing.Collection, int64(len(listing.TokenIDs))); err != nil {
				return err
			}
			denomination, err := e.custody.Denomination(listing.Collection)
			if err != nil {
				return err
			}
			if err := e.custody.Deposit(caller, listing.Collection, listing.TokenIDs, e.moduleAddress); err != nil {
				return err
			}
			principal := new(big.Int).Mul(listing.TokenTaken, big.NewInt(int64(len(listing.TokenIDs))))
			if err := e.custody.Transfer(listing.Collection, e.moduleAddress, listing.Owner, taxcalc.Denominate(principal, denomination)); err != nil {
				return err
			}
			e.emitter.Emit(events.ProtectedCreated{
				Collection: listing.Collection,
				TokenIDs:   append([]uint256.Int(nil), listing.TokenIDs...),
				Owner:      listing.Owner,
				TokenTaken: new(big.Int).Set(listing.TokenTaken),
				Checkpoint: index,
				Sender:     caller,
			})
		}
		// Utilisation moved; refresh the stamped entries in place.
		for _, collection := range order {
			if _, err := e.ledger.CreateCheckpoint(collection); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) validateCreateListing(listing CreateListing) error {
	ok, err := e.custody.IsCollectionInitialized(listing.Collection)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotInitialized, listing.Collection.Hex())
	}
	if len(listing.TokenIDs) == 0 {
		return ErrNoTokenIDs
	}
	if listing.Owner == (common.Address{}) {
		return ErrOwnerIsZero
	}
	if listing.TokenTaken == nil || listing.TokenTaken.Sign() <= 0 {
		return ErrTokenAmountIsZero
	}
	if listing.TokenTaken.Cmp(MaxProtectedTokenAmount) > 0 {
		return ErrTokenAmountExceedsMax
	}
	return nil
}

// AdjustPosition draws (positive delta) or repays (negative delta) WAD
// principal on the caller's loan.
func (e *Engine) AdjustPosition(caller, collection common.Address, id uint256.Int, delta *big.Int) error {
	return e.run(func() error {
		if delta == nil || delta.Sign() == 0 {
			return ErrNoPositionAdjustment
		}
		loan, err := e.ownedLoan(caller, collection, id)
		if err != nil {
			return err
		}
		health, err := e.health(collection, loan)
		if err != nil {
			return err
		}
		denomination, err := e.custody.Denomination(collection)
		if err != nil {
			return err
		}
		abs := new(big.Int).Abs(delta)
		if delta.Sign() < 0 {
			if new(big.Int).Add(health, abs).Cmp(MaxProtectedTokenAmount) >= 0 || abs.Cmp(loan.TokenTaken) >= 0 {
				return ErrIncorrectFunctionUse
			}
			if err := e.custody.Transfer(collection, caller, e.moduleAddress, taxcalc.Denominate(abs, denomination)); err != nil {
				return err
			}
			loan.TokenTaken.Sub(loan.TokenTaken, abs)
		} else {
			if new(big.Int).Sub(health, abs).Sign() < 0 {
				return ErrInsufficientCollateral
			}
			if err := e.custody.Transfer(collection, e.moduleAddress, caller, taxcalc.Denominate(abs, denomination)); err != nil {
				return err
			}
			loan.TokenTaken.Add(loan.TokenTaken, abs)
		}
		if err := e.state.PutLoan(collection, id, loan); err != nil {
			return err
		}
		e.emitter.Emit(events.ProtectedDebtAdjusted{
			Collection: collection,
			TokenID:    id,
			Owner:      caller,
			Delta:      new(big.Int).Set(delta),
			TokenTaken: new(big.Int).Set(loan.TokenTaken),
		})
		return nil
	})
}

// GetProtectedListingHealth returns the WAD headroom between the principal
// cap and the loan's compounded debt. Negative health is liquidatable.
func (e *Engine) GetProtectedListingHealth(collection common.Address, id uint256.Int) (*big.Int, error) {
	loan, err := e.loan(collection, id)
	if err != nil {
		return nil, err
	}
	return e.health(collection, loan)
}

// UnlockPrice returns the WAD amount required to repay the loan now.
func (e *Engine) UnlockPrice(collection common.Address, id uint256.Int) (*big.Int, error) {
	loan, err := e.loan(collection, id)
	if err != nil {
		return nil, err
	}
	return e.unlockPrice(collection, loan)
}

func (e *Engine) unlockPrice(collection common.Address, loan *Loan) (*big.Int, error) {
	open, err := e.ledger.Checkpoint(collection, loan.Checkpoint)
	if err != nil {
		return nil, err
	}
	current, err := e.ledger.Current(collection)
	if err != nil {
		return nil, err
	}
	return taxcalc.Compound(loan.TokenTaken, open, current), nil
}

func (e *Engine) health(collection common.Address, loan *Loan) (*big.Int, error) {
	price, err := e.unlockPrice(collection, loan)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(MaxProtectedTokenAmount, price), nil
}

// UnlockProtectedListing repays the caller's loan. The principal and the
// unborrowed reserve are burned, accrued interest goes to the fee sink, and
// the asset is released now or left pending for WithdrawProtectedListing.
func (e *Engine) UnlockProtectedListing(caller, collection common.Address, id uint256.Int, withdrawNow bool) error {
	return e.run(func() error {
		if e.fees == nil {
			return errNilFeeSink
		}
		loan, err := e.ownedLoan(caller, collection, id)
		if err != nil {
			return err
		}
		repay, err := e.unlockPrice(collection, loan)
		if err != nil {
			return err
		}
		if new(big.Int).Sub(MaxProtectedTokenAmount, repay).Sign() < 0 {
			return ErrInsufficientCollateral
		}
		denomination, err := e.custody.Denomination(collection)
		if err != nil {
			return err
		}
		interest := new(big.Int).Sub(repay, loan.TokenTaken)
		if interest.Sign() < 0 {
			interest.SetInt64(0)
		}
		if err := e.custody.Burn(collection, caller, taxcalc.Denominate(loan.TokenTaken, denomination)); err != nil {
			return err
		}
		if interest.Sign() > 0 {
			if err := e.fees.DepositFees(caller, collection, nil, taxcalc.Denominate(interest, denomination)); err != nil {
				return err
			}
		}
		reserve := new(big.Int).Sub(taxcalc.WAD, loan.TokenTaken)
		if err := e.custody.Burn(collection, e.moduleAddress, taxcalc.Denominate(reserve, denomination)); err != nil {
			return err
		}
		if err := e.adjustCount(collection, -1); err != nil {
			return err
		}
		if err := e.state.DeleteLoan(collection, id); err != nil {
			return err
		}
		if withdrawNow {
			if err := e.custody.WithdrawAsset(e.moduleAddress, collection, id, caller); err != nil {
				return err
			}
		} else if err := e.state.SetPendingWithdrawal(collection, id, caller); err != nil {
			return err
		}
		if _, err := e.ledger.CreateCheckpoint(collection); err != nil {
			return err
		}
		e.emitter.Emit(events.ProtectedUnlocked{
			Collection:  collection,
			TokenID:     id,
			Owner:       caller,
			Repaid:      taxcalc.Denominate(repay, denomination),
			Interest:    taxcalc.Denominate(interest, denomination),
			WithdrawNow: withdrawNow,
		})
		return nil
	})
}

// WithdrawProtectedListing releases an asset left in the vault by an unlock.
func (e *Engine) WithdrawProtectedListing(caller, collection common.Address, id uint256.Int) error {
	return e.run(func() error {
		pending, err := e.state.PendingWithdrawal(collection, id)
		if err != nil {
			return err
		}
		if pending == (common.Address{}) {
			return ErrNothingToWithdraw
		}
		if pending != caller {
			return nativecommon.NewUnauthorized(ErrCallerNotOwner, pending, caller)
		}
		if err := e.state.SetPendingWithdrawal(collection, id, common.Address{}); err != nil {
			return err
		}
		if err := e.custody.WithdrawAsset(e.moduleAddress, collection, id, caller); err != nil {
			return err
		}
		e.emitter.Emit(events.ProtectedWithdrawn{Collection: collection, TokenID: id, Recipient: caller})
		return nil
	})
}

// LiquidateProtectedListing converts an undercollateralised loan into a
// liquidation listing owned by the borrower. The caller earns the keeper
// reward and the rest of the reserve goes to the fee sink.
func (e *Engine) LiquidateProtectedListing(caller, collection common.Address, id uint256.Int) error {
	return e.run(func() error {
		if e.fees == nil {
			return errNilFeeSink
		}
		if e.listings == nil {
			return errNilListings
		}
		loan, err := e.loan(collection, id)
		if err != nil {
			return err
		}
		health, err := e.health(collection, loan)
		if err != nil {
			return err
		}
		if health.Sign() >= 0 {
			return ErrListingStillHasCollateral
		}
		denomination, err := e.custody.Denomination(collection)
		if err != nil {
			return err
		}
		reward := taxcalc.Denominate(KeeperReward, denomination)
		if err := e.custody.Transfer(collection, e.moduleAddress, caller, reward); err != nil {
			return err
		}
		if err := e.adjustCount(collection, -1); err != nil {
			return err
		}
		if err := e.state.DeleteLoan(collection, id); err != nil {
			return err
		}
		if err := e.listings.CreateLiquidationListing(e.moduleAddress, collection, id, loan.Owner); err != nil {
			return err
		}
		remaining := new(big.Int).Sub(taxcalc.WAD, loan.TokenTaken)
		remaining.Sub(remaining, KeeperReward)
		remaining = taxcalc.Denominate(remaining, denomination)
		if remaining.Sign() > 0 {
			if err := e.fees.DepositFees(e.moduleAddress, collection, nil, remaining); err != nil {
				return err
			}
		}
		if _, err := e.ledger.CreateCheckpoint(collection); err != nil {
			return err
		}
		e.emitter.Emit(events.ProtectedLiquidated{
			Collection:   collection,
			TokenID:      id,
			Owner:        loan.Owner,
			Keeper:       caller,
			KeeperReward: reward,
			FeeSinkShare: remaining,
		})
		return nil
	})
}

// TransferOwnership reassigns the caller's loan to newOwner.
func (e *Engine) TransferOwnership(caller, collection common.Address, id uint256.Int, newOwner common.Address) error {
	return e.run(func() error {
		if newOwner == (common.Address{}) {
			return ErrNewOwnerIsZero
		}
		loan, err := e.ownedLoan(caller, collection, id)
		if err != nil {
			return err
		}
		loan.Owner = newOwner
		if err := e.state.PutLoan(collection, id, loan); err != nil {
			return err
		}
		e.emitter.Emit(events.ProtectedTransferred{Collection: collection, TokenID: id, From: caller, To: newOwner})
		return nil
	})
}

// Loan returns the open loan against an asset, if any.
func (e *Engine) Loan(collection common.Address, id uint256.Int) (*Loan, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, errNilState
	}
	loan, err := e.state.Loan(collection, id)
	if err != nil {
		return nil, false, err
	}
	if loan == nil || loan.Owner == (common.Address{}) {
		return nil, false, nil
	}
	return loan.Clone(), true, nil
}

// PendingWithdrawal returns the account allowed to withdraw an unlocked
// asset, or the zero address.
func (e *Engine) PendingWithdrawal(collection common.Address, id uint256.Int) (common.Address, error) {
	if e == nil || e.state == nil {
		return common.Address{}, errNilState
	}
	return e.state.PendingWithdrawal(collection, id)
}

// IsListed reports whether the asset is locked by a loan or awaiting
// withdrawal.
func (e *Engine) IsListed(collection common.Address, id uint256.Int) (bool, error) {
	_, ok, err := e.Loan(collection, id)
	if err != nil || ok {
		return ok, err
	}
	pending, err := e.PendingWithdrawal(collection, id)
	if err != nil {
		return false, err
	}
	return pending != (common.Address{}), nil
}

// ListingCount returns the number of open loans for the collection.
func (e *Engine) ListingCount(collection common.Address) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	return e.state.LoanCount(collection)
}

func (e *Engine) loan(collection common.Address, id uint256.Int) (*Loan, error) {
	loan, ok, err := e.Loan(collection, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrListingNotFound, id.Dec())
	}
	return loan, nil
}

func (e *Engine) ownedLoan(caller, collection common.Address, id uint256.Int) (*Loan, error) {
	loan, err := e.loan(collection, id)
	if err != nil {
		return nil, err
	}
	if loan.Owner != caller {
		return nil, nativecommon.NewUnauthorized(ErrCallerNotOwner, loan.Owner, caller)
	}
	return loan, nil
}

func (e *Engine) adjustCount(collection common.Address, delta int64) error {
	count, err := e.state.LoanCount(collection)
	if err != nil {
		return err
	}
	if delta < 0 && uint64(-delta) > count {
		return fmt.Errorf("protected engine: listing count underflow for %s", collection.Hex())
	}
	return e.state.SetLoanCount(collection, uint64(int64(count)+delta))
}
