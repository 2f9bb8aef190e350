package listings

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorvault/core/events"
	"floorvault/native/protected"
	"floorvault/native/taxcalc"
)

// Relist buys out the price differential of a single asset and lists it
// again under the new terms. The previous owner is paid everything above
// floor and refunded their unused tax; the caller prepays the new tax.
func (e *Engine) Relist(caller common.Address, params CreateListing, payWithEscrow bool) error {
	return e.run(func() error {
		if len(params.TokenIDs) != 1 {
			return ErrRelistSingleToken
		}
		collection := params.Collection
		id := params.TokenIDs[0]
		old, err := e.listing(collection, id)
		if err != nil {
			return err
		}
		previousOwner := common.Address{}
		if old != nil {
			previousOwner = old.Owner
		}
		if previousOwner == caller {
			return ErrCallerIsAlreadyOwner
		}
		now := e.now()
		available, price, err := e.listingPrice(collection, id, now)
		if err != nil {
			return err
		}
		if !available {
			return ErrListingNotAvailable
		}
		if err := e.validateCreateListing(params); err != nil {
			return err
		}
		denomination, err := e.custody.Denomination(collection)
		if err != nil {
			return err
		}
		if old != nil {
			if err := e.settleListingTax(collection, id, old, denomination, now); err != nil {
				return err
			}
		}
		floor := taxcalc.FloorUnit(denomination)
		differential := new(big.Int).Sub(price, floor)
		if differential.Sign() > 0 {
			if err := e.custody.Transfer(collection, caller, previousOwner, differential); err != nil {
				return err
			}
		}
		listing := &Listing{
			Owner:         params.Owner,
			Created:       now,
			Duration:      params.Duration,
			FloorMultiple: params.FloorMultiple,
		}
		if err := e.state.PutListing(collection, id, listing); err != nil {
			return err
		}
		if old == nil {
			if err := e.adjustCount(collection, 1); err != nil {
				return err
			}
			if _, err := e.loans.CreateCheckpoint(collection); err != nil {
				return err
			}
		}
		if err := e.collect(caller, collection, e.taxRequired(listing, denomination), payWithEscrow); err != nil {
			return err
		}
		e.emitter.Emit(events.ListingRelisted{
			Collection:    collection,
			TokenID:       id,
			PreviousOwner: previousOwner,
			Owner:         params.Owner,
			ListingType:   listingType(listing, now).String(),
			Duration:      params.Duration,
			FloorMultiple: params.FloorMultiple,
			Paid:          differential,
		})
		return nil
	})
}

// Reserve buys an asset through a protected listing. The caller pays the
// price differential to the seller and burns collateral (a WAD share of one
// floor unit); the remainder becomes the principal of a loan owned by the
// caller.
func (e *Engine) Reserve(caller, collection common.Address, id uint256.Int, collateral *big.Int) error {
	return e.run(func() error {
		if collateral == nil || collateral.Sign() <= 0 || collateral.Cmp(taxcalc.WAD) >= 0 {
			return ErrInvalidCollateral
		}
		old, err := e.listing(collection, id)
		if err != nil {
			return err
		}
		if old != nil && old.Owner == caller {
			return ErrCallerIsAlreadyOwner
		}
		now := e.now()
		available, price, err := e.listingPrice(collection, id, now)
		if err != nil {
			return err
		}
		if !available {
			return ErrListingNotAvailable
		}
		denomination, err := e.custody.Denomination(collection)
		if err != nil {
			return err
		}
		if old != nil {
			if err := e.settleListingTax(collection, id, old, denomination, now); err != nil {
				return err
			}
			differential := new(big.Int).Sub(price, taxcalc.FloorUnit(denomination))
			if differential.Sign() > 0 {
				if err := e.custody.Transfer(collection, caller, old.Owner, differential); err != nil {
					return err
				}
			}
			if err := e.state.DeleteListing(collection, id); err != nil {
				return err
			}
			if err := e.adjustCount(collection, -1); err != nil {
				return err
			}
		}
		if err := e.custody.Burn(collection, caller, taxcalc.Denominate(collateral, denomination)); err != nil {
			return err
		}
		if err := e.custody.WithdrawAsset(e.moduleAddress, collection, id, e.moduleAddress); err != nil {
			return err
		}
		tokenTaken := new(big.Int).Sub(taxcalc.WAD, collateral)
		loan := protected.CreateListing{
			Collection: collection,
			TokenIDs:   []uint256.Int{id},
			Owner:      e.moduleAddress,
			TokenTaken: tokenTaken,
		}
		if err := e.loans.CreateListings(e.moduleAddress, []protected.CreateListing{loan}); err != nil {
			return err
		}
		if err := e.custody.Burn(collection, e.moduleAddress, taxcalc.Denominate(tokenTaken, denomination)); err != nil {
			return err
		}
		if err := e.loans.TransferOwnership(e.moduleAddress, collection, id, caller); err != nil {
			return err
		}
		if old != nil {
			if _, err := e.loans.CreateCheckpoint(collection); err != nil {
				return err
			}
		}
		e.emitter.Emit(events.ListingReserved{
			Collection: collection,
			TokenID:    id,
			Reserver:   caller,
			Collateral: new(big.Int).Set(collateral),
			TokenTaken: tokenTaken,
		})
		return nil
	})
}
