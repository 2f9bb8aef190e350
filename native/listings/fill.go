package listings

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"floorvault/core/events"
	"floorvault/native/taxcalc"
)

// fillAccumulator aggregates a fill batch so the buyer and the fee sink are
// settled once. It lives only for the duration of one FillListings call.
type fillAccumulator struct {
	price   *big.Int
	fees    *big.Int
	filled  uint64
	removed uint64

	// Per owner group; drained by takeOwnerShare.
	ownerPremium *big.Int
	ownerRefund  *big.Int
}

func newFillAccumulator() fillAccumulator {
	return fillAccumulator{
		price:        big.NewInt(0),
		fees:         big.NewInt(0),
		ownerPremium: big.NewInt(0),
		ownerRefund:  big.NewInt(0),
	}
}

func (a fillAccumulator) takeOwnerShare() (fillAccumulator, *big.Int) {
	share := new(big.Int).Add(a.ownerPremium, a.ownerRefund)
	a.ownerPremium = big.NewInt(0)
	a.ownerRefund = big.NewInt(0)
	return a, share
}

// FillListings buys the listed assets. Token ids are grouped by listing
// owner; every id in a group must share the group's owner. The buyer burns a
// floor unit per asset and pays premiums into escrow for the sellers.
func (e *Engine) FillListings(caller common.Address, params FillListingsParams) error {
	return e.run(func() error {
		if len(params.TokenIDsOut) == 0 {
			return ErrNoTokenIDs
		}
		collection := params.Collection
		denomination, err := e.custody.Denomination(collection)
		if err != nil {
			return err
		}
		floor := taxcalc.FloorUnit(denomination)
		now := e.now()

		acc := newFillAccumulator()
		for _, group := range params.TokenIDsOut {
			if len(group) == 0 {
				return ErrNoTokenIDs
			}
			owner, err := e.listingOwner(collection, group[0])
			if err != nil {
				return err
			}
			for _, id := range group {
				idOwner, err := e.listingOwner(collection, id)
				if err != nil {
					return err
				}
				if idOwner != owner {
					return ErrInvalidOwner
				}
				if acc, err = e.fillListing(caller, collection, id, floor, denomination, now, acc); err != nil {
					return err
				}
			}
			var share *big.Int
			acc, share = acc.takeOwnerShare()
			if owner != (common.Address{}) && share.Sign() > 0 {
				if err := e.escrow.Credit(owner, collection, share); err != nil {
					return err
				}
			}
		}

		floorTotal := new(big.Int).Mul(floor, new(big.Int).SetUint64(acc.filled))
		if err := e.custody.Burn(collection, caller, floorTotal); err != nil {
			return err
		}
		if premium := new(big.Int).Sub(acc.price, floorTotal); premium.Sign() > 0 {
			if err := e.custody.Transfer(collection, caller, e.moduleAddress, premium); err != nil {
				return err
			}
		}
		if err := e.depositFees(collection, acc.fees); err != nil {
			return err
		}
		if acc.removed > 0 {
			if err := e.adjustCount(collection, -int64(acc.removed)); err != nil {
				return err
			}
		}
		_, err = e.loans.CreateCheckpoint(collection)
		return err
	})
}

func (e *Engine) fillListing(buyer, collection common.Address, id uint256.Int, floor *big.Int, denomination uint8, now uint64, acc fillAccumulator) (fillAccumulator, error) {
	available, price, err := e.listingPrice(collection, id, now)
	if err != nil {
		return acc, err
	}
	if !available {
		return acc, ErrListingNotAvailable
	}
	listing, err := e.listing(collection, id)
	if err != nil {
		return acc, err
	}
	seller := common.Address{}
	if listing != nil {
		seller = listing.Owner
		fee, refund := e.resolveListingTax(listing, denomination, now)
		if fee.Sign() > 0 {
			acc.fees = new(big.Int).Add(acc.fees, fee)
			e.emitter.Emit(events.ListingFeeCaptured{Collection: collection, TokenID: id, Fee: fee})
		}
		acc.ownerRefund = new(big.Int).Add(acc.ownerRefund, refund)
		acc.ownerPremium = new(big.Int).Add(acc.ownerPremium, new(big.Int).Sub(price, floor))
		if err := e.state.DeleteListing(collection, id); err != nil {
			return acc, err
		}
		acc.removed++
	}
	if err := e.custody.WithdrawAsset(e.moduleAddress, collection, id, buyer); err != nil {
		return acc, err
	}
	acc.price = new(big.Int).Add(acc.price, price)
	acc.filled++
	e.emitter.Emit(events.ListingFilled{Collection: collection, TokenID: id, Seller: seller, Buyer: buyer, Price: price})
	return acc, nil
}

func (e *Engine) listingOwner(collection common.Address, id uint256.Int) (common.Address, error) {
	listing, err := e.listing(collection, id)
	if err != nil || listing == nil {
		return common.Address{}, err
	}
	return listing.Owner, nil
}
